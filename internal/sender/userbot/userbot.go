// Package userbot is the secondary delivery channel: a user-account MTProto
// client built on gotd. It addresses recipients by handle, consumes an
// already-authorized session file, and is subject to stricter anti-abuse
// limits than the Bot API.
package userbot

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/styling"
	"github.com/gotd/td/telegram/uploader"
	"golang.org/x/time/rate"

	"herald/internal/broadcast"
	"herald/pkg/logx"
)

type Config struct {
	APIID      int
	APIHash    string
	Phone      string
	SessionDir string
	RatePerSec int
}

// Sender holds one lazily-connected user session per operator. The session
// is brought up at most once (EnsureConnected) and shared by every send of
// a run; there is no concurrent reconnect.
type Sender struct {
	cfg Config
	log logx.Logger
	lim *rate.Limiter

	mu        sync.Mutex
	connected bool
	client    *telegram.Client
	snd       *message.Sender
	upload    *uploader.Uploader
	cancel    context.CancelFunc
	runDone   chan struct{}
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if cfg.APIID == 0 || strings.TrimSpace(cfg.APIHash) == "" {
		return nil, errors.New("userbot: api_id and api_hash are required")
	}
	if strings.TrimSpace(cfg.Phone) == "" {
		return nil, errors.New("userbot: phone is required")
	}
	if cfg.SessionDir == "" {
		cfg.SessionDir = "./sessions"
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	return &Sender{
		cfg: cfg,
		log: log.With(logx.String("component", "userbot"), logx.String("phone", maskPhone(cfg.Phone))),
		lim: rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

func (s *Sender) Name() string { return string(broadcast.ChannelSecondary) }

// EnsureConnected brings the session up once; later calls return
// immediately. Interactive login is out of scope: an unauthorized session
// file is a hard error, not a prompt.
func (s *Sender) EnsureConnected(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}

	if err := os.MkdirAll(s.cfg.SessionDir, 0o700); err != nil {
		return fmt.Errorf("userbot: session dir: %w", err)
	}
	storage := &session.FileStorage{Path: s.sessionPath()}
	client := telegram.NewClient(s.cfg.APIID, s.cfg.APIHash, telegram.Options{
		SessionStorage: storage,
	})

	// The connection outlives the caller's context; Close() tears it down.
	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	errCh := make(chan error, 1)
	runDone := make(chan struct{})

	s.log.Info("connecting")
	go func() {
		defer close(runDone)
		err := client.Run(runCtx, func(ctx context.Context) error {
			status, err := client.Auth().Status(ctx)
			if err != nil {
				return fmt.Errorf("auth status: %w", err)
			}
			if !status.Authorized {
				return errors.New("session not authorized; provision a session file first")
			}
			api := client.API()
			// EnsureConnected still holds s.mu here; the ready channel
			// orders these writes before any reader.
			s.snd = message.NewSender(api)
			s.upload = uploader.NewUploader(api)
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
		select {
		case errCh <- err:
		default:
		}
	}()

	select {
	case <-ready:
		s.connected = true
		s.client = client
		s.cancel = cancel
		s.runDone = runDone
		s.log.Info("connected")
		return nil
	case err := <-errCh:
		cancel()
		<-runDone
		return fmt.Errorf("userbot connect: %w", err)
	case <-ctx.Done():
		cancel()
		<-runDone
		return ctx.Err()
	}
}

// Close tears the session down. Safe to call when never connected.
func (s *Sender) Close(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.runDone
	s.cancel = nil
	s.connected = false
	s.snd = nil
	s.upload = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		s.log.Info("disconnected")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send delivers one message to one recipient by handle.
func (s *Sender) Send(ctx context.Context, to broadcast.Recipient, msg broadcast.Message, media []byte) (broadcast.Ack, error) {
	s.mu.Lock()
	snd := s.snd
	up := s.upload
	connected := s.connected
	s.mu.Unlock()

	if !connected || snd == nil {
		return broadcast.Ack{}, broadcast.Transient(errors.New("userbot: not connected"))
	}
	handle := strings.TrimPrefix(strings.TrimSpace(to.Handle), "@")
	if handle == "" {
		return broadcast.Ack{}, broadcast.PeerUnreachable(errors.New("userbot: recipient has no handle"))
	}

	if err := s.lim.Wait(ctx); err != nil {
		return broadcast.Ack{}, broadcast.Transient(err)
	}

	target := snd.Resolve(handle)
	var err error
	if msg.Kind == broadcast.KindText {
		_, err = target.Text(ctx, msg.Text)
	} else {
		opt, berr := buildMedia(ctx, up, msg, media)
		if berr != nil {
			return broadcast.Ack{}, broadcast.Permanent(berr)
		}
		_, err = target.Media(ctx, opt)
	}
	if err != nil {
		return broadcast.Ack{}, classify(err)
	}
	return broadcast.Ack{}, nil
}

// buildMedia uploads the run's shared buffer and wraps it in the media
// option for the message kind. The upload happens per recipient: MTProto
// uploads are peer-independent but the resulting file reference is not
// reusable across unrelated dialogs without access hashes, so we keep it
// simple and let the secondary channel pay for its own uploads.
func buildMedia(ctx context.Context, up *uploader.Uploader, msg broadcast.Message, media []byte) (message.MediaOption, error) {
	if msg.Media == nil || len(media) == 0 {
		return nil, errors.New("media message without resolved bytes")
	}
	ref := *msg.Media
	name := ref.FileName
	if name == "" {
		name = "file"
	}
	f, err := up.FromBytes(ctx, name, media)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	switch msg.Kind {
	case broadcast.KindPhoto:
		return message.UploadedPhoto(f, styledCaption(msg.Text)...), nil
	case broadcast.KindVideo:
		doc := message.UploadedDocument(f, styledCaption(msg.Text)...).MIME(ref.MIMEType)
		return doc.Video().Duration(ref.Duration).Resolution(ref.Width, ref.Height), nil
	case broadcast.KindAudio:
		doc := message.UploadedDocument(f, styledCaption(msg.Text)...).MIME(ref.MIMEType).Filename(name)
		return doc.Audio().Duration(ref.Duration), nil
	case broadcast.KindVoice:
		return message.UploadedDocument(f, styledCaption(msg.Text)...).MIME(ref.MIMEType).Voice(), nil
	default:
		return message.UploadedDocument(f, styledCaption(msg.Text)...).MIME(ref.MIMEType).Filename(name), nil
	}
}

func (s *Sender) sessionPath() string {
	sum := sha256.Sum256([]byte(s.cfg.Phone))
	return filepath.Join(s.cfg.SessionDir, fmt.Sprintf("%x.session", sum[:8]))
}

func styledCaption(caption string) []message.StyledTextOption {
	if caption == "" {
		return nil
	}
	return []message.StyledTextOption{styling.Plain(caption)}
}

// maskPhone keeps the first two and last two digits for logging.
func maskPhone(phone string) string {
	if len(phone) < 4 {
		return "***"
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}

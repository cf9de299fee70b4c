// Package botapi is the primary delivery channel: a Bot API client built on
// telebot. It is always available and addresses recipients by chat id.
package botapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"herald/internal/broadcast"
	"herald/pkg/logx"
)

type Config struct {
	Token string
	// Offline skips the token verification call on construction. Used by
	// tests; production leaves it false so a bad token fails fast.
	Offline bool
}

type Sender struct {
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("botapi: token is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token, Offline: cfg.Offline})
	if err != nil {
		return nil, err
	}
	return &Sender{bot: b, log: log}, nil
}

func (s *Sender) Name() string { return string(broadcast.ChannelPrimary) }

// Send delivers one message to one recipient. The media slice (when set) is
// the run's shared buffer; it is only read.
func (s *Sender) Send(ctx context.Context, to broadcast.Recipient, msg broadcast.Message, media []byte) (broadcast.Ack, error) {
	if err := ctx.Err(); err != nil {
		return broadcast.Ack{}, broadcast.Transient(err)
	}

	chatID, err := strconv.ParseInt(to.ID, 10, 64)
	if err != nil {
		return broadcast.Ack{}, broadcast.PeerUnreachable(fmt.Errorf("invalid chat id %q: %w", to.ID, err))
	}

	payload, err := buildPayload(msg, media)
	if err != nil {
		return broadcast.Ack{}, broadcast.Permanent(err)
	}

	m, err := s.bot.Send(tele.ChatID(chatID), payload)
	if err != nil {
		return broadcast.Ack{}, classify(err)
	}
	return broadcast.Ack{MessageID: strconv.Itoa(m.ID)}, nil
}

// buildPayload maps the message descriptor onto the telebot sendable for
// its kind. Unknown media kinds are delivered as documents.
func buildPayload(msg broadcast.Message, media []byte) (any, error) {
	if msg.Kind == broadcast.KindText {
		return msg.Text, nil
	}
	if msg.Media == nil {
		return nil, errors.New("media message without media ref")
	}
	if len(media) == 0 {
		return nil, errors.New("media message without resolved bytes")
	}

	ref := *msg.Media
	file := tele.FromReader(bytes.NewReader(media))
	seconds := int(ref.Duration.Seconds())

	switch msg.Kind {
	case broadcast.KindPhoto:
		return &tele.Photo{File: file, Caption: msg.Text}, nil
	case broadcast.KindVideo:
		return &tele.Video{File: file, Caption: msg.Text, Width: ref.Width, Height: ref.Height, Duration: seconds}, nil
	case broadcast.KindAudio:
		return &tele.Audio{File: file, Caption: msg.Text, FileName: ref.FileName, MIME: ref.MIMEType, Duration: seconds}, nil
	case broadcast.KindVoice:
		return &tele.Voice{File: file, Caption: msg.Text, Duration: seconds}, nil
	case broadcast.KindSticker:
		return &tele.Sticker{File: file}, nil
	case broadcast.KindAnimation:
		return &tele.Animation{File: file, Caption: msg.Text, FileName: ref.FileName}, nil
	case broadcast.KindVideoNote:
		return &tele.VideoNote{File: file, Duration: seconds}, nil
	default:
		return &tele.Document{File: file, Caption: msg.Text, FileName: ref.FileName, MIME: ref.MIMEType}, nil
	}
}

// Fetch downloads the bytes behind a file id through the Bot API. Used by
// the engine's media resolver (download-once, fan-out-many).
func (s *Sender) Fetch(ctx context.Context, ref broadcast.MediaRef) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, broadcast.Transient(err)
	}
	f, err := s.bot.FileByID(ref.FileID)
	if err != nil {
		return nil, classify(err)
	}
	rc, err := s.bot.File(&f)
	if err != nil {
		return nil, classify(err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, broadcast.Transient(err)
	}
	s.log.Debug("media fetched", logx.String("file_id", ref.FileID), logx.Int("bytes", len(b)))
	return b, nil
}

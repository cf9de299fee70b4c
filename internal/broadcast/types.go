package broadcast

import (
	"strings"
	"time"
)

// Recipient is a single delivery target. ID is the stable chat identifier
// used by the primary channel; Handle is the optional username the secondary
// channel resolves (empty when the user has none).
type Recipient struct {
	ID     string
	Handle string
}

// Channel names one of the two delivery paths.
type Channel string

const (
	ChannelPrimary   Channel = "primary"
	ChannelSecondary Channel = "secondary"
)

// Policy selects how the two channels are combined for a run.
type Policy string

const (
	// PrimaryOnly sends through the primary channel exclusively.
	PrimaryOnly Policy = "primary_only"
	// SecondaryPreferred tries the secondary channel first for recipients
	// with a handle, falling back to the primary within the same attempt.
	SecondaryPreferred Policy = "secondary_preferred"
)

type MessageKind string

const (
	KindText      MessageKind = "text"
	KindPhoto     MessageKind = "photo"
	KindVideo     MessageKind = "video"
	KindDocument  MessageKind = "document"
	KindAudio     MessageKind = "audio"
	KindVoice     MessageKind = "voice"
	KindSticker   MessageKind = "sticker"
	KindAnimation MessageKind = "animation"
	KindVideoNote MessageKind = "video_note"
	KindOther     MessageKind = "other"
)

// MediaRef identifies a remote file plus the metadata carried from the
// original inbound message. The bytes are resolved at most once per run.
type MediaRef struct {
	FileID   string
	MIMEType string
	FileName string
	Duration time.Duration
	Width    int
	Height   int
	Size     int64
}

// Message is the payload delivered to every recipient. Kind == KindText uses
// Text as the body; media kinds use Text as the caption and Media as the
// file reference.
type Message struct {
	Kind  MessageKind
	Text  string
	Media *MediaRef
}

func NewText(body string) Message {
	return Message{Kind: KindText, Text: body}
}

func NewMedia(kind MessageKind, ref MediaRef, caption string) Message {
	return Message{Kind: kind, Text: caption, Media: &ref}
}

// HasMedia reports whether the payload references a remote file.
func (m Message) HasMedia() bool {
	return m.Kind != KindText && m.Media != nil
}

// Job is one broadcast run. It is owned by the engine for the duration of
// Run(); the caller must not mutate it after handing it over.
type Job struct {
	ID         string
	Name       string
	Recipients []Recipient
	Message    Message
	Policy     Policy
}

// Report is the terminal artifact of a run. Immutable once returned.
// For completed (non-cancelled) runs Succeeded+Failed == Total.
type Report struct {
	Total       int
	Succeeded   int
	Failed      int
	ByChannel   map[Channel]int
	RetryRounds int
	Cancelled   bool
	StartedAt   time.Time
	DoneAt      time.Time
}

// dedupe removes duplicate recipient ids, keeping first-seen order.
func dedupe(in []Recipient) []Recipient {
	seen := make(map[string]struct{}, len(in))
	out := make([]Recipient, 0, len(in))
	for _, r := range in {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		r.ID = id
		out = append(out, r)
	}
	return out
}

package broadcast

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoRecipients aborts a run before any dispatch happens.
	ErrNoRecipients = errors.New("broadcast: no recipients")
	// ErrBusy is returned when an operator already has an active run.
	ErrBusy = errors.New("broadcast: a run is already in progress")
	// ErrMediaUnavailable is the job-level failure after the media fetch
	// retry policy is exhausted.
	ErrMediaUnavailable = errors.New("broadcast: media could not be resolved")
	// ErrRunPanicked replaces a run that died to a panic in a sender.
	ErrRunPanicked = errors.New("broadcast: run aborted by panic")
)

// ErrorKind classifies a failed send.
type ErrorKind string

const (
	// KindRateLimited carries a server wait hint; the attempt is deferred
	// to the retry rounds, not repeated immediately.
	KindRateLimited ErrorKind = "rate_limited"
	// KindPeerUnreachable means the channel cannot address this recipient
	// at all (unknown id, unresolvable handle).
	KindPeerUnreachable ErrorKind = "peer_unreachable"
	// KindPermanent failures (blocked, deactivated, privacy-restricted)
	// are never retried.
	KindPermanent ErrorKind = "permanent"
	// KindTransient failures are eligible for fallback and retry rounds.
	KindTransient ErrorKind = "transient"
)

// SendError is the error contract between the senders and the engine.
// Wait is only meaningful for KindRateLimited.
type SendError struct {
	Kind ErrorKind
	Wait time.Duration
	Err  error
}

func (e *SendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("send failed (%s)", e.Kind)
	}
	return fmt.Sprintf("send failed (%s): %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

func RateLimited(wait time.Duration, err error) *SendError {
	return &SendError{Kind: KindRateLimited, Wait: wait, Err: err}
}

func PeerUnreachable(err error) *SendError {
	return &SendError{Kind: KindPeerUnreachable, Err: err}
}

func Permanent(err error) *SendError {
	return &SendError{Kind: KindPermanent, Err: err}
}

func Transient(err error) *SendError {
	return &SendError{Kind: KindTransient, Err: err}
}

// kindOf extracts the classification from an arbitrary send error.
// Unclassified errors are treated as transient so they get a fallback
// attempt and a spot in the retry rounds.
func kindOf(err error) ErrorKind {
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransient
}

// waitHint extracts the enforced wait from a rate-limit error, zero otherwise.
func waitHint(err error) time.Duration {
	var se *SendError
	if errors.As(err, &se) && se.Kind == KindRateLimited {
		return se.Wait
	}
	return 0
}

// retryable reports whether a failure of this kind belongs in the retry set.
func retryable(kind ErrorKind) bool {
	return kind == KindTransient || kind == KindRateLimited
}

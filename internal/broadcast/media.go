package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"herald/pkg/logx"
)

// Fetcher downloads the raw bytes behind a MediaRef. Implementations
// classify failures as *SendError so the resolver can tell a flaky network
// from a file that is gone for good.
type Fetcher interface {
	Fetch(ctx context.Context, ref MediaRef) ([]byte, error)
}

// mediaRetryDelays is the rotating ladder between fetch attempts.
var mediaRetryDelays = []time.Duration{5 * time.Second, 10 * time.Second, 30 * time.Second}

const defaultMediaAttempts = 6

// MediaResolver downloads a job's media once and hands the same read-only
// buffer to every subsequent send (download-once, fan-out-many). It is
// job-scoped: no cross-run reuse.
type MediaResolver struct {
	fetch       Fetcher
	maxAttempts int
	delays      []time.Duration
	log         logx.Logger

	mu       sync.Mutex
	buf      []byte
	resolved bool
}

func NewMediaResolver(fetch Fetcher, maxAttempts int, log logx.Logger) *MediaResolver {
	if maxAttempts <= 0 {
		maxAttempts = defaultMediaAttempts
	}
	return &MediaResolver{fetch: fetch, maxAttempts: maxAttempts, delays: mediaRetryDelays, log: log}
}

// Resolve returns the media bytes, downloading them on the first call and
// memoizing the result. Transient fetch failures are retried on a rotating
// delay ladder up to the attempt cap; permanent failures stop immediately.
// Exhaustion is a job-level failure, not a per-recipient one.
func (r *MediaResolver) Resolve(ctx context.Context, ref MediaRef) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return r.buf, nil
	}

	var last error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		buf, err := r.fetch.Fetch(ctx, ref)
		if err == nil {
			r.buf = buf
			r.resolved = true
			if attempt > 1 {
				r.log.Info("media resolved after retry",
					logx.String("file_id", ref.FileID),
					logx.Int("attempt", attempt),
					logx.Int("bytes", len(buf)))
			}
			return buf, nil
		}
		last = err

		kind := kindOf(err)
		if kind == KindPermanent || kind == KindPeerUnreachable {
			return nil, fmt.Errorf("%w: %w", ErrMediaUnavailable, err)
		}

		if attempt == r.maxAttempts {
			break
		}
		delay := r.delays[(attempt-1)%len(r.delays)]
		if wait := waitHint(err); wait > delay {
			delay = wait
		}
		r.log.Warn("media fetch failed; will retry",
			logx.String("file_id", ref.FileID),
			logx.Int("attempt", attempt),
			logx.Duration("delay", delay),
			logx.Err(err))
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrMediaUnavailable, r.maxAttempts, last)
}

// Release drops the buffer at the end of the run.
func (r *MediaResolver) Release() {
	r.mu.Lock()
	r.buf = nil
	r.resolved = false
	r.mu.Unlock()
}

package broadcast

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PaceConfig tunes the inter-send delays. The defaults exist to stay under
// externally imposed throughput ceilings; they are knobs, not invariants.
type PaceConfig struct {
	PerSend       time.Duration // steady delay between consecutive sends
	GroupSize     int           // sends per group before the long pause
	GroupPauseMin time.Duration
	GroupPauseMax time.Duration
}

func (c *PaceConfig) normalize() {
	if c.PerSend <= 0 {
		c.PerSend = 300 * time.Millisecond
	}
	if c.GroupSize <= 0 {
		c.GroupSize = 3
	}
	if c.GroupPauseMin <= 0 {
		c.GroupPauseMin = 10 * time.Second
	}
	if c.GroupPauseMax < c.GroupPauseMin {
		c.GroupPauseMax = c.GroupPauseMin + 10*time.Second
	}
}

// Pacer is the pacing port the engine drives. Pace blocks after each send;
// Gate blocks until a channel's penalty window has passed; Penalty records a
// server wait hint for a channel.
type Pacer interface {
	Pace(ctx context.Context, sent int) error
	Gate(ctx context.Context, ch Channel) error
	Penalty(ch Channel, wait time.Duration)
}

// SendPacer enforces the per-send delay, the randomized group pause, and
// per-channel flood-wait penalties for one run. Not shared across runs.
type SendPacer struct {
	cfg PaceConfig
	lim *rate.Limiter

	mu        sync.Mutex
	penalties map[Channel]time.Time
	rng       *rand.Rand
}

func NewPacer(cfg PaceConfig) *SendPacer {
	cfg.normalize()
	return &SendPacer{
		cfg:       cfg,
		lim:       rate.NewLimiter(rate.Every(cfg.PerSend), 1),
		penalties: map[Channel]time.Time{},
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Pace blocks the sequential loop after a send. sent is the number of sends
// issued so far in this run; every GroupSize-th send triggers the long pause.
func (p *SendPacer) Pace(ctx context.Context, sent int) error {
	if err := p.lim.Wait(ctx); err != nil {
		return err
	}
	if sent <= 0 || sent%p.cfg.GroupSize != 0 {
		return nil
	}
	p.mu.Lock()
	span := p.cfg.GroupPauseMax - p.cfg.GroupPauseMin
	pause := p.cfg.GroupPauseMin
	if span > 0 {
		pause += time.Duration(p.rng.Int63n(int64(span)))
	}
	p.mu.Unlock()
	return sleep(ctx, pause)
}

// Gate waits out any penalty recorded for the channel about to be used.
func (p *SendPacer) Gate(ctx context.Context, ch Channel) error {
	p.mu.Lock()
	deadline := p.penalties[ch]
	p.mu.Unlock()

	wait := time.Until(deadline)
	if wait <= 0 {
		return nil
	}
	return sleep(ctx, wait)
}

// Penalty records a server-signalled backoff window for a channel. The next
// Gate on that channel waits at least this long, on top of normal pacing.
func (p *SendPacer) Penalty(ch Channel, wait time.Duration) {
	if wait <= 0 {
		return
	}
	until := time.Now().Add(wait)
	p.mu.Lock()
	if until.After(p.penalties[ch]) {
		p.penalties[ch] = until
	}
	p.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}

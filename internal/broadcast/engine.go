package broadcast

import (
	"context"
	"errors"
	"time"

	"herald/pkg/logx"
)

// Options tunes one engine. Zero values fall back to the documented
// defaults in normalize().
type Options struct {
	Pace          PaceConfig
	RetryRounds   int           // retry rounds after the initial pass
	RetryDelay    time.Duration // delay between retry rounds
	MediaAttempts int           // fetch attempt cap for media resolution
	ProgressStep  int           // progress emission granularity, percent

	// Pacer overrides the per-run pacer; used by tests. When nil a
	// SendPacer is built from Pace for every run.
	Pacer Pacer
}

func (o *Options) normalize() {
	if o.RetryRounds <= 0 {
		o.RetryRounds = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 2 * time.Second
	}
	if o.ProgressStep <= 0 {
		o.ProgressStep = 5
	}
}

// Engine drives one broadcast job to completion: dedup, media resolution,
// the sequential send loop with channel fallback, retry rounds, and the
// final report. One Engine may serve many runs, but runs for the same
// operator must not overlap (Service enforces that).
type Engine struct {
	primary   Sender
	secondary Sender // nil when the secondary channel is not configured
	fetch     Fetcher
	sink      Sink
	opts      Options
	log       logx.Logger
}

func NewEngine(primary, secondary Sender, fetch Fetcher, sink Sink, opts Options, log logx.Logger) *Engine {
	opts.normalize()
	return &Engine{
		primary:   primary,
		secondary: secondary,
		fetch:     fetch,
		sink:      sink,
		opts:      opts,
		log:       log,
	}
}

// outcome is the terminal state of one delivery attempt (fallback included).
type outcome struct {
	ok   bool
	ch   Channel
	kind ErrorKind
}

type tally struct {
	succeeded int
	failed    int
	byChannel map[Channel]int
}

func newTally() *tally {
	return &tally{byChannel: map[Channel]int{}}
}

func (t *tally) record(out outcome) {
	if out.ok {
		t.succeeded++
		t.byChannel[out.ch]++
		return
	}
	t.failed++
}

// promote flips an earlier failure into a retry-round success.
func (t *tally) promote(out outcome) {
	t.failed--
	t.succeeded++
	t.byChannel[out.ch]++
}

// Run executes the job and returns its report. Per-recipient failures never
// abort the run; only job-level conditions (empty recipient set, media
// resolution exhaustion) do. Cancellation is honored between recipients and
// yields a partial report with Cancelled set.
func (e *Engine) Run(ctx context.Context, job Job) (Report, error) {
	recips := dedupe(job.Recipients)
	if len(recips) == 0 {
		return Report{}, ErrNoRecipients
	}

	log := e.log.With(logx.String("run", job.ID), logx.String("name", job.Name))
	rep := Report{Total: len(recips), StartedAt: time.Now()}

	// Download-once, fan-out-many: the buffer is shared read-only by every
	// send in the run and released when the run ends.
	var media []byte
	if job.Message.HasMedia() {
		if e.fetch == nil {
			return Report{}, errors.New("broadcast: media message but no fetcher configured")
		}
		resolver := NewMediaResolver(e.fetch, e.opts.MediaAttempts, log)
		defer resolver.Release()
		buf, err := resolver.Resolve(ctx, *job.Message.Media)
		if err != nil {
			return Report{}, err
		}
		media = buf
	}

	secondaryUp := e.connectSecondary(ctx, job, recips, log)

	pacer := e.opts.Pacer
	if pacer == nil {
		pacer = NewPacer(e.opts.Pace)
	}
	reporter := NewReporter(e.opts.ProgressStep, e.sink)
	defer reporter.Close()

	log.Info("broadcast started",
		logx.Int("total", rep.Total),
		logx.String("policy", string(job.Policy)),
		logx.String("kind", string(job.Message.Kind)),
		logx.Bool("secondary", secondaryUp))

	t := newTally()
	var retrySet []Recipient
	processed := 0

	for _, rec := range recips {
		if ctx.Err() != nil {
			rep.Cancelled = true
			break
		}

		out, err := e.deliver(ctx, pacer, job, rec, media, secondaryUp, log)
		if err != nil {
			// Cancelled mid-attempt: nothing was recorded for this recipient.
			rep.Cancelled = true
			break
		}
		t.record(out)
		if !out.ok && retryable(out.kind) {
			retrySet = append(retrySet, rec)
		}
		processed++

		reporter.Observe(Snapshot{
			RunID:     job.ID,
			Name:      job.Name,
			Processed: processed,
			Total:     rep.Total,
			Succeeded: t.succeeded,
			Failed:    t.failed,
		})

		if processed < rep.Total {
			if err := pacer.Pace(ctx, processed); err != nil {
				rep.Cancelled = true
				break
			}
		}
	}

	if !rep.Cancelled && len(retrySet) > 0 {
		coord := retryCoordinator{
			maxRounds: e.opts.RetryRounds,
			delay:     e.opts.RetryDelay,
			log:       log,
		}
		rep.RetryRounds = coord.run(ctx, pacer, retrySet,
			func(ctx context.Context, rec Recipient) (outcome, error) {
				return e.deliver(ctx, pacer, job, rec, media, secondaryUp, log)
			},
			func(out outcome) { t.promote(out) },
		)
		if ctx.Err() != nil {
			rep.Cancelled = true
		}
	}

	rep.Succeeded = t.succeeded
	rep.Failed = t.failed
	rep.ByChannel = t.byChannel
	rep.DoneAt = time.Now()

	reporter.Observe(Snapshot{
		RunID:     job.ID,
		Name:      job.Name,
		Processed: processed,
		Total:     rep.Total,
		Succeeded: rep.Succeeded,
		Failed:    rep.Failed,
		Final:     true,
	})

	fields := []logx.Field{
		logx.Int("total", rep.Total),
		logx.Int("succeeded", rep.Succeeded),
		logx.Int("failed", rep.Failed),
		logx.Int("retry_rounds", rep.RetryRounds),
		logx.Bool("cancelled", rep.Cancelled),
		logx.Duration("dur", rep.DoneAt.Sub(rep.StartedAt)),
	}
	if rep.Failed > 0 {
		log.Warn("broadcast finished with failures", fields...)
	} else {
		log.Info("broadcast finished", fields...)
	}
	return rep, nil
}

// connectSecondary brings the secondary session up once per run, before the
// first send. A run never reconnects concurrently; a connect failure
// degrades the run to primary-only instead of aborting it.
func (e *Engine) connectSecondary(ctx context.Context, job Job, recips []Recipient, log logx.Logger) bool {
	if job.Policy != SecondaryPreferred || e.secondary == nil {
		return false
	}
	anyHandle := false
	for _, r := range recips {
		if r.Handle != "" {
			anyHandle = true
			break
		}
	}
	if !anyHandle {
		return false
	}
	c, ok := e.secondary.(Connector)
	if !ok {
		return true
	}
	if err := c.EnsureConnected(ctx); err != nil {
		log.Warn("secondary channel unavailable; falling back to primary for the whole run", logx.Err(err))
		return false
	}
	return true
}

// deliver makes one delivery attempt for one recipient, including the
// in-attempt channel fallback. The returned error is non-nil only when the
// context was cancelled before an outcome was reached.
func (e *Engine) deliver(ctx context.Context, pacer Pacer, job Job, rec Recipient, media []byte, secondaryUp bool, log logx.Logger) (outcome, error) {
	// The secondary channel needs a resolvable handle; recipients without
	// one go straight to primary and the secondary sender is never invoked.
	if secondaryUp && rec.Handle != "" {
		if err := pacer.Gate(ctx, ChannelSecondary); err != nil {
			return outcome{}, err
		}
		_, err := e.secondary.Send(ctx, rec, job.Message, media)
		if err == nil {
			return outcome{ok: true, ch: ChannelSecondary}, nil
		}
		kind := kindOf(err)
		if kind == KindRateLimited {
			pacer.Penalty(ChannelSecondary, waitHint(err))
		}
		log.Debug("secondary send failed; falling back to primary",
			logx.String("recipient", rec.ID),
			logx.String("kind", string(kind)),
			logx.Err(err))
	}

	if err := pacer.Gate(ctx, ChannelPrimary); err != nil {
		return outcome{}, err
	}
	_, err := e.primary.Send(ctx, rec, job.Message, media)
	if err == nil {
		return outcome{ok: true, ch: ChannelPrimary}, nil
	}
	kind := kindOf(err)
	if kind == KindRateLimited {
		pacer.Penalty(ChannelPrimary, waitHint(err))
	}
	log.Warn("send failed",
		logx.String("recipient", rec.ID),
		logx.String("kind", string(kind)),
		logx.Err(err))
	return outcome{ch: ChannelPrimary, kind: kind}, nil
}

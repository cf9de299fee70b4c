package broadcast

import (
	"context"
	"time"

	"herald/pkg/logx"
)

// retryEntry tracks one recipient through the retry state machine:
// pending(attempts) -> succeeded | pending(attempts+1) -> ... -> exhausted.
type retryEntry struct {
	rec      Recipient
	attempts int
}

// retryCoordinator re-drives failed recipients after the initial pass, up to
// maxRounds rounds with delay between them, stopping early once the pending
// set empties. Recipients still pending after the last round stay failed in
// the tally; nothing needs to be written back.
type retryCoordinator struct {
	maxRounds int
	delay     time.Duration
	log       logx.Logger
}

type deliverFunc func(ctx context.Context, rec Recipient) (outcome, error)

// run returns the number of rounds actually executed.
func (c retryCoordinator) run(ctx context.Context, pacer Pacer, failed []Recipient, deliver deliverFunc, onSuccess func(outcome)) int {
	pending := make([]retryEntry, 0, len(failed))
	for _, rec := range failed {
		pending = append(pending, retryEntry{rec: rec})
	}

	rounds := 0
	for round := 1; round <= c.maxRounds && len(pending) > 0; round++ {
		if err := sleep(ctx, c.delay); err != nil {
			return rounds
		}
		rounds = round
		c.log.Info("retry round started",
			logx.Int("round", round),
			logx.Int("pending", len(pending)))

		var next []retryEntry
		sent := 0
		recovered := 0
		for _, en := range pending {
			if ctx.Err() != nil {
				return rounds
			}
			out, err := deliver(ctx, en.rec)
			if err != nil {
				return rounds
			}
			en.attempts++
			switch {
			case out.ok:
				onSuccess(out)
				recovered++
			case retryable(out.kind) && en.attempts < c.maxRounds:
				next = append(next, en)
			}
			sent++
			if err := pacer.Pace(ctx, sent); err != nil {
				return rounds
			}
		}
		c.log.Info("retry round finished",
			logx.Int("round", round),
			logx.Int("recovered", recovered),
			logx.Int("still_pending", len(next)))
		pending = next
	}
	return rounds
}

// Package broadcast is the dispatch core: it takes a recipient snapshot and
// a message and drives delivery to every recipient through one of two
// channels, under rate limits, with in-attempt channel fallback, bounded
// retry rounds, and throttled progress reporting.
//
// Delivery semantics
//
// Sends are issued strictly one at a time. The dominant constraint is the
// channels' externally imposed throughput ceilings, not CPU or network, so
// the loop trades throughput for compliance: a short delay after every send
// and a long randomized pause after every few sends. Per-recipient failures
// never abort a run; they are folded into the tally and, when retryable,
// re-driven in up to three retry rounds. The run is best-effort and not
// durable: if the process dies mid-run, the run is lost.
//
// Channels
//
// The engine is written against the Sender port only. The primary channel
// (Bot API) is always available; the secondary channel (user account)
// requires a resolvable handle and an authenticated session, and is tried
// first when the job's policy prefers it, with the primary channel as the
// in-attempt fallback.
package broadcast

package broadcast

import "sync"

// Snapshot is the throttled progress view handed to the sink. It is a copy;
// the sink never sees the live tally.
type Snapshot struct {
	RunID     string
	Name      string
	Processed int
	Total     int
	Succeeded int
	Failed    int
	Final     bool
}

func (s Snapshot) Percent() int {
	if s.Total <= 0 {
		return 0
	}
	return s.Processed * 100 / s.Total
}

// Sink receives progress snapshots. How they reach the operator is the
// caller's concern.
type Sink func(Snapshot)

// Reporter throttles progress emission to coarse percentage boundaries so
// the reporting path cannot itself trip rate limits. Emission is decoupled
// from the dispatch loop through a buffered queue; when the sink is slower
// than dispatch, intermediate snapshots are dropped; the final snapshot is
// always delivered.
type Reporter struct {
	step int
	sink Sink

	queue chan Snapshot
	done  chan struct{}
	once  sync.Once

	mu         sync.Mutex
	lastBucket int
}

// NewReporter starts the emit worker. step is the percentage granularity;
// values outside (0,100] fall back to 5.
func NewReporter(step int, sink Sink) *Reporter {
	if step <= 0 || step > 100 {
		step = 5
	}
	r := &Reporter{
		step:       step,
		sink:       sink,
		queue:      make(chan Snapshot, 32),
		done:       make(chan struct{}),
		lastBucket: -1,
	}
	go r.run()
	return r
}

func (r *Reporter) run() {
	defer close(r.done)
	for s := range r.queue {
		if r.sink != nil {
			r.sink(s)
		}
	}
}

// Observe considers a snapshot for emission. Never blocks the caller.
func (r *Reporter) Observe(s Snapshot) {
	bucket := s.Percent() / r.step

	r.mu.Lock()
	emit := s.Final || bucket > r.lastBucket
	if emit {
		r.lastBucket = bucket
	}
	r.mu.Unlock()

	if !emit {
		return
	}
	if s.Final {
		// The final snapshot must not be lost; the worker is draining, so a
		// blocking send completes quickly.
		r.queue <- s
		return
	}
	select {
	case r.queue <- s:
	default:
		// sink is behind; drop this boundary
	}
}

// Close flushes queued snapshots and stops the worker.
func (r *Reporter) Close() {
	r.once.Do(func() { close(r.queue) })
	<-r.done
}

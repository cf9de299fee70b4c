package broadcast

import (
	"sort"
	"sync"
	"time"
)

const (
	// Keep run status memory bounded. Runs can be created frequently and
	// keeping every status forever steadily retains memory.
	defaultStatusMax = 200
	defaultStatusTTL = 24 * time.Hour
)

// RunStatus is the live view of one run, readable while it executes.
type RunStatus struct {
	ID        string
	Name      string
	Total     int
	Done      int
	Succeeded int
	Failed    int
	Running   bool
	CreatedAt time.Time
	StartedAt time.Time
	DoneAt    time.Time
}

// Registry holds run statuses in memory, bounded by entry count and TTL.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*RunStatus
	max  int
	ttl  time.Duration
}

func NewRegistry(max int, ttl time.Duration) *Registry {
	if max <= 0 {
		max = defaultStatusMax
	}
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &Registry{runs: map[string]*RunStatus{}, max: max, ttl: ttl}
}

func (g *Registry) Create(id, name string, total int) {
	now := time.Now()
	g.Prune(now)
	g.mu.Lock()
	g.runs[id] = &RunStatus{ID: id, Name: name, Total: total, CreatedAt: now}
	g.mu.Unlock()
}

func (g *Registry) MarkStarted(id string) {
	g.mu.Lock()
	if st := g.runs[id]; st != nil {
		st.Running = true
		st.StartedAt = time.Now()
	}
	g.mu.Unlock()
}

// Observe folds a progress snapshot into the stored status.
func (g *Registry) Observe(s Snapshot) {
	g.mu.Lock()
	if st := g.runs[s.RunID]; st != nil {
		st.Done = s.Processed
		st.Succeeded = s.Succeeded
		st.Failed = s.Failed
	}
	g.mu.Unlock()
}

func (g *Registry) Finish(id string) {
	g.mu.Lock()
	if st := g.runs[id]; st != nil {
		st.Running = false
		st.DoneAt = time.Now()
	}
	g.mu.Unlock()
}

// Get returns a copy of the status.
func (g *Registry) Get(id string) (RunStatus, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st, ok := g.runs[id]
	if !ok || st == nil {
		return RunStatus{}, false
	}
	return *st, true
}

// Prune evicts completed runs older than the TTL, then enforces the max
// entry bound by dropping the oldest non-running statuses.
func (g *Registry) Prune(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, st := range g.runs {
		if st == nil {
			delete(g.runs, id)
			continue
		}
		if st.Running {
			continue
		}
		reference := st.DoneAt
		if reference.IsZero() {
			reference = st.CreatedAt
		}
		if !reference.IsZero() && now.Sub(reference) > g.ttl {
			delete(g.runs, id)
		}
	}

	over := len(g.runs) - g.max
	if over <= 0 {
		return
	}

	type cand struct {
		id string
		t  time.Time
	}
	cands := make([]cand, 0, len(g.runs))
	for id, st := range g.runs {
		if st == nil || st.Running {
			continue
		}
		key := st.DoneAt
		if key.IsZero() {
			key = st.CreatedAt
		}
		cands = append(cands, cand{id: id, t: key})
	}
	if len(cands) == 0 {
		return
	}

	sort.Slice(cands, func(i, j int) bool {
		// zero time sorts first
		if cands[i].t.IsZero() && !cands[j].t.IsZero() {
			return true
		}
		if !cands[i].t.IsZero() && cands[j].t.IsZero() {
			return false
		}
		return cands[i].t.Before(cands[j].t)
	})

	for i := 0; i < len(cands) && over > 0; i++ {
		delete(g.runs, cands[i].id)
		over--
	}
}

package broadcast

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"herald/pkg/logx"
)

// ServiceConfig wires the engine options with the registry bounds.
type ServiceConfig struct {
	Engine    Options
	StatusMax int
	StatusTTL time.Duration
	// PruneSpec is a cron expression for periodic registry pruning
	// (e.g. "@every 1h"). Empty disables the schedule; pruning still
	// happens on run creation.
	PruneSpec string
}

// Service owns the engine and the run registry, and serializes runs: one
// operator, one active broadcast at a time.
type Service struct {
	engine *Engine
	reg    *Registry
	log    logx.Logger

	cron *cron.Cron

	mu     sync.Mutex
	active bool
}

func NewService(cfg ServiceConfig, primary, secondary Sender, fetch Fetcher, sink Sink, log logx.Logger) *Service {
	reg := NewRegistry(cfg.StatusMax, cfg.StatusTTL)
	s := &Service{reg: reg, log: log}

	// Registry updates ride on the same throttled snapshots the operator
	// sees; the live tally stays private to the engine.
	wrapped := func(snap Snapshot) {
		reg.Observe(snap)
		if sink != nil {
			sink(snap)
		}
	}
	s.engine = NewEngine(primary, secondary, fetch, wrapped, cfg.Engine, log)

	if cfg.PruneSpec != "" {
		c := cron.New()
		if _, err := c.AddFunc(cfg.PruneSpec, func() { reg.Prune(time.Now()) }); err != nil {
			log.Warn("invalid registry prune schedule; periodic prune disabled",
				logx.String("spec", cfg.PruneSpec), logx.Err(err))
		} else {
			s.cron = c
		}
	}
	return s
}

func (s *Service) Start(ctx context.Context) {
	if s.cron != nil {
		s.cron.Start()
	}
}

func (s *Service) Stop(ctx context.Context) {
	if s.cron != nil {
		stopped := s.cron.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
		}
	}
}

// Status exposes the registry view of a run.
func (s *Service) Status(id string) (RunStatus, bool) { return s.reg.Get(id) }

// Run executes one broadcast to completion. A second call while a run is
// active returns ErrBusy; the engine itself assumes this exclusion.
func (s *Service) Run(ctx context.Context, job Job) (rep Report, err error) {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return Report{}, ErrBusy
	}
	s.active = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
	}()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	s.reg.Create(job.ID, job.Name, len(dedupe(job.Recipients)))
	s.reg.MarkStarted(job.ID)
	defer s.reg.Finish(job.ID)

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in broadcast run",
				logx.String("run", job.ID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
			rep, err = Report{}, ErrRunPanicked
		}
	}()

	return s.engine.Run(ctx, job)
}

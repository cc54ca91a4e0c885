package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aisaas/backend/internal/app/core/service"
	"github.com/aisaas/backend/internal/logging"
)

var _ Service = (*Scheduler)(nil)

// Job is a periodic maintenance task.
type Job func(ctx context.Context) error

// Scheduler runs maintenance jobs on cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	log     *logging.Logger
	timeout time.Duration
	jobs    []string

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewScheduler creates a scheduler. Each job run is bounded by timeout.
func NewScheduler(log *logging.Logger, timeout time.Duration) *Scheduler {
	if log == nil {
		log = logging.NewDefault("scheduler")
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:     log,
		timeout: timeout,
		ctx:     context.Background(),
	}
}

// Add registers job under name on spec, e.g. "@every 10m".
func (s *Scheduler) Add(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.jobs = append(s.jobs, name)
	return nil
}

// Descriptor lists the scheduled jobs.
func (s *Scheduler) Descriptor() service.Descriptor {
	return service.Descriptor{Name: s.Name(), Domain: "maintenance", Layer: service.LayerMaintenance}.
		WithCapabilities(s.jobs...)
}

// Entries returns the number of scheduled jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Name() string { return "maintenance-scheduler" }

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.running = true
	s.cron.Start()
	s.log.WithField("jobs", len(s.cron.Entries())).Info("maintenance scheduler started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("maintenance scheduler stopped")
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	start := time.Now()
	entry := s.log.WithField("job", name)
	if err := job(ctx); err != nil {
		entry.WithError(err).Warn("maintenance job failed")
		return
	}
	entry.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("maintenance job finished")
}

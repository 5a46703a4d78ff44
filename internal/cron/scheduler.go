package cron

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/robfig/cron/v3"
)

// parser accepts the classic five-field syntax and descriptors such as
// "@every 90s".
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule reports whether expr is a schedule the Scheduler accepts.
func ParseSchedule(expr string) error {
	_, err := parser.Parse(expr)
	return err
}

// Observer receives the outcome of every job run.
type Observer interface {
	JobRan(name string, err error)
}

// Scheduler runs Jobs on their schedules. A tick that fires while the
// previous run of the same job is still going is skipped, and a panicking
// job is logged instead of taking the process down.
type Scheduler struct {
	logger   *slog.Logger
	observer Observer
	cron     *cron.Cron

	// ctx is handed to scheduled runs and cancelled by Stop.
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]Job
	ids  map[string]cron.EntryID
	done bool
}

// NewScheduler returns an idle scheduler. logger and observer may be nil.
func NewScheduler(logger *slog.Logger, observer Observer) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	adapter := cronLogger{logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:   logger,
		observer: observer,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]Job),
		ids:    make(map[string]cron.EntryID),
	}
}

// Add schedules j. The schedule is checked here, so a typo fails at
// startup. Names must be unique.
func (s *Scheduler) Add(j Job) error {
	name := j.Name()
	sched, err := parser.Parse(j.Schedule())
	if err != nil {
		return fmt.Errorf("cron: job %q: schedule %q: %w", name, j.Schedule(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("cron: job %q already scheduled", name)
	}
	s.jobs[name] = j
	s.ids[name] = s.cron.Schedule(sched, cron.FuncJob(func() { _ = s.run(s.ctx, j) }))
	return nil
}

// Names lists the scheduled jobs, sorted.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() error {
	s.cron.Start()
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, id := range s.ids {
		s.logger.Debug("cron: job scheduled", "job", name, "next", s.cron.Entry(id).Next)
	}
	s.logger.Info("cron: scheduler started", "jobs", len(s.jobs))
	return nil
}

// RunNow runs the named job once, synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("cron: no job named %q", name)
	}
	return s.run(ctx, j)
}

func (s *Scheduler) run(ctx context.Context, j Job) error {
	err := j.Run(ctx)
	if err != nil {
		s.logger.Error("cron: job failed", "job", j.Name(), "error", err)
	} else {
		s.logger.Debug("cron: job done", "job", j.Name())
	}
	if s.observer != nil {
		s.observer.JobRan(j.Name(), err)
	}
	return err
}

// Stop cancels the context of running jobs and waits for them, or for ctx.
// Calling it again is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.done = true
	s.mu.Unlock()

	s.cancel()
	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("cron: scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron: waiting for running jobs: %w", ctx.Err())
	}
}

// cronLogger routes robfig/cron's own messages to slog. Its Info output is
// per-tick chatter, so it goes to debug.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, kv ...any) { c.l.Debug("cron: "+msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error("cron: "+msg, append(kv, "error", err)...)
}

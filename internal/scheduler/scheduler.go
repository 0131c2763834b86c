// Package scheduler implements the periodic trigger (C11) that fires
// Orchestrator.Execute on a configured interval.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/franksunye/fsoa-agent/internal/metrics"
)

// ExecuteFunc adapts Orchestrator.Execute's concrete RunResult return
// type to a scheduler-agnostic signature, avoiding an import cycle back
// onto the orchestrator package's result type.
type ExecuteFunc func(ctx context.Context, dryRun bool) error

// Scheduler wraps an ExecuteFunc with a cron-driven tick source. Missed
// ticks do not coalesce with backfill — if a run is still executing when
// the next tick fires, that tick is skipped and logged, never queued.
type Scheduler struct {
	cron   *cron.Cron
	run    ExecuteFunc
	log    *logrus.Logger
	every  time.Duration

	mu      sync.Mutex
	entryID cron.EntryID
	started bool
	running bool

	skippedTicks int
	lastTickAt   time.Time
}

// New builds a Scheduler that calls run every interval. The cron `@every`
// tick source works in whole seconds: sub-second parts are dropped and
// anything under one second runs as one second.
func New(run ExecuteFunc, interval time.Duration, log *logrus.Logger) *Scheduler {
	if log == nil {
		log = logrus.New()
	}
	return &Scheduler{
		cron:  cron.New(),
		run:   run,
		log:   log,
		every: interval,
	}
}

// Start registers the tick and begins the cron loop. Starting an already
// started Scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	id, err := s.cron.AddFunc("@every "+s.every.String(), func() {
		s.tick(ctx)
	})
	if err != nil {
		return err
	}
	s.entryID = id
	s.cron.Start()
	s.started = true
	return nil
}

// Stop halts the cron loop, waiting for any in-flight tick to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()

	// Drop the registered tick so a later Start does not add a second one.
	s.mu.Lock()
	s.cron.Remove(s.entryID)
	s.mu.Unlock()
}

// tick runs one scheduled pass, skipping (not queuing) if the previous
// tick is still in flight — only the latest missed tick would have fired
// had it been allowed to, and even that is dropped rather than backfilled.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.skippedTicks++
		metrics.SchedulerSkippedTicks.Inc()
		s.log.WithField("skipped_total", s.skippedTicks).Warn("scheduler tick skipped: previous run still executing")
		s.mu.Unlock()
		return
	}
	s.running = true
	s.lastTickAt = time.Now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	deadline, cancel := context.WithTimeout(ctx, s.every/2)
	defer cancel()

	if err := s.run(deadline, false); err != nil {
		s.log.WithField("error", err.Error()).Warn("scheduled run failed")
	}
}

// Restart stops the cron loop (waiting for any in-flight tick to drain)
// and starts it again against ctx. A Restart on a Scheduler that was
// never started just starts it.
func (s *Scheduler) Restart(ctx context.Context) error {
	s.Stop()
	return s.Start(ctx)
}

// JobInfo describes one registered tick for list_jobs.
type JobInfo struct {
	ID       cron.EntryID
	Schedule string
	Next     time.Time
	Prev     time.Time
}

// ListJobs returns the scheduler's registered ticks. FSOA only ever
// registers the one "@every <interval>" job, but the shape mirrors
// cron.Cron's own Entries() so it generalizes if that changes.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.cron.Entries()
	jobs := make([]JobInfo, 0, len(entries))
	for _, e := range entries {
		jobs = append(jobs, JobInfo{
			ID:       e.ID,
			Schedule: "@every " + s.every.String(),
			Next:     e.Next,
			Prev:     e.Prev,
		})
	}
	return jobs
}

// IsRunning reports whether a scheduled tick is currently executing.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SkippedTicks returns the count of ticks dropped because the previous
// run had not yet finished.
func (s *Scheduler) SkippedTicks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skippedTicks
}

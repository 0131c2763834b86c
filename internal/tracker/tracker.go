// Package tracker implements ExecutionTracker (C10): per-run lifecycle
// tracking with a process-wide single-run gate.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/franksunye/fsoa-agent/internal/errs"
	"github.com/franksunye/fsoa-agent/internal/store"
)

// RunStatistics is the explicit record type for get_run_statistics.
type RunStatistics struct {
	TotalRuns              int
	SuccessfulRuns         int
	FailedRuns             int
	AverageDurationSeconds float64
}

// StepPerformance is the explicit record type for get_step_performance.
type StepPerformance struct {
	Total                  int
	Successful             int
	AverageDurationSeconds float64
}

// Tracker is ExecutionTracker. Exactly one run may be active in-process
// at a time, enforced by the is_running mutex gate (§4.5, §5).
type Tracker struct {
	backend store.Store

	mu         sync.Mutex
	running    bool
	currentRun string
}

// New builds a Tracker over the given backend.
func New(backend store.Store) *Tracker {
	return &Tracker{backend: backend}
}

// Start persists a new Running AgentRun and acquires the single-run gate.
// A concurrent Start call while a run is active returns the existing
// run_id unchanged — it does not create a new record (§4.5).
func (t *Tracker) Start(ctx context.Context, runContext map[string]string, now time.Time) (string, error) {
	t.mu.Lock()
	if t.running {
		existing := t.currentRun
		t.mu.Unlock()
		return existing, nil
	}
	runID := uuid.NewString()
	t.running = true
	t.currentRun = runID
	t.mu.Unlock()

	run := &store.AgentRun{
		ID:          runID,
		TriggerTime: now,
		Status:      store.RunRunning,
		Context:     runContext,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.backend.InsertRun(ctx, run); err != nil {
		t.mu.Lock()
		t.running = false
		t.currentRun = ""
		t.mu.Unlock()
		return "", err
	}
	return runID, nil
}

// IsRunning reports whether a run currently holds the gate.
func (t *Tracker) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// CurrentRun returns the active run_id, or "" if none.
func (t *Tracker) CurrentRun() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentRun
}

// StepFunc is the work a tracked step performs. Its error, if any,
// propagates unchanged to the caller after the StepTrace is recorded.
type StepFunc func(ctx context.Context) (payload map[string]string, err error)

// TrackStep runs fn, recording a StepTrace with its duration and either
// the captured output or the error kind+message. The error, if any,
// propagates unchanged — this component never swallows it.
func (t *Tracker) TrackStep(ctx context.Context, runID, name string, now func() time.Time, fn StepFunc) error {
	start := now()
	payload, err := fn(ctx)
	end := now()

	outcome := "success"
	if err != nil {
		outcome = "error"
		if payload == nil {
			payload = map[string]string{}
		}
		if kind, ok := errs.KindOf(err); ok {
			payload["error_kind"] = string(kind)
		}
		payload["error_message"] = err.Error()
	}

	step := &store.StepTrace{
		ID:        uuid.NewString(),
		RunID:     runID,
		StepName:  name,
		Start:     start,
		End:       end,
		Outcome:   outcome,
		Payload:   payload,
		CreatedAt: end,
	}
	_ = t.backend.InsertStep(ctx, step)
	return err
}

// Complete marks runID Completed with final stats and releases the gate.
func (t *Tracker) Complete(ctx context.Context, runID string, opportunitiesProcessed, notificationsSent int, now time.Time) error {
	return t.finish(ctx, runID, store.RunCompleted, opportunitiesProcessed, notificationsSent, nil, now)
}

// Fail marks runID Failed with the given error appended to AgentRun.errors
// and releases the gate.
func (t *Tracker) Fail(ctx context.Context, runID string, runErr error, now time.Time) error {
	return t.finish(ctx, runID, store.RunFailed, 0, 0, []string{runErr.Error()}, now)
}

func (t *Tracker) finish(ctx context.Context, runID string, status store.RunStatus, processed, sent int, errMsgs []string, now time.Time) error {
	defer func() {
		t.mu.Lock()
		if t.currentRun == runID {
			t.running = false
			t.currentRun = ""
		}
		t.mu.Unlock()
	}()

	run, err := t.backend.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return errs.New(errs.BusinessLogicErr, "complete/fail called on unknown run_id "+runID)
	}

	run.Status = status
	run.OpportunitiesProcessed = processed
	run.NotificationsSent = sent
	run.Errors = append(run.Errors, errMsgs...)
	run.UpdatedAt = now
	return t.backend.UpdateRun(ctx, run)
}

// GetRunStatistics aggregates recent runs into the explicit RunStatistics
// record Design Notes calls for.
func (t *Tracker) GetRunStatistics(ctx context.Context, limit int) (RunStatistics, error) {
	runs, err := t.backend.ListRecentRuns(ctx, limit)
	if err != nil {
		return RunStatistics{}, err
	}

	var stats RunStatistics
	var totalDuration time.Duration
	for _, r := range runs {
		stats.TotalRuns++
		switch r.Status {
		case store.RunCompleted:
			stats.SuccessfulRuns++
		case store.RunFailed:
			stats.FailedRuns++
		}
		totalDuration += r.UpdatedAt.Sub(r.TriggerTime)
	}
	if stats.TotalRuns > 0 {
		stats.AverageDurationSeconds = totalDuration.Seconds() / float64(stats.TotalRuns)
	}
	return stats, nil
}

// GetStepPerformance aggregates all recorded StepTrace rows for stepName.
func (t *Tracker) GetStepPerformance(ctx context.Context, stepName string) (StepPerformance, error) {
	steps, err := t.backend.ListStepsByName(ctx, stepName)
	if err != nil {
		return StepPerformance{}, err
	}

	var perf StepPerformance
	var totalDuration time.Duration
	for _, s := range steps {
		perf.Total++
		if s.Outcome == "success" {
			perf.Successful++
		}
		totalDuration += s.Duration()
	}
	if perf.Total > 0 {
		perf.AverageDurationSeconds = totalDuration.Seconds() / float64(perf.Total)
	}
	return perf, nil
}

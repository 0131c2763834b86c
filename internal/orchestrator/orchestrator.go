// Package orchestrator implements Orchestrator (C12): the single
// entry point that composes cache refresh, SLA evaluation, task
// creation, and dispatch into one tracked run.
package orchestrator

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/franksunye/fsoa-agent/internal/cache"
	"github.com/franksunye/fsoa-agent/internal/errs"
	"github.com/franksunye/fsoa-agent/internal/metrics"
	"github.com/franksunye/fsoa-agent/internal/notification"
	"github.com/franksunye/fsoa-agent/internal/sla"
	"github.com/franksunye/fsoa-agent/internal/store"
	"github.com/franksunye/fsoa-agent/internal/tracker"
	"github.com/franksunye/fsoa-agent/internal/webhookclient"
)

// RunResult is the explicit record type Execute returns, replacing an
// ad-hoc status dict.
type RunResult struct {
	RunID              string
	Status             store.RunStatus
	OpportunitiesTotal int
	NotificationsSent  int
	Errors             []string
}

// HealthReport is the supplemented health-check surface: a shallow,
// non-blocking probe of each dependency this process relies on.
type HealthReport struct {
	StoreOK      bool
	AnalyticsOK  bool
	WebhookOK    bool
	TrackerBusy  bool
	LastRun      *store.AgentRun
	CheckedAt    time.Time
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Orchestrator wires the pipeline together. maxTaskRuntime is the hard
// context-deadline kill switch for one Execute call.
type Orchestrator struct {
	backend        store.Store
	data           *cache.DataStrategy
	evaluator      *sla.Evaluator
	notifier       *notification.Manager
	tracker        *tracker.Tracker
	webhook        webhookclient.Client
	log            *logrus.Logger
	now            Clock
	maxTaskRuntime time.Duration

	mu        sync.Mutex
	lastRunID string
}

// New builds an Orchestrator from its fully constructed collaborators.
func New(backend store.Store, data *cache.DataStrategy, evaluator *sla.Evaluator, notifier *notification.Manager, tr *tracker.Tracker, webhook webhookclient.Client, log *logrus.Logger, now Clock) *Orchestrator {
	if log == nil {
		log = logrus.New()
	}
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		backend:        backend,
		data:           data,
		evaluator:      evaluator,
		notifier:       notifier,
		tracker:        tr,
		webhook:        webhook,
		log:            log,
		now:            now,
		maxTaskRuntime: 5 * time.Minute,
	}
}

// SetMaxTaskRuntime overrides the default 5-minute hard timeout.
func (o *Orchestrator) SetMaxTaskRuntime(d time.Duration) {
	o.maxTaskRuntime = d
}

// Execute runs one full pipeline pass: refresh → evaluate → create
// tasks → dispatch. dryRun swaps the live WebhookClient for a
// NoopClient on this call only (Design Notes: dry-run must still walk
// the whole pipeline, not skip steps). Only store-layer failures or a
// BusinessLogicError abort the run early; per-opportunity/per-group
// failures are recorded and the run still Completes (§7).
func (o *Orchestrator) Execute(ctx context.Context, dryRun bool) (RunResult, error) {
	taskCtx, cancel := context.WithTimeout(ctx, o.maxTaskRuntime)
	defer cancel()

	startedAt := o.now()
	runID, err := o.tracker.Start(taskCtx, map[string]string{"dry_run": boolStr(dryRun)}, startedAt)
	if err != nil {
		return RunResult{}, errors.Wrap(err, "starting run")
	}

	o.mu.Lock()
	o.lastRunID = runID
	o.mu.Unlock()

	result, runErr := o.execute(taskCtx, runID, dryRun, startedAt)
	finishedAt := o.now()
	metrics.RunDurationSeconds.Observe(finishedAt.Sub(startedAt).Seconds())
	metrics.OpportunitiesProcessed.Observe(float64(result.OpportunitiesTotal))

	if runErr != nil {
		_ = o.tracker.Fail(ctx, runID, runErr, finishedAt)
		o.log.WithFields(logrus.Fields{"run_id": runID, "error": runErr.Error()}).Warn("run failed")
		result.Status = store.RunFailed
		result.Errors = append(result.Errors, runErr.Error())
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return result, runErr
	}

	if err := o.tracker.Complete(ctx, runID, result.OpportunitiesTotal, result.NotificationsSent, finishedAt); err != nil {
		return result, errors.Wrap(err, "completing run")
	}
	result.Status = store.RunCompleted
	metrics.RunsTotal.WithLabelValues("completed").Inc()
	o.log.WithFields(logrus.Fields{
		"run_id":         runID,
		"opportunities":  result.OpportunitiesTotal,
		"notifications":  result.NotificationsSent,
	}).Info("run completed")
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, runID string, dryRun bool, now time.Time) (RunResult, error) {
	result := RunResult{RunID: runID}
	clock := func() time.Time { return now }

	// DataStrategy.GetAllOpportunities already recomputes derived SLA
	// fields against now, so the fetched opportunities are ready for task
	// creation as-is — no separate evaluate step to track.
	var opps []store.Opportunity
	fetchErr := o.tracker.TrackStep(ctx, runID, "fetch_opportunities", clock, func(ctx context.Context) (map[string]string, error) {
		var err error
		opps, err = o.data.GetAllOpportunities(ctx, false)
		if err != nil {
			return nil, err
		}
		return map[string]string{"count": strconv.Itoa(len(opps))}, nil
	})
	if fetchErr != nil {
		if errs.Is(fetchErr, errs.DataFetchError) || errs.Is(fetchErr, errs.CacheCorrupt) {
			result.Errors = append(result.Errors, fetchErr.Error())
			return result, nil
		}
		return result, fetchErr
	}
	result.OpportunitiesTotal = len(opps)

	createErr := o.tracker.TrackStep(ctx, runID, "create_tasks", clock, func(ctx context.Context) (map[string]string, error) {
		return nil, o.notifier.CreateTasks(ctx, opps, runID, now)
	})
	if createErr != nil {
		return result, errors.Wrap(createErr, "creating notification tasks")
	}

	notifier := o.notifier
	if dryRun {
		notifier = notification.New(o.backend, &webhookclient.NoopClient{}, nil, o.log, nil, 0)
	}

	var stats notification.ExecutionStats
	dispatchErr := o.tracker.TrackStep(ctx, runID, "dispatch_notifications", clock, func(ctx context.Context) (map[string]string, error) {
		var err error
		stats, err = notifier.ExecuteNotificationTasks(ctx, runID, now, opps)
		if err != nil {
			return nil, err
		}
		return map[string]string{"sent": strconv.Itoa(stats.SentCount)}, nil
	})
	if dispatchErr != nil {
		return result, errors.Wrap(dispatchErr, "executing notification tasks")
	}
	result.NotificationsSent = stats.SentCount
	result.Errors = append(result.Errors, stats.Errors...)
	return result, nil
}

// Health performs a shallow, non-blocking check of each dependency.
func (o *Orchestrator) Health(ctx context.Context) HealthReport {
	report := HealthReport{CheckedAt: o.now(), TrackerBusy: o.tracker.IsRunning()}

	if _, err := o.backend.ListCachedOpportunities(ctx); err == nil {
		report.StoreOK = true
	}
	report.AnalyticsOK = o.data.LastFailure() == nil
	report.WebhookOK = o.webhook != nil

	runID := o.tracker.CurrentRun()
	if runID == "" {
		o.mu.Lock()
		runID = o.lastRunID
		o.mu.Unlock()
	}
	if runID != "" {
		if run, err := o.backend.GetRun(ctx, runID); err == nil {
			report.LastRun = run
		}
	}
	return report
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksunye/fsoa-agent/internal/analytics"
	"github.com/franksunye/fsoa-agent/internal/cache"
	"github.com/franksunye/fsoa-agent/internal/calendar"
	"github.com/franksunye/fsoa-agent/internal/notification"
	"github.com/franksunye/fsoa-agent/internal/orchestrator"
	"github.com/franksunye/fsoa-agent/internal/sla"
	"github.com/franksunye/fsoa-agent/internal/store"
	"github.com/franksunye/fsoa-agent/internal/tracker"
	"github.com/franksunye/fsoa-agent/internal/webhookclient"
)

type fakeClock struct{ t time.Time }

func (f fakeClock) Now() time.Time { return f.t }

type fakeAnalytics struct {
	raws []analytics.RawOpportunity
	err  error
}

func (f *fakeAnalytics) QueryReport(ctx context.Context, reportID string) ([]analytics.RawOpportunity, error) {
	return f.raws, f.err
}

func buildOrchestrator(t *testing.T, backend store.Store, ac analytics.Client, webhook webhookclient.Client, now time.Time) *orchestrator.Orchestrator {
	t.Helper()
	loc := now.Location()
	cal := calendar.New(loc, 9, 19, calendar.DefaultWorkWeekdays())
	evaluator := sla.NewEvaluator(cal)
	clock := fakeClock{t: now}
	data := cache.New(backend, ac, evaluator, clock, "report-1", time.Hour)
	notifier := notification.New(backend, webhook, nil, nil, nil, 2*time.Hour)
	tr := tracker.New(backend)
	return orchestrator.New(backend, data, evaluator, notifier, tr, webhook, nil, func() time.Time { return now })
}

// S1: happy path — a run with no overdue/violating opportunities Completes.
func TestExecuteHappyPathCompletes(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryStore()
	now := time.Date(2026, 7, 28, 10, 0, 0, 0, time.UTC)

	raws := []analytics.RawOpportunity{
		{OrderNum: "A1", Name: "Acme", SupervisorName: "Sup", OrgName: "Alpha", OrderStatus: "PendingAppointment", CreateTime: "2026-07-28T09:30:00Z"},
	}
	o := buildOrchestrator(t, backend, &fakeAnalytics{raws: raws}, &webhookclient.NoopClient{}, now)

	result, err := o.Execute(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, result.Status)
	assert.Equal(t, 1, result.OpportunitiesTotal)
	assert.Equal(t, 0, result.NotificationsSent)
}

// S5: analytics down but no cache yet — run still Completes, error recorded.
func TestExecuteRecordsDataFetchErrorWithoutCache(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryStore()
	now := time.Date(2026, 7, 28, 10, 0, 0, 0, time.UTC)

	o := buildOrchestrator(t, backend, &fakeAnalytics{err: assertErr{}}, &webhookclient.NoopClient{}, now)

	result, err := o.Execute(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, result.Status)
	require.NotEmpty(t, result.Errors)
}

func TestExecuteDryRunDoesNotPostWebhook(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryStore()
	require.NoError(t, backend.UpsertGroupConfig(ctx, &store.GroupConfig{GroupID: "Alpha", Name: "Alpha", WebhookURL: "https://example.invalid/alpha", Enabled: true}))
	now := time.Date(2026, 7, 28, 10, 0, 0, 0, time.UTC)

	raws := []analytics.RawOpportunity{
		{OrderNum: "A1", Name: "Acme", SupervisorName: "Sup", OrgName: "Alpha", OrderStatus: "PendingAppointment", CreateTime: "2026-07-20T09:30:00Z"},
	}
	spy := &spyWebhook{}
	o := buildOrchestrator(t, backend, &fakeAnalytics{raws: raws}, spy, now)

	result, err := o.Execute(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, result.Status)
	assert.Equal(t, 0, spy.calls, "dry run must not call the live webhook client")
}

func TestHealthReportsTrackerIdleAfterRun(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryStore()
	now := time.Date(2026, 7, 28, 10, 0, 0, 0, time.UTC)

	o := buildOrchestrator(t, backend, &fakeAnalytics{}, &webhookclient.NoopClient{}, now)
	_, err := o.Execute(ctx, false)
	require.NoError(t, err)

	health := o.Health(ctx)
	assert.True(t, health.StoreOK)
	assert.False(t, health.TrackerBusy)
	require.NotNil(t, health.LastRun)
}

// get_step_performance can only ever see real data if Execute tracks its
// sub-steps in production, not just in tracker's own unit tests.
func TestExecuteRecordsStepTraces(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryStore()
	now := time.Date(2026, 7, 28, 10, 0, 0, 0, time.UTC)

	raws := []analytics.RawOpportunity{
		{OrderNum: "A1", Name: "Acme", SupervisorName: "Sup", OrgName: "Alpha", OrderStatus: "PendingAppointment", CreateTime: "2026-07-28T09:30:00Z"},
	}
	o := buildOrchestrator(t, backend, &fakeAnalytics{raws: raws}, &webhookclient.NoopClient{}, now)

	result, err := o.Execute(ctx, false)
	require.NoError(t, err)

	steps, err := backend.ListStepsByRun(ctx, result.RunID)
	require.NoError(t, err)
	var names []string
	for _, s := range steps {
		names = append(names, s.StepName)
	}
	assert.Contains(t, names, "fetch_opportunities")
	assert.Contains(t, names, "create_tasks")
	assert.Contains(t, names, "dispatch_notifications")
}

type spyWebhook struct{ calls int }

func (s *spyWebhook) Post(ctx context.Context, url, text string, mentions []string) webhookclient.Result {
	s.calls++
	return webhookclient.Result{OK: true}
}

type assertErr struct{}

func (assertErr) Error() string { return "analytics unreachable" }

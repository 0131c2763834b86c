package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksunye/fsoa-agent/internal/analytics"
	"github.com/franksunye/fsoa-agent/internal/cache"
	"github.com/franksunye/fsoa-agent/internal/calendar"
	"github.com/franksunye/fsoa-agent/internal/sla"
	"github.com/franksunye/fsoa-agent/internal/store"
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

func mustLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	return loc
}

func TestRefreshCacheWholesaleReplace(t *testing.T) {
	loc := mustLoc(t)
	ctx := context.Background()
	backend := store.NewMemoryStore()
	clk := fakeClock{t: time.Date(2026, time.July, 27, 10, 0, 0, 0, loc)}
	cal := calendar.New(loc, 9, 19, nil)
	evaluator := sla.NewEvaluator(cal)

	fa := &fakeAnalytics{raws: []analytics.RawOpportunity{
		{OrderNum: "A1", CreateTime: "2026-07-27T09:00:00", OrderStatus: string(store.StatusPendingAppointment), OrgName: "Alpha"},
	}}
	ds := cache.New(backend, fa, evaluator, clk, "report1", time.Hour)

	_, newCount, err := ds.RefreshCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, newCount)

	opps, err := ds.GetAllOpportunities(ctx, false)
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.InDelta(t, 1.0, opps[0].ElapsedBusinessHours, 0.001)
}

// S5: analytics outage with a stale cache present.
func TestStaleServeOnAnalyticsFailure(t *testing.T) {
	loc := mustLoc(t)
	ctx := context.Background()
	backend := store.NewMemoryStore()
	clk := fakeClock{t: time.Date(2026, time.July, 27, 10, 0, 0, 0, loc)}
	cal := calendar.New(loc, 9, 19, nil)
	evaluator := sla.NewEvaluator(cal)

	fa := &fakeAnalytics{raws: []analytics.RawOpportunity{
		{OrderNum: "A1", CreateTime: "2026-07-27T09:00:00", OrderStatus: string(store.StatusPendingAppointment), OrgName: "Alpha"},
	}}
	ds := cache.New(backend, fa, evaluator, clk, "report1", time.Hour)
	_, _, err := ds.RefreshCache(ctx)
	require.NoError(t, err)

	fa.err = errors.New("analytics down")
	fa.raws = nil

	opps, err := ds.GetAllOpportunities(ctx, true)
	require.NoError(t, err)
	require.Len(t, opps, 1, "stale cache should still be served")

	stats, err := ds.GetCacheStatistics(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Stale)
}

func TestFailsWhenNoCacheAndAnalyticsDown(t *testing.T) {
	loc := mustLoc(t)
	ctx := context.Background()
	backend := store.NewMemoryStore()
	clk := fakeClock{t: time.Now()}
	cal := calendar.New(loc, 9, 19, nil)
	evaluator := sla.NewEvaluator(cal)

	fa := &fakeAnalytics{err: errors.New("down")}
	ds := cache.New(backend, fa, evaluator, clk, "report1", time.Hour)

	_, err := ds.GetAllOpportunities(ctx, true)
	require.Error(t, err)
}

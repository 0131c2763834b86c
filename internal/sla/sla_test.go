package sla_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksunye/fsoa-agent/internal/calendar"
	"github.com/franksunye/fsoa-agent/internal/sla"
	"github.com/franksunye/fsoa-agent/internal/store"
)

func mustLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	return loc
}

// S1: happy path, healthy opportunity.
func TestHealthyOpportunity(t *testing.T) {
	loc := mustLoc(t)
	cal := calendar.New(loc, 9, 19, nil)
	eval := sla.NewEvaluator(cal)

	create := time.Date(2026, time.July, 27, 9, 0, 0, 0, loc) // Mon 09:00
	now := time.Date(2026, time.July, 27, 10, 0, 0, 0, loc)   // Mon 10:00

	opp := store.Opportunity{OrderNum: "A1", Status: store.StatusPendingAppointment, CreateTime: create}
	got := eval.Evaluate(opp, now)

	assert.InDelta(t, 1.0, got.ElapsedBusinessHours, 0.001)
	assert.False(t, got.IsViolation)
	assert.False(t, got.IsOverdue)
	assert.Equal(t, 0, got.EscalationLevel)
}

// S2: violation crosses the 12h threshold.
func TestViolationThresholdCrossed(t *testing.T) {
	loc := mustLoc(t)
	cal := calendar.New(loc, 9, 19, nil)
	eval := sla.NewEvaluator(cal)

	create := time.Date(2026, time.July, 27, 10, 0, 0, 0, loc) // Mon 10:00
	now := time.Date(2026, time.July, 28, 14, 0, 0, 0, loc)    // Tue 14:00

	opp := store.Opportunity{OrderNum: "A2", Status: store.StatusPendingAppointment, CreateTime: create}
	got := eval.Evaluate(opp, now)

	assert.InDelta(t, 14.0, got.ElapsedBusinessHours, 0.001)
	assert.True(t, got.IsViolation)
	assert.False(t, got.IsOverdue)
	assert.InDelta(t, 12.0, got.ViolationThreshold, 0.001)
}

func TestExactThresholdTriggersFlag(t *testing.T) {
	loc := mustLoc(t)
	cal := calendar.New(loc, 9, 19, nil)
	eval := sla.NewEvaluator(cal)
	th := sla.DefaultThresholds()[store.StatusPendingAppointment]

	create := time.Date(2026, time.July, 27, 9, 0, 0, 0, loc)
	now := cal.AddBusinessHours(create, th.Violation)

	opp := store.Opportunity{Status: store.StatusPendingAppointment, CreateTime: create}
	got := eval.Evaluate(opp, now)
	assert.True(t, got.IsViolation, "elapsed exactly at threshold must trigger (>=, not >)")
}

func TestNonMonitoredStatusIsSkipped(t *testing.T) {
	loc := mustLoc(t)
	cal := calendar.New(loc, 9, 19, nil)
	eval := sla.NewEvaluator(cal)

	opp := store.Opportunity{Status: "Completed", CreateTime: time.Now().Add(-1000 * time.Hour)}
	got := eval.Evaluate(opp, time.Now())

	assert.False(t, got.IsViolation)
	assert.False(t, got.IsOverdue)
	assert.Equal(t, 0, got.EscalationLevel)
}

func TestApproachingOverdueBand(t *testing.T) {
	opp := store.Opportunity{SLAProgressRatio: 0.85}
	assert.True(t, sla.IsApproachingOverdue(opp))

	opp.SLAProgressRatio = 1.0
	assert.False(t, sla.IsApproachingOverdue(opp))
}

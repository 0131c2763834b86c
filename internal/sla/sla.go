// Package sla computes the per-opportunity SLA classification: elapsed
// business hours against status-specific violation/standard/escalation
// thresholds.
package sla

import (
	"time"

	"github.com/franksunye/fsoa-agent/internal/calendar"
	"github.com/franksunye/fsoa-agent/internal/store"
)

// Thresholds are the three business-hour boundaries for one status.
// Invariant: Violation <= Standard <= Escalation, all strictly positive.
type Thresholds struct {
	Violation  float64
	Standard   float64
	Escalation float64
}

// DefaultThresholds is the spec.md §3 table.
func DefaultThresholds() map[store.OpportunityStatus]Thresholds {
	return map[store.OpportunityStatus]Thresholds{
		store.StatusPendingAppointment:     {Violation: 12, Standard: 24, Escalation: 48},
		store.StatusTemporarilyNotVisiting: {Violation: 24, Standard: 48, Escalation: 72},
	}
}

// Evaluator computes derived SLA fields for monitored opportunities.
type Evaluator struct {
	Calendar   *calendar.BusinessCalendar
	Thresholds map[store.OpportunityStatus]Thresholds
}

// NewEvaluator builds an Evaluator with the default threshold table.
func NewEvaluator(cal *calendar.BusinessCalendar) *Evaluator {
	return &Evaluator{Calendar: cal, Thresholds: DefaultThresholds()}
}

// Evaluate returns a copy of opp with its derived fields recomputed
// against now; the caller's value is not modified. If opp's status is not
// monitored, the copy has all derived fields zeroed.
func (e *Evaluator) Evaluate(opp store.Opportunity, now time.Time) store.Opportunity {
	if !opp.IsMonitored() {
		opp.ElapsedBusinessHours = 0
		opp.IsViolation = false
		opp.IsOverdue = false
		opp.EscalationLevel = 0
		opp.SLAProgressRatio = 0
		opp.ViolationThreshold = 0
		return opp
	}

	th, ok := e.Thresholds[opp.Status]
	if !ok {
		return opp
	}

	opp.ViolationThreshold = th.Violation

	h := e.Calendar.ElapsedBusinessHours(opp.CreateTime, now)
	opp.ElapsedBusinessHours = h
	opp.IsViolation = h >= th.Violation
	opp.IsOverdue = h >= th.Standard
	if h >= th.Escalation {
		opp.EscalationLevel = 1
	} else {
		opp.EscalationLevel = 0
	}
	if th.Standard > 0 {
		opp.SLAProgressRatio = h / th.Standard
	}
	return opp
}

// EvaluateAll evaluates a batch, recomputing derived fields for each.
func (e *Evaluator) EvaluateAll(opps []store.Opportunity, now time.Time) []store.Opportunity {
	out := make([]store.Opportunity, len(opps))
	for i, o := range opps {
		out[i] = e.Evaluate(o, now)
	}
	return out
}

// IsApproachingOverdue reports the §4.3 "approaching" band:
// sla_progress_ratio in [0.8, 1.0).
func IsApproachingOverdue(opp store.Opportunity) bool {
	return opp.SLAProgressRatio >= 0.8 && opp.SLAProgressRatio < 1.0
}

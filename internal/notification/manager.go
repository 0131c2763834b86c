// Package notification implements NotificationTaskStore/NotificationManager
// (C7/C8): task creation with dedup/cooldown, batched dispatch with
// retry, org-level aggregation, and escalation aggregation.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/franksunye/fsoa-agent/internal/errs"
	"github.com/franksunye/fsoa-agent/internal/metrics"
	"github.com/franksunye/fsoa-agent/internal/store"
	"github.com/franksunye/fsoa-agent/internal/webhookclient"
)

// ExecutionStats is the explicit record type for execute_notification_tasks,
// replacing the ad-hoc dict the original source returned.
type ExecutionStats struct {
	Total          int
	SentCount      int
	FailedCount    int
	EscalatedCount int
	Errors         []string
}

// Manager is NotificationManager (C8): it owns the creation, dedup,
// cooldown, and dispatch rules for NotificationTask records.
type Manager struct {
	backend        store.Store
	webhook        webhookclient.Client
	dedup          *Dedup
	log            *logrus.Logger
	mentionUsers   []string
	defaultCooldown time.Duration
	maxListed      int
}

// New builds a Manager.
func New(backend store.Store, webhook webhookclient.Client, dedup *Dedup, log *logrus.Logger, mentionUsers []string, defaultCooldown time.Duration) *Manager {
	if log == nil {
		log = logrus.New()
	}
	return &Manager{backend: backend, webhook: webhook, dedup: dedup, log: log, mentionUsers: mentionUsers, defaultCooldown: defaultCooldown, maxListed: DefaultMaxListedOpportunities}
}

// SetMaxListed overrides how many opportunities a single message lists
// before collapsing the rest into an overflow line, sourced from the
// escalation_max_listed config key.
func (m *Manager) SetMaxListed(n int) {
	if n > 0 {
		m.maxListed = n
	}
}

// CreateTasks applies the §4.4.2 create-if-absent rules to a batch of
// already-evaluated opportunities, proposing up to one Standard and one
// Violation task per opportunity, plus at most one Escalation task per
// organization (aggregated across all escalating opportunities of that
// org in this batch).
func (m *Manager) CreateTasks(ctx context.Context, opps []store.Opportunity, runID string, now time.Time) error {
	escalating := map[string][]store.Opportunity{}

	for _, o := range opps {
		if !o.IsMonitored() {
			continue
		}
		if o.IsOverdue {
			if err := m.createIfAbsent(ctx, store.TaskKey{OrderNum: o.OrderNum, Type: store.NotificationStandard}, o.OrgName, runID, now); err != nil {
				return err
			}
		}
		if o.IsViolation {
			if err := m.createIfAbsent(ctx, store.TaskKey{OrderNum: o.OrderNum, Type: store.NotificationViolation}, o.OrgName, runID, now); err != nil {
				return err
			}
		}
		if o.EscalationLevel > 0 {
			escalating[o.OrgName] = append(escalating[o.OrgName], o)
		}
	}

	for org := range escalating {
		key := store.TaskKey{OrderNum: store.EscalationOrgKey(org), Type: store.NotificationEscalation}
		if err := m.createIfAbsent(ctx, key, org, runID, now); err != nil {
			return err
		}
	}
	return nil
}

// createIfAbsent implements the dedup + cooldown rules: skip if a
// Pending task for this key exists, skip if a Sent task exists within
// cooldown of its last_sent_at, otherwise insert a fresh Pending task.
func (m *Manager) createIfAbsent(ctx context.Context, key store.TaskKey, orgName, runID string, now time.Time) error {
	if m.dedup != nil && m.dedup.HasPendingHint(ctx, key) {
		return nil
	}

	existing, err := m.backend.FindTaskByKey(ctx, key)
	if err != nil {
		return err
	}

	cooldown := m.cooldownFor(ctx, orgName)

	if existing != nil {
		if existing.Status == store.TaskPending {
			return nil
		}
		if existing.Status == store.TaskSent && existing.LastSentAt != nil {
			if now.Sub(*existing.LastSentAt) < cooldown {
				return nil
			}
		}
	}

	task := &store.NotificationTask{
		ID:               uuid.NewString(),
		OrderNum:         key.OrderNum,
		OrgName:          orgName,
		NotificationType: key.Type,
		Status:           store.TaskPending,
		DueTime:          now,
		RetryCount:       0,
		MaxRetryCount:    5,
		CooldownHours:    cooldown.Hours(),
		CreatedRunID:     runID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.backend.InsertTask(ctx, task); err != nil {
		return err
	}
	if m.dedup != nil {
		m.dedup.MarkPending(ctx, key, 24*time.Hour)
	}
	return nil
}

// cooldownFor applies the larger of the per-key default cooldown and the
// org's GroupConfig minimum, per the Open Question resolution in §9:
// implementations expose both and apply the maximum.
func (m *Manager) cooldownFor(ctx context.Context, orgName string) time.Duration {
	cooldown := m.defaultCooldown
	group, err := m.backend.GetGroupConfigByOrg(ctx, orgName)
	if err == nil && group != nil {
		groupMin := time.Duration(group.NotificationCooldownMinutes) * time.Minute
		if groupMin > cooldown {
			cooldown = groupMin
		}
	}
	return cooldown
}

// dispatchGroup is one (org, notification_type) batch of Pending tasks.
type dispatchGroup struct {
	orgName  string
	ntype    store.NotificationType
	tasks    []*store.NotificationTask
}

// ExecuteNotificationTasks implements §4.4.3: load Pending tasks ordered,
// group by (org, type), resolve a webhook, render and persist the
// message, then dispatch — updating each task's lifecycle fields
// according to the tagged Result the WebhookClient returns.
// opportunities supplies the current evaluation batch so that group
// messages can list live customer/supervisor/elapsed-hours detail rather
// than the bare identifiers a NotificationTask persists; a task whose
// opportunity fell out of the current batch (e.g. resolved externally)
// still dispatches, falling back to its stored identifiers.
func (m *Manager) ExecuteNotificationTasks(ctx context.Context, runID string, now time.Time, opportunities []store.Opportunity) (ExecutionStats, error) {
	pending, err := m.backend.ListPendingTasksOrdered(ctx)
	if err != nil {
		return ExecutionStats{}, err
	}

	byOrderNum := map[string]store.Opportunity{}
	byOrgEscalating := map[string][]store.Opportunity{}
	for _, o := range opportunities {
		byOrderNum[o.OrderNum] = o
		if o.EscalationLevel > 0 {
			byOrgEscalating[o.OrgName] = append(byOrgEscalating[o.OrgName], o)
		}
	}

	groups := groupTasks(pending)
	stats := ExecutionStats{Total: len(pending)}

	for _, g := range groups {
		m.dispatchGroup(ctx, g, runID, now, byOrderNum, byOrgEscalating, &stats)
	}
	return stats, nil
}

func groupTasks(tasks []*store.NotificationTask) []dispatchGroup {
	index := map[string]int{}
	var groups []dispatchGroup
	for _, t := range tasks {
		key := t.OrgName + "::" + string(t.NotificationType)
		if idx, ok := index[key]; ok {
			groups[idx].tasks = append(groups[idx].tasks, t)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, dispatchGroup{orgName: t.OrgName, ntype: t.NotificationType, tasks: []*store.NotificationTask{t}})
	}
	return groups
}

func (m *Manager) dispatchGroup(ctx context.Context, g dispatchGroup, runID string, now time.Time, byOrderNum map[string]store.Opportunity, byOrgEscalating map[string][]store.Opportunity, stats *ExecutionStats) {
	webhookURL, mentions, resolveErr := m.resolveWebhook(ctx, g)
	if resolveErr != nil {
		m.failAll(ctx, g.tasks, errs.NoWebhook, now)
		stats.FailedCount += len(g.tasks)
		stats.Errors = append(stats.Errors, resolveErr.Error())
		return
	}

	var opps []store.Opportunity
	if g.ntype == store.NotificationEscalation {
		opps = byOrgEscalating[g.orgName]
	}
	if len(opps) == 0 {
		opps = opportunitiesFromTasks(g.tasks, byOrderNum)
	}
	var message string
	if g.ntype == store.NotificationEscalation {
		message = RenderEscalationMessage(g.orgName, opps, mentions, now, m.maxListed)
		stats.EscalatedCount += len(g.tasks)
	} else {
		message = RenderOrgMessage(g.orgName, g.ntype, opps, now, m.maxListed)
	}

	// Persist the rendered text before calling the webhook so failures
	// remain diagnosable (§4.4.3).
	for _, t := range g.tasks {
		t.Message = message
		t.UpdatedAt = now
		_ = m.backend.UpdateTask(ctx, t)
	}

	result := m.webhook.Post(ctx, webhookURL, message, mentions)
	if result.OK {
		for _, t := range g.tasks {
			t.Status = store.TaskSent
			t.SentAt = &now
			t.LastSentAt = &now
			t.SentRunID = runID
			t.UpdatedAt = now
			_ = m.backend.UpdateTask(ctx, t)
		}
		stats.SentCount += len(g.tasks)
		metrics.NotificationsSentTotal.WithLabelValues(string(g.ntype)).Add(float64(len(g.tasks)))
		return
	}

	m.recordDispatchFailure(ctx, g.tasks, result, now, stats)
}

func (m *Manager) resolveWebhook(ctx context.Context, g dispatchGroup) (string, []string, error) {
	if g.ntype == store.NotificationEscalation {
		group, err := m.backend.GetGroupConfig(ctx, store.InternalOpsGroupID)
		if err != nil || group == nil || !group.Enabled || group.WebhookURL == "" {
			return "", nil, errs.New(errs.NoWebhook, "internal-ops webhook not configured")
		}
		return group.WebhookURL, m.mentionUsers, nil
	}

	group, err := m.backend.GetGroupConfigByOrg(ctx, g.orgName)
	if err != nil || group == nil || !group.Enabled || group.WebhookURL == "" {
		return "", nil, errs.New(errs.NoWebhook, "no webhook for org "+g.orgName)
	}
	return group.WebhookURL, nil, nil
}

func (m *Manager) failAll(ctx context.Context, tasks []*store.NotificationTask, kind errs.Kind, now time.Time) {
	for _, t := range tasks {
		t.Status = store.TaskFailed
		t.UpdatedAt = now
		_ = m.backend.UpdateTask(ctx, t)
	}
	metrics.NotificationsFailedTotal.WithLabelValues(string(kind)).Add(float64(len(tasks)))
}

// recordDispatchFailure applies the §7 WebhookTransient/WebhookPermanent
// policy: bump retry_count and leave Pending unless the retry budget is
// exhausted, in which case mark Failed. last_sent_at is deliberately not
// set on failure, so cooldown is computed only from successful sends.
func (m *Manager) recordDispatchFailure(ctx context.Context, tasks []*store.NotificationTask, result webhookclient.Result, now time.Time, stats *ExecutionStats) {
	permanent := errs.Is(result.Err, errs.WebhookPermanent)
	for _, t := range tasks {
		t.RetryCount++
		t.UpdatedAt = now
		if permanent || t.RetryCount >= t.MaxRetryCount {
			t.Status = store.TaskFailed
			stats.FailedCount++
			metrics.NotificationsFailedTotal.WithLabelValues("retry_exhausted").Inc()
		}
		_ = m.backend.UpdateTask(ctx, t)
	}
	if result.Err != nil {
		stats.Errors = append(stats.Errors, result.Err.Error())
	}
}

func opportunitiesFromTasks(tasks []*store.NotificationTask, byOrderNum map[string]store.Opportunity) []store.Opportunity {
	out := make([]store.Opportunity, 0, len(tasks))
	for _, t := range tasks {
		if o, ok := byOrderNum[t.OrderNum]; ok {
			out = append(out, o)
			continue
		}
		out = append(out, store.Opportunity{OrderNum: t.OrderNum, OrgName: t.OrgName})
	}
	return out
}

// CleanupOldTasks deletes Sent/Failed tasks older than maxAge; Pending
// tasks are never auto-deleted (§4.4.5).
func (m *Manager) CleanupOldTasks(ctx context.Context, maxAge time.Duration, now time.Time) (int, error) {
	cutoff := now.Add(-maxAge)
	return m.backend.DeleteOldTasks(ctx, cutoff.Format(time.RFC3339))
}

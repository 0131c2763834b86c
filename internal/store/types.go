// Package store defines the persistent data model and the Store interface
// that every other component in the core reads and writes through.
package store

import "time"

// OpportunityStatus enumerates the order_status values the evaluator cares
// about. Any other string value is a valid, pass-through (non-monitored)
// status.
type OpportunityStatus string

const (
	StatusPendingAppointment     OpportunityStatus = "PendingAppointment"
	StatusTemporarilyNotVisiting OpportunityStatus = "TemporarilyNotVisiting"
)

// MonitoredStatuses returns the set of statuses the SLA evaluator acts on.
func MonitoredStatuses() map[OpportunityStatus]bool {
	return map[OpportunityStatus]bool{
		StatusPendingAppointment:     true,
		StatusTemporarilyNotVisiting: true,
	}
}

// Opportunity is one field-service work order under monitoring, with its
// derived SLA fields recomputed against the current clock on every read.
type Opportunity struct {
	OrderNum       string            `json:"order_num" db:"order_num"`
	Customer       string            `json:"customer" db:"name"`
	Address        string            `json:"address" db:"address"`
	Supervisor     string            `json:"supervisor_name" db:"supervisor_name"`
	OrgName        string            `json:"org_name" db:"org_name"`
	Status         OpportunityStatus `json:"order_status" db:"order_status"`
	CreateTime     time.Time         `json:"create_time" db:"create_time"`
	LastUpdated    time.Time         `json:"last_updated" db:"last_updated"`

	// Derived fields, recomputed by SLAEvaluator — never trusted from cache.
	ElapsedBusinessHours float64 `json:"elapsed_business_hours" db:"-"`
	IsViolation          bool    `json:"is_violation" db:"-"`
	IsOverdue            bool    `json:"is_overdue" db:"-"`
	EscalationLevel      int     `json:"escalation_level" db:"-"`
	SLAProgressRatio     float64 `json:"sla_progress_ratio" db:"-"`
	ViolationThreshold   float64 `json:"violation_threshold" db:"-"`
}

// IsMonitored reports whether this opportunity's status is one the
// evaluator acts on.
func (o *Opportunity) IsMonitored() bool {
	return MonitoredStatuses()[o.Status]
}

// NotificationType distinguishes the three message kinds.
type NotificationType string

const (
	NotificationViolation  NotificationType = "Violation"
	NotificationStandard   NotificationType = "Standard"
	NotificationEscalation NotificationType = "Escalation"
)

// TaskStatus is the lifecycle state of a NotificationTask.
type TaskStatus string

const (
	TaskPending   TaskStatus = "Pending"
	TaskSent      TaskStatus = "Sent"
	TaskFailed    TaskStatus = "Failed"
	TaskCancelled TaskStatus = "Cancelled"
)

// EscalationOrgKey builds the task key convention the original source
// relies on: the string ESCALATION_<org> written into the same column
// that otherwise carries a real order_num. There is no separate task_key
// column.
func EscalationOrgKey(orgName string) string {
	return "ESCALATION_" + orgName
}

// NotificationTask is one outbound message unit, keyed by
// (OrderNum, NotificationType) where OrderNum may be an escalation key.
type NotificationTask struct {
	ID              string           `json:"id" db:"id"`
	OrderNum        string           `json:"order_num" db:"order_num"`
	OrgName         string           `json:"org_name" db:"org_name"`
	NotificationType NotificationType `json:"notification_type" db:"notification_type"`
	Status          TaskStatus       `json:"status" db:"status"`
	DueTime         time.Time        `json:"due_time" db:"due_time"`
	Message         string           `json:"message" db:"message"`
	SentAt          *time.Time       `json:"sent_at" db:"sent_at"`
	LastSentAt      *time.Time       `json:"last_sent_at" db:"last_sent_at"`
	CreatedRunID    string           `json:"created_run_id" db:"created_run_id"`
	SentRunID       string           `json:"sent_run_id" db:"sent_run_id"`
	RetryCount      int              `json:"retry_count" db:"retry_count"`
	MaxRetryCount   int              `json:"max_retry_count" db:"max_retry_count"`
	CooldownHours   float64          `json:"cooldown_hours" db:"cooldown_hours"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
}

// Key identifies the (order_num-or-escalation-key, notification_type)
// dedup unit this task belongs to.
func (t *NotificationTask) Key() TaskKey {
	return TaskKey{OrderNum: t.OrderNum, Type: t.NotificationType}
}

// TaskKey is the dedup/cooldown unit for notification tasks.
type TaskKey struct {
	OrderNum string
	Type     NotificationType
}

// RunStatus is the lifecycle state of an AgentRun.
type RunStatus string

const (
	RunRunning   RunStatus = "Running"
	RunCompleted RunStatus = "Completed"
	RunFailed    RunStatus = "Failed"
)

// AgentRun is one scheduled (or manual) execution of the pipeline.
type AgentRun struct {
	ID                    string            `json:"id" db:"id"`
	TriggerTime           time.Time         `json:"trigger_time" db:"trigger_time"`
	Status                RunStatus         `json:"status" db:"status"`
	Context               map[string]string `json:"context" db:"context"`
	OpportunitiesProcessed int              `json:"opportunities_processed" db:"opportunities_processed"`
	NotificationsSent     int               `json:"notifications_sent" db:"notifications_sent"`
	Errors                []string          `json:"errors" db:"errors"`
	CreatedAt             time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at" db:"updated_at"`
}

// StepTrace is one sub-operation of a run, with timing and outcome.
type StepTrace struct {
	ID        string            `json:"id" db:"id"`
	RunID     string            `json:"run_id" db:"run_id"`
	StepName  string            `json:"step_name" db:"step_name"`
	Start     time.Time         `json:"start" db:"start"`
	End       time.Time         `json:"end" db:"end"`
	Outcome   string            `json:"outcome" db:"outcome"` // "success" | "error"
	Payload   map[string]string `json:"payload" db:"payload"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// Duration is the wall-clock span of the step.
func (s *StepTrace) Duration() time.Duration { return s.End.Sub(s.Start) }

// GroupConfig routes an organization's notifications to a webhook.
type GroupConfig struct {
	GroupID                    string    `json:"group_id" db:"group_id"`
	Name                       string    `json:"name" db:"name"`
	WebhookURL                 string    `json:"webhook_url" db:"webhook_url"`
	Enabled                    bool      `json:"enabled" db:"enabled"`
	NotificationCooldownMinutes int      `json:"notification_cooldown_minutes" db:"notification_cooldown_minutes"`
	CreatedAt                  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt                  time.Time `json:"updated_at" db:"updated_at"`
}

// InternalOpsGroupID is the distinguished GroupConfig entry that receives
// escalation notifications regardless of the opportunity's own org.
const InternalOpsGroupID = "internal-ops"

// SystemConfigEntry is one row of the runtime-tunable key/value store.
type SystemConfigEntry struct {
	Key         string    `json:"key" db:"key"`
	Value       string    `json:"value" db:"value"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

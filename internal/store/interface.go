package store

import (
	"context"
	"time"
)

// Store is the durable backend every other core component reads and
// writes through. It abstracts over Postgres (production) and an
// in-memory fake (tests).
type Store interface {
	// Opportunity cache (C3) — owned exclusively by DataStrategy.
	ReplaceOpportunityCache(ctx context.Context, opps []Opportunity) error
	ListCachedOpportunities(ctx context.Context) ([]Opportunity, error)
	ClearOpportunityCache(ctx context.Context) (int, error)
	CacheLastUpdated(ctx context.Context) (time.Time, bool)

	// Notification tasks (C7) — owned exclusively by NotificationManager.
	FindTaskByKey(ctx context.Context, key TaskKey) (*NotificationTask, error)
	InsertTask(ctx context.Context, task *NotificationTask) error
	UpdateTask(ctx context.Context, task *NotificationTask) error
	ListPendingTasksOrdered(ctx context.Context) ([]*NotificationTask, error)
	DeleteOldTasks(ctx context.Context, cutoffRFC3339 string) (int, error)

	// Agent runs / step traces (C10) — owned exclusively by ExecutionTracker.
	InsertRun(ctx context.Context, run *AgentRun) error
	UpdateRun(ctx context.Context, run *AgentRun) error
	GetRun(ctx context.Context, id string) (*AgentRun, error)
	ListRecentRuns(ctx context.Context, limit int) ([]*AgentRun, error)
	InsertStep(ctx context.Context, step *StepTrace) error
	ListStepsByRun(ctx context.Context, runID string) ([]*StepTrace, error)
	ListStepsByName(ctx context.Context, stepName string) ([]*StepTrace, error)

	// Group routing config (C2-adjacent).
	GetGroupConfig(ctx context.Context, groupID string) (*GroupConfig, error)
	GetGroupConfigByOrg(ctx context.Context, orgName string) (*GroupConfig, error)
	UpsertGroupConfig(ctx context.Context, cfg *GroupConfig) error

	// Runtime-tunable config (C2).
	GetSystemConfig(ctx context.Context, key string) (*SystemConfigEntry, error)
	SetSystemConfig(ctx context.Context, entry *SystemConfigEntry) error
}

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksunye/fsoa-agent/internal/store"
)

func TestReplaceOpportunityCacheWholesale(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	require.NoError(t, s.ReplaceOpportunityCache(ctx, []store.Opportunity{
		{OrderNum: "A1", OrgName: "Alpha"},
		{OrderNum: "A2", OrgName: "Alpha"},
	}))
	got, err := s.ListCachedOpportunities(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, s.ReplaceOpportunityCache(ctx, []store.Opportunity{
		{OrderNum: "B1", OrgName: "Beta"},
	}))
	got, err = s.ListCachedOpportunities(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "B1", got[0].OrderNum)
}

func TestFindTaskByKeyPrefersPending(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	sent := &store.NotificationTask{ID: "t1", OrderNum: "A1", NotificationType: store.NotificationViolation, Status: store.TaskSent, UpdatedAt: time.Now()}
	require.NoError(t, s.InsertTask(ctx, sent))

	pending := &store.NotificationTask{ID: "t2", OrderNum: "A1", NotificationType: store.NotificationViolation, Status: store.TaskPending, UpdatedAt: time.Now()}
	require.NoError(t, s.InsertTask(ctx, pending))

	found, err := s.FindTaskByKey(ctx, store.TaskKey{OrderNum: "A1", Type: store.NotificationViolation})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, store.TaskPending, found.Status)
}

func TestListPendingTasksOrderedByDueThenCreated(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	now := time.Now()

	require.NoError(t, s.InsertTask(ctx, &store.NotificationTask{ID: "late", OrderNum: "A1", NotificationType: store.NotificationStandard, Status: store.TaskPending, DueTime: now.Add(time.Hour), CreatedAt: now}))
	require.NoError(t, s.InsertTask(ctx, &store.NotificationTask{ID: "early", OrderNum: "A2", NotificationType: store.NotificationStandard, Status: store.TaskPending, DueTime: now, CreatedAt: now}))

	out, err := s.ListPendingTasksOrdered(ctx)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "early", out[0].ID)
	assert.Equal(t, "late", out[1].ID)
}

func TestDeleteOldTasksKeepsPending(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	old := time.Now().Add(-48 * time.Hour)

	require.NoError(t, s.InsertTask(ctx, &store.NotificationTask{ID: "sent-old", Status: store.TaskSent, UpdatedAt: old}))
	require.NoError(t, s.InsertTask(ctx, &store.NotificationTask{ID: "pending", Status: store.TaskPending, UpdatedAt: old}))

	n, err := s.DeleteOldTasks(ctx, time.Now().Add(-24*time.Hour).Format(time.RFC3339))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := s.ListPendingTasksOrdered(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestEscalationOrgKeyConvention(t *testing.T) {
	assert.Equal(t, "ESCALATION_Alpha", store.EscalationOrgKey("Alpha"))
}

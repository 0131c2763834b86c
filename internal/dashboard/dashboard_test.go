package dashboard_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksunye/fsoa-agent/internal/dashboard"
	"github.com/franksunye/fsoa-agent/internal/store"
)

type fakeRunStore struct{ runs []*store.AgentRun }

func (f *fakeRunStore) ListRecentRuns(ctx context.Context, limit int) ([]*store.AgentRun, error) {
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

type fakeHealth struct{ view dashboard.HealthView }

func (f *fakeHealth) Health(ctx context.Context) dashboard.HealthView { return f.view }

func TestHandleRecentRunsRespectsLimit(t *testing.T) {
	runs := []*store.AgentRun{
		{ID: "r1", Status: store.RunCompleted},
		{ID: "r2", Status: store.RunFailed},
		{ID: "r3", Status: store.RunCompleted},
	}
	srv := dashboard.New(&fakeRunStore{runs: runs}, &fakeHealth{})

	req := httptest.NewRequest(http.MethodGet, "/api/runs?limit=2", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got []*store.AgentRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)
}

func TestHandleHealthReturnsProvidedView(t *testing.T) {
	view := dashboard.HealthView{StoreOK: true, AnalyticsOK: true, WebhookOK: true, CheckedAt: time.Date(2026, 7, 28, 9, 0, 0, 0, time.UTC)}
	srv := dashboard.New(&fakeRunStore{}, &fakeHealth{view: view})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got dashboard.HealthView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.StoreOK)
}

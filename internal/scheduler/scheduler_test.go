package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksunye/fsoa-agent/internal/scheduler"
)

func TestStartIsIdempotent(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	s := scheduler.New(func(ctx context.Context, dryRun bool) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}, time.Second, nil)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

func TestTickSkipsWhileRunRunning(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var mu sync.Mutex
	calls := 0

	s := scheduler.New(func(ctx context.Context, dryRun bool) error {
		mu.Lock()
		calls++
		mu.Unlock()
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}, time.Second, nil)

	require.NoError(t, s.Start(context.Background()))
	<-started
	assert.True(t, s.IsRunning())

	time.Sleep(1200 * time.Millisecond) // a second tick should be skipped here
	close(release)
	s.Stop()

	assert.GreaterOrEqual(t, s.SkippedTicks(), 1)
}

func TestListJobsReportsRegisteredTick(t *testing.T) {
	s := scheduler.New(func(ctx context.Context, dryRun bool) error {
		return nil
	}, time.Minute, nil)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "@every 1m0s", jobs[0].Schedule)
}

func TestRestartResumesTicking(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	s := scheduler.New(func(ctx context.Context, dryRun bool) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}, time.Second, nil)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Restart(context.Background()))
	assert.Len(t, s.ListJobs(), 1)
	s.Stop()
}

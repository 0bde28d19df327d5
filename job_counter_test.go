package rawpipeline

import (
	"context"
	"testing"
	"time"

	assertT "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobCounter(t *testing.T) {
	ctx := context.Background()

	_, err := NewJobCounter(0)
	require.Error(t, err)

	c, err := NewJobCounter(2)
	require.NoError(t, err)
	require.NoError(t, c.WaitWhileJobsRunning(ctx))
	require.NoError(t, c.StartJob(ctx))
	require.NoError(t, c.StartJob(ctx))
	require.Equal(t, 2, c.CurJobs())

	started := make(chan struct{})
	go func() {
		assertT.NoError(t, c.StartJob(ctx))
		close(started)
	}()
	select {
	case <-started:
		t.Fatal("the third job started while two were running")
	case <-time.After(20 * time.Millisecond):
	}

	c.EndJob(ctx)
	<-started
	require.Equal(t, 2, c.CurJobs())

	timeoutCtx, cancelFn := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancelFn()
	require.ErrorIs(t, c.StartJob(timeoutCtx), context.DeadlineExceeded)
	require.ErrorIs(t, c.WaitWhileJobsRunning(timeoutCtx), context.DeadlineExceeded)

	waited := make(chan struct{})
	go func() {
		assertT.NoError(t, c.WaitWhileJobsRunning(ctx))
		close(waited)
	}()
	c.EndJob(ctx)
	c.EndJob(ctx)
	<-waited

	startedCount, endedCount := c.Counts()
	require.Equal(t, uint64(3), startedCount)
	require.Equal(t, uint64(3), endedCount)
	require.Zero(t, c.CurJobs())
}

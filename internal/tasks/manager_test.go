package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darmiel/kartei/internal/logging"
)

func TestManager_RunNow(t *testing.T) {
	m := NewManager()
	calls := 0
	require.NoError(t, m.Register("blob-gc", "", func(ctx context.Context, logger logging.InternalLogger) error {
		calls++
		logger.Info("removed %d blobs", 2)
		return nil
	}))

	require.NoError(t, m.RunNow(context.Background(), "blob-gc"))
	assert.Equal(t, 1, calls)

	status := m.ListStatus()
	require.Len(t, status, 1)
	assert.Equal(t, ResultSuccess, status[0].LastResult)
	assert.Equal(t, 1, status[0].Runs)
	assert.Zero(t, status[0].Failures)
	assert.False(t, status[0].LastRun.IsZero())
	assert.True(t, status[0].NextRun.IsZero(), "unscheduled task has no next run")

	logs, err := m.GetLogs("blob-gc")
	require.NoError(t, err)
	var messages []string
	for _, l := range logs {
		messages = append(messages, l.Message)
	}
	assert.Contains(t, messages, "removed 2 blobs")
}

func TestManager_FailedRun(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register("broken", "", func(context.Context, logging.InternalLogger) error {
		return errors.New("blob store offline")
	}))

	require.NoError(t, m.RunNow(context.Background(), "broken"))
	status, err := m.Status("broken")
	require.NoError(t, err)
	assert.Equal(t, "failed: blob store offline", status.LastResult)
	assert.Equal(t, 1, status.Failures)
}

func TestManager_Observer(t *testing.T) {
	var (
		observed string
		gotErr   error
	)
	m := NewManager(WithObserver(func(name string, _ time.Duration, err error) {
		observed, gotErr = name, err
	}))
	require.NoError(t, m.Register("blob-gc", "", func(context.Context, logging.InternalLogger) error {
		return errors.New("1 deletion failed")
	}))

	require.NoError(t, m.RunNow(context.Background(), "blob-gc"))
	assert.Equal(t, "blob-gc", observed)
	assert.EqualError(t, gotErr, "1 deletion failed")
}

func TestManager_TriggerWhileRunning(t *testing.T) {
	m := NewManager()
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, m.Register("slow", "", func(ctx context.Context, _ logging.InternalLogger) error {
		close(started)
		<-release
		return nil
	}))

	require.NoError(t, m.Trigger("slow"))
	<-started
	assert.ErrorIs(t, m.Trigger("slow"), ErrAlreadyRunning)
	assert.ErrorIs(t, m.RunNow(context.Background(), "slow"), ErrAlreadyRunning)

	status, err := m.Status("slow")
	require.NoError(t, err)
	assert.True(t, status.Running)

	close(release)
	assert.Eventually(t, func() bool {
		s, _ := m.Status("slow")
		return !s.Running && s.Runs == 1
	}, time.Second, 5*time.Millisecond)
}

func TestManager_RunNowHonorsContext(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register("blob-gc", "", func(ctx context.Context, _ logging.InternalLogger) error {
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, m.RunNow(ctx, "blob-gc"))

	status, err := m.Status("blob-gc")
	require.NoError(t, err)
	assert.Equal(t, "failed: context canceled", status.LastResult)
}

func TestManager_Schedule(t *testing.T) {
	m := NewManager()
	noop := func(context.Context, logging.InternalLogger) error { return nil }

	require.NoError(t, m.Register("hourly", "@every 1h", noop))
	assert.Error(t, m.Register("hourly", "", noop), "duplicate name")
	assert.Error(t, m.Register("bad", "whenever", noop))

	m.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	})

	status := m.ListStatus()
	require.Len(t, status, 1)
	assert.Equal(t, "@every 1h", status[0].Schedule)
	assert.WithinDuration(t, time.Now().Add(time.Hour), status[0].NextRun, time.Minute)
}

func TestManager_UnknownTask(t *testing.T) {
	m := NewManager()

	var notFound TaskNotFoundError
	assert.ErrorAs(t, m.Trigger("nope"), &notFound)
	assert.ErrorAs(t, m.RunNow(context.Background(), "nope"), &notFound)
	_, err := m.GetLogs("nope")
	assert.ErrorAs(t, err, &notFound)
}

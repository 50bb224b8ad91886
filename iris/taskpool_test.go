package iris

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskPoolRunsAllIssuedTasks(t *testing.T) {
	pool := NewTaskPool(4, 8)
	defer pool.TerminateExecution()

	var count atomic.Int32
	for i := 0; i < 50; i++ {
		require.NoError(t, pool.IssueTask(func() { count.Add(1) }))
	}
	pool.WaitUntilComplete()
	assert.Equal(t, int32(50), count.Load())
}

func TestTaskPoolDefaultsInvalidSizes(t *testing.T) {
	pool := NewTaskPool(0, 0)
	defer pool.TerminateExecution()

	done := make(chan struct{})
	require.NoError(t, pool.IssueTask(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestTaskPoolRejectsAfterTerminate(t *testing.T) {
	pool := NewTaskPool(2, 2)
	pool.TerminateExecution()
	err := pool.IssueTask(func() {})
	assert.Error(t, err)
}

func TestTaskPoolCanReenqueueFromWithinTask(t *testing.T) {
	pool := NewTaskPool(2, 4)
	defer pool.TerminateExecution()

	var inner atomic.Bool
	require.NoError(t, pool.IssueTask(func() {
		_ = pool.IssueTask(func() { inner.Store(true) })
	}))
	pool.WaitUntilComplete()
	assert.True(t, inner.Load())
}

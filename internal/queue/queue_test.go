package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueImmediateRunsHandler(t *testing.T) {
	q, err := New(1)
	require.NoError(t, err)
	defer q.Shutdown()

	done := make(chan Job, 1)
	require.NoError(t, q.Register("test", 2, func(job Job) { done <- job }))

	id, err := q.Enqueue("test", "payload", 0)
	require.NoError(t, err)
	assert.NotZero(t, id)

	select {
	case job := <-done:
		assert.Equal(t, id, job.ID)
		assert.Equal(t, "payload", job.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}
}

func TestEnqueueDelayWaits(t *testing.T) {
	q, err := New(1)
	require.NoError(t, err)
	defer q.Shutdown()

	done := make(chan struct{}, 1)
	require.NoError(t, q.Register("test", 1, func(Job) { done <- struct{}{} }))

	start := time.Now()
	_, err = q.Enqueue("test", nil, 100*time.Millisecond)
	require.NoError(t, err)

	select {
	case <-done:
		assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("delayed job never fired")
	}
}

func TestCancelStopsPendingJob(t *testing.T) {
	q, err := New(1)
	require.NoError(t, err)
	defer q.Shutdown()

	var ran sync.Map
	require.NoError(t, q.Register("test", 1, func(job Job) { ran.Store(job.ID, true) }))

	id, err := q.Enqueue("test", nil, 200*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, q.Pending())

	assert.True(t, q.Cancel(id))
	assert.Zero(t, q.Pending())

	time.Sleep(300 * time.Millisecond)
	_, fired := ran.Load(id)
	assert.False(t, fired, "cancelled job must not run")
}

func TestCancelFiredJobReturnsFalse(t *testing.T) {
	q, err := New(1)
	require.NoError(t, err)
	defer q.Shutdown()

	done := make(chan struct{}, 1)
	require.NoError(t, q.Register("test", 1, func(Job) { done <- struct{}{} }))

	id, err := q.Enqueue("test", nil, 0)
	require.NoError(t, err)
	<-done

	assert.False(t, q.Cancel(id))
}

func TestEnqueueUnknownTypeFails(t *testing.T) {
	q, err := New(1)
	require.NoError(t, err)
	defer q.Shutdown()

	_, err = q.Enqueue("nope", nil, 0)
	assert.Error(t, err)
}

func TestDuplicateRegisterFails(t *testing.T) {
	q, err := New(1)
	require.NoError(t, err)
	defer q.Shutdown()

	require.NoError(t, q.Register("test", 1, func(Job) {}))
	assert.Error(t, q.Register("test", 1, func(Job) {}))
}

func TestJobHandlesAreUnique(t *testing.T) {
	q, err := New(1)
	require.NoError(t, err)
	defer q.Shutdown()

	require.NoError(t, q.Register("test", 1, func(Job) {}))

	seen := map[int64]bool{}
	for i := 0; i < 100; i++ {
		id, err := q.Enqueue("test", nil, time.Minute)
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestShutdownDropsPendingJobs(t *testing.T) {
	q, err := New(1)
	require.NoError(t, err)

	require.NoError(t, q.Register("test", 1, func(Job) {}))
	_, err = q.Enqueue("test", nil, time.Minute)
	require.NoError(t, err)

	q.Shutdown()
	assert.Zero(t, q.Pending())

	_, err = q.Enqueue("test", nil, 0)
	assert.Error(t, err)
}

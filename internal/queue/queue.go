// Package queue implements an in-process delayed job broker. Each job type
// owns a bounded worker pool; delayed jobs sit on timers until due and are
// then submitted to the pool. Job handles are snowflake ids so a record can
// tell which of its scheduled jobs is still authoritative.
package queue

import (
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Handler consumes one job payload. Returned errors are logged only; retry
// policy belongs to the producer (the dispatch stage reschedules itself).
type Handler func(job Job)

// Job is one unit of work delivered to a handler.
type Job struct {
	ID      int64
	Type    string
	Payload interface{}
}

type consumer struct {
	pool    *ants.Pool
	handler Handler
}

// Queue is the in-process delayed job broker.
type Queue struct {
	node *snowflake.Node

	mu        sync.Mutex
	consumers map[string]*consumer
	timers    map[int64]*time.Timer
	closed    bool
}

// New creates a queue. nodeID distinguishes processes sharing an id space.
func New(nodeID int64) (*Queue, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, errors.Wrap(err, "queue: snowflake node")
	}
	return &Queue{
		node:      node,
		consumers: make(map[string]*consumer),
		timers:    make(map[int64]*time.Timer),
	}, nil
}

// Register installs the consumer for a job type with the given worker
// concurrency. One consumer per job type.
func (q *Queue) Register(jobType string, concurrency int, h Handler) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	pool, err := ants.NewPool(concurrency, ants.WithNonblocking(false))
	if err != nil {
		return errors.Wrapf(err, "queue: pool for %s", jobType)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, dup := q.consumers[jobType]; dup {
		pool.Release()
		return errors.Errorf("queue: consumer already registered for %s", jobType)
	}
	q.consumers[jobType] = &consumer{pool: pool, handler: h}
	return nil
}

// Enqueue schedules a job after delay and returns its handle. A zero or
// negative delay submits immediately.
func (q *Queue) Enqueue(jobType string, payload interface{}, delay time.Duration) (int64, error) {
	q.mu.Lock()
	c, ok := q.consumers[jobType]
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return 0, errors.New("queue: closed")
	}
	if !ok {
		return 0, errors.Errorf("queue: no consumer for %s", jobType)
	}

	id := q.node.Generate().Int64()
	job := Job{ID: id, Type: jobType, Payload: payload}

	fire := func() {
		q.mu.Lock()
		delete(q.timers, id)
		q.mu.Unlock()
		if err := c.pool.Submit(func() { c.handler(job) }); err != nil {
			zap.L().Error("queue: submit failed",
				zap.String("job_type", jobType),
				zap.Int64("job_id", id),
				zap.Error(err))
		}
	}

	if delay <= 0 {
		if err := c.pool.Submit(func() { c.handler(job) }); err != nil {
			return 0, errors.Wrap(err, "queue: submit")
		}
		return id, nil
	}

	q.mu.Lock()
	q.timers[id] = time.AfterFunc(delay, fire)
	q.mu.Unlock()
	return id, nil
}

// Cancel stops a still-pending delayed job. Best effort: returns false when
// the job already fired or never existed.
func (q *Queue) Cancel(id int64) bool {
	q.mu.Lock()
	t, ok := q.timers[id]
	if ok {
		delete(q.timers, id)
	}
	q.mu.Unlock()
	if !ok {
		return false
	}
	return t.Stop()
}

// Pending returns the number of delayed jobs not yet handed to a pool.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}

// Shutdown stops all timers and releases the worker pools. In-flight jobs
// finish; pending delayed jobs are dropped.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	q.closed = true
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
	consumers := make([]*consumer, 0, len(q.consumers))
	for _, c := range q.consumers {
		consumers = append(consumers, c)
	}
	q.mu.Unlock()

	for _, c := range consumers {
		c.pool.Release()
	}
}

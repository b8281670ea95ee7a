// Package serializer funnels every local write through a single worker, so
// the embedded database never sees two writers at once. Callers block until
// their job ran and get exactly that job's error; one failing write never
// disturbs the jobs queued behind it.
package serializer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/farmkeeper/farmkeeper/internal/logging"
)

// ErrClosed is returned for jobs submitted after Close.
var ErrClosed = errors.New("write queue closed")

const defaultCapacity = 64

type job struct {
	label    string
	ctx      context.Context
	fn       func(ctx context.Context) error
	enqueued time.Time
	done     chan error
}

// Stats is a point-in-time snapshot of queue behavior, surfaced on the
// status screen and in tests.
type Stats struct {
	// Depth is the number of jobs waiting right now.
	Depth int
	// PeakDepth is the high-water mark since start.
	PeakDepth int
	// Processed counts jobs that ran (successfully or not).
	Processed uint64
	// Failed counts jobs whose fn returned an error.
	Failed uint64
	// Skipped counts jobs abandoned by caller cancellation before running.
	Skipped uint64
	// LastWait and MaxWait track time spent queued before running.
	LastWait time.Duration
	MaxWait  time.Duration
}

// Queue is the FIFO, single-worker gate for local writes.
type Queue struct {
	jobs     chan *job
	log      logging.Logger
	warnWait time.Duration

	mu      sync.Mutex
	stats   Stats
	closed  bool
	senders sync.WaitGroup

	workerDone sync.WaitGroup
}

// New starts the worker goroutine. capacity bounds how many writes may queue
// up before submitters block; warnWait > 0 logs a warning whenever a job sat
// queued longer than that.
func New(capacity int, warnWait time.Duration, log logging.Logger) *Queue {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if log == nil {
		log = logging.Nop{}
	}
	q := &Queue{
		jobs:     make(chan *job, capacity),
		log:      log,
		warnWait: warnWait,
	}
	q.workerDone.Add(1)
	go q.run()
	return q
}

// Do submits fn and blocks until it ran (or was skipped). The returned error
// is exactly fn's error: failures stay with their caller. If ctx ends while
// the job is still queued, the job is skipped and ctx's error is returned.
func (q *Queue) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	j := &job{
		label:    label,
		ctx:      ctx,
		fn:       fn,
		enqueued: time.Now(),
		done:     make(chan error, 1),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.senders.Add(1)
	q.stats.Depth++
	if q.stats.Depth > q.stats.PeakDepth {
		q.stats.PeakDepth = q.stats.Depth
	}
	q.mu.Unlock()

	select {
	case q.jobs <- j:
		q.senders.Done()
	case <-ctx.Done():
		q.senders.Done()
		q.mu.Lock()
		q.stats.Depth--
		q.stats.Skipped++
		q.mu.Unlock()
		return ctx.Err()
	}

	// The worker always answers: either fn's result, or ctx's error when the
	// job was skipped. fn itself receives the caller's ctx, so cancellation
	// mid-run aborts the underlying statements rather than abandoning them.
	return <-j.done
}

// Stats returns a snapshot of queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// Close stops accepting new jobs, lets queued ones finish and waits for the
// worker to exit. Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.senders.Wait()
	close(q.jobs)
	q.workerDone.Wait()
}

func (q *Queue) run() {
	defer q.workerDone.Done()

	for j := range q.jobs {
		wait := time.Since(j.enqueued)

		q.mu.Lock()
		q.stats.Depth--
		q.stats.LastWait = wait
		if wait > q.stats.MaxWait {
			q.stats.MaxWait = wait
		}
		congested := q.warnWait > 0 && wait > q.warnWait
		q.mu.Unlock()

		if congested {
			q.log.Warn(j.ctx, "write queue congestion", "label", j.label, "wait", wait)
		}

		if err := j.ctx.Err(); err != nil {
			q.mu.Lock()
			q.stats.Skipped++
			q.mu.Unlock()
			j.done <- err
			continue
		}

		err := q.runJob(j)

		q.mu.Lock()
		q.stats.Processed++
		if err != nil {
			q.stats.Failed++
		}
		q.mu.Unlock()

		j.done <- err
	}
}

// runJob isolates panics so one bad write cannot take the worker down.
func (q *Queue) runJob(j *job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("write %q panicked: %v", j.label, p)
			q.log.Error(j.ctx, "write job panic", "label", j.label, "panic", p)
		}
	}()
	return j.fn(j.ctx)
}

// Package background runs best-effort side effects (cache mirroring, address upserts, event
// publishing) off the request path. Failures are logged and never reach the caller.
package background

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type task struct {
	name   string
	fields logrus.Fields
	fn     func(ctx context.Context) error
}

// Runner executes tasks in submission order on a single goroutine.
type Runner struct {
	log     logrus.FieldLogger
	timeout time.Duration
	tasks   chan task

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
	done    chan struct{}
}

// New starts a runner with a queue of the given size. Each task gets its own timeout.
func New(log logrus.FieldLogger, queueSize int, timeout time.Duration) *Runner {
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	r := &Runner{
		log:     log,
		timeout: timeout,
		tasks:   make(chan task, queueSize),
		done:    make(chan struct{}),
	}
	go r.loop()
	return r
}

// Go queues fn. A nil Runner runs fn inline and discards the error.
func (r *Runner) Go(name string, fields logrus.Fields, fn func(ctx context.Context) error) {
	if r == nil {
		_ = fn(context.Background())
		return
	}
	t := task{name: name, fields: fields, fn: fn}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.log.WithFields(fields).WithField("task", name).Warn("background runner closed, dropping task")
		return
	}
	r.pending.Add(1)
	select {
	case r.tasks <- t:
	default:
		// queue full: run out of order rather than block the caller
		r.log.WithField("task", name).Warn("background queue full, running task detached")
		go func() {
			defer r.pending.Done()
			r.run(t)
		}()
	}
}

// Wait blocks until every queued task has finished.
func (r *Runner) Wait() {
	if r == nil {
		return
	}
	r.pending.Wait()
}

// Close stops accepting tasks and drains the queue.
func (r *Runner) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.tasks)
	r.mu.Unlock()

	<-r.done
	r.pending.Wait()
}

func (r *Runner) loop() {
	defer close(r.done)
	for t := range r.tasks {
		r.run(t)
		r.pending.Done()
	}
}

func (r *Runner) run(t task) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithFields(t.fields).WithField("task", t.name).Errorf("background task panicked: %v", rec)
		}
	}()

	if err := t.fn(ctx); err != nil {
		r.log.WithFields(t.fields).WithField("task", t.name).WithError(err).Warn("background task failed")
	}
}

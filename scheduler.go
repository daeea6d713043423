package orabridge

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"golang.org/x/sync/semaphore"
)

// Scheduler runs blocking bodies on a fixed pool of worker goroutines, each
// locked to its own OS thread for the whole life of the pool.
type Scheduler struct {
	env     *Env
	jobs    chan func()
	slots   *semaphore.Weighted
	workers int
	logger  hclog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func newScheduler(env *Env, workers, depth int) *Scheduler {
	s := &Scheduler{
		env:     env,
		jobs:    make(chan func(), depth),
		slots:   semaphore.NewWeighted(int64(depth)),
		workers: workers,
		logger:  env.logger.Named("scheduler"),
	}
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker(i)
	}
	s.logger.Debug("scheduler started", "workers", workers, "queue_depth", depth)
	return s
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for job := range s.jobs {
		job()
	}
	s.logger.Trace("worker stopped", "worker", id)
}

// Close stops accepting tasks and waits for queued ones to finish their
// blocking bodies.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()
	s.wg.Wait()
}

// enqueue hands job to the pool and marks tc queued once it is accepted.
// The slot semaphore guarantees the channel has room, so the send never
// blocks while the read lock is held.
func (s *Scheduler) enqueue(ctx context.Context, tc *TaskContext, job func()) error {
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return &Error{Type: ErrScheduling, Message: fmt.Sprintf("task not queued: %v", err)}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.slots.Release(1)
		return ErrSchedulerClosed
	}
	tc.setState(StateQueued)
	s.jobs <- job
	return nil
}

// Pending is a submitted task whose result has not been collected.
type Pending[T any] struct {
	tc   *TaskContext
	task Task[T]
	done chan struct{}
	span opentracing.Span

	once sync.Once
	res  T
	err  error
}

// Context returns the task context.
func (p *Pending[T]) Context() *TaskContext {
	return p.tc
}

// Submit acquires the task's guards, queues its blocking body and returns
// without waiting. Guard conflicts and queueing failures are returned
// directly and the task ends in DONE without running.
func Submit[T any](ctx context.Context, s *Scheduler, task Task[T]) (*Pending[T], error) {
	env := s.env
	tc := newTaskContext(env, task.Kind)

	for i, g := range task.Guards {
		if err := g.acquire(); err != nil {
			for _, held := range task.Guards[:i] {
				held.release()
			}
			env.metrics.BusyRejections.WithLabelValues(g.object).Inc()
			tc.setState(StateDone)
			return nil, err
		}
	}
	releaseGuards := func() {
		for _, g := range task.Guards {
			g.release()
		}
	}

	ec, err := env.adapter.NewErrorContext()
	if err != nil {
		releaseGuards()
		tc.setState(StateDone)
		return nil, &Error{Type: ErrScheduling, Message: fmt.Sprintf("error context: %v", err)}
	}
	tc.EC = ec

	if task.Prepare != nil {
		if err := task.Prepare(tc); err != nil {
			tc.release()
			releaseGuards()
			tc.setState(StateDone)
			return nil, err
		}
	}

	span, _ := opentracing.StartSpanFromContextWithTracer(ctx, env.tracer, "orabridge."+string(task.Kind))
	span.SetTag("task.id", tc.ID.String())

	p := &Pending[T]{
		tc:   tc,
		task: task,
		done: make(chan struct{}),
		span: span,
	}

	job := func() {
		defer s.slots.Release(1)
		defer close(p.done)
		tc.setState(StateRunning)
		env.metrics.TasksRunning.Inc()
		start := time.Now()
		tc.Fail(runBlocking(tc, task.Blocking))
		env.metrics.BlockingTime.WithLabelValues(string(task.Kind)).Observe(time.Since(start).Seconds())
		env.metrics.TasksRunning.Dec()
	}

	if err := s.enqueue(ctx, tc, job); err != nil {
		tc.release()
		releaseGuards()
		tc.setState(StateDone)
		ext.Error.Set(span, true)
		span.Finish()
		return nil, err
	}
	env.metrics.TasksSubmitted.WithLabelValues(string(task.Kind)).Inc()
	tc.log.Trace("task queued")
	return p, nil
}

// runBlocking runs body and turns a panic into an error so it never
// unwinds past the worker.
func runBlocking(tc *TaskContext, body func(*TaskContext) error) (err error) {
	if body == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			tc.log.Error("blocking body panicked", "panic", r)
			err = &Error{Type: ErrScheduling, Message: fmt.Sprintf("task %s panicked: %v", tc.Kind, r)}
		}
	}()
	return body(tc)
}

// Wait blocks until the blocking body has finished, then runs the
// completion on the calling goroutine. If ctx ends first, the task's
// Interrupt hook is invoked and Wait keeps waiting so owned handles are
// still released exactly once. Later calls return the same result.
func (p *Pending[T]) Wait(ctx context.Context) (T, error) {
	p.once.Do(func() {
		select {
		case <-p.done:
		case <-ctx.Done():
			if p.task.Interrupt != nil {
				p.tc.log.Debug("interrupting task", "reason", ctx.Err())
				p.task.Interrupt()
			}
			<-p.done
		}
		p.complete()
	})
	return p.res, p.err
}

func (p *Pending[T]) complete() {
	tc := p.tc
	env := tc.env
	tc.setState(StateCompleting)

	if tc.Err() == nil && p.task.Complete != nil {
		res, err := p.task.Complete(tc)
		if !tc.Fail(err) && err == nil {
			p.res = res
		}
	}
	tc.release()
	for _, g := range p.task.Guards {
		g.release()
	}
	tc.setState(StateDone)

	p.err = tc.Err()
	outcome := "ok"
	if p.err != nil {
		outcome = "error"
		ext.Error.Set(p.span, true)
		p.span.LogKV("error", p.err.Error())
		tc.log.Debug("task failed", "error", p.err)
	}
	env.metrics.TasksCompleted.WithLabelValues(string(tc.Kind), outcome).Inc()
	p.span.Finish()
}

// Run submits task and waits for its result.
func Run[T any](ctx context.Context, s *Scheduler, task Task[T]) (T, error) {
	p, err := Submit(ctx, s, task)
	if err != nil {
		var zero T
		return zero, err
	}
	return p.Wait(ctx)
}

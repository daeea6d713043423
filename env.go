package orabridge

import (
	"context"
	"sync/atomic"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/semihalev/go-orabridge/nca"
)

// Env is the root object of the bridge. It owns the adapter, the worker
// pool, the handle arena and the object type registry, and is passed to
// every connection it creates. Build one per process and adapter.
type Env struct {
	adapter nca.Adapter
	cfg     Config
	logger  hclog.Logger
	tracer  opentracing.Tracer
	reg     prometheus.Registerer
	metrics *Metrics

	arena *HandleArena
	sched *Scheduler
	types *TypeRegistry

	closed int32
}

// Option configures an Env.
type Option func(*Env)

// WithConfig replaces the configuration.
func WithConfig(cfg Config) Option {
	return func(e *Env) {
		e.cfg = cfg
	}
}

// WithLogger sets the logger; the default discards output.
func WithLogger(l hclog.Logger) Option {
	return func(e *Env) {
		e.logger = l
	}
}

// WithTracer sets the tracer used for per-task spans.
func WithTracer(t opentracing.Tracer) Option {
	return func(e *Env) {
		e.tracer = t
	}
}

// WithRegisterer registers the Env's metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Env) {
		e.reg = reg
	}
}

// WithFetchArraySize sets Config.FetchArraySize.
func WithFetchArraySize(n uint32) Option {
	return func(e *Env) {
		e.cfg.FetchArraySize = n
	}
}

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(e *Env) {
		e.cfg.Workers = n
		if e.cfg.QueueDepth < n {
			e.cfg.QueueDepth = n
		}
	}
}

// NewEnv creates an Env over adapter and starts its workers.
func NewEnv(adapter nca.Adapter, opts ...Option) (*Env, error) {
	e := &Env{
		adapter: adapter,
		cfg:     DefaultConfig(),
		logger:  hclog.NewNullLogger(),
		tracer:  opentracing.GlobalTracer(),
		arena:   NewHandleArena(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.cfg.validate(); err != nil {
		return nil, err
	}
	m, err := NewMetrics(e.reg)
	if err != nil {
		return nil, err
	}
	e.metrics = m
	e.types = newTypeRegistry(e)
	e.sched = newScheduler(e, e.cfg.Workers, e.cfg.QueueDepth)
	e.logger.Debug("environment created", "workers", e.cfg.Workers, "fetch_array_size", e.cfg.FetchArraySize)
	return e, nil
}

// Config returns the configuration.
func (e *Env) Config() Config {
	return e.cfg
}

// Logger returns the logger.
func (e *Env) Logger() hclog.Logger {
	return e.logger
}

// Arena returns the handle arena.
func (e *Env) Arena() *HandleArena {
	return e.arena
}

// Scheduler returns the worker pool.
func (e *Env) Scheduler() *Scheduler {
	return e.sched
}

// Connect opens a session.
func (e *Env) Connect(ctx context.Context, p nca.ConnectParams) (*Connection, error) {
	if atomic.LoadInt32(&e.closed) != 0 {
		return nil, ErrSchedulerClosed
	}
	var id HandleID
	return Run(ctx, e.sched, Task[*Connection]{
		Kind: TaskConnect,
		Blocking: func(tc *TaskContext) error {
			h, err := e.adapter.Connect(tc.EC, p)
			if err != nil {
				return wrapf(err, "connect")
			}
			id = e.arena.Add(h, func(ec nca.ErrorContext, h nca.Handle) error {
				return e.adapter.Disconnect(ec, h)
			})
			return nil
		},
		Complete: func(tc *TaskContext) (*Connection, error) {
			return newConnection(e, id), nil
		},
	})
}

// Close stops the worker pool. Connections must be closed first.
func (e *Env) Close() error {
	if !atomic.CompareAndSwapInt32(&e.closed, 0, 1) {
		return nil
	}
	e.sched.Close()
	if live := e.arena.Live(); live > 0 {
		e.logger.Warn("environment closed with live native handles", "count", live)
	}
	return nil
}

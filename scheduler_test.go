package orabridge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/semihalev/go-orabridge/nca"
	"github.com/semihalev/go-orabridge/nca/ncafake"
)

func TestRunPhases(t *testing.T) {
	env, err := NewEnv(ncafake.New(ncafake.Options{}), WithWorkers(1))
	require.NoError(t, err)
	defer env.Close()

	var order []string
	var blockingState TaskState
	got, err := Run(context.Background(), env.Scheduler(), Task[string]{
		Kind: TaskPing,
		Prepare: func(tc *TaskContext) error {
			order = append(order, "prepare")
			assert.NotZero(t, tc.EC)
			return nil
		},
		Blocking: func(tc *TaskContext) error {
			order = append(order, "blocking")
			blockingState = tc.State()
			return nil
		},
		Complete: func(tc *TaskContext) (string, error) {
			order = append(order, "complete")
			assert.Equal(t, StateCompleting, tc.State())
			return "ok", nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, []string{"prepare", "blocking", "complete"}, order)
	assert.Equal(t, StateRunning, blockingState)
}

func TestRunSkipsCompleteAfterFailure(t *testing.T) {
	fake := ncafake.New(ncafake.Options{})
	env, err := NewEnv(fake, WithWorkers(1))
	require.NoError(t, err)
	defer env.Close()

	released := 0
	completed := false
	_, err = Run(context.Background(), env.Scheduler(), Task[int]{
		Kind: TaskExecute,
		Blocking: func(tc *TaskContext) error {
			tc.Own(nca.Handle(7), func(ec nca.ErrorContext, h nca.Handle) error {
				released++
				return nil
			})
			return usagef("boom")
		},
		Complete: func(tc *TaskContext) (int, error) {
			completed = true
			return 1, nil
		},
	})
	require.Error(t, err)
	assert.Equal(t, "orabridge: boom", err.Error())
	assert.False(t, completed)
	assert.Equal(t, 1, released)
	assert.Zero(t, env.Arena().Live())
	assert.Zero(t, fake.Stats().LiveErrorContexts)
}

func TestRunRecoversPanic(t *testing.T) {
	env, err := NewEnv(ncafake.New(ncafake.Options{}), WithWorkers(1))
	require.NoError(t, err)
	defer env.Close()

	_, err = Run(context.Background(), env.Scheduler(), Task[struct{}]{
		Kind:     TaskFetchRows,
		Blocking: func(tc *TaskContext) error { panic("native crash") },
	})
	require.Error(t, err)
	assert.True(t, IsError(err, ErrScheduling))
	assert.Contains(t, err.Error(), "native crash")

	// The worker survived.
	_, err = Run(context.Background(), env.Scheduler(), Task[struct{}]{Kind: TaskPing})
	assert.NoError(t, err)
}

func TestSubmitGuardsFailFast(t *testing.T) {
	env, err := NewEnv(ncafake.New(ncafake.Options{}), WithWorkers(1))
	require.NoError(t, err)
	defer env.Close()

	a := newBusyGuard("a", ErrBusyConnection)
	b := newBusyGuard("b", ErrBusyLob)
	require.NoError(t, b.acquire())

	prepared := false
	_, err = Submit(context.Background(), env.Scheduler(), Task[struct{}]{
		Kind:    TaskLobRead,
		Guards:  []*busyGuard{a, b},
		Prepare: func(tc *TaskContext) error { prepared = true; return nil },
	})
	assert.ErrorIs(t, err, ErrBusyLob)
	assert.False(t, prepared)
	assert.False(t, a.Active(), "earlier guards are rolled back")
	assert.True(t, b.Active())
}

func TestPendingWaitIsIdempotent(t *testing.T) {
	env, err := NewEnv(ncafake.New(ncafake.Options{}), WithWorkers(2))
	require.NoError(t, err)
	defer env.Close()

	release := make(chan struct{})
	g := newBusyGuard("x", ErrBusyConnection)
	p, err := Submit(context.Background(), env.Scheduler(), Task[int]{
		Kind:     TaskExecute,
		Guards:   []*busyGuard{g},
		Blocking: func(tc *TaskContext) error { <-release; return nil },
		Complete: func(tc *TaskContext) (int, error) { return 42, nil },
	})
	require.NoError(t, err)
	assert.True(t, g.Active())
	close(release)

	n, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	n, err = p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.Equal(t, StateDone, p.Context().State())
	assert.False(t, g.Active())
}

func TestWaitInterruptsOnCancel(t *testing.T) {
	env, err := NewEnv(ncafake.New(ncafake.Options{}), WithWorkers(1))
	require.NoError(t, err)
	defer env.Close()

	stop := make(chan struct{})
	var interrupted atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	p, err := Submit(ctx, env.Scheduler(), Task[int]{
		Kind:     TaskExecute,
		Blocking: func(tc *TaskContext) error { <-stop; return usagef("interrupted") },
		Interrupt: func() {
			interrupted.Store(true)
			close(stop)
		},
	})
	require.NoError(t, err)
	cancel()

	_, err = p.Wait(ctx)
	require.Error(t, err)
	assert.True(t, interrupted.Load())
	assert.Equal(t, StateDone, p.Context().State())
}

func TestSchedulerClosed(t *testing.T) {
	env, err := NewEnv(ncafake.New(ncafake.Options{}), WithWorkers(1))
	require.NoError(t, err)
	env.Scheduler().Close()

	g := newBusyGuard("conn", ErrBusyConnection)
	_, err = Run(context.Background(), env.Scheduler(), Task[struct{}]{Kind: TaskPing, Guards: []*busyGuard{g}})
	assert.ErrorIs(t, err, ErrSchedulerClosed)
	assert.False(t, g.Active())
	require.NoError(t, env.Close())
}

func TestEnqueueMarksQueuedOnAccept(t *testing.T) {
	env, err := NewEnv(ncafake.New(ncafake.Options{}), WithWorkers(1))
	require.NoError(t, err)
	s := env.Scheduler()

	tc := newTaskContext(env, TaskPing)
	seen := make(chan TaskState, 1)
	require.NoError(t, s.enqueue(context.Background(), tc, func() {
		defer s.slots.Release(1)
		seen <- tc.State()
	}))
	assert.Equal(t, StateQueued, <-seen)

	s.Close()
	rejected := newTaskContext(env, TaskPing)
	assert.ErrorIs(t, s.enqueue(context.Background(), rejected, func() {}), ErrSchedulerClosed)
	assert.Equal(t, StateCreated, rejected.State(), "a rejected task is never queued")
	require.NoError(t, env.Close())
}

func TestConcurrentConnections(t *testing.T) {
	fake := ncafake.New(ncafake.Options{FetchDelay: time.Millisecond})
	employees(fake)
	env, err := NewEnv(fake, WithWorkers(4))
	require.NoError(t, err)
	defer env.Close()

	ctx := context.Background()
	conns := make([]*Connection, 6)
	for i := range conns {
		conns[i], err = env.Connect(ctx, nca.ConnectParams{Username: fmt.Sprintf("user%d", i)})
		require.NoError(t, err)
	}

	var g errgroup.Group
	for _, c := range conns {
		c := c
		g.Go(func() error {
			for i := 0; i < 20; i++ {
				res, err := c.Execute(ctx, "select id, name, salary from employees", nil, &ExecuteOptions{FetchArraySize: 1})
				if err != nil {
					return err
				}
				if len(res.Rows) != 3 {
					return fmt.Errorf("got %d rows", len(res.Rows))
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, c := range conns {
		require.NoError(t, c.Close(ctx))
	}
	st := fake.Stats()
	assert.Zero(t, st.Violations)
	assert.Greater(t, st.MaxRunning, 1, "connections should run in parallel")
	assert.LessOrEqual(t, st.MaxRunning, 4)
	assert.Zero(t, st.LiveAllocs)
	assert.Zero(t, st.LiveStatements)
	assert.Zero(t, st.LiveConns)
}

func TestConcurrentUseOfOneConnection(t *testing.T) {
	fake := ncafake.New(ncafake.Options{})
	fake.Script("begin dbms_session.sleep(1); end;", &ncafake.Script{Kind: nca.StmtPLSQL, Delay: 100 * time.Millisecond})
	env, err := NewEnv(fake, WithWorkers(4))
	require.NoError(t, err)
	defer env.Close()

	ctx := context.Background()
	conn, err := env.Connect(ctx, nca.ConnectParams{Username: "scott"})
	require.NoError(t, err)
	defer conn.Close(ctx)

	var g errgroup.Group
	var ok, busy atomic.Int32
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := conn.Execute(ctx, "begin dbms_session.sleep(1); end;", nil, nil)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrBusyConnection):
				busy.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.GreaterOrEqual(t, ok.Load(), int32(1))
	assert.Equal(t, int32(8), ok.Load()+busy.Load())
	assert.Zero(t, fake.Stats().Violations)
}

func TestExecuteCancelBreaksCall(t *testing.T) {
	conn, fake := newTestConn(t, ncafake.Options{})
	fake.Script("begin dbms_session.sleep(60); end;", &ncafake.Script{Kind: nca.StmtPLSQL, Delay: 5 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := conn.Execute(ctx, "begin dbms_session.sleep(60); end;", nil, nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, nca.CodeUserCancelled, e.Code)

	// The connection is usable again.
	require.NoError(t, conn.Ping(context.Background()))
}

package orabridge

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	hclog "github.com/hashicorp/go-hclog"

	"github.com/semihalev/go-orabridge/nca"
)

// TaskKind names the operation a task performs.
type TaskKind string

// Task kinds.
const (
	TaskConnect        TaskKind = "connect"
	TaskDisconnect     TaskKind = "disconnect"
	TaskPing           TaskKind = "ping"
	TaskCommit         TaskKind = "commit"
	TaskRollback       TaskKind = "rollback"
	TaskExecute        TaskKind = "execute"
	TaskExecuteMany    TaskKind = "execute_many"
	TaskFetchRows      TaskKind = "fetch_rows"
	TaskCloseResultSet TaskKind = "close_result_set"
	TaskLobRead        TaskKind = "lob_read"
	TaskLobWrite       TaskKind = "lob_write"
	TaskLobLength      TaskKind = "lob_length"
	TaskLobCreate      TaskKind = "lob_create"
	TaskLobClose       TaskKind = "lob_close"
	TaskObjectType     TaskKind = "object_type"
)

// TaskState is the lifecycle position of a task.
type TaskState int32

const (
	StateCreated TaskState = iota
	StateQueued
	StateRunning
	StateCompleting
	StateDone
)

func (s TaskState) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateQueued:
		return "QUEUED"
	case StateRunning:
		return "RUNNING"
	case StateCompleting:
		return "COMPLETING"
	case StateDone:
		return "DONE"
	}
	return "UNKNOWN"
}

// TaskContext carries the inputs, owned native handles, scratch buffers and
// the first error of one operation. Its blocking body runs on a worker and
// touches only native handles and raw data; its completion body runs on the
// goroutine waiting for the result and builds Go values.
type TaskContext struct {
	ID   uuid.UUID
	Kind TaskKind
	// EC is private to this task.
	EC nca.ErrorContext

	env   *Env
	log   hclog.Logger
	state atomic.Int32

	mu      sync.Mutex
	err     error
	owned   []HandleID
	buffers []*varBuffer
}

func newTaskContext(env *Env, kind TaskKind) *TaskContext {
	tc := &TaskContext{
		ID:   uuid.New(),
		Kind: kind,
		env:  env,
	}
	tc.log = taskLogger(env.logger, tc)
	return tc
}

// State returns the current lifecycle state.
func (tc *TaskContext) State() TaskState {
	return TaskState(tc.state.Load())
}

func (tc *TaskContext) setState(s TaskState) {
	tc.state.Store(int32(s))
}

// Fail records err unless an error is already stored. It reports whether
// err became the task's error.
func (tc *TaskContext) Fail(err error) bool {
	if err == nil {
		return false
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.err != nil {
		return false
	}
	tc.err = err
	return true
}

// Err returns the sticky error.
func (tc *TaskContext) Err() error {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.err
}

// Adapter returns the native adapter.
func (tc *TaskContext) Adapter() nca.Adapter {
	return tc.env.adapter
}

// Own adds h to the arena and makes the task responsible for releasing it.
func (tc *TaskContext) Own(h nca.Handle, release releaseFunc) HandleID {
	id := tc.env.arena.Add(h, release)
	tc.mu.Lock()
	tc.owned = append(tc.owned, id)
	tc.mu.Unlock()
	return id
}

// Retain takes a task-owned reference to an existing handle.
func (tc *TaskContext) Retain(id HandleID) error {
	if err := tc.env.arena.AddRef(id); err != nil {
		return err
	}
	tc.mu.Lock()
	tc.owned = append(tc.owned, id)
	tc.mu.Unlock()
	return nil
}

// Handle resolves id through the arena.
func (tc *TaskContext) Handle(id HandleID) (nca.Handle, error) {
	return tc.env.arena.Get(id)
}

// OwnBuffer makes the task responsible for freeing b.
func (tc *TaskContext) OwnBuffer(b *varBuffer) {
	tc.mu.Lock()
	tc.buffers = append(tc.buffers, b)
	tc.mu.Unlock()
}

// Transfer hands a reference to id over to the caller; the task keeps its
// own reference and still releases it.
func (tc *TaskContext) Transfer(id HandleID) (HandleID, error) {
	if err := tc.env.arena.AddRef(id); err != nil {
		return 0, err
	}
	return id, nil
}

// release frees everything the task owns, newest first, and its error
// context. Release failures are logged, never returned.
func (tc *TaskContext) release() {
	tc.mu.Lock()
	owned, buffers := tc.owned, tc.buffers
	tc.owned, tc.buffers = nil, nil
	tc.mu.Unlock()

	for i := len(owned) - 1; i >= 0; i-- {
		if err := tc.env.arena.Release(tc.EC, owned[i]); err != nil {
			tc.log.Warn("release handle failed", "error", err)
		}
	}
	for _, b := range buffers {
		b.release(tc.EC)
	}
	if tc.EC != 0 {
		tc.env.adapter.FreeErrorContext(tc.EC)
		tc.EC = 0
	}
}

// Task describes one schedulable operation returning T.
type Task[T any] struct {
	Kind TaskKind
	// Guards are acquired, in order, before the task is queued.
	Guards []*busyGuard
	// Prepare runs on the submitting goroutine before the task is queued;
	// it resolves inputs and fills bind buffers.
	Prepare func(tc *TaskContext) error
	// Blocking runs on a worker thread.
	Blocking func(tc *TaskContext) error
	// Complete builds the result; it is skipped when the task failed.
	Complete func(tc *TaskContext) (T, error)
	// Interrupt is called when the waiting context ends while the
	// blocking body still runs.
	Interrupt func()
}

// busyGuard enforces one active task per connection, result set or LOB.
type busyGuard struct {
	active atomic.Bool
	object string
	err    *Error
}

func newBusyGuard(object string, err *Error) *busyGuard {
	return &busyGuard{object: object, err: err}
}

func (g *busyGuard) acquire() error {
	if !g.active.CompareAndSwap(false, true) {
		return g.err
	}
	return nil
}

func (g *busyGuard) release() {
	g.active.Store(false)
}

// Active reports whether a task currently holds the guard.
func (g *busyGuard) Active() bool {
	return g.active.Load()
}

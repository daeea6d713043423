package orabridge

import (
	"sync"

	"github.com/semihalev/go-orabridge/nca"
)

// HandleID names a native handle held in a HandleArena. The low 32 bits are
// the slot index, the high 32 bits its generation.
type HandleID uint64

func makeHandleID(index, gen uint32) HandleID {
	return HandleID(uint64(gen)<<32 | uint64(index))
}

func (id HandleID) index() uint32 { return uint32(id) }
func (id HandleID) gen() uint32   { return uint32(id >> 32) }

// releaseFunc frees a native handle once its last reference is dropped.
type releaseFunc func(ec nca.ErrorContext, h nca.Handle) error

type handleSlot struct {
	gen     uint32
	refs    int32
	handle  nca.Handle
	release releaseFunc
}

// HandleArena owns native handles shared between Go wrappers. Every
// transfer of a handle across an ownership boundary takes a reference with
// AddRef; the native release runs exactly once, when the last reference
// is released. IDs of released slots go stale and fail lookups.
type HandleArena struct {
	mu    sync.Mutex
	slots []handleSlot
	free  []uint32
	live  int
}

// NewHandleArena returns an empty arena.
func NewHandleArena() *HandleArena {
	// Slot 0 is never handed out so the zero HandleID is always invalid.
	return &HandleArena{slots: make([]handleSlot, 1, 64)}
}

// Add stores h with one reference.
func (a *HandleArena) Add(h nca.Handle, release releaseFunc) HandleID {
	a.mu.Lock()
	defer a.mu.Unlock()

	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, handleSlot{gen: 1})
		idx = uint32(len(a.slots) - 1)
	}
	s := &a.slots[idx]
	s.refs = 1
	s.handle = h
	s.release = release
	a.live++
	return makeHandleID(idx, s.gen)
}

func (a *HandleArena) slot(id HandleID) (*handleSlot, error) {
	idx := id.index()
	if idx == 0 || int(idx) >= len(a.slots) {
		return nil, ErrInvalidHandle
	}
	s := &a.slots[idx]
	if s.gen != id.gen() || s.refs == 0 {
		return nil, ErrInvalidHandle
	}
	return s, nil
}

// Get returns the native handle for id.
func (a *HandleArena) Get(id HandleID) (nca.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.slot(id)
	if err != nil {
		return 0, err
	}
	return s.handle, nil
}

// AddRef takes another reference to id.
func (a *HandleArena) AddRef(id HandleID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.slot(id)
	if err != nil {
		return err
	}
	s.refs++
	return nil
}

// Release drops one reference; the last one frees the native handle using ec.
func (a *HandleArena) Release(ec nca.ErrorContext, id HandleID) error {
	a.mu.Lock()
	s, err := a.slot(id)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	s.refs--
	if s.refs > 0 {
		a.mu.Unlock()
		return nil
	}
	h, release := s.handle, s.release
	s.handle = 0
	s.release = nil
	s.gen++
	a.free = append(a.free, id.index())
	a.live--
	a.mu.Unlock()

	if release == nil {
		return nil
	}
	return release(ec, h)
}

// Live returns the number of handles still held.
func (a *HandleArena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

package supervisor

import (
	"sync"
	"sync/atomic"
)

// wake is a coalescing many-writer, single-reader signal. Pending
// notifications collapse into the single slot of c.
type wake struct {
	c        chan struct{}
	detached atomic.Bool
}

func newWake() *wake {
	return &wake{c: make(chan struct{}, 1)}
}

// notify never blocks. It returns false once the wake was detached from
// its registry.
func (w *wake) notify() bool {
	if w.detached.Load() {
		return false
	}
	select {
	case w.c <- struct{}{}:
	default:
	}
	return true
}

func (w *wake) detach() {
	w.detached.Store(true)
}

// shutdownSignal is a one-writer, many-reader persistent broadcast.
type shutdownSignal struct {
	once sync.Once
	c    chan struct{}
}

func newShutdownSignal() *shutdownSignal {
	return &shutdownSignal{c: make(chan struct{})}
}

// broadcast reports whether this call was the one which fired the signal.
func (s *shutdownSignal) broadcast() bool {
	fired := false
	s.once.Do(func() {
		close(s.c)
		fired = true
	})
	return fired
}

func (s *shutdownSignal) done() <-chan struct{} {
	return s.c
}

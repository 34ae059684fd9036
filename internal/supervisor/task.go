package supervisor

// Task is a reference to a goroutine started by Spawn or Go which the
// registry can join during Shutdown.
type Task struct {
	done chan struct{}
	err  error
}

// Spawn runs fn on a new goroutine. A panic escaping fn is recovered and
// kept as a *PanicError returned by Wait.
func Spawn(fn func()) *Task {
	t := &Task{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer func() {
			if r := recover(); r != nil {
				t.err = newPanicError(r)
			}
		}()
		fn()
	}()
	return t
}

// Go runs fn as the body of the service owning h. If fn returns without a
// terminal call, h reports Success; if it panics without one, h reports Panic
// and the panic is absorbed. A panic after a terminal call stays on the Task.
func Go(h *Handle, fn func(h *Handle)) *Task {
	return Spawn(func() {
		defer func() {
			if r := recover(); r != nil {
				if !h.rep.send(Outcome{Status: StatusPanic, Err: newPanicError(r)}) {
					panic(r)
				}
				return
			}
			h.rep.send(Outcome{Status: StatusSuccess})
		}()
		fn(h)
	})
}

// Done is closed once the goroutine has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the goroutine returns and yields its recovered panic, if any.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

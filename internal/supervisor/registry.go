package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"weak"

	"golang.org/x/sync/errgroup"
)

type slotState int

const (
	slotPending slotState = iota
	slotResolved
	slotAbandoned
)

type entry struct {
	state slotState
	task  *Task
	rep   *reporter
	// report which arrived before the guard was resolved
	held *Report
}

// Registry supervises the services of one epoch. Create it with New, consume
// its events with NextEvent and end it with Shutdown.
type Registry struct {
	mx       sync.Mutex
	active   map[string]*entry
	box      *mailbox
	wake     *wake
	shutdown *shutdownSignal
	closed   bool
}

func New() *Registry {
	return &Registry{
		active:   make(map[string]*entry),
		box:      newMailbox(),
		wake:     newWake(),
		shutdown: newShutdownSignal(),
	}
}

// Register reserves name and returns the service Handle and the Guard which
// must be resolved with the service Task. It panics with ErrDuplicateService
// when name is active.
func (r *Registry) Register(name string) (*Handle, *Guard) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.closed {
		panic(ErrRegistryClosed)
	}
	if _, ok := r.active[name]; ok {
		panic(fmt.Errorf("%w: %q", ErrDuplicateService, name))
	}

	rep := &reporter{name: name, box: r.box}
	e := &entry{state: slotPending, rep: rep}
	r.active[name] = e

	h := &Handle{
		name:     name,
		wake:     weak.Make(r.wake),
		rep:      rep,
		shutdown: r.shutdown.done(),
	}
	g := &Guard{
		reg:   r,
		entry: e,
		rep:   rep,
	}
	return h, g
}

// Go registers name and runs fn as its service.
func (r *Registry) Go(name string, fn func(h *Handle)) {
	h, g := r.Register(name)
	defer g.Close()
	g.Resolve(Go(h, fn))
}

// Active returns the sorted names of services without a consumed Report.
func (r *Registry) Active() []string {
	r.mx.Lock()
	defer r.mx.Unlock()
	names := make([]string, 0, len(r.active))
	for name := range r.active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextEvent waits for either a wake request or a service Report, whichever
// comes first. It must be called from a single goroutine. The error is
// non-nil only when ctx is done.
//
// NextEvent panics with *ProtocolViolationError when a Report belongs to a
// slot whose Guard was closed unresolved or to an unknown service, and with
// *ShutdownJoinError when a task returned without its service reporting.
func (r *Registry) NextEvent(ctx context.Context) (Event, error) {
	r.mx.Lock()
	closed := r.closed
	r.mx.Unlock()
	if closed {
		panic(ErrRegistryClosed)
	}

	for {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-r.wake.c:
			return Event{Kind: EventWake}, nil
		case <-r.box.ready:
			report, ok := r.box.pop()
			if !ok {
				continue
			}
			if r.settle(report) {
				slog.DebugContext(ctx, "service terminated", "service", report.Name, "status", report.Outcome.Status.String())
				return Event{Kind: EventTerminated, Report: report}, nil
			}
		}
	}
}

// settle removes the entry of report and tells whether it can be emitted.
func (r *Registry) settle(report Report) bool {
	r.mx.Lock()
	defer r.mx.Unlock()

	e, ok := r.active[report.Name]
	if !ok {
		panic(&ProtocolViolationError{Name: report.Name, Reason: "report for a service which is not registered"})
	}
	switch e.state {
	case slotPending:
		e.held = &report
		return false
	case slotAbandoned:
		delete(r.active, report.Name)
		panic(&ProtocolViolationError{Name: report.Name, Reason: "registration guard closed without a task"})
	}
	delete(r.active, report.Name)
	if e.rep.state.Load() == reportOrphaned {
		panic(&ShutdownJoinError{Failures: map[string]error{report.Name: ErrNoReport}})
	}
	return true
}

func (r *Registry) resolve(g *Guard, t *Task) {
	r.mx.Lock()
	defer r.mx.Unlock()
	e := g.entry
	if e.state != slotPending {
		panic(&ProtocolViolationError{Name: g.rep.name, Reason: "guard resolved twice or after close"})
	}
	e.state = slotResolved
	e.task = t
	if e.held != nil {
		r.box.enqueue(*e.held)
		e.held = nil
	}
	go e.rep.watch(t)
}

func (r *Registry) closeSlot(g *Guard) {
	r.mx.Lock()
	defer r.mx.Unlock()
	e := g.entry
	if e.state != slotPending {
		return
	}
	e.state = slotAbandoned
	if e.held != nil {
		r.box.enqueue(*e.held)
		e.held = nil
		return
	}
	g.rep.send(Outcome{Status: StatusSuccess})
}

// Abandon broadcasts shutdown and disconnects the handles without joining
// the services. It is meant for an epoch unwinding by panic and is a no-op
// after Shutdown.
func (r *Registry) Abandon() {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.shutdown.broadcast()
	r.wake.detach()
}

// Shutdown broadcasts the shutdown signal once and waits for every service
// which is still active. ctx only carries logging attributes: the join is
// never interrupted, so a service ignoring the signal stalls Shutdown.
//
// Shutdown panics with *ShutdownJoinError when a service task ended in a
// panic not accounted for by its Report or ended without any Report, and
// with *ProtocolViolationError
// when a slot was never resolved.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mx.Lock()
	if r.closed {
		r.mx.Unlock()
		panic(ErrRegistryClosed)
	}
	r.closed = true
	r.shutdown.broadcast()
	r.wake.detach()

	tasks := make(map[string]*entry, len(r.active))
	var unresolved []string
	for name, e := range r.active {
		if e.state == slotResolved {
			tasks[name] = e
			continue
		}
		unresolved = append(unresolved, name)
	}
	r.mx.Unlock()

	slog.DebugContext(ctx, "shutting down services", "count", len(tasks))

	var g errgroup.Group
	var mx sync.Mutex
	failures := make(map[string]error)
	for name, e := range tasks {
		g.Go(func() error {
			err := e.task.Wait()
			if err == nil && e.rep.silent() {
				err = ErrNoReport
			}
			if err != nil {
				mx.Lock()
				failures[name] = err
				mx.Unlock()
			}
			return err
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		panic(&ShutdownJoinError{Failures: failures})
	}
	if len(unresolved) > 0 {
		sort.Strings(unresolved)
		panic(&ProtocolViolationError{Name: strings.Join(unresolved, ","), Reason: "registration guard never resolved"})
	}
	slog.DebugContext(ctx, "all services stopped")
}

package supervisor

import (
	"sync"
	"sync/atomic"
)

// mailbox is an unbounded queue of reports. Producers never block; the
// single consumer waits on ready and then pops.
type mailbox struct {
	mx    sync.Mutex
	queue []Report
	ready chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		queue: make([]Report, 0, 8),
		ready: make(chan struct{}, 1),
	}
}

func (m *mailbox) enqueue(r Report) {
	m.mx.Lock()
	m.queue = append(m.queue, r)
	m.mx.Unlock()
	m.signal()
}

func (m *mailbox) pop() (Report, bool) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if len(m.queue) == 0 {
		return Report{}, false
	}
	head := m.queue[0]
	m.queue[0] = Report{}
	m.queue = m.queue[1:]
	if len(m.queue) > 0 {
		m.signal()
	}
	return head, true
}

func (m *mailbox) signal() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

const (
	reportNone int32 = iota
	reportSent
	// synthesized for a task which returned without its service reporting
	reportOrphaned
)

// reporter is shared by a Handle and its Guard and lets exactly one Report
// through for its registration.
type reporter struct {
	name  string
	box   *mailbox
	state atomic.Int32
}

func (r *reporter) send(o Outcome) bool {
	if !r.state.CompareAndSwap(reportNone, reportSent) {
		return false
	}
	r.box.enqueue(Report{Name: r.name, Outcome: o})
	return true
}

func (r *reporter) sent() bool {
	return r.state.Load() != reportNone
}

// watch waits for t and, when the service has not reported by then, claims
// the report on its behalf so NextEvent can raise the failure.
func (r *reporter) watch(t *Task) {
	<-t.Done()
	if !r.state.CompareAndSwap(reportNone, reportOrphaned) {
		return
	}
	r.box.enqueue(Report{Name: r.name, Outcome: Outcome{Status: StatusError, Err: ErrNoReport}})
}

// silent tells whether a finished task ended without its service reporting.
func (r *reporter) silent() bool {
	return r.state.Load() != reportSent
}

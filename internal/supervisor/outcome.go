package supervisor

import "fmt"

// Status classifies how a service stopped.
type Status int

const (
	StatusSuccess Status = iota
	StatusPanic
	StatusError
	StatusExit
	StatusRestart
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPanic:
		return "panic"
	case StatusError:
		return "error"
	case StatusExit:
		return "exit"
	case StatusRestart:
		return "restart"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the terminal classification carried by a Report.
// Err is set for StatusError and StatusPanic, Code only for StatusExit.
type Outcome struct {
	Status Status
	Err    error
	Code   uint8
}

func (o Outcome) String() string {
	switch o.Status {
	case StatusSuccess:
		return "successfully exited"
	case StatusPanic:
		if o.Err != nil {
			return "died unexpectedly: " + o.Err.Error()
		}
		return "died unexpectedly"
	case StatusError:
		return fmt.Sprintf("exited with the error: %v", o.Err)
	case StatusRestart:
		return "triggered a restart"
	case StatusExit:
		return fmt.Sprintf("triggered an exit with code: %d", o.Code)
	default:
		return o.Status.String()
	}
}

// Report is the single completion report of a registered service.
type Report struct {
	Name    string
	Outcome Outcome
}

func (r Report) String() string {
	return fmt.Sprintf("service <%s> %s", r.Name, r.Outcome)
}

type EventKind int

const (
	// EventWake means at least one service asked for an immediate update.
	EventWake EventKind = iota + 1
	// EventTerminated carries the Report of a service which has stopped.
	EventTerminated
)

func (k EventKind) String() string {
	switch k {
	case EventWake:
		return "wake"
	case EventTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is returned by Registry.NextEvent. Report is only set for EventTerminated.
type Event struct {
	Kind   EventKind
	Report Report
}

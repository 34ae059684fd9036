package supervisor

import (
	"context"
	"weak"
)

// Handle is the capability a service uses to talk to its supervisor. It is
// owned by a single service; the Report* methods are terminal and only the
// first of them has any effect.
type Handle struct {
	name     string
	wake     weak.Pointer[wake]
	rep      *reporter
	shutdown <-chan struct{}
}

func (h *Handle) Name() string {
	return h.name
}

// RequestUpdate asks the driving loop to run the update now. It does not
// block and returns ErrDisconnected when the registry is gone.
func (h *Handle) RequestUpdate() error {
	w := h.wake.Value()
	if w == nil || !w.notify() {
		return ErrDisconnected
	}
	return nil
}

// ShutdownC is closed once the registry broadcasts shutdown.
func (h *Handle) ShutdownC() <-chan struct{} {
	return h.shutdown
}

// WaitForShutdown blocks until shutdown was broadcast, returning nil, or
// until ctx is done, returning its error.
func (h *Handle) WaitForShutdown(ctx context.Context) error {
	select {
	case <-h.shutdown:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReportSuccess, like the other Report methods, returns false when the
// handle has already reported.
func (h *Handle) ReportSuccess() bool {
	return h.rep.send(Outcome{Status: StatusSuccess})
}

// ReportError reports err, or success if err is nil.
func (h *Handle) ReportError(err error) bool {
	if err == nil {
		return h.ReportSuccess()
	}
	return h.rep.send(Outcome{Status: StatusError, Err: err})
}

func (h *Handle) ReportRestart() bool {
	return h.rep.send(Outcome{Status: StatusRestart})
}

func (h *Handle) ReportExit(code uint8) bool {
	return h.rep.send(Outcome{Status: StatusExit, Code: code})
}

// Reported tells whether a Report was already produced for this handle.
func (h *Handle) Reported() bool {
	return h.rep.sent()
}

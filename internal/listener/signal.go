package listener

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/CZERTAINLY/ddns/internal/supervisor"
)

const SignalsName = "signal-listener"

type signalAction int

const (
	signalIgnore signalAction = iota
	signalExit
	signalRestart
	signalUpdate
)

// SignalSource delivers the process signals to the signal listener of the
// current epoch. Signals received between two epochs stay queued for the
// next one.
type SignalSource struct {
	ch <-chan os.Signal
}

func NewSignalSource(ch <-chan os.Signal) *SignalSource {
	return &SignalSource{ch: ch}
}

var processSignals = sync.OnceValue(func() *SignalSource {
	ch := make(chan os.Signal, 8)
	signal.Notify(ch, handledSignals...)
	return NewSignalSource(ch)
})

// ProcessSignals returns the process wide SignalSource. The handled signals
// are caught from the first call until the process exits.
func ProcessSignals() *SignalSource {
	return processSignals()
}

// Pause waits d between two epochs and tells whether an exit signal was
// received meanwhile. Restart or update signals end the pause early, so
// the next epoch starts at once.
func (s *SignalSource) Pause(ctx context.Context, d time.Duration) (exit bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return false
		case sig := <-s.ch:
			slog.InfoContext(ctx, "signal received", "signal", sig.String())
			switch classify(sig) {
			case signalExit:
				return true
			case signalRestart, signalUpdate:
				return false
			}
		}
	}
}

// Signals returns a service translating process signals: interrupt and
// terminate exit the daemon with code 0. On unix SIGHUP restarts it and
// SIGUSR1 asks for an update.
func Signals(src *SignalSource) func(h *supervisor.Handle) {
	return func(h *supervisor.Handle) {
		for {
			select {
			case <-h.ShutdownC():
				return
			case sig := <-src.ch:
				slog.Info("signal received", "signal", sig.String())
				switch classify(sig) {
				case signalExit:
					h.ReportExit(0)
					return
				case signalRestart:
					h.ReportRestart()
					return
				case signalUpdate:
					if err := h.RequestUpdate(); err != nil {
						return
					}
				}
			}
		}
	}
}

package service

import (
	"context"
	"log/slog"

	"github.com/CZERTAINLY/ddns/internal/ddns"
	"github.com/CZERTAINLY/ddns/internal/supervisor"
)

// Updater is the domain action run on every tick.
type Updater interface {
	Update(ctx context.Context) (ddns.Result, error)
}

type Prober interface {
	Online(ctx context.Context) bool
}

type Notifier interface {
	Error(ctx context.Context, text string) error
}

// Loop is the driving loop of an epoch.
type Loop struct {
	Updater  Updater
	Probe    Prober // optional
	Notifier Notifier
	Schedule *Schedule
}

// Do runs until a service asks for a restart or an exit, or until ctx ends.
// In all three cases the registry is shut down before Do returns, the error
// is non-nil only for a canceled ctx.
func (l *Loop) Do(ctx context.Context, reg *supervisor.Registry) (Action, error) {
	slog.DebugContext(ctx, "starting the update loop", "services", reg.Active())
	for {
		tctx, cancel := context.WithDeadline(ctx, l.Schedule.Next())
		ev, err := reg.NextEvent(tctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				slog.DebugContext(ctx, "context canceled, shutting down")
				reg.Shutdown(ctx)
				return Action{}, ctx.Err()
			}
			l.tick(ctx)
			continue
		}

		switch ev.Kind {
		case supervisor.EventWake:
			slog.DebugContext(ctx, "update requested")
			l.Schedule.ResetNow()
		case supervisor.EventTerminated:
			if action, done := l.terminated(ctx, ev.Report); done {
				slog.InfoContext(ctx, "shutting down services", "action", action.String(), "by", ev.Report.Name)
				reg.Shutdown(ctx)
				return action, nil
			}
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	l.Schedule.Advance()
	if l.Probe != nil && !l.Probe.Online(ctx) {
		slog.DebugContext(ctx, "no internet available, skipping update")
		return
	}
	slog.DebugContext(ctx, "updating")
	res, err := l.Updater.Update(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "update failed", "error", err)
		_ = l.Notifier.Error(ctx, err.Error())
		return
	}
	slog.DebugContext(ctx, "successfully updated", "ip", res.IP.String(), "changed", res.Changed)
}

func (l *Loop) terminated(ctx context.Context, report supervisor.Report) (Action, bool) {
	slog.DebugContext(ctx, report.String())
	switch report.Outcome.Status {
	case supervisor.StatusPanic, supervisor.StatusError:
		_ = l.Notifier.Error(ctx, "service abruptly exited: "+report.String())
	case supervisor.StatusExit:
		return Exit(report.Outcome.Code), true
	case supervisor.StatusRestart:
		return Restart(), true
	}
	return Action{}, false
}

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/CZERTAINLY/ddns/internal/ddns"
	"github.com/CZERTAINLY/ddns/internal/listener"
	"github.com/CZERTAINLY/ddns/internal/log"
	"github.com/CZERTAINLY/ddns/internal/model"
	"github.com/CZERTAINLY/ddns/internal/notify"
	"github.com/CZERTAINLY/ddns/internal/supervisor"
	"github.com/google/uuid"
)

// Daemon builds the epochs of `ddns run`. The config file is loaded at the
// start of every epoch, so a restart picks up its changes.
type Daemon struct {
	ConfigPath string
	// Console is the input of the console listener, used when the config
	// enables it.
	Console *listener.Lines
	// Signals is the input of the signal listener, nil disables it.
	Signals *listener.SignalSource
	// Options are passed to the DNS clients.
	Options []ddns.Option
}

// Epoch runs a single epoch of the daemon.
func (d *Daemon) Epoch(ctx context.Context) (Action, error) {
	cfg, err := model.LoadConfigFile(d.ConfigPath)
	if err != nil {
		return Action{}, fmt.Errorf("loading config %s: %w", d.ConfigPath, err)
	}

	id := uuid.New()
	ctx = log.ContextAttrs(ctx, slog.Group("ddns", slog.String("epoch", id.String())))
	slog.InfoContext(ctx, "epoch started", "config", d.ConfigPath, "record", cfg.Record.Name, "interval", cfg.UpdateInterval().String())

	notifier, err := notify.FromConfig(cfg.Notify)
	if err != nil {
		return Action{}, err
	}
	defer notifier.Close()

	updater, err := ddns.NewUpdater(cfg, d.Options...)
	if err != nil {
		return Action{}, err
	}

	reg := supervisor.New()
	// no-op after Shutdown, releases the services of a panicking epoch
	defer reg.Abandon()

	if d.Signals != nil {
		reg.Go(listener.SignalsName, listener.Signals(d.Signals))
	}
	if model.Get(cfg.Console) && d.Console != nil {
		reg.Go(listener.ConsoleName, listener.Console(d.Console))
	}
	if model.Get(cfg.WatchConfig) {
		reg.Go(listener.ConfigName, listener.ConfigWatcher(ctx, d.ConfigPath, cfg, notifier))
	}

	loop := &Loop{
		Updater:  updater,
		Probe:    ddns.NewProbe(cfg.Connectivity),
		Notifier: notifier,
		Schedule: NewSchedule(cfg.UpdateInterval()),
	}
	return loop.Do(ctx, reg)
}

// Update runs a single update of the record described by cfg.
func Update(ctx context.Context, cfg *model.Config, opts ...ddns.Option) (ddns.Result, error) {
	updater, err := ddns.NewUpdater(cfg, opts...)
	if err != nil {
		return ddns.Result{}, err
	}
	return updater.Update(ctx)
}

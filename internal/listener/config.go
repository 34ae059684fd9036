package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"

	"github.com/CZERTAINLY/ddns/internal/model"
	"github.com/CZERTAINLY/ddns/internal/notify"
	"github.com/CZERTAINLY/ddns/internal/supervisor"
	"github.com/fsnotify/fsnotify"
)

const ConfigName = "config-listener"

// ConfigWatcher is a service watching the config file at path. A change
// which loads and validates, and differs from current, restarts the daemon
// so the next epoch runs with it. An invalid file is reported as a warning
// and the current config stays in use.
//
// The parent directory is watched, as editors replace files by rename.
func ConfigWatcher(ctx context.Context, path string, current *model.Config, n *notify.Notifier) func(h *supervisor.Handle) {
	return func(h *supervisor.Handle) {
		if err := watchConfig(ctx, h, path, current, n); err != nil {
			h.ReportError(err)
		}
	}
}

func watchConfig(ctx context.Context, h *supervisor.Handle, path string, current *model.Config, n *notify.Notifier) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	slog.DebugContext(ctx, "watching config", "path", abs)

	for {
		select {
		case <-h.ShutdownC():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				slog.WarnContext(ctx, "config watcher overflow", "error", err)
				continue
			}
			return fmt.Errorf("config watcher: %w", err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := model.LoadConfigFile(abs)
			if err != nil {
				slog.DebugContext(ctx, "config change not applied", "op", ev.Op.String(), "error", err)
				if n != nil {
					_ = n.Warning(ctx, fmt.Sprintf("config file %s is invalid, keeping the running config: %v", abs, err))
				}
				continue
			}
			if reflect.DeepEqual(cfg, current) {
				continue
			}
			slog.InfoContext(ctx, "config changed, restarting", "path", abs)
			h.ReportRestart()
			return nil
		}
	}
}

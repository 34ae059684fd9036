package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/CZERTAINLY/ddns/internal/model"
)

// CommandSink runs an external program, like notify-send, for every message.
// The placeholders {severity} and {message} in the arguments are replaced,
// the same values are exported as DDNS_SEVERITY and DDNS_MESSAGE.
type CommandSink struct {
	proto Command
}

func NewCommandSink(cfg *model.Command) (*CommandSink, error) {
	timeout, err := model.ParseISODuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("notify.command.timeout: %w", err)
	}
	return &CommandSink{
		proto: Command{
			Path:    cfg.Path,
			Args:    cfg.Args,
			Timeout: timeout,
		},
	}, nil
}

func (s *CommandSink) Deliver(ctx context.Context, msg Message) error {
	repl := strings.NewReplacer(
		"{severity}", msg.Severity.String(),
		"{message}", msg.Text,
	)
	cmd := s.proto
	cmd.Args = make([]string, len(s.proto.Args))
	for i, arg := range s.proto.Args {
		cmd.Args[i] = repl.Replace(arg)
	}
	cmd.Env = []string{
		"DDNS_SEVERITY=" + msg.Severity.String(),
		"DDNS_MESSAGE=" + msg.Text,
	}

	stderr := func(ctx context.Context, line string) {
		slog.WarnContext(ctx, "notification command stderr", "path", cmd.Path, "line", line)
	}

	runner := NewRunner()
	if err := runner.Start(ctx, cmd, stderr); err != nil {
		return fmt.Errorf("starting %s: %w", cmd.Path, err)
	}
	res := <-runner.ResultsChan()
	if errors.Is(res.Err, exec.ErrWaitDelay) && res.State != nil && res.State.Success() {
		slog.DebugContext(ctx, "notification command left its output open", "path", cmd.Path)
		res.Err = nil
	}
	if res.Err != nil {
		return fmt.Errorf("running %s: %w", cmd.Path, res.Err)
	}
	slog.DebugContext(ctx, "notification command finished", "path", cmd.Path, "took", res.Stopped.Sub(res.Started).Round(time.Millisecond))
	return nil
}

// FromConfig builds the Notifier described by cfg. The log sink is always
// present.
func FromConfig(cfg *model.Notify) (*Notifier, error) {
	sinks := []Sink{LogSink{}}
	maxPending := DefaultMaxPending
	if cfg != nil {
		if cfg.MaxPending > 0 {
			maxPending = cfg.MaxPending
		}
		if cfg.Command != nil {
			cs, err := NewCommandSink(cfg.Command)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, cs)
		}
	}
	return New(maxPending, sinks...), nil
}

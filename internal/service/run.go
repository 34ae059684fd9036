package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

const DefaultBackoff = 15 * time.Second

// Epoch is a single life of the daemon.
type Epoch func(ctx context.Context) (Action, error)

// Pause waits out the backoff d between two epochs. It returns true when
// the daemon was asked to exit meanwhile.
type Pause func(ctx context.Context, d time.Duration) (exit bool)

type RunOption func(*runOptions)

type runOptions struct {
	pause Pause
}

// WithPause replaces the plain timer Run waits on after a failed epoch.
func WithPause(p Pause) RunOption {
	return func(o *runOptions) {
		o.pause = p
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	return false
}

// Run runs epochs until one of them exits, and returns its code. A restart
// starts the next epoch immediately. An epoch which panicked or failed is
// retried after backoff, unless the pause between them asks to exit, which
// ends Run with code 0. Run returns an error only when ctx ends.
func Run(ctx context.Context, epoch Epoch, backoff time.Duration, opts ...RunOption) (uint8, error) {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	o := runOptions{pause: sleep}
	for _, opt := range opts {
		opt(&o)
	}
	for n := 1; ; n++ {
		action, err := runEpoch(ctx, epoch)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		if err == nil {
			switch action.Kind {
			case ActionExit:
				slog.InfoContext(ctx, "exiting", "code", action.Code, "epochs", n)
				return action.Code, nil
			case ActionRestart:
				slog.InfoContext(ctx, "restarting")
				continue
			default:
				err = fmt.Errorf("epoch returned an invalid action: %d", action.Kind)
			}
		}

		slog.ErrorContext(ctx, "epoch failed, restarting after backoff", "error", err, "backoff", backoff)
		exit := o.pause(ctx, backoff)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		if exit {
			slog.InfoContext(ctx, "exiting during backoff", "epochs", n)
			return 0, nil
		}
	}
}

// EpochPanicError is an epoch which ended by a panic.
type EpochPanicError struct {
	Value any
	Stack []byte
}

func (e *EpochPanicError) Error() string {
	return fmt.Sprintf("epoch panicked: %v", e.Value)
}

func (e *EpochPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func runEpoch(ctx context.Context, epoch Epoch) (action Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			pe := &EpochPanicError{Value: r, Stack: debug.Stack()}
			slog.ErrorContext(ctx, "epoch panicked", "panic", fmt.Sprint(r), "stack", string(pe.Stack))
			action, err = Action{}, pe
		}
	}()
	action, err = epoch(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		err = fmt.Errorf("epoch: %w", err)
	}
	return action, err
}

package service_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"testing/synctest"
	"time"

	"github.com/CZERTAINLY/ddns/internal/listener"
	"github.com/CZERTAINLY/ddns/internal/service"
	"github.com/stretchr/testify/require"
)

// epochs returns an Epoch playing steps in order.
func epochs(steps ...func() (service.Action, error)) (service.Epoch, *int) {
	var n int
	return func(context.Context) (service.Action, error) {
		step := steps[n]
		n++
		return step()
	}, &n
}

func TestRun(t *testing.T) {
	t.Parallel()

	exit := func(code uint8) func() (service.Action, error) {
		return func() (service.Action, error) { return service.Exit(code), nil }
	}
	restart := func() (service.Action, error) { return service.Restart(), nil }
	crash := func() (service.Action, error) { panic("shutdown join failed") }
	fail := func() (service.Action, error) { return service.Action{}, errors.New("loading config") }
	invalid := func() (service.Action, error) { return service.Action{}, nil }

	type then struct {
		code    uint8
		epochs  int
		elapsed time.Duration
	}
	var testCases = []struct {
		scenario string
		given    []func() (service.Action, error)
		then     then
	}{
		{"exit", []func() (service.Action, error){exit(0)}, then{0, 1, 0}},
		{"restart then exit", []func() (service.Action, error){restart, restart, exit(3)}, then{3, 3, 0}},
		{"panic backs off", []func() (service.Action, error){crash, exit(1)}, then{1, 2, 15 * time.Second}},
		{"error backs off", []func() (service.Action, error){fail, fail, exit(2)}, then{2, 3, 30 * time.Second}},
		{"invalid action backs off", []func() (service.Action, error){invalid, exit(0)}, then{0, 2, 15 * time.Second}},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			synctest.Test(t, func(t *testing.T) {
				epoch, n := epochs(tt.given...)
				start := time.Now()
				code, err := service.Run(t.Context(), epoch, 0)
				require.NoError(t, err)
				require.Equal(t, tt.then.code, code)
				require.Equal(t, tt.then.epochs, *n)
				require.Equal(t, tt.then.elapsed, time.Since(start))
			})
		})
	}
}

func TestRunCanceledDuringBackoff(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
		defer cancel()
		epoch, n := epochs(func() (service.Action, error) { panic("boom") })
		_, err := service.Run(ctx, epoch, time.Minute)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Equal(t, 1, *n)
	})
}

func TestRunExitDuringBackoff(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		ch := make(chan os.Signal, 1)
		signals := listener.NewSignalSource(ch)
		go func() {
			time.Sleep(3 * time.Second)
			ch <- os.Interrupt
		}()

		fail := func() (service.Action, error) { return service.Action{}, errors.New("loading config") }
		epoch, n := epochs(fail, fail)
		start := time.Now()
		code, err := service.Run(t.Context(), epoch, 0, service.WithPause(signals.Pause))
		require.NoError(t, err)
		require.Equal(t, uint8(0), code)
		require.Equal(t, 1, *n)
		require.Equal(t, 3*time.Second, time.Since(start))
	})
}

func TestRunCanceledEpoch(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(t.Context())
	epoch := func(ctx context.Context) (service.Action, error) {
		cancel()
		<-ctx.Done()
		return service.Action{}, ctx.Err()
	}
	_, err := service.Run(ctx, epoch, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}

func TestEpochPanicError(t *testing.T) {
	t.Parallel()
	cause := errors.New("cause")
	err := &service.EpochPanicError{Value: cause}
	require.ErrorIs(t, err, cause)
	require.EqualError(t, err, "epoch panicked: cause")
	require.NoError(t, (&service.EpochPanicError{Value: 42}).Unwrap())
}

package supervisor_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CZERTAINLY/ddns/internal/supervisor"

	"github.com/stretchr/testify/require"
)

func TestShutdownJoinsAllServices(t *testing.T) {
	t.Parallel()
	const n = 16
	reg := supervisor.New()

	var stopped atomic.Int32
	handles := make([]*supervisor.Handle, 0, n)
	for i := range n {
		h, g := reg.Register(fmt.Sprintf("svc-%02d", i))
		handles = append(handles, h)
		g.Resolve(supervisor.Go(h, func(h *supervisor.Handle) {
			_ = h.WaitForShutdown(context.Background())
			time.Sleep(time.Duration(i) * time.Millisecond)
			stopped.Add(1)
		}))
	}
	require.Len(t, reg.Active(), n)

	reg.Shutdown(t.Context())
	require.EqualValues(t, n, stopped.Load())
	for _, h := range handles {
		require.True(t, h.Reported(), h.Name())
	}
}

func TestRegisterDuplicate(t *testing.T) {
	t.Parallel()
	reg := supervisor.New()
	h, g := reg.Register("console")
	g.Resolve(supervisor.Go(h, func(h *supervisor.Handle) {
		_ = h.WaitForShutdown(context.Background())
	}))

	v := panicValue(func() { reg.Register("console") })
	err, ok := v.(error)
	require.True(t, ok, "panic value %v", v)
	require.ErrorIs(t, err, supervisor.ErrDuplicateService)
	require.Equal(t, []string{"console"}, reg.Active())

	reg.Shutdown(t.Context())
}

func TestRegisterAfterReportConsumed(t *testing.T) {
	t.Parallel()
	reg := supervisor.New()
	reg.Go("oneshot", func(h *supervisor.Handle) {})

	ev, err := reg.NextEvent(t.Context())
	require.NoError(t, err)
	require.Equal(t, supervisor.EventTerminated, ev.Kind)
	require.Equal(t, "oneshot", ev.Report.Name)

	// name is free again
	reg.Go("oneshot", func(h *supervisor.Handle) { h.ReportExit(3) })
	ev, err = reg.NextEvent(t.Context())
	require.NoError(t, err)
	require.Equal(t, supervisor.Outcome{Status: supervisor.StatusExit, Code: 3}, ev.Report.Outcome)
	reg.Shutdown(t.Context())
}

func TestGuardClosedUnresolved(t *testing.T) {
	t.Parallel()
	reg := supervisor.New()
	h, g := reg.Register("forgotten")
	g.Close()
	g.Close()
	require.True(t, h.Reported())
	require.False(t, h.ReportError(errors.New("late")))

	v := panicValue(func() { _, _ = reg.NextEvent(t.Context()) })
	var violation *supervisor.ProtocolViolationError
	err, ok := v.(error)
	require.True(t, ok, "panic value %v", v)
	require.ErrorAs(t, err, &violation)
	require.Equal(t, "forgotten", violation.Name)
	require.Empty(t, reg.Active())

	// exactly one report was produced
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = reg.NextEvent(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	reg.Shutdown(t.Context())
}

func TestGuardResolveTwice(t *testing.T) {
	t.Parallel()
	reg := supervisor.New()
	h, g := reg.Register("twice")
	task := supervisor.Go(h, func(h *supervisor.Handle) {})
	g.Resolve(task)

	v := panicValue(func() { g.Resolve(task) })
	require.IsType(t, &supervisor.ProtocolViolationError{}, v)
	reg.Shutdown(t.Context())
}

func TestReportHeldUntilResolved(t *testing.T) {
	t.Parallel()
	reg := supervisor.New()
	h, g := reg.Register("early")
	task := supervisor.Go(h, func(h *supervisor.Handle) { h.ReportRestart() })
	<-task.Done()

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err := reg.NextEvent(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, []string{"early"}, reg.Active())

	g.Resolve(task)
	ev, err := reg.NextEvent(t.Context())
	require.NoError(t, err)
	require.Equal(t, supervisor.Report{Name: "early", Outcome: supervisor.Outcome{Status: supervisor.StatusRestart}}, ev.Report)
	reg.Shutdown(t.Context())
}

func TestWakeCoalesces(t *testing.T) {
	t.Parallel()
	reg := supervisor.New()
	h, g := reg.Register("waker")
	requested := make(chan error, 5)
	g.Resolve(supervisor.Go(h, func(h *supervisor.Handle) {
		for range 5 {
			requested <- h.RequestUpdate()
		}
		_ = h.WaitForShutdown(context.Background())
	}))
	for range 5 {
		require.NoError(t, <-requested)
	}

	ev, err := reg.NextEvent(t.Context())
	require.NoError(t, err)
	require.Equal(t, supervisor.EventWake, ev.Kind)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = reg.NextEvent(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	reg.Shutdown(t.Context())
	require.ErrorIs(t, h.RequestUpdate(), supervisor.ErrDisconnected)
}

func TestWakeTwiceWithinWindow(t *testing.T) {
	t.Parallel()
	reg := supervisor.New()
	h, g := reg.Register("a")
	g.Resolve(supervisor.Go(h, func(h *supervisor.Handle) {
		_ = h.WaitForShutdown(context.Background())
	}))

	require.NoError(t, h.RequestUpdate())
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, h.RequestUpdate())

	ev, err := reg.NextEvent(t.Context())
	require.NoError(t, err)
	require.Equal(t, supervisor.EventWake, ev.Kind)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = reg.NextEvent(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, h.RequestUpdate())
	ev, err = reg.NextEvent(t.Context())
	require.NoError(t, err)
	require.Equal(t, supervisor.EventWake, ev.Kind)
	reg.Shutdown(t.Context())
}

func TestPanicReported(t *testing.T) {
	t.Parallel()
	reg := supervisor.New()
	reg.Go("crasher", func(h *supervisor.Handle) {
		panic("boom")
	})

	ev, err := reg.NextEvent(t.Context())
	require.NoError(t, err)
	require.Equal(t, supervisor.EventTerminated, ev.Kind)
	require.Equal(t, "crasher", ev.Report.Name)
	require.Equal(t, supervisor.StatusPanic, ev.Report.Outcome.Status)
	var perr *supervisor.PanicError
	require.ErrorAs(t, ev.Report.Outcome.Err, &perr)
	require.Equal(t, "boom", perr.Value)

	// registry keeps working after a service died
	reg.Go("next", func(h *supervisor.Handle) { h.ReportError(errors.New("nope")) })
	ev, err = reg.NextEvent(t.Context())
	require.NoError(t, err)
	require.Equal(t, supervisor.StatusError, ev.Report.Outcome.Status)
	require.EqualError(t, ev.Report.Outcome.Err, "nope")

	// the absorbed panic is not raised again by Shutdown
	reg.Shutdown(t.Context())
}

func TestExitScenario(t *testing.T) {
	t.Parallel()
	reg := supervisor.New()

	var bStopped atomic.Bool
	reg.Go("a", func(h *supervisor.Handle) { h.ReportExit(7) })
	reg.Go("b", func(h *supervisor.Handle) {
		_ = h.WaitForShutdown(context.Background())
		time.Sleep(10 * time.Millisecond)
		bStopped.Store(true)
	})

	ev, err := reg.NextEvent(t.Context())
	require.NoError(t, err)
	require.Equal(t, supervisor.Event{
		Kind:   supervisor.EventTerminated,
		Report: supervisor.Report{Name: "a", Outcome: supervisor.Outcome{Status: supervisor.StatusExit, Code: 7}},
	}, ev)

	reg.Shutdown(t.Context())
	require.True(t, bStopped.Load())
}

func TestShutdownJoinFailure(t *testing.T) {
	t.Parallel()

	t.Run("panic after report", func(t *testing.T) {
		t.Parallel()
		reg := supervisor.New()
		reg.Go("liar", func(h *supervisor.Handle) {
			h.ReportSuccess()
			panic("after the fact")
		})
		reg.Go("good", func(h *supervisor.Handle) {
			_ = h.WaitForShutdown(context.Background())
		})

		v := panicValue(func() { reg.Shutdown(t.Context()) })
		var joinErr *supervisor.ShutdownJoinError
		err, ok := v.(error)
		require.True(t, ok, "panic value %v", v)
		require.ErrorAs(t, err, &joinErr)
		require.Len(t, joinErr.Failures, 1)
		require.Contains(t, joinErr.Failures, "liar")
	})

	t.Run("task bypassing the handle", func(t *testing.T) {
		t.Parallel()
		reg := supervisor.New()
		_, g := reg.Register("rogue")
		g.Resolve(supervisor.Spawn(func() { panic(errors.New("rogue")) }))

		v := panicValue(func() { reg.Shutdown(t.Context()) })
		require.IsType(t, &supervisor.ShutdownJoinError{}, v)
		require.ErrorContains(t, v.(error), "rogue")
	})

	t.Run("task returning without a report", func(t *testing.T) {
		t.Parallel()
		reg := supervisor.New()
		h, g := reg.Register("silent")
		g.Resolve(supervisor.Spawn(func() { <-h.ShutdownC() }))

		v := panicValue(func() { reg.Shutdown(t.Context()) })
		var joinErr *supervisor.ShutdownJoinError
		err, ok := v.(error)
		require.True(t, ok, "panic value %v", v)
		require.ErrorAs(t, err, &joinErr)
		require.ErrorIs(t, joinErr.Failures["silent"], supervisor.ErrNoReport)
	})
}

func TestTaskWithoutReport(t *testing.T) {
	t.Parallel()
	reg := supervisor.New()
	h, g := reg.Register("silent")
	task := supervisor.Spawn(func() {})
	g.Resolve(task)
	<-task.Done()

	v := panicValue(func() { _, _ = reg.NextEvent(t.Context()) })
	var joinErr *supervisor.ShutdownJoinError
	err, ok := v.(error)
	require.True(t, ok, "panic value %v", v)
	require.ErrorAs(t, err, &joinErr)
	require.ErrorIs(t, joinErr.Failures["silent"], supervisor.ErrNoReport)
	require.Empty(t, reg.Active())
	require.True(t, h.Reported())
	require.False(t, h.ReportSuccess())

	reg.Shutdown(t.Context())
}

func TestShutdownUnresolved(t *testing.T) {
	t.Parallel()
	reg := supervisor.New()
	_, _ = reg.Register("pending")
	v := panicValue(func() { reg.Shutdown(t.Context()) })
	require.IsType(t, &supervisor.ProtocolViolationError{}, v)
}

func TestRegistryClosed(t *testing.T) {
	t.Parallel()
	reg := supervisor.New()
	reg.Shutdown(t.Context())
	require.Equal(t, supervisor.ErrRegistryClosed, panicValue(func() { reg.Register("late") }))
	require.Equal(t, supervisor.ErrRegistryClosed, panicValue(func() { _, _ = reg.NextEvent(t.Context()) }))
	require.Equal(t, supervisor.ErrRegistryClosed, panicValue(func() { reg.Shutdown(t.Context()) }))
	reg.Abandon()
}

func TestAbandon(t *testing.T) {
	t.Parallel()
	reg := supervisor.New()
	h, g := reg.Register("orphan")
	task := supervisor.Go(h, func(h *supervisor.Handle) {
		_ = h.WaitForShutdown(context.Background())
	})
	g.Resolve(task)

	reg.Abandon()
	<-task.Done()
	require.True(t, h.Reported())
	require.ErrorIs(t, h.RequestUpdate(), supervisor.ErrDisconnected)
}

func panicValue(fn func()) (v any) {
	defer func() {
		v = recover()
	}()
	fn()
	return nil
}

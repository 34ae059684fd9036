package listener_test

import (
	"context"
	"testing"
	"time"

	"github.com/CZERTAINLY/ddns/internal/supervisor"
	"github.com/stretchr/testify/require"
)

func nextEvent(t *testing.T, reg *supervisor.Registry) supervisor.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	ev, err := reg.NextEvent(ctx)
	require.NoError(t, err)
	return ev
}

func requireTerminated(t *testing.T, ev supervisor.Event, name string, want supervisor.Outcome) {
	t.Helper()
	require.Equal(t, supervisor.EventTerminated, ev.Kind)
	require.Equal(t, name, ev.Report.Name)
	require.Equal(t, want.Status, ev.Report.Outcome.Status, ev.Report.String())
	require.Equal(t, want.Code, ev.Report.Outcome.Code)
}

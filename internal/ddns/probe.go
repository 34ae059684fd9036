package ddns

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/CZERTAINLY/ddns/internal/model"
)

// Probe checks internet connectivity by opening a TCP connection. A nil
// Probe always reports online.
type Probe struct {
	addr    string
	timeout time.Duration
}

// NewProbe returns nil when the check is not configured or disabled.
func NewProbe(c *model.Connectivity) *Probe {
	if c == nil || !c.Enabled {
		return nil
	}
	timeout, err := model.ParseISODuration(c.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Probe{addr: c.Addr, timeout: timeout}
}

func (p *Probe) Online(ctx context.Context) bool {
	if p == nil {
		return true
	}
	d := net.Dialer{Timeout: p.timeout}
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		slog.DebugContext(ctx, "connectivity probe failed", "addr", p.addr, "error", err)
		return false
	}
	_ = conn.Close()
	return true
}

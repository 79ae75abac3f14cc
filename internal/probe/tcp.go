package probe

import (
	"context"
	"net"
	"time"

	"github.com/connwatch/connwatch/internal/domain"
)

// TCPProber attempts a raw connect and closes immediately. One shot per
// interval, unlike the WebSocket executor.
type TCPProber struct {
	Dialer *net.Dialer
}

func NewTCPProber() *TCPProber {
	return &TCPProber{Dialer: &net.Dialer{KeepAlive: 30 * time.Second}}
}

func (p *TCPProber) Probe(ctx context.Context, t domain.Target) Result {
	ctx, cancel := context.WithTimeout(ctx, t.ProbeTimeout)
	defer cancel()

	start := time.Now()
	conn, err := p.Dialer.DialContext(ctx, "tcp", t.Endpoint)
	latency := time.Since(start).Seconds() * 1000
	if err != nil {
		return failure(err, latency)
	}
	_ = conn.Close()
	return Result{Success: true, LatencyMS: latency, Reason: ReasonOK}
}

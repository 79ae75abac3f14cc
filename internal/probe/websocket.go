package probe

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/connwatch/connwatch/internal/domain"
)

// wsPongGrace is the slack added on top of the ping interval before a
// missed pong counts as a drop.
const wsPongGrace = 300 * time.Millisecond

// WSProber opens WebSocket connections. Unlike the one-shot probers it
// hands back a live connection: the scheduler holds it via WSConn.Hold
// until it drops, then redials after the target's reconnect delay.
type WSProber struct {
	Dialer *websocket.Dialer
}

func NewWSProber() *WSProber {
	return &WSProber{Dialer: &websocket.Dialer{}}
}

// Dial attempts to open a connection within the target's probe timeout.
// On success the returned WSConn must be closed by the caller.
func (p *WSProber) Dial(ctx context.Context, t domain.Target) (*WSConn, Result) {
	ctx, cancel := context.WithTimeout(ctx, t.ProbeTimeout)
	defer cancel()

	start := time.Now()
	conn, resp, err := p.Dialer.DialContext(ctx, t.Endpoint, nil)
	latency := time.Since(start).Seconds() * 1000
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, failure(err, latency)
	}
	return &WSConn{conn: conn}, Result{Success: true, LatencyMS: latency, Reason: ReasonOK}
}

// WSConn wraps an open probe connection.
type WSConn struct {
	conn *websocket.Conn
}

// Hold keeps the connection alive with periodic pings and blocks until
// the connection drops, a pong deadline is missed, or ctx is cancelled.
// The returned error describes the drop; ctx.Err() on cancellation.
func (c *WSConn) Hold(ctx context.Context, interval time.Duration) error {
	grace := interval + wsPongGrace

	_ = c.conn.SetReadDeadline(time.Now().Add(grace))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(grace))
	})

	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := c.conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case <-ticker.C:
			deadline := time.Now().Add(grace)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return err
			}
		}
	}
}

// Close tears the connection down, unblocking any Hold in flight.
func (c *WSConn) Close() {
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	_ = c.conn.Close()
}

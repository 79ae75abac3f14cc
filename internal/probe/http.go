package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/connwatch/connwatch/internal/domain"
)

// HTTPProber issues a GET against the target's health endpoint. Success
// is a 2xx response within the target's probe timeout.
type HTTPProber struct {
	Client *http.Client
}

func NewHTTPProber() *HTTPProber {
	// Per-probe deadlines come from the target, not the client.
	return &HTTPProber{Client: &http.Client{}}
}

func (p *HTTPProber) Probe(ctx context.Context, t domain.Target) Result {
	ctx, cancel := context.WithTimeout(ctx, t.ProbeTimeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.Endpoint, nil)
	if err != nil {
		return Result{Reason: ReasonError, Detail: err.Error()}
	}

	resp, err := p.Client.Do(req)
	latency := time.Since(start).Seconds() * 1000
	if err != nil {
		return failure(err, latency)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{
			Success:   false,
			LatencyMS: latency,
			Reason:    ReasonBadStatus,
			Detail:    fmt.Sprintf("status %d", resp.StatusCode),
		}
	}
	return Result{Success: true, LatencyMS: latency, Reason: ReasonOK}
}

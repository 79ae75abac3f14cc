package probe

import (
	"context"
	"errors"
	"net"
	"syscall"

	"github.com/connwatch/connwatch/internal/domain"
)

// Result is the unified outcome of a single probe. Expected network
// failures are encoded here, never returned as errors.
type Result struct {
	Success   bool
	LatencyMS float64
	Reason    string // ok | timeout | refused | bad_status | dns | error
	Detail    string // underlying error text, empty on success
}

// Failure classification reasons.
const (
	ReasonOK        = "ok"
	ReasonTimeout   = "timeout"
	ReasonRefused   = "refused"
	ReasonBadStatus = "bad_status"
	ReasonDNS       = "dns"
	ReasonError     = "error"
)

// Prober performs one connectivity check against a target. One-shot for
// HTTP and TCP; the WebSocket executor is long-lived and exposed
// separately (see WSProber).
type Prober interface {
	Probe(ctx context.Context, target domain.Target) Result
}

// classify maps a transport error onto a probe failure reason.
func classify(err error) string {
	if err == nil {
		return ReasonOK
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ReasonDNS
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ReasonRefused
	}
	return ReasonError
}

// DropResult classifies a held-connection drop into a failed Result.
func DropResult(err error) Result {
	return failure(err, 0)
}

func failure(err error, latencyMS float64) Result {
	return Result{
		Success:   false,
		LatencyMS: latencyMS,
		Reason:    classify(err),
		Detail:    err.Error(),
	}
}

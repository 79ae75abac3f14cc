package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/connwatch/connwatch/internal/domain"
)

func httpTarget(endpoint string, timeout time.Duration) domain.Target {
	return domain.Target{
		ID:           "T1",
		Peer:         "peer-1-lb",
		Protocol:     domain.ProtoHTTP,
		Endpoint:     endpoint,
		ProbeTimeout: timeout,
	}
}

func TestHTTPProber_StatusOK(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer s.Close()

	p := NewHTTPProber()
	out := p.Probe(context.Background(), httpTarget(s.URL, 2*time.Second))
	if !out.Success {
		t.Fatalf("want success, got %+v", out)
	}
	if out.Reason != ReasonOK {
		t.Fatalf("want reason ok, got %q", out.Reason)
	}
	if out.LatencyMS < 0 {
		t.Fatalf("latency should be >= 0, got %f", out.LatencyMS)
	}
}

func TestHTTPProber_Non2xxIsBadStatus(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", 500)
	}))
	defer s.Close()

	p := NewHTTPProber()
	out := p.Probe(context.Background(), httpTarget(s.URL, 2*time.Second))
	if out.Success {
		t.Fatalf("want failure, got %+v", out)
	}
	if out.Reason != ReasonBadStatus {
		t.Fatalf("want reason bad_status, got %q", out.Reason)
	}
}

func TestHTTPProber_TimeoutClassified(t *testing.T) {
	// Server sleeps longer than the probe timeout
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(200)
	}))
	defer s.Close()

	p := NewHTTPProber()
	out := p.Probe(context.Background(), httpTarget(s.URL, 50*time.Millisecond))
	if out.Success {
		t.Fatalf("want failure due to timeout, got %+v", out)
	}
	if out.Reason != ReasonTimeout {
		t.Fatalf("want reason timeout, got %q (%s)", out.Reason, out.Detail)
	}
}

func TestHTTPProber_RefusedClassified(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := s.URL
	s.Close() // nothing listens there anymore

	p := NewHTTPProber()
	out := p.Probe(context.Background(), httpTarget(url, time.Second))
	if out.Success {
		t.Fatalf("want failure, got %+v", out)
	}
	if out.Reason != ReasonRefused {
		t.Fatalf("want reason refused, got %q (%s)", out.Reason, out.Detail)
	}
}

func TestHTTPProber_DNSClassified(t *testing.T) {
	p := NewHTTPProber()
	out := p.Probe(context.Background(), httpTarget("http://no-such-host.invalid/ping", 2*time.Second))
	if out.Success {
		t.Fatalf("want failure, got %+v", out)
	}
	if out.Reason != ReasonDNS {
		t.Fatalf("want reason dns, got %q (%s)", out.Reason, out.Detail)
	}
}

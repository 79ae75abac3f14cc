package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/connwatch/connwatch/internal/domain"
	"github.com/connwatch/connwatch/internal/peerpoll"
	"github.com/connwatch/connwatch/internal/tracker"
)

func testServer(adminKeys []string) (*Server, *tracker.Tracker) {
	log := zap.NewNop()
	targets := []domain.Target{{
		ID:       "peer-1-lb/tcp",
		Peer:     "peer-1-lb",
		Path:     domain.PathLoadBalancer,
		Protocol: domain.ProtoTCP,
		Endpoint: "172.17.95.211:8081",
	}}
	tr := tracker.New(log, tracker.Config{Source: "bastion"}, targets, nil)
	s := NewServer(log, tr, peerpoll.NewStore(10), nil, 10)
	s.AdminKeys = adminKeys
	return s, tr
}

func TestHandleData_ReturnsSnapshotAndHistory(t *testing.T) {
	s, tr := testServer(nil)
	base := time.Now().UTC()

	tr.Apply(domain.ProbeResult{TargetID: "peer-1-lb/tcp", CheckedAt: base, Success: false, Reason: "refused"})
	tr.Apply(domain.ProbeResult{TargetID: "peer-1-lb/tcp", CheckedAt: base.Add(3 * time.Second), Success: true, Reason: "ok"})

	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var payload struct {
		Targets map[string]struct {
			State domain.TargetState `json:"state"`
		} `json:"targets"`
		History []domain.OutageRecord `json:"history"`
	}
	if err := json.NewDecoder(w.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}

	ts, ok := payload.Targets["peer-1-lb/tcp"]
	if !ok {
		t.Fatalf("target missing from payload: %v", payload.Targets)
	}
	if ts.State.Status != domain.StatusUp {
		t.Fatalf("status = %s", ts.State.Status)
	}
	if len(payload.History) != 1 || payload.History[0].DurationSec != 3 {
		t.Fatalf("history = %+v", payload.History)
	}
}

func TestHandleData_MergesRemoteRecords(t *testing.T) {
	s, _ := testServer(nil)
	base := time.Now().UTC()
	end := base.Add(time.Second)

	s.Remote.Merge([]domain.OutageRecord{{
		TargetID: "peer-2-svc/ws",
		Peer:     "peer-2-svc",
		Protocol: domain.ProtoWS,
		Start:    base,
		End:      &end,
		Source:   "peer",
		Reporter: "peer-1-svc",
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	var payload struct {
		History []domain.OutageRecord `json:"history"`
	}
	if err := json.NewDecoder(w.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.History) != 1 || payload.History[0].Reporter != "peer-1-svc" {
		t.Fatalf("remote record missing: %+v", payload.History)
	}
}

func TestClearHistory_RequiresAdminKey(t *testing.T) {
	s, tr := testServer([]string{"secret"})
	base := time.Now().UTC()
	tr.Apply(domain.ProbeResult{TargetID: "peer-1-lb/tcp", CheckedAt: base, Success: false, Reason: "refused"})
	tr.Apply(domain.ProbeResult{TargetID: "peer-1-lb/tcp", CheckedAt: base.Add(time.Second), Success: true, Reason: "ok"})

	router := s.Router()

	req := httptest.NewRequest(http.MethodPost, "/api/clear_history", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("unauthenticated clear must 403, got %d", w.Code)
	}
	if got := tr.Snapshot().Targets["peer-1-lb/tcp"].History; len(got) != 1 {
		t.Fatalf("history cleared despite 403")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/clear_history", nil)
	req.Header.Set("X-API-Key", "secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("authorized clear failed: %d", w.Code)
	}
	if got := tr.Snapshot().Targets["peer-1-lb/tcp"].History; len(got) != 0 {
		t.Fatalf("history not cleared: %+v", got)
	}
}

func TestHealthz(t *testing.T) {
	s, _ := testServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", w.Code, w.Body.String())
	}
}

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/connwatch/connwatch/internal/domain"
	"github.com/connwatch/connwatch/internal/httpapi/middleware"
	"github.com/connwatch/connwatch/internal/peerpoll"
	"github.com/connwatch/connwatch/internal/tracker"
)

const clearFanoutTimeout = 2 * time.Second

// Server exposes the reporting surface: the live snapshot with merged
// history, plus the history-clear control that fans out to peers.
type Server struct {
	Logger       *zap.Logger
	Tracker      *tracker.Tracker
	Remote       *peerpoll.Store
	Peers        []peerpoll.Peer
	AdminKeys    []string
	RateLimitRPM int
	MaxHistory   int

	client *http.Client
}

func NewServer(l *zap.Logger, tr *tracker.Tracker, remote *peerpoll.Store, peers []peerpoll.Peer, maxHistory int) *Server {
	return &Server{
		Logger:     l,
		Tracker:    tr,
		Remote:     remote,
		Peers:      peers,
		MaxHistory: maxHistory,
		client:     &http.Client{Timeout: clearFanoutTimeout},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)
	r.Use(middleware.RateLimit(s.RateLimitRPM, 60))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/api/data", s.handleData)
	r.With(middleware.RequireAdmin(s.AdminKeys)).
		Post("/api/clear_history", s.handleClearHistory)

	return r
}

type dataPayload struct {
	GeneratedAt time.Time                                 `json:"generated_at"`
	Targets     map[domain.TargetID]domain.TargetSnapshot `json:"targets"`
	Peers       map[string]domain.PeerStatus              `json:"internal_status"`
	History     []domain.OutageRecord                     `json:"history"`
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	snap := s.Tracker.Snapshot()

	history := make([]domain.OutageRecord, 0, s.MaxHistory)
	for _, ts := range snap.Targets {
		history = append(history, ts.History...)
	}
	if s.Remote != nil {
		history = append(history, s.Remote.Records()...)
	}
	sort.SliceStable(history, func(i, j int) bool {
		return recEnd(history[i]).After(recEnd(history[j]))
	})
	if s.MaxHistory > 0 && len(history) > s.MaxHistory {
		history = history[:s.MaxHistory]
	}

	payload := dataPayload{
		GeneratedAt: snap.TakenAt,
		Targets:     snap.Targets,
		History:     history,
	}
	if s.Remote != nil {
		payload.Peers = s.Remote.Statuses()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func recEnd(rec domain.OutageRecord) time.Time {
	if rec.End != nil {
		return *rec.End
	}
	return rec.Start
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	cutoff := time.Now().UTC()
	s.Tracker.ClearHistory()
	if s.Remote != nil {
		s.Remote.Clear(cutoff)
	}
	s.Logger.Info("history_cleared", zap.Time("cutoff", cutoff))

	// Fan the clear out without holding the response open.
	go s.fanoutClear()

	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("history cleared"))
}

func (s *Server) fanoutClear() {
	ctx, cancel := context.WithTimeout(context.Background(), clearFanoutTimeout*time.Duration(len(s.Peers)+1))
	defer cancel()

	for _, peer := range s.Peers {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, peer.BaseURL+"/admin/clear_history", nil)
		if err != nil {
			continue
		}
		resp, err := s.client.Do(req)
		if err != nil {
			s.Logger.Warn("clear_fanout_failed",
				zap.String("peer", peer.Name),
				zap.Error(err),
			)
			continue
		}
		resp.Body.Close()
		s.Logger.Info("clear_fanout_ok", zap.String("peer", peer.Name))
	}
}

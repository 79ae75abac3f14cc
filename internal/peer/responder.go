// Package peer implements the responder side of the probe contract: the
// WS/TCP/HTTP listeners a peer answers probes on, and the status/history
// endpoints the bastion polls.
package peer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/connwatch/connwatch/internal/domain"
	"github.com/connwatch/connwatch/internal/tracker"
)

type Responder struct {
	Logger  *zap.Logger
	Name    string
	Tracker *tracker.Tracker

	upgrader websocket.Upgrader
}

func NewResponder(logger *zap.Logger, name string, tr *tracker.Tracker) *Responder {
	return &Responder{
		Logger:  logger,
		Name:    name,
		Tracker: tr,
		// Probes are not browsers; origin checks don't apply.
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// Routes serves the HTTP side of the responder contract.
func (r *Responder) Routes() http.Handler {
	mux := chi.NewRouter()
	mux.Get("/ping", r.handlePing)
	mux.Get("/status", r.handleStatus)
	mux.Get("/history", r.handleHistory)
	mux.Post("/admin/clear_history", r.handleClearHistory)
	return mux
}

func (r *Responder) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"pod":    r.Name,
		"ts":     time.Now().UTC(),
	})
}

func (r *Responder) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := r.Tracker.Snapshot()

	conns := make(map[string]map[domain.Protocol]domain.Status)
	for _, ts := range snap.Targets {
		if conns[ts.Target.Peer] == nil {
			conns[ts.Target.Peer] = make(map[domain.Protocol]domain.Status)
		}
		conns[ts.Target.Peer][ts.Target.Protocol] = ts.State.Status
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(domain.PeerStatus{
		Self:        r.Name,
		Timestamp:   snap.TakenAt,
		Connections: conns,
	})
}

func (r *Responder) handleHistory(w http.ResponseWriter, _ *http.Request) {
	snap := r.Tracker.Snapshot()

	var recs []domain.OutageRecord
	for _, ts := range snap.Targets {
		recs = append(recs, ts.History...)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		ei, ej := recs[i].Start, recs[j].Start
		if recs[i].End != nil {
			ei = *recs[i].End
		}
		if recs[j].End != nil {
			ej = *recs[j].End
		}
		return ei.After(ej)
	})
	if recs == nil {
		recs = []domain.OutageRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(recs)
}

func (r *Responder) handleClearHistory(w http.ResponseWriter, _ *http.Request) {
	r.Tracker.ClearHistory()
	r.Logger.Info("peer_history_cleared")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":  true,
		"pod": r.Name,
		"ts":  time.Now().UTC(),
	})
}

// ServeWS answers WebSocket probes: accept, then drain messages until the
// client goes away. Pings are answered by the library's default handler.
func (r *Responder) ServeWS(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: http.HandlerFunc(r.handleWS)}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (r *Responder) handleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			r.Logger.Debug("ws_client_gone", zap.Error(err))
			return
		}
	}
}

// ServeTCP answers raw TCP probes with a newline echo so held
// connections can validate round trips.
func (r *Responder) ServeTCP(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.Logger.Warn("tcp_accept_error", zap.Error(err))
			continue
		}
		go r.echo(ctx, conn)
	}
}

func (r *Responder) echo(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	br := bufio.NewReader(conn)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			if _, werr := conn.Write(line); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

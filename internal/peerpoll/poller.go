package peerpoll

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/connwatch/connwatch/internal/domain"
)

// Peer is one route peer to poll.
type Peer struct {
	Name    string
	BaseURL string
}

// Poller polls every peer's /status and /history on its own cadence.
// Poll failures mark the peer unreachable; they never stop the loop.
type Poller struct {
	Logger   *zap.Logger
	Store    *Store
	Peers    []Peer
	Interval time.Duration
	Timeout  time.Duration
	Client   *http.Client
}

func NewPoller(logger *zap.Logger, store *Store, peers []Peer, interval, timeout time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Poller{
		Logger:   logger,
		Store:    store,
		Peers:    peers,
		Interval: interval,
		Timeout:  timeout,
		Client:   &http.Client{},
	}
}

// Run blocks until ctx is cancelled and every peer loop has exited.
func (p *Poller) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, peer := range p.Peers {
		peer := peer
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx, peer)
		}()
	}
	wg.Wait()
}

func (p *Poller) loop(ctx context.Context, peer Peer) {
	t := time.NewTicker(p.Interval)
	defer t.Stop()

	p.pollOnce(ctx, peer)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.pollOnce(ctx, peer)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context, peer Peer) {
	var st domain.PeerStatus
	if err := p.getJSON(ctx, peer.BaseURL+"/status", &st); err != nil {
		p.Store.SetError(peer.Name, err.Error())
		p.Logger.Debug("peer_poll_error",
			zap.String("peer", peer.Name),
			zap.Error(err),
		)
		return
	}
	if st.Self == "" {
		st.Self = peer.Name
	}

	var recs []domain.OutageRecord
	if err := p.getJSON(ctx, peer.BaseURL+"/history", &recs); err != nil {
		// Status made it through; the peer is reachable but its merged
		// history is stale, and the status entry says so.
		st.HistoryError = err.Error()
		p.Store.SetStatus(peer.Name, st)
		p.Logger.Debug("peer_history_error",
			zap.String("peer", peer.Name),
			zap.Error(err),
		)
		return
	}
	p.Store.SetStatus(peer.Name, st)
	for i := range recs {
		if recs[i].Reporter == "" {
			recs[i].Reporter = peer.Name
		}
	}
	p.Store.Merge(recs)
}

func (p *Poller) getJSON(ctx context.Context, url string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

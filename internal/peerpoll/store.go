// Package peerpoll pulls each route peer's own connection state and
// outage history into the bastion, so the dashboard can show pod-to-pod
// connectivity next to the bastion's external probes.
package peerpoll

import (
	"sort"
	"sync"
	"time"

	"github.com/connwatch/connwatch/internal/domain"
)

// Store holds the last polled status per peer and the merged remote
// outage records, deduplicated and bounded like local history.
type Store struct {
	mu           sync.RWMutex
	status       map[string]domain.PeerStatus
	records      []domain.OutageRecord
	known        map[string]struct{}
	max          int
	ignoreBefore time.Time
}

func NewStore(maxRecords int) *Store {
	if maxRecords < 1 {
		maxRecords = 200
	}
	return &Store{
		status: make(map[string]domain.PeerStatus),
		known:  make(map[string]struct{}),
		max:    maxRecords,
	}
}

func (s *Store) SetStatus(name string, st domain.PeerStatus) {
	s.mu.Lock()
	s.status[name] = st
	s.mu.Unlock()
}

// SetError records a failed poll so the dashboard shows the peer as
// unreachable instead of silently going stale.
func (s *Store) SetError(name, msg string) {
	s.mu.Lock()
	s.status[name] = domain.PeerStatus{Self: name, Timestamp: time.Now().UTC(), Error: msg}
	s.mu.Unlock()
}

// Merge folds newly polled remote records in: already-known and
// pre-cutoff records are skipped, an open record is replaced by its
// closed successor, and the rest is sorted newest-first and trimmed to
// the bound.
func (s *Store) Merge(recs []domain.OutageRecord) {
	if len(recs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	added := false
	for _, rec := range recs {
		if rec.Source == "" {
			rec.Source = "peer"
		}
		if !s.ignoreBefore.IsZero() && refTime(rec).Before(s.ignoreBefore) {
			continue
		}
		key := rec.Key()
		if _, ok := s.known[key]; ok {
			// Re-polled outage. The only update that matters is the
			// stored open copy closing.
			if rec.End == nil {
				continue
			}
			for i := range s.records {
				if s.records[i].End == nil && s.records[i].Key() == key {
					s.records[i] = rec
					added = true
					break
				}
			}
			continue
		}
		s.known[key] = struct{}{}
		s.records = append(s.records, rec)
		added = true
	}
	if !added {
		return
	}
	sort.SliceStable(s.records, func(i, j int) bool {
		return refTime(s.records[i]).After(refTime(s.records[j]))
	})
	if len(s.records) > s.max {
		for _, rec := range s.records[s.max:] {
			delete(s.known, rec.Key())
		}
		s.records = s.records[:s.max]
	}
}

func refTime(rec domain.OutageRecord) time.Time {
	if rec.End != nil {
		return *rec.End
	}
	return rec.Start
}

// Statuses returns a copy of the latest per-peer status.
func (s *Store) Statuses() map[string]domain.PeerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.PeerStatus, len(s.status))
	for k, v := range s.status {
		out[k] = v
	}
	return out
}

// Records returns a copy of the merged remote outage records.
func (s *Store) Records() []domain.OutageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.OutageRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Clear drops merged records and ignores anything that ended before the
// cutoff on subsequent polls, so cleared incidents do not resurface.
func (s *Store) Clear(cutoff time.Time) {
	s.mu.Lock()
	s.records = nil
	s.known = make(map[string]struct{})
	s.ignoreBefore = cutoff
	s.mu.Unlock()
}

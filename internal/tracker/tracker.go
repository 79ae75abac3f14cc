// Package tracker owns the health state machine for every target. All
// mutation funnels through Apply; readers get consistent copies from
// Snapshot and never block probing for longer than a state copy takes.
package tracker

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/connwatch/connwatch/internal/domain"
)

// Config tunes debouncing and history retention.
type Config struct {
	DownThreshold int    // consecutive failures before UP -> DOWN
	UpThreshold   int    // consecutive successes before DOWN -> UP
	MaxHistory    int    // bounded FIFO of outage records per target
	Source        string // stamped on outage records, e.g. "bastion" or "peer"
	Reporter      string // reporting instance name, empty on the bastion
}

// Transition is emitted whenever a target changes status. Outage carries
// the record opened (on DOWN) or closed (on UP), nil for UNKNOWN -> UP.
type Transition struct {
	Target domain.Target
	From   domain.Status
	To     domain.Status
	At     time.Time
	Reason string
	Outage *domain.OutageRecord
}

type Tracker struct {
	log    *zap.Logger
	cfg    Config
	events chan<- Transition

	mu      sync.RWMutex
	targets map[domain.TargetID]domain.Target
	states  map[domain.TargetID]*domain.TargetState
	open    map[domain.TargetID]*domain.OutageRecord
	history map[domain.TargetID][]*domain.OutageRecord
}

// New builds a tracker for a fixed target set. Every target starts in
// UNKNOWN. events may be nil; sends never block, a full channel drops.
func New(log *zap.Logger, cfg Config, targets []domain.Target, events chan<- Transition) *Tracker {
	if cfg.DownThreshold < 1 {
		cfg.DownThreshold = 1
	}
	if cfg.UpThreshold < 1 {
		cfg.UpThreshold = 1
	}
	if cfg.MaxHistory < 1 {
		cfg.MaxHistory = 200
	}
	t := &Tracker{
		log:     log,
		cfg:     cfg,
		events:  events,
		targets: make(map[domain.TargetID]domain.Target, len(targets)),
		states:  make(map[domain.TargetID]*domain.TargetState, len(targets)),
		open:    make(map[domain.TargetID]*domain.OutageRecord),
		history: make(map[domain.TargetID][]*domain.OutageRecord, len(targets)),
	}
	for _, tgt := range targets {
		t.targets[tgt.ID] = tgt
		t.states[tgt.ID] = &domain.TargetState{Status: domain.StatusUnknown}
	}
	return t
}

// Apply feeds one probe result into the state machine and returns the
// status before and after. Unknown target ids are logged and skipped.
func (t *Tracker) Apply(res domain.ProbeResult) (domain.Status, domain.Status) {
	at := res.CheckedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	t.mu.Lock()
	st, ok := t.states[res.TargetID]
	if !ok {
		t.mu.Unlock()
		t.log.Error("tracker_unknown_target", zap.String("target_id", string(res.TargetID)))
		return domain.StatusUnknown, domain.StatusUnknown
	}
	tgt := t.targets[res.TargetID]
	old := st.Status
	st.LastReason = res.Reason

	var tr *Transition
	if res.Success {
		st.ConsecutiveSuccesses++
		st.ConsecutiveFailures = 0
		st.LastSuccess = at
		switch old {
		case domain.StatusUnknown:
			tr = t.transitionLocked(tgt, st, domain.StatusUp, at, res.Reason)
		case domain.StatusDown:
			if st.ConsecutiveSuccesses >= t.cfg.UpThreshold {
				tr = t.transitionLocked(tgt, st, domain.StatusUp, at, res.Reason)
			}
		}
	} else {
		st.ConsecutiveFailures++
		st.ConsecutiveSuccesses = 0
		st.LastFailure = at
		switch old {
		case domain.StatusUnknown:
			// First ever observation; no debounce since there is no
			// prior state to hold on to.
			tr = t.transitionLocked(tgt, st, domain.StatusDown, at, res.Reason)
		case domain.StatusUp:
			if st.ConsecutiveFailures >= t.cfg.DownThreshold {
				tr = t.transitionLocked(tgt, st, domain.StatusDown, at, res.Reason)
			}
		}
	}
	now := st.Status
	t.mu.Unlock()

	if tr != nil {
		t.emit(*tr)
	}
	return old, now
}

// transitionLocked commits a status change and maintains outage records.
// Caller holds t.mu.
func (t *Tracker) transitionLocked(tgt domain.Target, st *domain.TargetState, to domain.Status, at time.Time, reason string) *Transition {
	from := st.Status
	st.Status = to
	st.LastTransition = at

	tr := &Transition{Target: tgt, From: from, To: to, At: at, Reason: reason}
	switch to {
	case domain.StatusDown:
		// Hand out a copy: the live record mutates when the outage closes.
		cp := *t.openOutageLocked(tgt, at)
		tr.Outage = &cp
	case domain.StatusUp:
		if from == domain.StatusDown {
			if rec := t.closeOutageLocked(tgt, at); rec != nil {
				cp := *rec
				tr.Outage = &cp
			}
		}
	}
	return tr
}

func (t *Tracker) openOutageLocked(tgt domain.Target, at time.Time) *domain.OutageRecord {
	if rec := t.open[tgt.ID]; rec != nil {
		// Should never happen: a DOWN transition with an outage already
		// open. Keep monitoring, keep the existing record.
		t.log.Error("tracker_invariant_outage_already_open",
			zap.String("target_id", string(tgt.ID)))
		return rec
	}
	rec := &domain.OutageRecord{
		TargetID: tgt.ID,
		Peer:     tgt.Peer,
		Protocol: tgt.Protocol,
		Start:    at,
		Source:   t.cfg.Source,
		Reporter: t.cfg.Reporter,
	}
	t.open[tgt.ID] = rec
	t.history[tgt.ID] = append(t.history[tgt.ID], rec)
	if n := len(t.history[tgt.ID]); n > t.cfg.MaxHistory {
		t.history[tgt.ID] = t.history[tgt.ID][n-t.cfg.MaxHistory:]
	}
	return rec
}

func (t *Tracker) closeOutageLocked(tgt domain.Target, at time.Time) *domain.OutageRecord {
	rec := t.open[tgt.ID]
	if rec == nil {
		// Should never happen: recovery with no open outage. Log and
		// carry on rather than crash mid-migration.
		t.log.Error("tracker_invariant_no_open_outage",
			zap.String("target_id", string(tgt.ID)))
		return nil
	}
	end := at
	rec.End = &end
	rec.DurationSec = math.Round(end.Sub(rec.Start).Seconds()*100) / 100
	delete(t.open, tgt.ID)
	return rec
}

func (t *Tracker) emit(tr Transition) {
	switch tr.To {
	case domain.StatusDown:
		t.log.Warn("outage_opened",
			zap.String("target_id", string(tr.Target.ID)),
			zap.String("peer", tr.Target.Peer),
			zap.String("protocol", string(tr.Target.Protocol)),
			zap.String("reason", tr.Reason),
		)
	case domain.StatusUp:
		if tr.Outage != nil {
			t.log.Info("outage_closed",
				zap.String("target_id", string(tr.Target.ID)),
				zap.Float64("duration_sec", tr.Outage.DurationSec),
			)
		} else {
			t.log.Info("target_up", zap.String("target_id", string(tr.Target.ID)))
		}
	}
	if t.events == nil {
		return
	}
	select {
	case t.events <- tr:
	default:
		t.log.Debug("transition_event_dropped", zap.String("target_id", string(tr.Target.ID)))
	}
}

// Snapshot returns a consistent copy of every target's state and bounded
// history, serialized against all Apply calls up to now.
func (t *Tracker) Snapshot() domain.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := domain.Snapshot{
		TakenAt: time.Now().UTC(),
		Targets: make(map[domain.TargetID]domain.TargetSnapshot, len(t.states)),
	}
	for id, st := range t.states {
		hist := make([]domain.OutageRecord, 0, len(t.history[id]))
		for _, rec := range t.history[id] {
			hist = append(hist, *rec)
		}
		snap.Targets[id] = domain.TargetSnapshot{
			Target:  t.targets[id],
			State:   *st,
			History: hist,
		}
	}
	return snap
}

// ClearHistory drops closed outage records for every target. Outages
// still open stay so an ongoing incident cannot be wiped mid-flight.
func (t *Tracker) ClearHistory() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.history {
		t.history[id] = nil
		if rec := t.open[id]; rec != nil {
			t.history[id] = append(t.history[id], rec)
		}
	}
}

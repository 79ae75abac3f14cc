package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/connwatch/connwatch/internal/domain"
	"github.com/connwatch/connwatch/internal/notify"
	"github.com/connwatch/connwatch/internal/tracker"
)

type fakeNotifier struct {
	mu    sync.Mutex
	kinds []notify.EventKind
}

func (f *fakeNotifier) Send(ctx context.Context, ev notify.Event) error {
	f.mu.Lock()
	f.kinds = append(f.kinds, ev.Kind)
	f.mu.Unlock()
	return nil
}

func (f *fakeNotifier) sent() []notify.EventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notify.EventKind, len(f.kinds))
	copy(out, f.kinds)
	return out
}

type fakeArchive struct {
	mu   sync.Mutex
	recs []domain.OutageRecord
}

func (f *fakeArchive) AppendOutage(ctx context.Context, rec domain.OutageRecord) error {
	f.mu.Lock()
	f.recs = append(f.recs, rec)
	f.mu.Unlock()
	return nil
}

func (f *fakeArchive) Close() {}

func transition(to domain.Status, at time.Time, outage *domain.OutageRecord) tracker.Transition {
	return tracker.Transition{
		Target: domain.Target{ID: "T1", Peer: "peer-1-lb", Path: domain.PathLoadBalancer, Protocol: domain.ProtoTCP},
		From:   domain.StatusUp,
		To:     to,
		At:     at,
		Reason: "timeout",
		Outage: outage,
	}
}

func TestAlerter_DownAlertsRespectCooldown(t *testing.T) {
	n := &fakeNotifier{}
	a := NewAlerter(zap.NewNop(), n, nil, AlerterConfig{Cooldown: time.Minute})
	base := time.Now()

	a.handle(context.Background(), transition(domain.StatusDown, base, &domain.OutageRecord{Start: base}))
	a.handle(context.Background(), transition(domain.StatusDown, base.Add(10*time.Second), &domain.OutageRecord{Start: base}))

	if got := n.sent(); len(got) != 1 {
		t.Fatalf("second down within cooldown must be suppressed, got %d sends", len(got))
	}

	a.handle(context.Background(), transition(domain.StatusDown, base.Add(2*time.Minute), &domain.OutageRecord{Start: base}))
	if got := n.sent(); len(got) != 2 {
		t.Fatalf("down after cooldown should send, got %d sends", len(got))
	}
}

func TestAlerter_RecoveryArchivesAndBypassesCooldown(t *testing.T) {
	n := &fakeNotifier{}
	ar := &fakeArchive{}
	a := NewAlerter(zap.NewNop(), n, ar, AlerterConfig{AlertOnRecovery: true, Cooldown: time.Hour})
	base := time.Now()

	end := base.Add(5 * time.Second)
	closed := &domain.OutageRecord{TargetID: "T1", Start: base, End: &end, DurationSec: 5}

	a.handle(context.Background(), transition(domain.StatusDown, base, &domain.OutageRecord{Start: base}))
	a.handle(context.Background(), transition(domain.StatusUp, end, closed))

	if got := n.sent(); len(got) != 2 {
		t.Fatalf("want down + recovery sends, got %v", got)
	}

	ar.mu.Lock()
	defer ar.mu.Unlock()
	if len(ar.recs) != 1 || ar.recs[0].DurationSec != 5 {
		t.Fatalf("closed outage not archived: %+v", ar.recs)
	}
}

func TestAlerter_NilNotifierStillArchives(t *testing.T) {
	ar := &fakeArchive{}
	a := NewAlerter(zap.NewNop(), nil, ar, AlerterConfig{})
	base := time.Now()
	end := base.Add(time.Second)

	a.handle(context.Background(), transition(domain.StatusUp, end,
		&domain.OutageRecord{TargetID: "T1", Start: base, End: &end, DurationSec: 1}))

	ar.mu.Lock()
	defer ar.mu.Unlock()
	if len(ar.recs) != 1 {
		t.Fatalf("archive skipped without notifier: %+v", ar.recs)
	}
}

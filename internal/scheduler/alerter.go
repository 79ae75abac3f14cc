package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/connwatch/connwatch/internal/archive"
	"github.com/connwatch/connwatch/internal/domain"
	"github.com/connwatch/connwatch/internal/notify"
	"github.com/connwatch/connwatch/internal/tracker"
)

type AlerterConfig struct {
	AlertOnRecovery bool
	Cooldown        time.Duration
}

// Alerter consumes tracker transitions: DOWN transitions notify (with a
// cooldown to suppress noisy repeats), recoveries notify and land the
// closed outage in the archive.
type Alerter struct {
	log      *zap.Logger
	notifier notify.Notifier
	archive  archive.Store
	cfg      AlerterConfig
	lastSent map[domain.TargetID]time.Time
}

func NewAlerter(log *zap.Logger, notifier notify.Notifier, store archive.Store, cfg AlerterConfig) *Alerter {
	if store == nil {
		store = archive.Disabled
	}
	return &Alerter{
		log:      log,
		notifier: notifier,
		archive:  store,
		cfg:      cfg,
		lastSent: make(map[domain.TargetID]time.Time),
	}
}

// Run drains events until ctx is cancelled.
func (a *Alerter) Run(ctx context.Context, events <-chan tracker.Transition) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			a.handle(ctx, ev)
		}
	}
}

func (a *Alerter) handle(ctx context.Context, ev tracker.Transition) {
	switch ev.To {
	case domain.StatusDown:
		a.sendDown(ctx, ev)
	case domain.StatusUp:
		if ev.Outage != nil {
			if err := a.archive.AppendOutage(ctx, *ev.Outage); err != nil {
				a.log.Warn("archive_append_error",
					zap.String("target_id", string(ev.Target.ID)),
					zap.Error(err),
				)
			}
		}
		if a.cfg.AlertOnRecovery {
			// Recovery alerts bypass the cooldown.
			a.send(ctx, ev, notify.EventRecovered)
		}
	}
}

func (a *Alerter) sendDown(ctx context.Context, ev tracker.Transition) {
	if last, ok := a.lastSent[ev.Target.ID]; ok && ev.At.Sub(last) < a.cfg.Cooldown {
		return
	}
	a.send(ctx, ev, notify.EventDown)
	a.lastSent[ev.Target.ID] = ev.At
}

func (a *Alerter) send(ctx context.Context, ev tracker.Transition, kind notify.EventKind) {
	if a.notifier == nil {
		return
	}
	out := notify.Event{
		Kind:   kind,
		Target: ev.Target,
		Reason: ev.Reason,
		At:     ev.At,
	}
	if ev.Outage != nil && kind == notify.EventRecovered {
		out.DurationSec = ev.Outage.DurationSec
	}
	if err := a.notifier.Send(ctx, out); err != nil {
		a.log.Debug("notify_send_error",
			zap.String("target_id", string(ev.Target.ID)),
			zap.Error(err),
		)
	}
}

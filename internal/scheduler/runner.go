package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/connwatch/connwatch/internal/domain"
	"github.com/connwatch/connwatch/internal/probe"
	"github.com/connwatch/connwatch/internal/tracker"
)

// Runner drives one probe loop per target, all in parallel, until its
// context is cancelled. A stuck or failing target never stalls another.
type Runner struct {
	Logger  *zap.Logger
	Tracker *tracker.Tracker
	Targets []domain.Target
	HTTP    probe.Prober
	TCP     probe.Prober
	WS      *probe.WSProber
}

func NewRunner(logger *zap.Logger, tr *tracker.Tracker, targets []domain.Target) *Runner {
	return &Runner{
		Logger:  logger,
		Tracker: tr,
		Targets: targets,
		HTTP:    probe.NewHTTPProber(),
		TCP:     probe.NewTCPProber(),
		WS:      probe.NewWSProber(),
	}
}

// Run blocks until ctx is cancelled and every target loop has exited.
func (r *Runner) Run(ctx context.Context) {
	r.Logger.Info("scheduler_started", zap.Int("targets", len(r.Targets)))

	var wg sync.WaitGroup
	for _, t := range r.Targets {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch t.Protocol {
			case domain.ProtoWS:
				r.wsLoop(ctx, t)
			case domain.ProtoTCP:
				r.intervalLoop(ctx, t, r.TCP)
			default:
				r.intervalLoop(ctx, t, r.HTTP)
			}
		}()
	}
	wg.Wait()
	r.Logger.Info("scheduler_stopped")
}

// intervalLoop probes a one-shot target every ProbeInterval. Invocations
// for the target are serialized; when a probe overruns the interval the
// next one starts right after it completes instead of queuing.
func (r *Runner) intervalLoop(ctx context.Context, t domain.Target, p probe.Prober) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		start := time.Now()
		res := p.Probe(ctx, t)
		if ctx.Err() != nil {
			return
		}
		r.apply(t, res)

		wait := t.ProbeInterval - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// wsLoop maintains exactly one open-attempt-or-connected lifecycle for a
// WebSocket target, redialing after ReconnectDelay on failure or drop.
func (r *Runner) wsLoop(ctx context.Context, t domain.Target) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, res := r.WS.Dial(ctx, t)
		if ctx.Err() != nil {
			if conn != nil {
				conn.Close()
			}
			return
		}
		r.apply(t, res)

		if res.Success {
			err := conn.Hold(ctx, t.ProbeInterval)
			conn.Close()
			if ctx.Err() != nil {
				return
			}
			r.apply(t, probe.DropResult(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(t.ReconnectDelay):
		}
	}
}

func (r *Runner) apply(t domain.Target, res probe.Result) {
	pr := domain.ProbeResult{
		TargetID:  t.ID,
		CheckedAt: time.Now().UTC(),
		Success:   res.Success,
		LatencyMS: res.LatencyMS,
		Reason:    res.Reason,
	}
	old, now := r.Tracker.Apply(pr)

	if old != now {
		r.Logger.Info("target_transition",
			zap.String("target_id", string(t.ID)),
			zap.String("from", string(old)),
			zap.String("to", string(now)),
			zap.String("reason", res.Reason),
			zap.String("detail", res.Detail),
		)
		return
	}
	r.Logger.Debug("probe_result",
		zap.String("target_id", string(t.ID)),
		zap.Bool("up", res.Success),
		zap.Float64("latency_ms", res.LatencyMS),
		zap.String("reason", res.Reason),
	)
}

package domain

import (
	"fmt"
	"time"
)

type TargetID string

// PathKind is the network route used to reach a peer.
type PathKind string

const (
	PathLoadBalancer PathKind = "lb"
	PathNodePort     PathKind = "nodeport"
	PathRoute        PathKind = "route"
)

// Protocol is the probe protocol carried over a path.
type Protocol string

const (
	ProtoHTTP Protocol = "http"
	ProtoWS   Protocol = "ws"
	ProtoTCP  Protocol = "tcp"
)

// Status is the tracked health of a single target.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusUp      Status = "up"
	StatusDown    Status = "down"
)

// Target is one monitored (peer, path, protocol) combination. Built once
// at startup by the registry and never mutated afterwards.
type Target struct {
	ID             TargetID      `json:"id"`
	Peer           string        `json:"peer"`
	Path           PathKind      `json:"path"`
	Protocol       Protocol      `json:"protocol"`
	Endpoint       string        `json:"endpoint"` // URL for http/ws, host:port for tcp
	ProbeInterval  time.Duration `json:"-"`
	ProbeTimeout   time.Duration `json:"-"`
	ReconnectDelay time.Duration `json:"-"`
}

func MakeTargetID(peer string, proto Protocol) TargetID {
	return TargetID(fmt.Sprintf("%s/%s", peer, proto))
}

// ProbeResult is the outcome of one probe invocation. It only lives long
// enough to be applied to the tracker.
type ProbeResult struct {
	TargetID  TargetID  `json:"target_id"`
	CheckedAt time.Time `json:"checked_at"`
	Success   bool      `json:"success"`
	LatencyMS float64   `json:"latency_ms,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// TargetState is the mutable health record for one target, owned by the
// tracker. Status only changes through the tracker's Apply.
type TargetState struct {
	Status               Status    `json:"status"`
	LastTransition       time.Time `json:"last_transition,omitempty"`
	LastSuccess          time.Time `json:"last_success,omitempty"`
	LastFailure          time.Time `json:"last_failure,omitempty"`
	LastReason           string    `json:"last_reason,omitempty"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
}

// OutageRecord is one contiguous DOWN interval. End is nil while the
// outage is still open.
type OutageRecord struct {
	TargetID    TargetID   `json:"target_id"`
	Peer        string     `json:"name"`
	Protocol    Protocol   `json:"protocol"`
	Start       time.Time  `json:"start_time"`
	End         *time.Time `json:"end_time,omitempty"`
	DurationSec float64    `json:"duration_sec,omitempty"`
	Source      string     `json:"source"`
	Reporter    string     `json:"reporter,omitempty"`
}

// Open reports whether the outage has no end yet.
func (o OutageRecord) Open() bool { return o.End == nil }

// Key identifies an outage for cross-reporter deduplication. The end
// time is deliberately excluded: a record polled while still open and
// again after it closes must resolve to the same outage.
func (o OutageRecord) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s",
		o.Peer, o.Protocol, o.Start.UTC().Format(time.RFC3339Nano), o.Source, o.Reporter)
}

// TargetSnapshot pairs a target's state with its recent outage history.
type TargetSnapshot struct {
	Target  Target         `json:"target"`
	State   TargetState    `json:"state"`
	History []OutageRecord `json:"history"`
}

// Snapshot is a consistent point-in-time view of every tracked target.
type Snapshot struct {
	TakenAt time.Time                   `json:"taken_at"`
	Targets map[TargetID]TargetSnapshot `json:"targets"`
}

// PeerStatus is what a peer responder reports about its own outbound
// connections, polled by the bastion.
type PeerStatus struct {
	Self        string                         `json:"self"`
	Timestamp   time.Time                      `json:"timestamp"`
	Connections map[string]map[Protocol]Status `json:"connections"`
	Error       string                         `json:"error,omitempty"`
	// HistoryError is set when the peer answered /status but its
	// /history poll failed, so stale merged records are distinguishable
	// from an outage-free peer.
	HistoryError string `json:"history_error,omitempty"`
}

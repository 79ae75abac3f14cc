// Package archive persists closed outage records. The tracker's bounded
// in-memory history stays authoritative; the archive is an optional
// append-only record that survives restarts.
package archive

import (
	"context"

	"github.com/connwatch/connwatch/internal/domain"
)

type Store interface {
	AppendOutage(ctx context.Context, rec domain.OutageRecord) error
	Close()
}

// Disabled is the no-op archive used when no DSN is configured.
var Disabled Store = noop{}

type noop struct{}

func (noop) AppendOutage(context.Context, domain.OutageRecord) error { return nil }
func (noop) Close()                                                  {}

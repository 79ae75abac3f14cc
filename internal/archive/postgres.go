package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connwatch/connwatch/internal/domain"
)

type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres connects, verifies the connection and ensures the outages
// table exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.ParseConfig: %w", err)
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := p.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS outages (
			id           BIGSERIAL PRIMARY KEY,
			target_id    TEXT        NOT NULL,
			peer         TEXT        NOT NULL,
			protocol     TEXT        NOT NULL,
			start_time   TIMESTAMPTZ NOT NULL,
			end_time     TIMESTAMPTZ,
			duration_sec DOUBLE PRECISION,
			source       TEXT        NOT NULL,
			reporter     TEXT
		)`); err != nil {
		p.Close()
		return nil, fmt.Errorf("create outages table: %w", err)
	}
	return &Postgres{pool: p}, nil
}

func (s *Postgres) AppendOutage(ctx context.Context, rec domain.OutageRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO outages (target_id, peer, protocol, start_time, end_time, duration_sec, source, reporter)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.TargetID, rec.Peer, rec.Protocol, rec.Start, rec.End, rec.DurationSec, rec.Source, rec.Reporter)
	return err
}

func (s *Postgres) Close() { s.pool.Close() }

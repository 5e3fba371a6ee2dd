package eventlog

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink appends lifecycle entries to a single append-only table.
// Unlike a batched invocation-log writer, it inserts one row per entry:
// instance lifecycle transitions are low-volume enough that a direct
// insert per entry is simple and sufficient.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to dsn and ensures the audit table exists.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s := &PostgresSink{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS instance_event_log (
			id          BIGSERIAL PRIMARY KEY,
			instance_id TEXT NOT NULL,
			event       TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			detail      TEXT
		)`)
	return err
}

// Record inserts one audit-trail row.
func (s *PostgresSink) Record(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO instance_event_log (instance_id, event, occurred_at, detail) VALUES ($1, $2, $3, $4)`,
		e.InstanceID, string(e.Event), e.OccurredAt, e.Detail,
	)
	return err
}

// Close releases the connection pool.
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}

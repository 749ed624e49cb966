// Package audit writes a durable ledger of decrypt-integrity failures and
// DEK rotation events to Postgres, for compliance review independent of
// whatever retention the proxy's own logs have. Grounded on the teacher's
// connect/pgx package: same pgxpool.Pool construction, used here directly
// rather than through the teacher's environment-endpoint wiring, since
// this proxy takes a plain DSN from its own config rather than resolving
// a rig environment's egress.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Ledger writes audit rows to Postgres. A nil *Ledger is a valid no-op
// value, constructed only when a binding's config carries an audit
// section.
type Ledger struct {
	pool *pgxpool.Pool
}

func Open(ctx context.Context, dsn string) (*Ledger, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: connect: %w", err)
	}
	return &Ledger{pool: pool}, nil
}

func (l *Ledger) Close() {
	if l != nil && l.pool != nil {
		l.pool.Close()
	}
}

// DecryptFailure records one record-level decrypt integrity failure.
// Best-effort from the caller's perspective: the encryption filter's
// decrypt-failure path already substitutes a sentinel record regardless
// of whether this write succeeds.
func (l *Ledger) DecryptFailure(ctx context.Context, clusterID, kekID, topic string, partition int32, reason string, at time.Time) error {
	if l == nil {
		return nil
	}
	_, err := l.pool.Exec(ctx,
		`insert into decrypt_failures (cluster_id, kek_id, topic, partition, reason, occurred_at)
		 values ($1, $2, $3, $4, $5, $6)`,
		clusterID, kekID, topic, partition, reason, at)
	if err != nil {
		return fmt.Errorf("audit: insert decrypt failure: %w", err)
	}
	return nil
}

// RotationEvent records a DEK rotation, proactive or operator-triggered.
func (l *Ledger) RotationEvent(ctx context.Context, clusterID, kekID, trigger string, at time.Time) error {
	if l == nil {
		return nil
	}
	_, err := l.pool.Exec(ctx,
		`insert into dek_rotations (cluster_id, kek_id, trigger, occurred_at)
		 values ($1, $2, $3, $4)`,
		clusterID, kekID, trigger, at)
	if err != nil {
		return fmt.Errorf("audit: insert rotation event: %w", err)
	}
	return nil
}

// Schema is the DDL this package's inserts assume. Applied by operators out
// of band (a migration tool, not this package) before the proxy starts.
const Schema = `
create table if not exists decrypt_failures (
	id bigserial primary key,
	cluster_id text not null,
	kek_id text not null,
	topic text not null,
	partition integer not null,
	reason text not null,
	occurred_at timestamptz not null
);

create table if not exists dek_rotations (
	id bigserial primary key,
	cluster_id text not null,
	kek_id text not null,
	trigger text not null,
	occurred_at timestamptz not null
);
`

package fairness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"horse.fit/crosslink/internal/db"
)

// dbStore backs the manager with Postgres. Per-target serialization comes
// from a row lock on the target article; two transactions racing for the
// same target's last slot execute their count-then-insert sequence one
// after the other.
type dbStore struct {
	pool *db.Pool
}

// NewStore wires the manager to the shared database pool.
func NewStore(pool *db.Pool) Store {
	return &dbStore{pool: pool}
}

func (s *dbStore) Begin(ctx context.Context) (Tx, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("fairness store is not initialized")
	}
	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return nil, err
	}
	return &dbTx{tx: tx}, nil
}

func (s *dbStore) DeleteReservation(ctx context.Context, sourceID, targetID int64) (bool, error) {
	const q = `
DELETE FROM links.link_reservations
WHERE source_id = $1
  AND target_id = $2
`
	tag, err := s.pool.Exec(ctx, q, sourceID, targetID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *dbStore) SweepStale(ctx context.Context, before time.Time) (int64, error) {
	const q = `
DELETE FROM links.link_reservations
WHERE reserved_at < $1
`
	tag, err := s.pool.Exec(ctx, q, before.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type dbTx struct {
	tx db.Tx
}

func (t *dbTx) LockTarget(ctx context.Context, targetID int64) error {
	const q = `
SELECT a.article_id
FROM links.articles a
WHERE a.article_id = $1
  AND a.deleted_at IS NULL
FOR UPDATE
`
	var id int64
	if err := t.tx.QueryRow(ctx, q, targetID).Scan(&id); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return fmt.Errorf("target article %d not found", targetID)
		}
		return err
	}
	return nil
}

func (t *dbTx) CountPublished(ctx context.Context) (int64, error) {
	const q = `
SELECT count(*)
FROM links.articles a
WHERE a.status = 'published'
  AND a.deleted_at IS NULL
`
	var total int64
	if err := t.tx.QueryRow(ctx, q).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (t *dbTx) CountInbound(ctx context.Context, targetID int64) (int64, error) {
	const q = `
SELECT
	(SELECT count(*) FROM links.internal_links l WHERE l.target_id = $1)
	+ (SELECT count(*) FROM links.link_reservations r WHERE r.target_id = $1)
`
	var inbound int64
	if err := t.tx.QueryRow(ctx, q, targetID).Scan(&inbound); err != nil {
		return 0, err
	}
	return inbound, nil
}

func (t *dbTx) InsertReservation(ctx context.Context, sourceID, targetID int64, at time.Time) (bool, error) {
	const q = `
INSERT INTO links.link_reservations (source_id, target_id, reserved_at)
VALUES ($1, $2, $3)
ON CONFLICT (source_id, target_id) DO NOTHING
`
	tag, err := t.tx.Exec(ctx, q, sourceID, targetID, at.UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *dbTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *dbTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

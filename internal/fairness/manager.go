// Package fairness enforces the inbound-link share bound with a two-phase
// reserve/finalize protocol over a transactional store. All cross-worker
// coordination in the planner goes through Reserve; nothing else shares
// mutable state between concurrent pipeline runs.
package fairness

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/crosslink/internal/globaltime"
)

// Outcome classifies a reservation attempt.
type Outcome int

const (
	// OutcomeReserved means the fairness slot was claimed.
	OutcomeReserved Outcome = iota
	// OutcomeBootstrap means the published corpus is below the bootstrap
	// threshold; no linking happens at all.
	OutcomeBootstrap
	// OutcomeShareExceeded means admitting the link would push the target to
	// or over the fairness share.
	OutcomeShareExceeded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReserved:
		return "reserved"
	case OutcomeBootstrap:
		return "bootstrap_not_met"
	case OutcomeShareExceeded:
		return "share_exceeded"
	default:
		return "unknown"
	}
}

// Tx is one serialized check-then-reserve attempt. LockTarget must block
// concurrent transactions on the same target until Commit or Rollback.
type Tx interface {
	LockTarget(ctx context.Context, targetID int64) error
	CountPublished(ctx context.Context) (int64, error)
	CountInbound(ctx context.Context, targetID int64) (int64, error)
	InsertReservation(ctx context.Context, sourceID, targetID int64, at time.Time) (bool, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is the transactional persistence behind the manager.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	DeleteReservation(ctx context.Context, sourceID, targetID int64) (bool, error)
	SweepStale(ctx context.Context, before time.Time) (int64, error)
}

// Config holds the fairness policy knobs.
type Config struct {
	Share                 float64
	BootstrapMinPublished int
	ReservationTTL        time.Duration
}

// Manager gates link candidates on the global fairness budget.
type Manager struct {
	store  Store
	cfg    Config
	logger zerolog.Logger
}

func NewManager(store Store, cfg Config, logger zerolog.Logger) *Manager {
	return &Manager{store: store, cfg: cfg, logger: logger}
}

// Reserve atomically recomputes the fairness state for a target and, when the
// bound holds, records a provisional claim. Counts are always recomputed from
// persisted state inside the transaction, so correctness survives process
// restarts and any number of concurrent workers.
func (m *Manager) Reserve(ctx context.Context, sourceID, targetID int64) (Outcome, error) {
	if m == nil || m.store == nil {
		return 0, fmt.Errorf("fairness manager is not initialized")
	}
	if sourceID == targetID {
		return 0, fmt.Errorf("source and target must differ")
	}

	tx, err := m.store.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin reservation transaction: %w", err)
	}

	outcome, err := m.reserveInTx(ctx, tx, sourceID, targetID)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	if outcome != OutcomeReserved {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return 0, fmt.Errorf("rollback rejected reservation: %w", rbErr)
		}
		return outcome, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit reservation: %w", err)
	}

	m.logger.Debug().
		Int64("source_id", sourceID).
		Int64("target_id", targetID).
		Msg("fairness slot reserved")
	return OutcomeReserved, nil
}

func (m *Manager) reserveInTx(ctx context.Context, tx Tx, sourceID, targetID int64) (Outcome, error) {
	if err := tx.LockTarget(ctx, targetID); err != nil {
		return 0, fmt.Errorf("lock target %d: %w", targetID, err)
	}

	published, err := tx.CountPublished(ctx)
	if err != nil {
		return 0, fmt.Errorf("count published: %w", err)
	}
	if published < int64(m.cfg.BootstrapMinPublished) {
		return OutcomeBootstrap, nil
	}

	inbound, err := tx.CountInbound(ctx, targetID)
	if err != nil {
		return 0, fmt.Errorf("count inbound for target %d: %w", targetID, err)
	}
	if float64(inbound+1)/float64(published) >= m.cfg.Share {
		return OutcomeShareExceeded, nil
	}

	if _, err := tx.InsertReservation(ctx, sourceID, targetID, globaltime.UTC()); err != nil {
		return 0, fmt.Errorf("insert reservation: %w", err)
	}
	return OutcomeReserved, nil
}

// Abort releases a reservation without a link being written. Failed publish
// flows must call this before retrying so fairness budget is not consumed by
// failed attempts.
func (m *Manager) Abort(ctx context.Context, sourceID, targetID int64) error {
	if m == nil || m.store == nil {
		return fmt.Errorf("fairness manager is not initialized")
	}
	deleted, err := m.store.DeleteReservation(ctx, sourceID, targetID)
	if err != nil {
		return fmt.Errorf("delete reservation source=%d target=%d: %w", sourceID, targetID, err)
	}
	if deleted {
		m.logger.Debug().
			Int64("source_id", sourceID).
			Int64("target_id", targetID).
			Msg("fairness reservation aborted")
	}
	return nil
}

// Sweep reclaims reservations older than the TTL. Crashed workers cannot
// permanently leak fairness budget; this is the backstop.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	if m == nil || m.store == nil {
		return 0, fmt.Errorf("fairness manager is not initialized")
	}
	ttl := m.cfg.ReservationTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	cutoff := globaltime.UTC().Add(-ttl)

	swept, err := m.store.SweepStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep stale reservations: %w", err)
	}
	if swept > 0 {
		m.logger.Info().
			Int64("swept", swept).
			Time("cutoff", cutoff).
			Msg("reclaimed abandoned reservations")
	}
	return swept, nil
}

package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Pruner periodically removes sessions whose lease has expired, one
// session per transaction so a slow prune of one row never blocks
// another worker from picking up the next. Grounded on
// device-state-service/src/service/mod.rs's prune()/prune_session().
type Pruner struct {
	service  *Service
	interval time.Duration
	log      *zap.Logger
}

func NewPruner(service *Service, interval time.Duration, log *zap.Logger) *Pruner {
	return &Pruner{service: service, interval: interval, log: log}
}

// Run polls until ctx is cancelled.
func (p *Pruner) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.prune(ctx); err != nil {
				p.log.Error("pruning expired sessions", zap.Error(err))
			}
		}
	}
}

// prune repeatedly claims the single oldest expired session with
// FOR UPDATE SKIP LOCKED (so concurrent prune runs never fight over the
// same row) and deletes it, until none remain.
func (p *Pruner) prune(ctx context.Context) error {
	for {
		more, err := p.pruneOne(ctx)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

func (p *Pruner) pruneOne(ctx context.Context) (bool, error) {
	tx, err := p.service.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
SELECT id FROM sessions
WHERE last_ping + $1::interval <= now()
ORDER BY last_ping ASC
LIMIT 1
FOR UPDATE SKIP LOCKED
`, intervalLiteral(p.service.timeout)).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	p.log.Info("pruning expired session", zap.String("session", id.String()))

	if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

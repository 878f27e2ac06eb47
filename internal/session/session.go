// Package session implements C5: the device state/session service.
// Exactly one session may hold a non-lost claim on a given (app, device)
// key at a time; a competing claim marks the prior holder's entry lost
// and is itself answered Occupied, and the prior holder discovers the
// loss on its next ping.
package session

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
)

// CreateOutcome is the result of claiming a key.
type CreateOutcome string

const (
	Created  CreateOutcome = "created"
	Occupied CreateOutcome = "occupied"
)

// PingResult carries the session's lease extension result: the ids of
// the session's entries currently marked lost by a competing claim.
type PingResult struct {
	LostIDs []string
}

// Service implements init/create/delete/ping/prune against Postgres,
// grounded on device-state-service/src/service/mod.rs.
type Service struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewService(pool *pgxpool.Pool, timeout time.Duration) *Service {
	return &Service{pool: pool, timeout: timeout}
}

// Init creates a new session and returns its id.
func (s *Service) Init(ctx context.Context) (string, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
INSERT INTO sessions (id, last_ping) VALUES ($1, now())
`, id)
	if err != nil {
		return "", apierr.Wrap(apierr.KindTemporary, "creating session", err)
	}
	return id.String(), nil
}

// Create claims key for session. If the key is unclaimed, it becomes
// Created; if a row for key already exists, that row is atomically
// marked lost and this call returns Occupied, even when the row belongs
// to session itself. The existing row keeps its holder, so every
// further Create for key returns Occupied until that holder deletes the
// row or the pruner removes its session.
func (s *Service) Create(ctx context.Context, session, key string) (CreateOutcome, error) {
	sessionID, err := uuid.Parse(session)
	if err != nil {
		return "", apierr.New(apierr.KindNotInitialized, "unknown session")
	}

	var lost bool
	err = s.pool.QueryRow(ctx, `
INSERT INTO states (session, id)
VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET lost = true
RETURNING lost
`, sessionID, key).Scan(&lost)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", apierr.New(apierr.KindNotInitialized, "unknown session")
		}
		return "", apierr.Wrap(apierr.KindTemporary, "creating state", err)
	}

	if lost {
		return Occupied, nil
	}
	return Created, nil
}

// Delete removes the claim on key if it still belongs to session; a
// no-op otherwise (including if it was already gone).
func (s *Service) Delete(ctx context.Context, session, key string) error {
	sessionID, err := uuid.Parse(session)
	if err != nil {
		return nil
	}
	_, err = s.pool.Exec(ctx, `
DELETE FROM states WHERE session = $1 AND id = $2
`, sessionID, key)
	if err != nil {
		return apierr.Wrap(apierr.KindTemporary, "deleting state", err)
	}
	return nil
}

// Ping extends the session's lease and returns every key of the session
// currently marked lost; a lost key is returned again on every ping
// until its row is deleted. If the session is unknown, expired,
// or the extension races an already-expired lease, it fails
// NotInitialized and the caller must re-init.
func (s *Service) Ping(ctx context.Context, session string) (*PingResult, error) {
	sessionID, err := uuid.Parse(session)
	if err != nil {
		return nil, apierr.New(apierr.KindNotInitialized, "unknown session")
	}

	tag, err := s.pool.Exec(ctx, `
UPDATE sessions
SET last_ping = now()
WHERE id = $1 AND last_ping + $2::interval > now()
`, sessionID, intervalLiteral(s.timeout))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTemporary, "extending session", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apierr.New(apierr.KindNotInitialized, "unknown session")
	}

	rows, err := s.pool.Query(ctx, `
SELECT id FROM states WHERE session = $1 AND lost = true
`, sessionID)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTemporary, "fetching lost states", err)
	}
	defer rows.Close()

	var lostIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apierr.Wrap(apierr.KindTemporary, "scanning lost state", err)
		}
		lostIDs = append(lostIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.Wrap(apierr.KindTemporary, "iterating lost states", err)
	}

	return &PingResult{LostIDs: lostIDs}, nil
}

func intervalLiteral(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10) + " milliseconds"
}

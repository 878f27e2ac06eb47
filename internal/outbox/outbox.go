// Package outbox implements the transactional outbox (C3): device/
// application registry writes append a row in the same database
// transaction as the state change, and a separate reader fans those rows
// out onto the event bus, deduplicating by revision.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
)

// Entry is one pending (or just-delivered) outbox row.
type Entry struct {
	Instance string
	App      string
	Device   string // empty for an application-level path
	Path     string
	Revision uint64
	UID      string
}

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so Create can be
// called either standalone or, more commonly, inside the same transaction
// that wrote the registry change it is recording.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Accessor is the outbox half of the registry's storage interface.
type Accessor struct {
	db Querier
}

func NewAccessor(db Querier) *Accessor {
	return &Accessor{db: db}
}

// Create inserts or updates the outbox row for (app, device, path),
// keeping only the highest revision seen. Grounded on
// database-common/src/models/outbox.rs: the ON CONFLICT clause only
// applies the update if the incoming row is actually newer (higher
// revision, or a different uid entirely — a revision can be reused
// across a delete+recreate of the same path).
func (a *Accessor) Create(ctx context.Context, e Entry) error {
	const sql = `
INSERT INTO outbox (
    instance, app, device, uid, path, revision, ts
) VALUES (
    $1, $2, $3, $4, $5, $6, now()
)
ON CONFLICT (app, device, path)
DO UPDATE SET
    revision = excluded.revision,
    uid      = excluded.uid,
    ts       = excluded.ts
WHERE
    outbox.revision < excluded.revision
    OR outbox.uid != excluded.uid
`
	_, err := a.db.Exec(ctx, sql, e.Instance, e.App, e.Device, e.UID, e.Path, int64(e.Revision))
	if err != nil {
		return apierr.Wrap(apierr.KindTemporary, "writing outbox entry", err)
	}
	return nil
}

// MarkSeen deletes the outbox row once it has been published to the bus,
// but only if it still matches the revision/uid that was published —
// an entry that moved on in the meantime must be redelivered.
func (a *Accessor) MarkSeen(ctx context.Context, e Entry) (bool, error) {
	const sql = `
DELETE FROM outbox
WHERE app = $1
  AND device = $2
  AND path = $3
  AND revision <= $4
  AND uid = $5
`
	tag, err := a.db.Exec(ctx, sql, e.App, e.Device, e.Path, int64(e.Revision), e.UID)
	if err != nil {
		return false, apierr.Wrap(apierr.KindTemporary, "marking outbox entry seen", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FetchUnread returns every outbox row older than `before`, ordered by
// creation timestamp ascending (oldest first), so a reconnecting reader
// replays in the order changes actually happened.
func (a *Accessor) FetchUnread(ctx context.Context, before time.Duration) ([]Entry, error) {
	beginning := time.Now().Add(-before)

	const sql = `
SELECT instance, app, device, path, revision, uid
FROM outbox
WHERE ts < $1
ORDER BY ts ASC
`
	rows, err := a.db.Query(ctx, sql, beginning)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTemporary, "fetching unread outbox entries", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var revision int64
		if err := rows.Scan(&e.Instance, &e.App, &e.Device, &e.Path, &revision, &e.UID); err != nil {
			return nil, fmt.Errorf("scanning outbox row: %w", err)
		}
		e.Revision = uint64(revision)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.Wrap(apierr.KindTemporary, "iterating outbox rows", err)
	}
	return entries, nil
}

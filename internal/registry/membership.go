package registry

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/outbox"
)

// TransferOwnership proposes a two-phase ownership transfer to newUser.
// Only the current owner may call this (enforced by the caller, which
// holds the authenticated principal).
func (s *Store) TransferOwnership(ctx context.Context, app, newUser string) error {
	return s.withTx(ctx, func(tx pgx.Tx, ob *outbox.Accessor) error {
		prior, err := s.lockApplication(ctx, tx, app)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
INSERT INTO application_transfers (app, new_user) VALUES ($1, $2)
ON CONFLICT (app) DO UPDATE SET new_user = excluded.new_user
`, app, newUser)
		if err != nil {
			return apierr.Wrap(apierr.KindTemporary, "proposing ownership transfer", err)
		}
		return s.bumpAndRecord(ctx, tx, ob, app, prior, ".metadata")
	})
}

// CancelTransfer withdraws a pending transfer; either the owner or the
// proposed recipient may call this.
func (s *Store) CancelTransfer(ctx context.Context, app string) error {
	return s.withTx(ctx, func(tx pgx.Tx, ob *outbox.Accessor) error {
		prior, err := s.lockApplication(ctx, tx, app)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM application_transfers WHERE app = $1`, app); err != nil {
			return apierr.Wrap(apierr.KindTemporary, "cancelling ownership transfer", err)
		}
		return s.bumpAndRecord(ctx, tx, ob, app, prior, ".metadata")
	})
}

// AcceptOwnership completes a pending transfer proposed to acceptingUser,
// making them the new owner and clearing the pending transfer. Fails
// NotFound if there is no transfer pending for this user — the same
// outcome a caller sees for "no such application", so a rejected former
// owner cannot distinguish the two (§8 scenario 6).
func (s *Store) AcceptOwnership(ctx context.Context, app, acceptingUser string) error {
	return s.withTx(ctx, func(tx pgx.Tx, ob *outbox.Accessor) error {
		prior, err := s.lockApplication(ctx, tx, app)
		if err != nil {
			return err
		}
		var pending string
		err = tx.QueryRow(ctx, `SELECT new_user FROM application_transfers WHERE app = $1`, app).Scan(&pending)
		if err != nil || pending != acceptingUser {
			return apierr.New(apierr.KindNotFound, "application not found")
		}

		if _, err := tx.Exec(ctx, `DELETE FROM application_transfers WHERE app = $1`, app); err != nil {
			return apierr.Wrap(apierr.KindTemporary, "clearing ownership transfer", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE applications SET owner = $2 WHERE name = $1`, app, acceptingUser); err != nil {
			return apierr.Wrap(apierr.KindTemporary, "accepting ownership", err)
		}
		return s.bumpAndRecord(ctx, tx, ob, app, prior, ".metadata")
	})
}

// GetMembers returns the full member list of app.
func (s *Store) GetMembers(ctx context.Context, app string) ([]Member, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, role FROM members WHERE app = $1`, app)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTemporary, "listing members", err)
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Role); err != nil {
			return nil, apierr.Wrap(apierr.KindTemporary, "scanning member", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ResolveUsernames resolves every non-empty member username through the
// identity provider, per §4.10.
type UsernameResolver interface {
	ResolveUsernames(ctx context.Context, usernames []string) (map[string]string, error)
}

// SetMembers replaces the member set of app, enforcing optimistic
// concurrency against expectedVersion (§4.10: fails OptimisticLockFailed
// on mismatch) and resolving usernames through resolver first so a
// partially-applied member list never reaches storage.
func (s *Store) SetMembers(ctx context.Context, app string, expectedVersion int64, members []Member, resolver UsernameResolver) error {
	usernames := make([]string, len(members))
	for i, m := range members {
		usernames[i] = m.UserID
	}
	resolved, err := resolver.ResolveUsernames(ctx, usernames)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx pgx.Tx, ob *outbox.Accessor) error {
		prior, err := s.lockApplication(ctx, tx, app)
		if err != nil {
			return err
		}
		if prior.Metadata.ResourceVersion != expectedVersion {
			return apierr.New(apierr.KindOptimisticLockFailed, "resource_version mismatch")
		}

		if _, err := tx.Exec(ctx, `DELETE FROM members WHERE app = $1`, app); err != nil {
			return apierr.Wrap(apierr.KindTemporary, "clearing members", err)
		}
		for _, m := range members {
			userID := resolved[m.UserID]
			if _, err := tx.Exec(ctx, `
INSERT INTO members (app, user_id, role) VALUES ($1, $2, $3)
`, app, userID, m.Role); err != nil {
				return apierr.Wrap(apierr.KindTemporary, "inserting member", err)
			}
		}
		return s.bumpAndRecord(ctx, tx, ob, app, prior, ".spec.members")
	})
}

func (s *Store) lockApplication(ctx context.Context, tx pgx.Tx, app string) (*Application, error) {
	return scanApplication(tx.QueryRow(ctx, `
SELECT name, uid, resource_version, generation, owner, labels, finalizers,
       deletion_timestamp, data, NULL
FROM applications WHERE name = $1 FOR UPDATE
`, app))
}

func (s *Store) bumpAndRecord(ctx context.Context, tx pgx.Tx, ob *outbox.Accessor, app string, prior *Application, path string) error {
	newVersion := prior.Metadata.ResourceVersion + 1
	if _, err := tx.Exec(ctx, `UPDATE applications SET resource_version = $2, updated_at = now() WHERE name = $1`, app, newVersion); err != nil {
		return apierr.Wrap(apierr.KindTemporary, "bumping resource_version", err)
	}
	return ob.Create(ctx, outbox.Entry{Instance: s.instance, App: app, Path: path, Revision: uint64(newVersion), UID: prior.Metadata.UID})
}

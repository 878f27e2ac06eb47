package registry

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/outbox"
)

// Condition is one named entry of an application's status conditions
// list (§4.9: "Conditions list (name -> {status, reason, message,
// last_transition})"); the Reconciler is the only writer.
type Condition struct {
	Type               string
	Status             bool
	Reason             string
	Message            string
	LastTransitionTime time.Time
}

type appData struct {
	Spec   map[string]any `json:"spec"`
	Status map[string]any `json:"status"`
}

// CreateApplication inserts a new application owned by owner, writing a
// single "." outbox row to signal creation (§4.2: "an empty diff still
// emits a single . row").
func (s *Store) CreateApplication(ctx context.Context, name, owner string, labels map[string]string) (*Application, error) {
	if !isDNSLabel(name) {
		return nil, apierr.New(apierr.KindInvalidRequest, "application name must be a DNS label of at most 63 characters")
	}

	app := &Application{
		Name:  name,
		Owner: owner,
		Metadata: Metadata{
			UID:               newUID(),
			ResourceVersion:   1,
			Generation:        1,
			CreationTimestamp: now(),
			Labels:            labels,
		},
	}

	err := s.withTx(ctx, func(tx pgx.Tx, ob *outbox.Accessor) error {
		data, err := marshalJSON(appData{})
		if err != nil {
			return apierr.Wrap(apierr.KindPermanent, "marshalling application data", err)
		}
		labelsJSON, err := marshalJSON(labels)
		if err != nil {
			return apierr.Wrap(apierr.KindPermanent, "marshalling labels", err)
		}

		_, err = tx.Exec(ctx, `
INSERT INTO applications (name, uid, resource_version, generation, owner, labels, data)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, name, app.Metadata.UID, app.Metadata.ResourceVersion, app.Metadata.Generation, owner, labelsJSON, data)
		if err != nil {
			if isUniqueViolation(err) {
				return apierr.New(apierr.KindConflict, "application already exists")
			}
			return apierr.Wrap(apierr.KindTemporary, "creating application", err)
		}

		return ob.Create(ctx, outbox.Entry{
			Instance: s.instance, App: name, Path: ".", Revision: 1, UID: app.Metadata.UID,
		})
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// GetApplication fetches an application by name, failing with NotFound
// when it does not exist. It takes no principal and performs no
// authorization check; callers such as internal/admin apply Authorize
// to the returned record.
func (s *Store) GetApplication(ctx context.Context, name string) (*Application, error) {
	row := s.pool.QueryRow(ctx, `
SELECT name, uid, resource_version, generation, owner, labels, finalizers,
       deletion_timestamp, data,
       (SELECT new_user FROM application_transfers WHERE app = name)
FROM applications WHERE name = $1
`, name)
	return scanApplication(row)
}

func scanApplication(row pgx.Row) (*Application, error) {
	var app Application
	var labelsJSON, dataJSON []byte
	var transferTo *string

	err := row.Scan(
		&app.Name, &app.Metadata.UID, &app.Metadata.ResourceVersion, &app.Metadata.Generation,
		&app.Owner, &labelsJSON, &app.Metadata.Finalizers, &app.Metadata.DeletionTimestamp,
		&dataJSON, &transferTo,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apierr.New(apierr.KindNotFound, "application not found")
		}
		return nil, apierr.Wrap(apierr.KindTemporary, "reading application", err)
	}

	app.TransferTo = transferTo
	_ = unmarshalJSON(labelsJSON, &app.Metadata.Labels)

	var data appData
	_ = unmarshalJSON(dataJSON, &data)
	app.Spec = data.Spec
	app.Status = data.Status
	return &app, nil
}

// ListApplications returns every application matching selector, applying
// limit/offset after filtering (selector matching happens in Go over
// the stored labels, since selector semantics — especially `exists`
// over arbitrary keys — don't map cleanly onto a single jsonb operator
// without per-key indexes we have no use for otherwise).
func (s *Store) ListApplications(ctx context.Context, opts ListOptions) ([]Application, error) {
	rows, err := s.pool.Query(ctx, `
SELECT name, uid, resource_version, generation, owner, labels, finalizers,
       deletion_timestamp, data,
       (SELECT new_user FROM application_transfers WHERE app = applications.name)
FROM applications ORDER BY name ASC
`)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTemporary, "listing applications", err)
	}
	defer rows.Close()

	var out []Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		if !opts.Selector.Matches(app.Metadata.Labels) {
			continue
		}
		out = append(out, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.Wrap(apierr.KindTemporary, "iterating applications", err)
	}
	return paginate(out, opts.Limit, opts.Offset), nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// UpdateApplicationSpec replaces the application's spec section,
// enforcing optimistic concurrency against expectedVersion and bumping
// resource_version (always) and generation (since the spec changed),
// per §4.2 invariant 1.
func (s *Store) UpdateApplicationSpec(ctx context.Context, name string, expectedVersion int64, spec map[string]any) (*Application, error) {
	var updated *Application
	err := s.withTx(ctx, func(tx pgx.Tx, ob *outbox.Accessor) error {
		prior, err := scanApplication(tx.QueryRow(ctx, `
SELECT name, uid, resource_version, generation, owner, labels, finalizers,
       deletion_timestamp, data, NULL
FROM applications WHERE name = $1 FOR UPDATE
`, name))
		if err != nil {
			return err
		}
		if prior.Metadata.ResourceVersion != expectedVersion {
			return apierr.New(apierr.KindOptimisticLockFailed, "resource_version mismatch")
		}

		newData := appData{Spec: spec, Status: prior.Status}
		dataJSON, err := marshalJSON(newData)
		if err != nil {
			return apierr.Wrap(apierr.KindPermanent, "marshalling application data", err)
		}

		newVersion := prior.Metadata.ResourceVersion + 1
		newGeneration := prior.Metadata.Generation + 1

		_, err = tx.Exec(ctx, `
UPDATE applications SET resource_version = $2, generation = $3, data = $4, updated_at = now()
WHERE name = $1
`, name, newVersion, newGeneration, dataJSON)
		if err != nil {
			return apierr.Wrap(apierr.KindTemporary, "updating application", err)
		}

		paths := DiffPaths(Document{Spec: prior.Spec}, Document{Spec: spec})
		for _, p := range paths {
			if err := ob.Create(ctx, outbox.Entry{
				Instance: s.instance, App: name, Path: p, Revision: uint64(newVersion), UID: prior.Metadata.UID,
			}); err != nil {
				return err
			}
		}

		prior.Metadata.ResourceVersion = newVersion
		prior.Metadata.Generation = newGeneration
		prior.Spec = spec
		updated = prior
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AddFinalizer appends finalizer if not already present, failing
// InvalidRequest if the application is already pending deletion (§4.2
// invariant 3: "adding a finalizer is allowed iff deletion_timestamp is
// unset").
func (s *Store) AddFinalizer(ctx context.Context, name, finalizer string) error {
	return s.withTx(ctx, func(tx pgx.Tx, ob *outbox.Accessor) error {
		prior, err := scanApplication(tx.QueryRow(ctx, `
SELECT name, uid, resource_version, generation, owner, labels, finalizers,
       deletion_timestamp, data, NULL
FROM applications WHERE name = $1 FOR UPDATE
`, name))
		if err != nil {
			return err
		}
		if prior.Metadata.DeletionTimestamp != nil {
			return apierr.New(apierr.KindInvalidRequest, "cannot add finalizer to application pending deletion")
		}
		for _, f := range prior.Metadata.Finalizers {
			if f == finalizer {
				return nil
			}
		}
		newVersion := prior.Metadata.ResourceVersion + 1
		finalizers := append(append([]string{}, prior.Metadata.Finalizers...), finalizer)
		_, err = tx.Exec(ctx, `
UPDATE applications SET resource_version = $2, finalizers = $3, updated_at = now() WHERE name = $1
`, name, newVersion, finalizers)
		if err != nil {
			return apierr.Wrap(apierr.KindTemporary, "adding finalizer", err)
		}
		return ob.Create(ctx, outbox.Entry{Instance: s.instance, App: name, Path: ".metadata", Revision: uint64(newVersion), UID: prior.Metadata.UID})
	})
}

// DeleteApplication performs a soft delete (setting deletion_timestamp)
// if finalizers remain, or a hard delete once the finalizer set is
// already empty (§4.2 invariant 4).
func (s *Store) DeleteApplication(ctx context.Context, name string) error {
	return s.withTx(ctx, func(tx pgx.Tx, ob *outbox.Accessor) error {
		prior, err := scanApplication(tx.QueryRow(ctx, `
SELECT name, uid, resource_version, generation, owner, labels, finalizers,
       deletion_timestamp, data, NULL
FROM applications WHERE name = $1 FOR UPDATE
`, name))
		if err != nil {
			return err
		}

		if len(prior.Metadata.Finalizers) == 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM applications WHERE name = $1`, name); err != nil {
				return apierr.Wrap(apierr.KindTemporary, "deleting application", err)
			}
			return ob.Create(ctx, outbox.Entry{Instance: s.instance, App: name, Path: ".", Revision: uint64(prior.Metadata.ResourceVersion + 1), UID: prior.Metadata.UID})
		}

		newVersion := prior.Metadata.ResourceVersion + 1
		_, err = tx.Exec(ctx, `
UPDATE applications SET resource_version = $2, deletion_timestamp = now(), updated_at = now()
WHERE name = $1
`, name, newVersion)
		if err != nil {
			return apierr.Wrap(apierr.KindTemporary, "soft-deleting application", err)
		}
		return ob.Create(ctx, outbox.Entry{Instance: s.instance, App: name, Path: ".metadata", Revision: uint64(newVersion), UID: prior.Metadata.UID})
	})
}

// RemoveFinalizer removes finalizer, hard-deleting the record once the
// set becomes empty and deletion_timestamp was already set.
func (s *Store) RemoveFinalizer(ctx context.Context, name, finalizer string) error {
	return s.withTx(ctx, func(tx pgx.Tx, ob *outbox.Accessor) error {
		prior, err := scanApplication(tx.QueryRow(ctx, `
SELECT name, uid, resource_version, generation, owner, labels, finalizers,
       deletion_timestamp, data, NULL
FROM applications WHERE name = $1 FOR UPDATE
`, name))
		if err != nil {
			return err
		}

		var remaining []string
		for _, f := range prior.Metadata.Finalizers {
			if f != finalizer {
				remaining = append(remaining, f)
			}
		}

		newVersion := prior.Metadata.ResourceVersion + 1
		if len(remaining) == 0 && prior.Metadata.DeletionTimestamp != nil {
			if _, err := tx.Exec(ctx, `DELETE FROM applications WHERE name = $1`, name); err != nil {
				return apierr.Wrap(apierr.KindTemporary, "finalizing application deletion", err)
			}
			return ob.Create(ctx, outbox.Entry{Instance: s.instance, App: name, Path: ".", Revision: uint64(newVersion), UID: prior.Metadata.UID})
		}

		_, err = tx.Exec(ctx, `
UPDATE applications SET resource_version = $2, finalizers = $3, updated_at = now() WHERE name = $1
`, name, newVersion, remaining)
		if err != nil {
			return apierr.Wrap(apierr.KindTemporary, "removing finalizer", err)
		}
		return ob.Create(ctx, outbox.Entry{Instance: s.instance, App: name, Path: ".metadata", Revision: uint64(newVersion), UID: prior.Metadata.UID})
	})
}

// SetStatusCondition upserts cond into the application's status,
// keyed by condition type, without bumping generation (a status write
// is not a spec change). Grounded on UpdateApplicationSpec's
// read-modify-write shape, reused here to give C9 a persistence path
// for the monotonic Reconciled condition.
func (s *Store) SetStatusCondition(ctx context.Context, name string, cond Condition) error {
	return s.withTx(ctx, func(tx pgx.Tx, ob *outbox.Accessor) error {
		prior, err := scanApplication(tx.QueryRow(ctx, `
SELECT name, uid, resource_version, generation, owner, labels, finalizers,
       deletion_timestamp, data, NULL
FROM applications WHERE name = $1 FOR UPDATE
`, name))
		if err != nil {
			return err
		}

		status := prior.Status
		if status == nil {
			status = map[string]any{}
		}
		conditions, _ := status["conditions"].(map[string]any)
		if conditions == nil {
			conditions = map[string]any{}
		}
		conditions[cond.Type] = map[string]any{
			"status":             cond.Status,
			"reason":             cond.Reason,
			"message":            cond.Message,
			"lastTransitionTime": cond.LastTransitionTime,
		}
		status["conditions"] = conditions

		newData := appData{Spec: prior.Spec, Status: status}
		dataJSON, err := marshalJSON(newData)
		if err != nil {
			return apierr.Wrap(apierr.KindPermanent, "marshalling application data", err)
		}

		newVersion := prior.Metadata.ResourceVersion + 1
		_, err = tx.Exec(ctx, `
UPDATE applications SET resource_version = $2, data = $3, updated_at = now() WHERE name = $1
`, name, newVersion, dataJSON)
		if err != nil {
			return apierr.Wrap(apierr.KindTemporary, "setting status condition", err)
		}
		return ob.Create(ctx, outbox.Entry{Instance: s.instance, App: name, Path: ".status", Revision: uint64(newVersion), UID: prior.Metadata.UID})
	})
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}

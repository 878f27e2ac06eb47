package registry

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/identity"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/outbox"
)

type deviceData struct {
	Spec   map[string]any `json:"spec"`
	Status map[string]any `json:"status"`
}

// CreateDevice inserts a device scoped to app, failing ReferenceNotFound
// if the application does not exist (§4.2 invariant: "device references
// a non-existent application").
func (s *Store) CreateDevice(ctx context.Context, app, name string, credentials []identity.Credential, aliases []string, labels map[string]string) (*Device, error) {
	dev := &Device{
		App:  app,
		Name: name,
		Metadata: Metadata{
			UID:               newUID(),
			ResourceVersion:   1,
			Generation:        1,
			CreationTimestamp: now(),
			Labels:            labels,
		},
		Credentials: credentials,
		Aliases:     aliases,
	}

	err := s.withTx(ctx, func(tx pgx.Tx, ob *outbox.Accessor) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM applications WHERE name = $1)`, app).Scan(&exists); err != nil {
			return apierr.Wrap(apierr.KindTemporary, "checking application existence", err)
		}
		if !exists {
			return apierr.New(apierr.KindReferenceNotFound, "application does not exist")
		}

		credsJSON, err := marshalJSON(credentials)
		if err != nil {
			return apierr.Wrap(apierr.KindPermanent, "marshalling credentials", err)
		}
		labelsJSON, err := marshalJSON(labels)
		if err != nil {
			return apierr.Wrap(apierr.KindPermanent, "marshalling labels", err)
		}
		dataJSON, err := marshalJSON(deviceData{})
		if err != nil {
			return apierr.Wrap(apierr.KindPermanent, "marshalling device data", err)
		}

		_, err = tx.Exec(ctx, `
INSERT INTO devices (app, name, uid, resource_version, generation, labels, credentials, data)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, app, name, dev.Metadata.UID, dev.Metadata.ResourceVersion, dev.Metadata.Generation, labelsJSON, credsJSON, dataJSON)
		if err != nil {
			if isUniqueViolation(err) {
				return apierr.New(apierr.KindConflict, "device already exists")
			}
			return apierr.Wrap(apierr.KindTemporary, "creating device", err)
		}

		return ob.Create(ctx, outbox.Entry{Instance: s.instance, App: app, Device: name, Path: ".", Revision: 1, UID: dev.Metadata.UID})
	})
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// GetDevice fetches a device by (app, name).
func (s *Store) GetDevice(ctx context.Context, app, name string) (*Device, error) {
	row := s.pool.QueryRow(ctx, `
SELECT app, name, uid, resource_version, generation, labels, finalizers,
       deletion_timestamp, credentials, data
FROM devices WHERE app = $1 AND name = $2
`, app, name)
	return scanDevice(row)
}

// LookupDevice adapts GetDevice to identity.Registry, the interface C1
// depends on for credential matching.
func (s *Store) LookupDevice(ctx context.Context, app, device string) (*identity.DeviceRecord, error) {
	dev, err := s.GetDevice(ctx, app, device)
	if err != nil {
		return nil, err
	}
	return &identity.DeviceRecord{
		App:         dev.App,
		Name:        dev.Name,
		Credentials: dev.Credentials,
		GatewayFor:  dev.GatewayFor,
		Aliases:     dev.Aliases,
	}, nil
}

func scanDevice(row pgx.Row) (*Device, error) {
	var dev Device
	var labelsJSON, credsJSON, dataJSON []byte

	err := row.Scan(
		&dev.App, &dev.Name, &dev.Metadata.UID, &dev.Metadata.ResourceVersion, &dev.Metadata.Generation,
		&labelsJSON, &dev.Metadata.Finalizers, &dev.Metadata.DeletionTimestamp, &credsJSON, &dataJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apierr.New(apierr.KindNotFound, "device not found")
		}
		return nil, apierr.Wrap(apierr.KindTemporary, "reading device", err)
	}

	_ = unmarshalJSON(labelsJSON, &dev.Metadata.Labels)
	_ = unmarshalJSON(credsJSON, &dev.Credentials)

	var data deviceData
	_ = unmarshalJSON(dataJSON, &data)
	dev.Spec = data.Spec
	dev.Status = data.Status
	return &dev, nil
}

// ListDevices returns every device of app matching selector (paged).
func (s *Store) ListDevices(ctx context.Context, app string, opts ListOptions) ([]Device, error) {
	rows, err := s.pool.Query(ctx, `
SELECT app, name, uid, resource_version, generation, labels, finalizers,
       deletion_timestamp, credentials, data
FROM devices WHERE app = $1 ORDER BY name ASC
`, app)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTemporary, "listing devices", err)
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		if !opts.Selector.Matches(dev.Metadata.Labels) {
			continue
		}
		out = append(out, *dev)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.Wrap(apierr.KindTemporary, "iterating devices", err)
	}
	return paginate(out, opts.Limit, opts.Offset), nil
}

// UpdateDeviceCredentials replaces a device's stored credentials,
// bumping resource_version and generation and recording the
// ".spec.credentials" outbox path named explicitly in §4.2.
func (s *Store) UpdateDeviceCredentials(ctx context.Context, app, name string, expectedVersion int64, credentials []identity.Credential) error {
	return s.withTx(ctx, func(tx pgx.Tx, ob *outbox.Accessor) error {
		prior, err := scanDevice(tx.QueryRow(ctx, `
SELECT app, name, uid, resource_version, generation, labels, finalizers,
       deletion_timestamp, credentials, data
FROM devices WHERE app = $1 AND name = $2 FOR UPDATE
`, app, name))
		if err != nil {
			return err
		}
		if prior.Metadata.ResourceVersion != expectedVersion {
			return apierr.New(apierr.KindOptimisticLockFailed, "resource_version mismatch")
		}

		credsJSON, err := marshalJSON(credentials)
		if err != nil {
			return apierr.Wrap(apierr.KindPermanent, "marshalling credentials", err)
		}

		newVersion := prior.Metadata.ResourceVersion + 1
		newGeneration := prior.Metadata.Generation + 1
		_, err = tx.Exec(ctx, `
UPDATE devices SET resource_version = $3, generation = $4, credentials = $5, updated_at = now()
WHERE app = $1 AND name = $2
`, app, name, newVersion, newGeneration, credsJSON)
		if err != nil {
			return apierr.Wrap(apierr.KindTemporary, "updating device credentials", err)
		}

		return ob.Create(ctx, outbox.Entry{Instance: s.instance, App: app, Device: name, Path: ".spec.credentials", Revision: uint64(newVersion), UID: prior.Metadata.UID})
	})
}

// DeleteDevice performs a soft or hard delete symmetric to
// DeleteApplication (§4.2 invariant 4).
func (s *Store) DeleteDevice(ctx context.Context, app, name string) error {
	return s.withTx(ctx, func(tx pgx.Tx, ob *outbox.Accessor) error {
		prior, err := scanDevice(tx.QueryRow(ctx, `
SELECT app, name, uid, resource_version, generation, labels, finalizers,
       deletion_timestamp, credentials, data
FROM devices WHERE app = $1 AND name = $2 FOR UPDATE
`, app, name))
		if err != nil {
			return err
		}

		if len(prior.Metadata.Finalizers) == 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM devices WHERE app = $1 AND name = $2`, app, name); err != nil {
				return apierr.Wrap(apierr.KindTemporary, "deleting device", err)
			}
			return ob.Create(ctx, outbox.Entry{Instance: s.instance, App: app, Device: name, Path: ".", Revision: uint64(prior.Metadata.ResourceVersion + 1), UID: prior.Metadata.UID})
		}

		newVersion := prior.Metadata.ResourceVersion + 1
		_, err = tx.Exec(ctx, `
UPDATE devices SET resource_version = $3, deletion_timestamp = now(), updated_at = now()
WHERE app = $1 AND name = $2
`, app, name, newVersion)
		if err != nil {
			return apierr.Wrap(apierr.KindTemporary, "soft-deleting device", err)
		}
		return ob.Create(ctx, outbox.Entry{Instance: s.instance, App: app, Device: name, Path: ".metadata", Revision: uint64(newVersion), UID: prior.Metadata.UID})
	})
}

package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/outbox"
)

// Store is the Postgres-backed implementation of C2. Every mutation runs
// inside a single transaction that also performs the accompanying
// outbox write (§4.2), so a caller never observes a registry change
// without its change event eventually reaching the bus. Store performs
// no authorization check; internal/admin checks before calling it.
type Store struct {
	pool     *pgxpool.Pool
	outbox   *outbox.Accessor
	instance string
}

func NewStore(pool *pgxpool.Pool, instance string) *Store {
	return &Store{pool: pool, instance: instance}
}

// withTx runs fn inside a transaction, constructing a transaction-scoped
// outbox accessor so the change row commits atomically with the change
// itself.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx, ob *outbox.Accessor) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apierr.Wrap(apierr.KindTemporary, "starting transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ob := outbox.NewAccessor(tx)
	if err := fn(tx, ob); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apierr.Wrap(apierr.KindTemporary, "committing transaction", err)
	}
	return nil
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

func unmarshalJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func newUID() string {
	return uuid.NewString()
}

func now() time.Time {
	return time.Now().UTC()
}

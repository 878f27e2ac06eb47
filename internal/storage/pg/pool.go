// Package pg wraps the pgx connection pool shared by the registry, outbox
// and session stores, plus the embedded schema migrations that provision
// their tables (and an access_tokens table) on startup.
package pg

import (
	"context"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drogue-iot/drogue-cloud-sub001/pkg/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Pool is the shared connection pool handed to every relational store.
type Pool struct {
	*pgxpool.Pool
}

// NewPool opens a connection pool against the configured database and
// waits for it to be reachable.
func NewPool(ctx context.Context, conf config.Postgres) (*Pool, error) {
	pgxConf, err := pgxpool.ParseConfig(conf.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	pgxConf.MaxConns = conf.MaxConns
	pgxConf.ConnConfig.ConnectTimeout = conf.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, pgxConf)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Pool{pool}, nil
}

// Migrate applies every pending migration embedded under migrations/.
func Migrate(conf config.Postgres) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, conf.URL)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

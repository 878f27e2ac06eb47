// Command device-state serves C5 (the device connectivity/session
// state service) over the REST surface described in spec.md §6, and
// runs the lease pruner alongside it.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/health"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/session"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/storage/pg"
	"github.com/drogue-iot/drogue-cloud-sub001/pkg/config"
	"github.com/drogue-iot/drogue-cloud-sub001/pkg/logger"
	"github.com/drogue-iot/drogue-cloud-sub001/pkg/middleware"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	conf := config.GetConf()
	log := logger.Get()

	log.Info("Starting device-state service")

	if err := pg.Migrate(conf.Postgres); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pg.NewPool(ctx, conf.Postgres)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	svc := session.NewService(pool.Pool, conf.Session.Timeout)
	pruner := session.NewPruner(svc, conf.Session.PruneInterval, log)

	e := echo.New()

	healthReg := health.NewRegistry()
	healthReg.AddReadinessCheck("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthReg.Register(e)

	e.Use(middleware.DebugBodyLogger())
	e.Use(middleware.ZapLogger())

	handlers := session.NewHandlers(svc, conf.Session.Timeout)
	session.RegisterHandlers(e, handlers)

	go pruner.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := e.Start(conf.API.Address); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	log.Info("device-state is running", zap.String("address", conf.API.Address))

	select {
	case <-sigChan:
		log.Info("received shutdown signal")
	case err := <-errChan:
		log.Error("server error", zap.Error(err))
		return err
	}

	healthReg.SetReady(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), conf.Postgres.ConnectTimeout)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("error during shutdown", zap.Error(err))
		return err
	}

	log.Info("device-state stopped")
	return nil
}

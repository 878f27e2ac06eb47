// Command integration serves C8: authenticated WebSocket consumer
// streams over an application's event backlog (replayed from the
// Mongo-backed Event Archive) followed by live bus delivery.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/admin"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/eventbus"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/health"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/integration"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/registry"
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

	log.Info("Starting integration service")

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

	instance, err := os.Hostname()
	if err != nil || instance == "" {
		instance = "integration"
	}
	store := registry.NewStore(pool.Pool, instance)

	redisClient := redis.NewClient(&redis.Options{Addr: conf.Redis.Addr, Password: conf.Redis.Password, DB: conf.Redis.DB})
	archive, err := eventbus.NewMongoArchive(ctx, conf.EventArchive)
	if err != nil {
		return fmt.Errorf("connecting to event archive: %w", err)
	}

	svc := integration.NewService(store, archive, integration.NewRedisConsumerFactory(redisClient))

	e := echo.New()

	healthReg := health.NewRegistry()
	healthReg.AddReadinessCheck("postgres", func(ctx context.Context) error { return pool.Ping(ctx) })
	healthReg.AddReadinessCheck("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	healthReg.Register(e)

	e.Use(middleware.ZapLogger())

	verifier := &middleware.Verifier{KeyFunc: middleware.StaticKeyFunc(conf.Auth.JWTSecret), Issuer: conf.Auth.JWTIssuer, Audience: conf.Auth.JWTAudience}
	e.Use(verifier.JWT())

	e.GET("/api/streaming/v1alpha1/subscribe", svc.WebSocketHandler(principalFromContext, log))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := e.Start(conf.API.Address); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	log.Info("integration is running", zap.String("address", conf.API.Address))

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

	log.Info("integration stopped")
	return nil
}

// principalFromContext mirrors api/server's extraction of the verified
// subject middleware.Verifier.JWT attaches to the request context.
func principalFromContext(c echo.Context) admin.Principal {
	return admin.Principal{UserID: middleware.CtxSub(c.Request().Context())}
}

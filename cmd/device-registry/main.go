// Command device-registry serves C2 (the application/device registry)
// and C10 (admin membership/ownership) over the REST surface described
// by api/openapi/registry.yaml, following cmd/api's echo + OpenAPI
// validation wiring.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/oapi-codegen/echo-middleware"
	"go.uber.org/zap"

	"github.com/drogue-iot/drogue-cloud-sub001/api/openapi"
	"github.com/drogue-iot/drogue-cloud-sub001/api/server"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/admin"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/health"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/identity"
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

	log.Info("Starting device-registry service")

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
		instance = "device-registry"
	}
	store := registry.NewStore(pool.Pool, instance)

	keyFunc := jwt.Keyfunc(middleware.StaticKeyFunc(conf.Auth.JWTSecret))
	users := identity.NewUserService(keyFunc, nil, identity.PassthroughProvider{})
	adminSvc := admin.NewService(store, users)

	e := echo.New()

	healthReg := health.NewRegistry()
	healthReg.AddReadinessCheck("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthReg.Register(e)

	e.Use(middleware.DebugBodyLogger())
	e.Use(middleware.ZapLogger())

	verifier := &middleware.Verifier{KeyFunc: middleware.StaticKeyFunc(conf.Auth.JWTSecret), Issuer: conf.Auth.JWTIssuer, Audience: conf.Auth.JWTAudience}
	e.Use(verifier.JWT())

	swagger, err := openapi.GetSwagger()
	if err != nil {
		log.With(zap.Error(err)).Fatal("failed to load OpenAPI spec")
	}
	swagger.Servers = nil
	e.Use(echomiddleware.OapiRequestValidatorWithOptions(swagger, &echomiddleware.Options{
		Options: openapi3filter.Options{AuthenticationFunc: openapi3filter.NoopAuthenticationFunc},
		Skipper: func(c echo.Context) bool {
			switch c.Path() {
			case "/healthz", "/readyz", "/metrics":
				return true
			default:
				return false
			}
		},
	}))

	handlers := server.NewHandlers(store, adminSvc)
	server.RegisterHandlers(e, handlers)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := e.Start(conf.API.Address); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	log.Info("device-registry is running", zap.String("address", conf.API.Address))

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

	log.Info("device-registry stopped")
	return nil
}

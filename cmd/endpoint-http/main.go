// Command endpoint-http serves the HTTP ingestion frontend of C7 (the
// protocol endpoint core): spec.md §6's `POST /v1/<channel>` route,
// Basic-auth credential extraction, and the `ttd` await-command round
// trip, driven through a fresh internal/endpointcore.Connection per
// request.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/commandrouter"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/endpointcore"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/eventbus"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/health"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/identity"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/registry"
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

	log.Info("Starting endpoint-http service")

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
		instance = "endpoint-http"
	}
	store := registry.NewStore(pool.Pool, instance)

	auth := identity.NewAuthenticationService(store)
	cache := endpointcore.NewAuthCache(conf.DeviceAuthCache.Size, conf.DeviceAuthCache.TTL, auth)

	sessions := session.NewService(pool.Pool, conf.Session.Timeout)

	redisClient := redis.NewClient(&redis.Options{Addr: conf.Redis.Addr, Password: conf.Redis.Password, DB: conf.Redis.DB})
	broker := eventbus.NewRedisBroker(redisClient, 0)
	archive, err := eventbus.NewMongoArchive(ctx, conf.EventArchive)
	if err != nil {
		return fmt.Errorf("connecting to event archive: %w", err)
	}
	bus := eventbus.NewBus(func(string) eventbus.Broker { return broker }, archive)

	router := commandrouter.NewRouter(conf.CommandRouter.MailboxCapacity, bus, log)

	e := echo.New()

	healthReg := health.NewRegistry()
	healthReg.AddReadinessCheck("postgres", func(ctx context.Context) error { return pool.Ping(ctx) })
	healthReg.AddReadinessCheck("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	healthReg.Register(e)

	e.Use(middleware.ZapLogger())

	e.POST("/v1/:channel", httpIngestHandler(cache, sessions, bus, router, conf.CommandRouter.DefaultTTD))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := e.Start(conf.API.Address); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	log.Info("endpoint-http is running", zap.String("address", conf.API.Address))

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

	log.Info("endpoint-http stopped")
	return nil
}

// credentialFromBasicAuth implements spec.md §6's "device@app:password
// or username+password" Basic-auth shape: a username containing "@"
// names the device and application directly; otherwise the username is
// either the device's own name or a separate account username, and
// identity.Matches handles the resulting ambiguity uniformly.
func credentialFromBasicAuth(user, pass, queryApp, queryDevice string) (app, device string, cred identity.Credential, ok bool) {
	app = queryApp
	device = queryDevice
	if idx := strings.IndexByte(user, '@'); idx >= 0 {
		device = user[:idx]
		app = user[idx+1:]
		return app, device, identity.Password(pass), app != "" && device != ""
	}
	if device == "" {
		device = user
	}
	if user == device {
		return app, device, identity.Password(pass), app != "" && device != ""
	}
	return app, device, identity.UserPass(user, pass), app != "" && device != ""
}

func httpIngestHandler(auth *endpointcore.AuthCache, sessions *session.Service, bus *eventbus.Bus, router *commandrouter.Router, defaultTTD time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		user, pass, ok := c.Request().BasicAuth()
		if !ok {
			return c.NoContent(http.StatusUnauthorized)
		}
		app, device, cred, ok := credentialFromBasicAuth(user, pass, c.QueryParam("application"), c.QueryParam("device"))
		if !ok {
			return c.NoContent(http.StatusBadRequest)
		}
		as := c.QueryParam("as")

		conn := endpointcore.New(auth, sessions, bus, router)
		if err := conn.Authenticate(ctx, endpointcore.AuthRequest{App: app, Device: device, Credential: cred, As: as}); err != nil {
			if apierr.KindOf(err) == apierr.KindConflict {
				return c.NoContent(http.StatusConflict)
			}
			return c.NoContent(http.StatusUnauthorized)
		}
		defer func() { _ = conn.Close(context.Background()) }()

		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return c.NoContent(http.StatusBadRequest)
		}

		outcome, err := conn.Publish(ctx, endpointcore.PublishRequest{
			Channel:     c.Param("channel"),
			Body:        body,
			ContentType: c.Request().Header.Get("Content-Type"),
		})
		if err != nil {
			return c.NoContent(http.StatusInternalServerError)
		}
		switch outcome {
		case eventbus.OutcomeRejected:
			return c.NoContent(http.StatusNotAcceptable)
		case eventbus.OutcomeQueueFull:
			return c.NoContent(http.StatusServiceUnavailable)
		}

		ttd := defaultTTD
		if v := c.QueryParam("ttd"); v != "" {
			if parsed, err := time.ParseDuration(v + "s"); err == nil {
				ttd = parsed
			}
		}
		if ttd <= 0 {
			return c.NoContent(http.StatusAccepted)
		}

		cmd, err := conn.AwaitCommand(ctx, ttd)
		if err != nil || cmd == nil {
			return c.NoContent(http.StatusAccepted)
		}
		c.Response().Header().Set("Command", cmd.Channel)
		return c.Blob(http.StatusAccepted, "application/octet-stream", cmd.Payload)
	}
}


// Command endpoint-mqtt serves a minimal line-framed TCP frontend onto
// C7's connection state machine, standing in for a full MQTT v3/v5
// CONNECT/PUBLISH/SUBSCRIBE codec. SPEC_FULL.md scopes per-protocol
// wire parsing below the state-machine boundary out of this exercise
// ("MQTT/CoAP framing ... against stdlib net/bufio"); this frontend
// exercises the same Streaming/AwaitingCommand transitions a real MQTT
// codec would drive, just framed as newline-delimited text instead of
// MQTT's binary control packets.
package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

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

	log.Info("Starting endpoint-mqtt service")

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
		instance = "endpoint-mqtt"
	}
	store := registry.NewStore(pool.Pool, instance)
	authSvc := identity.NewAuthenticationService(store)
	cache := endpointcore.NewAuthCache(conf.DeviceAuthCache.Size, conf.DeviceAuthCache.TTL, authSvc)
	sessions := session.NewService(pool.Pool, conf.Session.Timeout)

	redisClient := redis.NewClient(&redis.Options{Addr: conf.Redis.Addr, Password: conf.Redis.Password, DB: conf.Redis.DB})
	broker := eventbus.NewRedisBroker(redisClient, 0)
	archive, err := eventbus.NewMongoArchive(ctx, conf.EventArchive)
	if err != nil {
		return fmt.Errorf("connecting to event archive: %w", err)
	}
	bus := eventbus.NewBus(func(string) eventbus.Broker { return broker }, archive)
	router := commandrouter.NewRouter(conf.CommandRouter.MailboxCapacity, bus, log)

	healthPort := ":9090"
	healthReg := health.NewRegistry()
	healthReg.AddReadinessCheck("postgres", func(ctx context.Context) error { return pool.Ping(ctx) })
	healthReg.AddReadinessCheck("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	go serveHealth(healthPort, healthReg, log)

	listener, err := net.Listen("tcp", conf.API.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", conf.API.Address, err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				errChan <- fmt.Errorf("accept: %w", err)
				return
			}
			go handleConnection(ctx, conn, cache, sessions, bus, router, log)
		}
	}()

	log.Info("endpoint-mqtt is running", zap.String("address", conf.API.Address))

	select {
	case <-sigChan:
		log.Info("received shutdown signal")
	case err := <-errChan:
		log.Error("listener error", zap.Error(err))
	}

	healthReg.SetReady(false)
	_ = listener.Close()
	log.Info("endpoint-mqtt stopped")
	return nil
}

func handleConnection(ctx context.Context, conn net.Conn, auth *endpointcore.AuthCache, sessions *session.Service, bus *eventbus.Bus, router *commandrouter.Router, log *zap.Logger) {
	defer conn.Close()

	reader := bufio.NewScanner(conn)
	if !reader.Scan() {
		return
	}
	fields := strings.Fields(reader.Text())
	if len(fields) != 6 || fields[0] != "CONNECT" {
		fmt.Fprintln(conn, "CONNACK-FAIL malformed-connect")
		return
	}
	app, device, username, password, as := unescape(fields[1]), unescape(fields[2]), unescape(fields[3]), unescape(fields[4]), unescape(fields[5])

	cred := identity.Password(password)
	if username != "" && username != device {
		cred = identity.UserPass(username, password)
	}

	c := endpointcore.New(auth, sessions, bus, router)
	if err := c.Authenticate(ctx, endpointcore.AuthRequest{App: app, Device: device, Credential: cred, As: as}); err != nil {
		fmt.Fprintln(conn, "CONNACK-FAIL unauthorized")
		return
	}
	fmt.Fprintln(conn, "CONNACK-OK")
	defer func() { _ = c.Close(context.Background()) }()

	commands := c.StartStreaming()
	defer c.StopStreaming()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for reader.Scan() {
			line := strings.Fields(reader.Text())
			if len(line) < 2 || line[0] != "PUBLISH" {
				fmt.Fprintln(conn, "PUBACK-FAIL malformed-publish")
				continue
			}
			body, err := base64.StdEncoding.DecodeString(line[1])
			if err != nil {
				fmt.Fprintln(conn, "PUBACK-FAIL bad-payload")
				continue
			}
			channel := "telemetry"
			if len(line) >= 3 {
				channel = unescape(line[2])
			}
			outcome, err := c.Publish(ctx, endpointcore.PublishRequest{Channel: channel, Body: body})
			if err != nil || outcome != eventbus.OutcomeAccepted {
				fmt.Fprintln(conn, "PUBACK-FAIL rejected")
				continue
			}
			fmt.Fprintln(conn, "PUBACK-OK")
		}
	}()

	for {
		select {
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			fmt.Fprintf(conn, "COMMAND %s %s\n", cmd.Channel, base64.StdEncoding.EncodeToString(cmd.Payload))
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func unescape(s string) string {
	if s == "-" {
		return ""
	}
	return s
}

func serveHealth(addr string, reg *health.Registry, log *zap.Logger) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	reg.Register(e)
	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		log.Warn("health endpoint stopped", zap.Error(err))
	}
}

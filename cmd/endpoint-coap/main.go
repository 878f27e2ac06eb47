// Command endpoint-coap serves a minimal UDP datagram frontend onto
// C7's connection state machine, standing in for a full CoAP codec.
// SPEC_FULL.md scopes per-protocol wire parsing below the
// state-machine boundary out of this exercise; CoAP's connectionless,
// one-request-per-datagram model maps naturally onto the same
// Authenticate→Publish→Close sequence the HTTP frontend uses, so each
// datagram here carries one self-contained request instead of
// following a persistent per-device connection like the MQTT frontend.
package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

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

	log.Info("Starting endpoint-coap service")

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
		instance = "endpoint-coap"
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

	healthReg := health.NewRegistry()
	healthReg.AddReadinessCheck("postgres", func(ctx context.Context) error { return pool.Ping(ctx) })
	healthReg.AddReadinessCheck("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	go serveHealth(":9091", healthReg, log)

	udpAddr, err := net.ResolveUDPAddr("udp", conf.API.Address)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", conf.API.Address, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", conf.API.Address, err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		buf := make([]byte, 64*1024)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				errChan <- fmt.Errorf("read: %w", err)
				return
			}
			datagram := make([]byte, n)
			copy(datagram, buf[:n])
			go handleDatagram(ctx, conn, addr, datagram, cache, sessions, bus, router, conf.CommandRouter.DefaultTTD)
		}
	}()

	log.Info("endpoint-coap is running", zap.String("address", conf.API.Address))

	select {
	case <-sigChan:
		log.Info("received shutdown signal")
	case err := <-errChan:
		log.Error("listener error", zap.Error(err))
	}

	healthReg.SetReady(false)
	_ = conn.Close()
	log.Info("endpoint-coap stopped")
	return nil
}

// parseDatagram decodes the pipe-delimited request frame:
// app|device|username|password|as|channel|body
func parseDatagram(datagram []byte) (app, device, username, password, as, channel string, body []byte, ok bool) {
	parts := bytes.SplitN(datagram, []byte{'|'}, 7)
	if len(parts) != 7 {
		return "", "", "", "", "", "", nil, false
	}
	field := func(b []byte) string {
		if string(b) == "-" {
			return ""
		}
		return string(b)
	}
	return field(parts[0]), field(parts[1]), field(parts[2]), field(parts[3]), field(parts[4]), field(parts[5]), parts[6], true
}

func handleDatagram(ctx context.Context, conn *net.UDPConn, addr *net.UDPAddr, datagram []byte, auth *endpointcore.AuthCache, sessions *session.Service, bus *eventbus.Bus, router *commandrouter.Router, defaultTTD time.Duration) {
	reply := func(msg string) { _, _ = conn.WriteToUDP([]byte(msg), addr) }

	app, device, username, password, as, channel, body, ok := parseDatagram(datagram)
	if !ok {
		reply("ERR malformed\n")
		return
	}

	cred := identity.Password(password)
	if username != "" && username != device {
		cred = identity.UserPass(username, password)
	}

	c := endpointcore.New(auth, sessions, bus, router)
	if err := c.Authenticate(ctx, endpointcore.AuthRequest{App: app, Device: device, Credential: cred, As: as}); err != nil {
		reply("ERR unauthorized\n")
		return
	}
	defer func() { _ = c.Close(context.Background()) }()

	outcome, err := c.Publish(ctx, endpointcore.PublishRequest{Channel: channel, Body: body})
	if err != nil {
		reply("ERR internal\n")
		return
	}
	switch outcome {
	case eventbus.OutcomeRejected:
		reply("ERR rejected\n")
		return
	case eventbus.OutcomeQueueFull:
		reply("ERR backpressure\n")
		return
	}

	if defaultTTD <= 0 {
		reply("OK\n")
		return
	}
	cmd, err := c.AwaitCommand(ctx, defaultTTD)
	if err != nil || cmd == nil {
		reply("OK\n")
		return
	}
	_, _ = conn.WriteToUDP(append([]byte("CMD "+cmd.Channel+" "), cmd.Payload...), addr)
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

// Command reconciler runs C9's generic reconcile loop over C2's
// application store: provisioning each application's event stream on
// Construct and cascading device deletion on Deconstruct.
//
// Nothing in this repo feeds Reconciler.Enqueue from the registry's own
// change outbox yet (that would need a second, independent outbox
// cursor dedicated to this consumer) — that's future work, tracked by
// the resync loop below standing in as a pragmatic stopgap: a full
// listing of applications is periodically re-enqueued instead, trading
// immediacy for simplicity.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/eventbus"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/health"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/reconciler"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/registry"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/storage/pg"
	"github.com/drogue-iot/drogue-cloud-sub001/pkg/config"
	"github.com/drogue-iot/drogue-cloud-sub001/pkg/logger"
)

const finalizerTag = "reconciler.drogue.io/application"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	conf := config.GetConf()
	log := logger.Get()

	log.Info("Starting reconciler service")

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
		instance = "reconciler"
	}
	store := registry.NewStore(pool.Pool, instance)

	redisClient := redis.NewClient(&redis.Options{Addr: conf.Redis.Addr, Password: conf.Redis.Password, DB: conf.Redis.DB})

	adapter := reconciler.NewApplicationAdapter(store)
	operations := []reconciler.Operation{
		reconciler.NewTopicProvisioner(redisClient, eventbus.EventsTopic),
		reconciler.NewDeviceCleaner(reconciler.NewDeviceNameLister(store), store, log),
	}

	var notifier reconciler.Notifier = reconciler.NoopNotifier{}
	if conf.Reconciler.SlackWebhook != "" {
		notifier = reconciler.NewSlackNotifier(conf.Reconciler.SlackWebhook)
	}

	r := reconciler.NewReconciler("application-reconciler", finalizerTag, adapter, adapter, operations, notifier, conf.Reconciler.Workers, log)

	healthReg := health.NewRegistry()
	healthReg.AddReadinessCheck("postgres", func(ctx context.Context) error { return pool.Ping(ctx) })
	healthReg.AddReadinessCheck("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	go serveHealth(":9092", healthReg, log)

	go r.Run(ctx)
	go resyncLoop(ctx, store, r, conf.Reconciler.RequeueDelay, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Info("received shutdown signal")
	healthReg.SetReady(false)
	cancel()

	log.Info("reconciler stopped")
	return nil
}

// resyncLoop periodically lists every application and re-enqueues it,
// the stand-in for a dedicated outbox-driven enqueue path (see the
// package-level doc comment).
func resyncLoop(ctx context.Context, store *registry.Store, r *reconciler.Reconciler, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		apps, err := store.ListApplications(ctx, registry.ListOptions{})
		if err != nil {
			log.Warn("resync listing failed", zap.Error(err))
		} else {
			for _, app := range apps {
				r.Enqueue(reconciler.Key(app.Name))
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
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

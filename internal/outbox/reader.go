package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
)

// Publisher delivers one outbox entry onto the event bus. Implemented by
// internal/eventbus; declared here to avoid a storage<->bus import cycle.
type Publisher interface {
	PublishOutboxEntry(ctx context.Context, e Entry) error
}

// accessorer is the subset of *Accessor the reader needs, split out so
// tests can substitute a fake without a real database.
type accessorer interface {
	FetchUnread(ctx context.Context, before time.Duration) ([]Entry, error)
	MarkSeen(ctx context.Context, e Entry) (bool, error)
}

// Reader polls the outbox table on a fixed interval and republishes any
// row once it is older than the configured grace period, matching the
// teacher's continuous-ticker idiom (internal/scheduler/scheduler.go)
// rather than a cron-style fixed schedule.
type Reader struct {
	accessor accessorer
	pub      Publisher
	interval time.Duration
	before   time.Duration
	log      *zap.Logger
}

func NewReader(accessor *Accessor, pub Publisher, interval, before time.Duration, log *zap.Logger) *Reader {
	return &Reader{accessor: accessor, pub: pub, interval: interval, before: before, log: log}
}

// Run polls until ctx is cancelled.
func (r *Reader) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reader) tick(ctx context.Context) {
	entries, err := r.accessor.FetchUnread(ctx, r.before)
	if err != nil {
		r.log.Error("fetching unread outbox entries", zap.Error(err))
		return
	}

	for _, e := range entries {
		if err := r.pub.PublishOutboxEntry(ctx, e); err != nil {
			if apierr.Retryable(apierr.KindOf(err)) {
				r.log.Warn("publishing outbox entry, will retry next tick",
					zap.String("app", e.App), zap.String("device", e.Device), zap.Error(err))
				continue
			}
			r.log.Error("permanently failed to publish outbox entry",
				zap.String("app", e.App), zap.String("device", e.Device), zap.Error(err))
			continue
		}
		if ok, err := r.accessor.MarkSeen(ctx, e); err != nil {
			r.log.Error("marking outbox entry seen", zap.Error(err))
		} else if !ok {
			r.log.Debug("outbox entry moved on before mark-seen, skipping",
				zap.String("app", e.App), zap.String("device", e.Device))
		}
	}
}

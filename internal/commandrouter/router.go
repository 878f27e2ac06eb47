// Package commandrouter implements C6: routing a command to whichever
// endpoint instance currently holds the device's open connection. A
// device with a live mailbox on this instance receives the command
// directly; otherwise the command is forwarded to every instance over
// the shared commands topic, and whichever instance owns the device's
// mailbox claims it there.
//
// Grounded on the Rust actix CommandRouter (subscribe/unsubscribe/send
// against a process-global actor registry), translated into Go's
// idiomatic equivalent: a mutex-guarded map of bounded channels instead
// of an actor mailbox.
package commandrouter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/eventbus"
	"github.com/drogue-iot/drogue-cloud-sub001/pkg/event"
)

// DeviceKey identifies a device's mailbox, scoped by application.
type DeviceKey struct {
	App    string
	Device string
}

// Command is a single command delivered to a device, addressed by
// channel (the command name/path) with an opaque payload.
type Command struct {
	App     string
	Device  string
	Channel string
	Payload []byte
	TTD     time.Duration
}

// Router holds one bounded mailbox per device currently connected to
// this instance, and forwards commands for devices connected elsewhere
// over the shared commands bus topic.
type Router struct {
	mu        sync.Mutex
	mailboxes map[DeviceKey]chan Command
	capacity  int

	publisher Publisher
	log       *zap.Logger
}

// Publisher is the subset of eventbus.Bus a Router needs to forward a
// command to every other instance; declared here (not imported from
// eventbus.Broker directly) so Router stays unit-testable with a fake.
type Publisher interface {
	Publish(ctx context.Context, env event.Envelope) (eventbus.Outcome, error)
}

// NewRouter builds a Router. capacity bounds each device's mailbox
// (config.CommandRouter.MailboxCapacity, default 32); a full mailbox
// causes Route to report QueueFull rather than block.
func NewRouter(capacity int, publisher Publisher, log *zap.Logger) *Router {
	if capacity <= 0 {
		capacity = 32
	}
	return &Router{
		mailboxes: make(map[DeviceKey]chan Command),
		capacity:  capacity,
		publisher: publisher,
		log:       log,
	}
}

// Subscribe registers a mailbox for key, replacing any mailbox already
// registered for it (a reconnect wins over a stale connection, the same
// semantics as the Rust router's HashMap::insert).
func (r *Router) Subscribe(key DeviceKey) <-chan Command {
	ch := make(chan Command, r.capacity)
	r.mu.Lock()
	r.mailboxes[key] = ch
	r.mu.Unlock()
	return ch
}

// Unsubscribe removes key's mailbox, if it is still the one passed to
// the matching Subscribe call (a stale Unsubscribe from an already
// superseded connection must not evict the new one).
func (r *Router) Unsubscribe(key DeviceKey, ch <-chan Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.mailboxes[key]; ok && cur == ch {
		delete(r.mailboxes, key)
		close(cur)
	}
}

// Outcome classifies the result of routing a command, per §4.6.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeQueueFull Outcome = "queue_full"
	OutcomeForwarded Outcome = "forwarded"
)

// Route delivers cmd to the device's mailbox if it is held locally;
// otherwise it forwards cmd over the shared commands topic so whichever
// instance holds the mailbox can claim it (§4.6: "a command for a
// device connected to a different instance is forwarded once, without
// retry").
func (r *Router) Route(ctx context.Context, cmd Command) (Outcome, error) {
	key := DeviceKey{App: cmd.App, Device: cmd.Device}

	r.mu.Lock()
	ch, local := r.mailboxes[key]
	r.mu.Unlock()

	if local {
		select {
		case ch <- cmd:
			return OutcomeDelivered, nil
		default:
			return OutcomeQueueFull, nil
		}
	}

	if r.publisher == nil {
		return OutcomeQueueFull, apierr.New(apierr.KindNotFound, "device not connected to any instance")
	}

	env := event.Envelope{
		App:     cmd.App,
		Device:  cmd.Device,
		Channel: cmd.Channel,
		Payload: cmd.Payload,
	}
	if _, err := r.publisher.Publish(ctx, env); err != nil {
		return OutcomeQueueFull, err
	}
	return OutcomeForwarded, nil
}

// deliverLocal attempts delivery without forwarding, used by the
// forwarded-command consumer (the instance reading the shared commands
// topic) so a command that was already forwarded is never forwarded
// again.
func (r *Router) deliverLocal(cmd Command) Outcome {
	key := DeviceKey{App: cmd.App, Device: cmd.Device}
	r.mu.Lock()
	ch, local := r.mailboxes[key]
	r.mu.Unlock()
	if !local {
		return OutcomeQueueFull
	}
	select {
	case ch <- cmd:
		return OutcomeDelivered
	default:
		return OutcomeQueueFull
	}
}

// HandleForwarded processes a command received from the shared commands
// topic, claiming it if this instance holds the device's mailbox and
// silently dropping it otherwise (another instance will claim it).
func (r *Router) HandleForwarded(cmd Command) {
	outcome := r.deliverLocal(cmd)
	if r.log != nil {
		r.log.Debug("processed forwarded command",
			zap.String("app", cmd.App), zap.String("device", cmd.Device), zap.String("outcome", string(outcome)))
	}
}

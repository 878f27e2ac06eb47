package eventbus

import (
	"context"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/outbox"
	"github.com/drogue-iot/drogue-cloud-sub001/pkg/event"
)

// Outcome classifies the result of a publish attempt, per §4.4.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeRejected  Outcome = "rejected"
	OutcomeQueueFull Outcome = "queue_full"
)

// Broker is a per-application backend: the internal default (Redis
// Streams) or an external broker reached over the CloudEvents-HTTP
// sender/receiver in pkg/event. Applications choose one at creation
// time (§4.4); the Bus dispatches to whichever is configured.
type Broker interface {
	Publish(ctx context.Context, topic string, env event.Envelope) (Outcome, error)
}

// Bus is C4's public surface: publish a device event, and (via
// PublishOutboxEntry) satisfy internal/outbox.Publisher so the outbox
// reader can drain directly onto it.
type Bus struct {
	resolve func(app string) Broker
	archive Archiver
}

// Archiver seeds the Mongo-backed Event Archive every published event
// passes through before integration consumers ever see it (§4.8).
type Archiver interface {
	Append(ctx context.Context, env event.Envelope) error
}

// NewBus builds a Bus. resolve picks the Broker for a given application
// (internal default vs. external per-app broker); archive may be nil to
// disable archiving (e.g. in tests).
func NewBus(resolve func(app string) Broker, archive Archiver) *Bus {
	return &Bus{resolve: resolve, archive: archive}
}

// Publish sends env to the application's configured broker and, on
// acceptance, appends it to the Event Archive.
func (b *Bus) Publish(ctx context.Context, env event.Envelope) (Outcome, error) {
	broker := b.resolve(env.App)
	if broker == nil {
		return OutcomeRejected, nil
	}

	topic := EventsTopic(env.App)
	outcome, err := broker.Publish(ctx, topic, env)
	if err != nil || outcome != OutcomeAccepted {
		return outcome, err
	}

	if b.archive != nil {
		if err := b.archive.Append(ctx, env); err != nil {
			return outcome, err
		}
	}
	return outcome, nil
}

// PublishOutboxEntry adapts an outbox.Entry (a change-path notification,
// with no payload of its own) into an Envelope and publishes it,
// satisfying outbox.Publisher so internal/outbox.Reader can drain
// straight onto the Bus.
func (b *Bus) PublishOutboxEntry(ctx context.Context, e outbox.Entry) error {
	env := event.Envelope{
		App:         e.App,
		Device:      e.Device,
		Channel:     e.Path,
		Sender:      e.Instance,
		ContentType: "",
		Payload:     nil,
	}
	_, err := b.Publish(ctx, env)
	return err
}

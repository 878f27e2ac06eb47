package eventbus

import (
	"context"

	"github.com/drogue-iot/drogue-cloud-sub001/pkg/event"
)

// ExternalBroker publishes to a single application's own CloudEvents-HTTP
// sink (§4.4: "external broker: events are forwarded to an
// application-configured endpoint instead of the internal default"),
// wrapping the pkg/event.Sender built for that application's configured
// target URL.
type ExternalBroker struct {
	sender event.Sender
}

// NewExternalBroker wires sender, built via event.NewSender(targetURL)
// against the application's K_SINK-equivalent configuration.
func NewExternalBroker(sender event.Sender) *ExternalBroker {
	return &ExternalBroker{sender: sender}
}

// Publish forwards env as a CloudEvent to the external sink. topic is
// unused: an external broker has exactly one destination per
// application, determined at construction time.
func (b *ExternalBroker) Publish(ctx context.Context, topic string, env event.Envelope) (Outcome, error) {
	if err := b.sender.Send(ctx, env); err != nil {
		return OutcomeRejected, err
	}
	return OutcomeAccepted, nil
}

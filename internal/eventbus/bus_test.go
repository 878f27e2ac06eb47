package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/outbox"
	"github.com/drogue-iot/drogue-cloud-sub001/pkg/event"
)

type fakeBroker struct {
	outcome   Outcome
	err       error
	published []event.Envelope
}

func (b *fakeBroker) Publish(ctx context.Context, topic string, env event.Envelope) (Outcome, error) {
	b.published = append(b.published, env)
	return b.outcome, b.err
}

type fakeArchiver struct {
	appended []event.Envelope
	err      error
}

func (a *fakeArchiver) Append(ctx context.Context, env event.Envelope) error {
	a.appended = append(a.appended, env)
	return a.err
}

func TestBus_Publish_AcceptedAppendsToArchive(t *testing.T) {
	broker := &fakeBroker{outcome: OutcomeAccepted}
	archive := &fakeArchiver{}
	bus := NewBus(func(app string) Broker { return broker }, archive)

	outcome, err := bus.Publish(context.Background(), event.Envelope{App: "a1", Device: "d1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, outcome)
	assert.Len(t, archive.appended, 1)
}

func TestBus_Publish_RejectedSkipsArchive(t *testing.T) {
	broker := &fakeBroker{outcome: OutcomeRejected}
	archive := &fakeArchiver{}
	bus := NewBus(func(app string) Broker { return broker }, archive)

	outcome, err := bus.Publish(context.Background(), event.Envelope{App: "a1", Device: "d1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, outcome)
	assert.Empty(t, archive.appended)
}

func TestBus_Publish_NoBrokerForAppIsRejected(t *testing.T) {
	bus := NewBus(func(app string) Broker { return nil }, nil)
	outcome, err := bus.Publish(context.Background(), event.Envelope{App: "unknown"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, outcome)
}

func TestBus_PublishOutboxEntry_DeliversToBroker(t *testing.T) {
	broker := &fakeBroker{outcome: OutcomeAccepted}
	bus := NewBus(func(app string) Broker { return broker }, nil)

	err := bus.PublishOutboxEntry(context.Background(), outbox.Entry{App: "a1", Device: "d1", Path: ".spec.credentials"})
	require.NoError(t, err)
	require.Len(t, broker.published, 1)
	assert.Equal(t, ".spec.credentials", broker.published[0].Channel)
}

func TestBus_Publish_BrokerErrorPropagates(t *testing.T) {
	broker := &fakeBroker{outcome: OutcomeRejected, err: errors.New("boom")}
	bus := NewBus(func(app string) Broker { return broker }, nil)

	_, err := bus.Publish(context.Background(), event.Envelope{App: "a1"})
	assert.Error(t, err)
}

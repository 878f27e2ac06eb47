package commandrouter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/eventbus"
	"github.com/drogue-iot/drogue-cloud-sub001/pkg/event"
)

type fakePublisher struct {
	published []event.Envelope
	outcome   eventbus.Outcome
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, env event.Envelope) (eventbus.Outcome, error) {
	f.published = append(f.published, env)
	return f.outcome, f.err
}

func TestRouter_Route_DeliversLocally(t *testing.T) {
	r := NewRouter(4, nil, nil)
	ch := r.Subscribe(DeviceKey{App: "a1", Device: "d1"})

	outcome, err := r.Route(context.Background(), Command{App: "a1", Device: "d1", Channel: "reboot"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, outcome)

	cmd := <-ch
	assert.Equal(t, "reboot", cmd.Channel)
}

func TestRouter_Route_QueueFullWhenMailboxSaturated(t *testing.T) {
	r := NewRouter(1, nil, nil)
	r.Subscribe(DeviceKey{App: "a1", Device: "d1"})

	_, err := r.Route(context.Background(), Command{App: "a1", Device: "d1"})
	require.NoError(t, err)
	outcome, err := r.Route(context.Background(), Command{App: "a1", Device: "d1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueueFull, outcome)
}

func TestRouter_Route_ForwardsWhenNotLocal(t *testing.T) {
	pub := &fakePublisher{outcome: eventbus.OutcomeAccepted}
	r := NewRouter(4, pub, nil)

	outcome, err := r.Route(context.Background(), Command{App: "a1", Device: "d1", Channel: "reboot"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeForwarded, outcome)
	require.Len(t, pub.published, 1)
	assert.Equal(t, "d1", pub.published[0].Device)
}

func TestRouter_Unsubscribe_DoesNotEvictNewerMailbox(t *testing.T) {
	r := NewRouter(4, nil, nil)
	key := DeviceKey{App: "a1", Device: "d1"}
	first := r.Subscribe(key)
	_ = r.Subscribe(key) // reconnect, replaces first

	r.Unsubscribe(key, first)

	outcome, err := r.Route(context.Background(), Command{App: "a1", Device: "d1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, outcome)
}

func TestRouter_HandleForwarded_ClaimsLocalMailbox(t *testing.T) {
	r := NewRouter(4, nil, nil)
	ch := r.Subscribe(DeviceKey{App: "a1", Device: "d1"})

	r.HandleForwarded(Command{App: "a1", Device: "d1", Channel: "reboot"})

	cmd := <-ch
	assert.Equal(t, "reboot", cmd.Channel)
}

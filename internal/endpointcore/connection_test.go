package endpointcore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/commandrouter"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/eventbus"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/identity"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/session"
	"github.com/drogue-iot/drogue-cloud-sub001/pkg/event"
)

type fakeAuth struct {
	outcome *identity.Outcome
	err     error
}

func (f *fakeAuth) AuthenticateDevice(ctx context.Context, app, device string, cred identity.Credential, as string) (*identity.Outcome, error) {
	return f.outcome, f.err
}

type fakeSessions struct {
	claim   session.CreateOutcome
	deleted bool
}

func (f *fakeSessions) Init(ctx context.Context) (string, error) { return "sess-1", nil }
func (f *fakeSessions) Create(ctx context.Context, sess, key string) (session.CreateOutcome, error) {
	return f.claim, nil
}
func (f *fakeSessions) Delete(ctx context.Context, sess, key string) error {
	f.deleted = true
	return nil
}

type fakeBus struct {
	published event.Envelope
}

func (f *fakeBus) Publish(ctx context.Context, env event.Envelope) (eventbus.Outcome, error) {
	f.published = env
	return eventbus.OutcomeAccepted, nil
}

type fakeCommands struct {
	ch chan commandrouter.Command
}

func (f *fakeCommands) Subscribe(key commandrouter.DeviceKey) <-chan commandrouter.Command {
	return f.ch
}
func (f *fakeCommands) Unsubscribe(key commandrouter.DeviceKey, ch <-chan commandrouter.Command) {}

func TestAuthenticate_SuccessMovesToAuthorized(t *testing.T) {
	auth := &fakeAuth{outcome: &identity.Outcome{App: "app1", Device: "dev1"}}
	sessions := &fakeSessions{claim: session.Created}
	conn := New(auth, sessions, &fakeBus{}, &fakeCommands{})

	err := conn.Authenticate(context.Background(), AuthRequest{App: "app1", Device: "dev1", Credential: identity.Password("secret")})

	require.NoError(t, err)
	assert.Equal(t, StateAuthorized, conn.State())
}

func TestAuthenticate_OccupiedClosesConnection(t *testing.T) {
	auth := &fakeAuth{outcome: &identity.Outcome{App: "app1", Device: "dev1"}}
	sessions := &fakeSessions{claim: session.Occupied}
	conn := New(auth, sessions, &fakeBus{}, &fakeCommands{})

	err := conn.Authenticate(context.Background(), AuthRequest{App: "app1", Device: "dev1"})

	require.Error(t, err)
	assert.Equal(t, apierr.KindConflict, apierr.KindOf(err))
	assert.Equal(t, StateClosed, conn.State())
}

func TestAuthenticate_AuthFailureCloses(t *testing.T) {
	auth := &fakeAuth{err: apierr.New(apierr.KindAuthentication, "authentication failed")}
	conn := New(auth, &fakeSessions{}, &fakeBus{}, &fakeCommands{})

	err := conn.Authenticate(context.Background(), AuthRequest{App: "app1", Device: "dev1"})

	require.Error(t, err)
	assert.Equal(t, StateClosed, conn.State())
}

func TestPublish_GatewayAttributesToTargetDevice(t *testing.T) {
	auth := &fakeAuth{outcome: &identity.Outcome{App: "app1", Device: "gw1", As: "dev1"}}
	bus := &fakeBus{}
	conn := New(auth, &fakeSessions{claim: session.Created}, bus, &fakeCommands{})
	require.NoError(t, conn.Authenticate(context.Background(), AuthRequest{App: "app1", Device: "gw1", As: "dev1"}))

	_, err := conn.Publish(context.Background(), PublishRequest{Channel: "temp", Body: []byte(`{"t":1}`)})

	require.NoError(t, err)
	assert.Equal(t, "dev1", bus.published.Device)
	assert.Equal(t, "gw1", bus.published.Sender)
	assert.Equal(t, "dev1", bus.published.AsDevice)
	assert.Equal(t, "application/json", bus.published.ContentType)
	assert.Equal(t, StateAuthorized, conn.State())
}

func TestPublish_NonGatewayHasNoSender(t *testing.T) {
	auth := &fakeAuth{outcome: &identity.Outcome{App: "app1", Device: "dev1"}}
	bus := &fakeBus{}
	conn := New(auth, &fakeSessions{claim: session.Created}, bus, &fakeCommands{})
	require.NoError(t, conn.Authenticate(context.Background(), AuthRequest{App: "app1", Device: "dev1"}))

	_, err := conn.Publish(context.Background(), PublishRequest{Channel: "temp", Body: []byte("not json")})

	require.NoError(t, err)
	assert.Equal(t, "dev1", bus.published.Device)
	assert.Equal(t, "", bus.published.Sender)
	assert.Equal(t, "application/octet-stream", bus.published.ContentType)
}

func TestAwaitCommand_ReturnsFirstDeliveredCommand(t *testing.T) {
	auth := &fakeAuth{outcome: &identity.Outcome{App: "app1", Device: "dev1"}}
	commands := &fakeCommands{ch: make(chan commandrouter.Command, 1)}
	conn := New(auth, &fakeSessions{claim: session.Created}, &fakeBus{}, commands)
	require.NoError(t, conn.Authenticate(context.Background(), AuthRequest{App: "app1", Device: "dev1"}))

	commands.ch <- commandrouter.Command{App: "app1", Device: "dev1", Channel: "reboot"}

	cmd, err := conn.AwaitCommand(context.Background(), time.Second)

	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, "reboot", cmd.Channel)
	assert.Equal(t, StateAuthorized, conn.State())
}

func TestAwaitCommand_TimesOutWithNilCommand(t *testing.T) {
	auth := &fakeAuth{outcome: &identity.Outcome{App: "app1", Device: "dev1"}}
	commands := &fakeCommands{ch: make(chan commandrouter.Command)}
	conn := New(auth, &fakeSessions{claim: session.Created}, &fakeBus{}, commands)
	require.NoError(t, conn.Authenticate(context.Background(), AuthRequest{App: "app1", Device: "dev1"}))

	cmd, err := conn.AwaitCommand(context.Background(), 10*time.Millisecond)

	require.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestClose_DeletesSessionClaim(t *testing.T) {
	auth := &fakeAuth{outcome: &identity.Outcome{App: "app1", Device: "dev1"}}
	sessions := &fakeSessions{claim: session.Created}
	conn := New(auth, sessions, &fakeBus{}, &fakeCommands{})
	require.NoError(t, conn.Authenticate(context.Background(), AuthRequest{App: "app1", Device: "dev1"}))

	require.NoError(t, conn.Close(context.Background()))

	assert.True(t, sessions.deleted)
	assert.Equal(t, StateClosed, conn.State())
}

package endpointcore

import (
	"context"
	"time"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/commandrouter"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/eventbus"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/identity"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/session"
	"github.com/drogue-iot/drogue-cloud-sub001/pkg/event"
)

// Authenticator is the subset of C1 a Connection depends on.
type Authenticator interface {
	AuthenticateDevice(ctx context.Context, app, device string, cred identity.Credential, as string) (*identity.Outcome, error)
}

// Sessions is the subset of C5 a Connection depends on.
type Sessions interface {
	Init(ctx context.Context) (string, error)
	Create(ctx context.Context, session, key string) (session.CreateOutcome, error)
	Delete(ctx context.Context, session, key string) error
}

// Publisher is the subset of C4 a Connection depends on.
type Publisher interface {
	Publish(ctx context.Context, env event.Envelope) (eventbus.Outcome, error)
}

// Commands is the subset of C6 a Connection depends on.
type Commands interface {
	Subscribe(key commandrouter.DeviceKey) <-chan commandrouter.Command
	Unsubscribe(key commandrouter.DeviceKey, ch <-chan commandrouter.Command)
}

// AuthRequest carries the protocol-agnostic fields every frontend
// (HTTP Basic, MQTT CONNECT, CoAP handshake) reduces its own
// credential extraction down to.
type AuthRequest struct {
	App        string
	Device     string
	Credential identity.Credential
	As         string
	Instance   string
}

// Connection is one protocol-endpoint session, carrying the state
// machine described in spec.md §4.7. A Connection is not safe for
// concurrent use by multiple goroutines; each protocol frontend owns
// exactly one Connection per network connection.
type Connection struct {
	auth     Authenticator
	sessions Sessions
	bus      Publisher
	commands Commands

	state State

	app       string
	device    string // the authenticated identity (the gateway, if acting "as" another device)
	asDevice  string // the device events and commands are attributed to, if acting as a gateway
	instance  string
	sessionID string

	commandCh <-chan commandrouter.Command
}

// New builds a Connection in the Connected state.
func New(auth Authenticator, sessions Sessions, bus Publisher, commands Commands) *Connection {
	return &Connection{auth: auth, sessions: sessions, bus: bus, commands: commands, state: StateConnected}
}

func (c *Connection) State() State { return c.state }

// targetDevice is the device events/commands are attributed to: the
// gateway's "as" target if one was authorized, otherwise the
// authenticated device itself.
func (c *Connection) targetDevice() string {
	if c.asDevice != "" {
		return c.asDevice
	}
	return c.device
}

// Authenticate runs the Connected -> Authenticating -> Authorized
// transition: credential verification via C1, then session claim via
// C5. An Occupied claim rejects the connection (§4.7: "On Occupied,
// the connection is rejected with a protocol-appropriate code").
func (c *Connection) Authenticate(ctx context.Context, req AuthRequest) error {
	if c.state != StateConnected {
		return apierr.New(apierr.KindPermanent, "authenticate called out of order")
	}
	c.state = StateAuthenticating

	outcome, err := c.auth.AuthenticateDevice(ctx, req.App, req.Device, req.Credential, req.As)
	if err != nil {
		c.state = StateClosed
		return err
	}

	sessionID, err := c.sessions.Init(ctx)
	if err != nil {
		c.state = StateClosed
		return err
	}

	key := req.App + "/" + outcome.Device
	if outcome.As != "" {
		key = req.App + "/" + outcome.As
	}
	claim, err := c.sessions.Create(ctx, sessionID, key)
	if err != nil {
		c.state = StateClosed
		return err
	}
	if claim == session.Occupied {
		c.state = StateClosed
		return apierr.New(apierr.KindConflict, "device already connected elsewhere")
	}

	c.app = req.App
	c.device = outcome.Device
	c.asDevice = outcome.As
	c.instance = req.Instance
	c.sessionID = sessionID
	c.state = StateAuthorized
	return nil
}

// PublishRequest carries a single normalized inbound message.
type PublishRequest struct {
	Channel     string
	Body        []byte
	ContentType string
}

// Publish runs the Authorized/Streaming -> Publishing -> Authorized
// transition: content-type probing, envelope construction, and handoff
// to C4. §4.7's canonical CloudEvent is built by pkg/event.New when the
// external broker sends the envelope; the internal Redis broker stores
// the envelope fields as they are.
func (c *Connection) Publish(ctx context.Context, req PublishRequest) (eventbus.Outcome, error) {
	if c.state != StateAuthorized && c.state != StateStreaming {
		return eventbus.OutcomeRejected, apierr.New(apierr.KindPermanent, "publish called out of order")
	}
	prior := c.state
	c.state = StatePublishing

	env := event.Envelope{
		App:         c.app,
		Device:      c.targetDevice(),
		Channel:     req.Channel,
		Instance:    c.instance,
		Sender:      c.device,
		ContentType: ProbeContentType(req.ContentType, req.Body),
		Payload:     req.Body,
	}
	if c.asDevice == "" {
		env.Sender = ""
	} else {
		env.AsDevice = c.asDevice
	}

	outcome, err := c.bus.Publish(ctx, env)
	c.state = prior
	return outcome, err
}

// AwaitCommand implements the HTTP-only AwaitingCommand state: subscribe
// to C6 for this device, and return the first command delivered within
// ttd, or nil if none arrives before the deterministic timer expires
// (§4.7, §5 cancellation rules).
func (c *Connection) AwaitCommand(ctx context.Context, ttd time.Duration) (*commandrouter.Command, error) {
	if c.state != StateAuthorized {
		return nil, apierr.New(apierr.KindPermanent, "await-command called out of order")
	}
	c.state = StateAwaitingCommand
	defer func() { c.state = StateAuthorized }()

	key := commandrouter.DeviceKey{App: c.app, Device: c.targetDevice()}
	ch := c.commands.Subscribe(key)
	defer c.commands.Unsubscribe(key, ch)

	timer := time.NewTimer(ttd)
	defer timer.Stop()

	select {
	case cmd := <-ch:
		return &cmd, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// StartStreaming implements the MQTT/CoAP Streaming state: the returned
// channel forwards every command routed to this device until
// StopStreaming is called. A later Subscribe for the same device
// replaces this mailbox without closing the channel, which then
// receives no further commands.
func (c *Connection) StartStreaming() <-chan commandrouter.Command {
	c.state = StateStreaming
	key := commandrouter.DeviceKey{App: c.app, Device: c.targetDevice()}
	c.commandCh = c.commands.Subscribe(key)
	return c.commandCh
}

// StopStreaming drops the command receiver and returns to Authorized.
// It does not touch the session claim; Close releases that.
func (c *Connection) StopStreaming() {
	if c.commandCh == nil {
		return
	}
	key := commandrouter.DeviceKey{App: c.app, Device: c.targetDevice()}
	c.commands.Unsubscribe(key, c.commandCh)
	c.commandCh = nil
	c.state = StateAuthorized
}

// Close releases the session claim and marks the connection Closed.
func (c *Connection) Close(ctx context.Context) error {
	if c.commandCh != nil {
		c.StopStreaming()
	}
	if c.state == StateClosed || c.sessionID == "" {
		c.state = StateClosed
		return nil
	}
	key := c.app + "/" + c.targetDevice()
	err := c.sessions.Delete(ctx, c.sessionID, key)
	c.state = StateClosed
	return err
}

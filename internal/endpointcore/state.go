// Package endpointcore implements C7: the single per-connection state
// machine shared by every protocol frontend (HTTP, MQTT, CoAP),
// grounded on the Rust actix protocol-endpoint actor's Connected ->
// Authenticating -> Authorized -> Streaming/Publishing ->
// AwaitingCommand/Closed lifecycle (spec.md §4.7).
//
// MQTT/CoAP wire framing is out of scope here (spec.md §1); frontends
// adapt their own handshake/topic parsing into the AuthRequest and
// PublishRequest shapes this package accepts.
package endpointcore

// State is one stage of the per-connection lifecycle.
type State string

const (
	StateConnected       State = "connected"
	StateAuthenticating  State = "authenticating"
	StateAuthorized      State = "authorized"
	StatePublishing      State = "publishing"
	StateStreaming       State = "streaming"
	StateAwaitingCommand State = "awaiting_command"
	StateClosed          State = "closed"
)

package integration

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/admin"
	"github.com/drogue-iot/drogue-cloud-sub001/pkg/event"
)

// wireEvent is the JSON shape forwarded to a WebSocket client, exposing
// just the fields an integration consumer needs to see.
type wireEvent struct {
	App         string `json:"application"`
	Device      string `json:"device"`
	Channel     string `json:"channel"`
	Sender      string `json:"sender,omitempty"`
	AsDevice    string `json:"asDevice,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Payload     []byte `json:"payload,omitempty"`
}

func toWireEvent(env event.Envelope) wireEvent {
	return wireEvent{
		App:         env.App,
		Device:      env.Device,
		Channel:     env.Channel,
		Sender:      env.Sender,
		AsDevice:    env.AsDevice,
		ContentType: env.ContentType,
		Payload:     env.Payload,
	}
}

// upgrader is shared across requests; CheckOrigin is left at the
// gorilla/websocket default (same-origin) since this stream sits behind
// the same auth boundary as the rest of the admin/integration surface.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// WebSocketHandler upgrades the request and serves the subscribe
// protocol described in spec.md §4.8: query params `application` and
// `group` select the app and (optional) consumer group; the caller's
// principal is derived from what the bearer-token (JWT) middleware
// attached to the echo context. Access tokens are not accepted by
// cmd/integration.
func (s *Service) WebSocketHandler(principal func(echo.Context) admin.Principal, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		app := c.QueryParam("application")
		group := c.QueryParam("group")
		if app == "" {
			return c.String(http.StatusBadRequest, "application is required")
		}

		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}
		defer conn.Close()

		sub, err := s.Subscribe(c.Request().Context(), principal(c), app, group)
		if err != nil {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
			return nil
		}
		defer sub.Close()

		for _, env := range sub.Backlog {
			if err := writeEvent(conn, env); err != nil {
				return nil
			}
		}

		ctx := c.Request().Context()
		for {
			env, err := sub.Next(ctx)
			if err != nil {
				if log != nil {
					log.Debug("integration stream ended", zap.String("application", app), zap.Error(err))
				}
				return nil
			}
			if env.App != app {
				continue
			}
			if err := writeEvent(conn, env); err != nil {
				return nil
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, env event.Envelope) error {
	payload, err := json.Marshal(toWireEvent(env))
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

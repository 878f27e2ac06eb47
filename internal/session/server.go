package session

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
)

// Handlers implements the Session service REST surface (spec.md §6):
// init/ping/create/delete over the (*Service) methods, hand-written in
// the same style as api/server since no oapi-codegen input covers this
// domain either.
type Handlers struct {
	service *Service
	timeout time.Duration
}

func NewHandlers(service *Service, timeout time.Duration) *Handlers {
	return &Handlers{service: service, timeout: timeout}
}

func writeAPIError(c echo.Context, err error) error {
	kind := apierr.KindOf(err)
	return c.JSON(apierr.HTTPStatus(kind), echo.Map{"kind": kind, "message": err.Error()})
}

type initResponse struct {
	Session string    `json:"session"`
	Expires time.Time `json:"expires"`
}

// Init handles PUT /api/state/v1alpha1/sessions.
func (h *Handlers) Init(c echo.Context) error {
	id, err := h.service.Init(c.Request().Context())
	if err != nil {
		return writeAPIError(c, err)
	}
	return c.JSON(http.StatusCreated, initResponse{Session: id, Expires: time.Now().Add(h.timeout)})
}

type pingResponse struct {
	Expires time.Time `json:"expires"`
	LostIDs []string  `json:"lost_ids"`
}

// Ping handles POST /api/state/v1alpha1/sessions/{session}.
func (h *Handlers) Ping(c echo.Context) error {
	result, err := h.service.Ping(c.Request().Context(), c.Param("session"))
	if err != nil {
		return writeAPIError(c, err)
	}
	return c.JSON(http.StatusOK, pingResponse{Expires: time.Now().Add(h.timeout), LostIDs: result.LostIDs})
}

// CreateState handles PUT /api/state/v1alpha1/sessions/{session}/states/{app}/{device}.
func (h *Handlers) CreateState(c echo.Context) error {
	key := c.Param("app") + "/" + c.Param("device")
	outcome, err := h.service.Create(c.Request().Context(), c.Param("session"), key)
	if err != nil {
		return writeAPIError(c, err)
	}
	if outcome == Occupied {
		return c.NoContent(http.StatusConflict)
	}
	return c.NoContent(http.StatusCreated)
}

// DeleteState handles DELETE /api/state/v1alpha1/sessions/{session}/states/{app}/{device}.
func (h *Handlers) DeleteState(c echo.Context) error {
	key := c.Param("app") + "/" + c.Param("device")
	if err := h.service.Delete(c.Request().Context(), c.Param("session"), key); err != nil {
		return writeAPIError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RegisterHandlers wires h onto e at the Session service REST paths.
func RegisterHandlers(e *echo.Echo, h *Handlers) {
	g := e.Group("/api/state/v1alpha1")
	g.PUT("/sessions", h.Init)
	g.POST("/sessions/:session", h.Ping)
	g.PUT("/sessions/:session/states/:app/:device", h.CreateState)
	g.DELETE("/sessions/:session/states/:app/:device", h.DeleteState)
}

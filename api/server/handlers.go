package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/admin"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/identity"
	"github.com/drogue-iot/drogue-cloud-sub001/internal/registry"
	"github.com/drogue-iot/drogue-cloud-sub001/pkg/middleware"
)

// RegistryStore is the subset of C2 the handlers depend on.
type RegistryStore interface {
	CreateApplication(ctx context.Context, name, owner string, labels map[string]string) (*registry.Application, error)
	GetApplication(ctx context.Context, name string) (*registry.Application, error)
	ListApplications(ctx context.Context, opts registry.ListOptions) ([]registry.Application, error)
	UpdateApplicationSpec(ctx context.Context, name string, expectedVersion int64, spec map[string]any) (*registry.Application, error)
	DeleteApplication(ctx context.Context, name string) error
	CreateDevice(ctx context.Context, app, name string, credentials []identity.Credential, aliases []string, labels map[string]string) (*registry.Device, error)
	GetDevice(ctx context.Context, app, name string) (*registry.Device, error)
	ListDevices(ctx context.Context, app string, opts registry.ListOptions) ([]registry.Device, error)
	DeleteDevice(ctx context.Context, app, name string) error
}

// AdminService is the subset of C10 the handlers depend on.
type AdminService interface {
	TransferOwnership(ctx context.Context, caller admin.Principal, app, newUser string) error
	AcceptOwnership(ctx context.Context, caller admin.Principal, app string) error
	GetMembers(ctx context.Context, caller admin.Principal, app string) ([]registry.Member, error)
	SetMembers(ctx context.Context, caller admin.Principal, app string, expectedVersion int64, members []registry.Member) error
}

// Handlers implements the registry/admin REST surface described by
// api/openapi/registry.yaml.
type Handlers struct {
	registry RegistryStore
	admin    AdminService
}

func NewHandlers(reg RegistryStore, adm AdminService) *Handlers {
	return &Handlers{registry: reg, admin: adm}
}

func principal(c echo.Context) admin.Principal {
	return admin.Principal{UserID: middleware.CtxSub(c.Request().Context())}
}

func writeAPIError(c echo.Context, err error) error {
	kind := apierr.KindOf(err)
	return c.JSON(apierr.HTTPStatus(kind), echo.Map{"kind": kind, "message": err.Error()})
}

func listOptionsFromQuery(c echo.Context) (registry.ListOptions, error) {
	sel, err := registry.ParseSelector(c.QueryParam("labels"))
	if err != nil {
		return registry.ListOptions{}, apierr.New(apierr.KindInvalidRequest, "invalid labels selector")
	}
	opts := registry.ListOptions{Selector: sel}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return registry.ListOptions{}, apierr.New(apierr.KindInvalidRequest, "invalid limit")
		}
		opts.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return registry.ListOptions{}, apierr.New(apierr.KindInvalidRequest, "invalid offset")
		}
		opts.Offset = n
	}
	return opts, nil
}

// ListApplications handles GET /api/registry/v1alpha1/apps.
func (h *Handlers) ListApplications(c echo.Context) error {
	opts, err := listOptionsFromQuery(c)
	if err != nil {
		return writeAPIError(c, err)
	}
	apps, err := h.registry.ListApplications(c.Request().Context(), opts)
	if err != nil {
		return writeAPIError(c, err)
	}
	out := make([]ApplicationDTO, len(apps))
	for i := range apps {
		out[i] = ToApplicationDTO(&apps[i])
	}
	return c.JSON(http.StatusOK, out)
}

// CreateApplication handles POST /api/registry/v1alpha1/apps.
func (h *Handlers) CreateApplication(c echo.Context) error {
	var req CreateApplicationRequest
	if err := c.Bind(&req); err != nil {
		return writeAPIError(c, apierr.New(apierr.KindInvalidRequest, "malformed request body"))
	}
	app, err := h.registry.CreateApplication(c.Request().Context(), req.Name, req.Owner, req.Labels)
	if err != nil {
		return writeAPIError(c, err)
	}
	return c.JSON(http.StatusCreated, ToApplicationDTO(app))
}

// GetApplication handles GET /api/registry/v1alpha1/apps/{name}.
func (h *Handlers) GetApplication(c echo.Context) error {
	app, err := h.registry.GetApplication(c.Request().Context(), c.Param("name"))
	if err != nil {
		return writeAPIError(c, err)
	}
	return c.JSON(http.StatusOK, ToApplicationDTO(app))
}

// UpdateApplication handles PUT /api/registry/v1alpha1/apps/{name}.
func (h *Handlers) UpdateApplication(c echo.Context) error {
	var req UpdateApplicationRequest
	if err := c.Bind(&req); err != nil {
		return writeAPIError(c, apierr.New(apierr.KindInvalidRequest, "malformed request body"))
	}
	app, err := h.registry.UpdateApplicationSpec(c.Request().Context(), c.Param("name"), req.ResourceVersion, req.Spec)
	if err != nil {
		return writeAPIError(c, err)
	}
	return c.JSON(http.StatusOK, ToApplicationDTO(app))
}

// DeleteApplication handles DELETE /api/registry/v1alpha1/apps/{name}.
func (h *Handlers) DeleteApplication(c echo.Context) error {
	if err := h.registry.DeleteApplication(c.Request().Context(), c.Param("name")); err != nil {
		return writeAPIError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListDevices handles GET /api/registry/v1alpha1/apps/{name}/devices.
func (h *Handlers) ListDevices(c echo.Context) error {
	opts, err := listOptionsFromQuery(c)
	if err != nil {
		return writeAPIError(c, err)
	}
	devices, err := h.registry.ListDevices(c.Request().Context(), c.Param("name"), opts)
	if err != nil {
		return writeAPIError(c, err)
	}
	out := make([]DeviceDTO, len(devices))
	for i := range devices {
		out[i] = ToDeviceDTO(&devices[i])
	}
	return c.JSON(http.StatusOK, out)
}

// CreateDevice handles POST /api/registry/v1alpha1/apps/{name}/devices.
func (h *Handlers) CreateDevice(c echo.Context) error {
	var req CreateDeviceRequest
	if err := c.Bind(&req); err != nil {
		return writeAPIError(c, apierr.New(apierr.KindInvalidRequest, "malformed request body"))
	}
	device, err := h.registry.CreateDevice(c.Request().Context(), c.Param("name"), req.Name, req.toCredentials(), req.Aliases, req.Labels)
	if err != nil {
		return writeAPIError(c, err)
	}
	return c.JSON(http.StatusCreated, ToDeviceDTO(device))
}

// GetDevice handles GET /api/registry/v1alpha1/apps/{name}/devices/{device}.
func (h *Handlers) GetDevice(c echo.Context) error {
	device, err := h.registry.GetDevice(c.Request().Context(), c.Param("name"), c.Param("device"))
	if err != nil {
		return writeAPIError(c, err)
	}
	return c.JSON(http.StatusOK, ToDeviceDTO(device))
}

// DeleteDevice handles DELETE /api/registry/v1alpha1/apps/{name}/devices/{device}.
func (h *Handlers) DeleteDevice(c echo.Context) error {
	if err := h.registry.DeleteDevice(c.Request().Context(), c.Param("name"), c.Param("device")); err != nil {
		return writeAPIError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// TransferOwnership handles POST .../transfer-ownership.
func (h *Handlers) TransferOwnership(c echo.Context) error {
	var req TransferOwnershipRequest
	if err := c.Bind(&req); err != nil {
		return writeAPIError(c, apierr.New(apierr.KindInvalidRequest, "malformed request body"))
	}
	if err := h.admin.TransferOwnership(c.Request().Context(), principal(c), c.Param("name"), req.NewUser); err != nil {
		return writeAPIError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

// AcceptOwnership handles POST .../accept-ownership.
func (h *Handlers) AcceptOwnership(c echo.Context) error {
	if err := h.admin.AcceptOwnership(c.Request().Context(), principal(c), c.Param("name")); err != nil {
		return writeAPIError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

// GetMembers handles GET .../members.
func (h *Handlers) GetMembers(c echo.Context) error {
	members, err := h.admin.GetMembers(c.Request().Context(), principal(c), c.Param("name"))
	if err != nil {
		return writeAPIError(c, err)
	}
	out := make([]MemberDTO, len(members))
	for i, m := range members {
		out[i] = MemberDTO{UserID: m.UserID, Role: string(m.Role)}
	}
	return c.JSON(http.StatusOK, out)
}

// SetMembers handles PUT .../members.
func (h *Handlers) SetMembers(c echo.Context) error {
	var req SetMembersRequest
	if err := c.Bind(&req); err != nil {
		return writeAPIError(c, apierr.New(apierr.KindInvalidRequest, "malformed request body"))
	}
	version, err := strconv.ParseInt(c.QueryParam("resourceVersion"), 10, 64)
	if err != nil {
		return writeAPIError(c, apierr.New(apierr.KindInvalidRequest, "resourceVersion is required"))
	}
	if err := h.admin.SetMembers(c.Request().Context(), principal(c), c.Param("name"), version, req.toMembers()); err != nil {
		return writeAPIError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

package server

import "github.com/labstack/echo/v4"

// RegisterHandlers wires h onto e at the paths described by
// api/openapi/registry.yaml, mirroring the teacher's generated
// RegisterHandlers(e, h) call site even though this routing table is
// hand-written rather than oapi-codegen output.
func RegisterHandlers(e *echo.Echo, h *Handlers) {
	g := e.Group("/api/registry/v1alpha1")
	g.GET("/apps", h.ListApplications)
	g.POST("/apps", h.CreateApplication)
	g.GET("/apps/:name", h.GetApplication)
	g.PUT("/apps/:name", h.UpdateApplication)
	g.DELETE("/apps/:name", h.DeleteApplication)
	g.GET("/apps/:name/devices", h.ListDevices)
	g.POST("/apps/:name/devices", h.CreateDevice)
	g.GET("/apps/:name/devices/:device", h.GetDevice)
	g.DELETE("/apps/:name/devices/:device", h.DeleteDevice)

	admin := e.Group("/api/admin/v1alpha1")
	admin.POST("/apps/:name/transfer-ownership", h.TransferOwnership)
	admin.POST("/apps/:name/accept-ownership", h.AcceptOwnership)
	admin.GET("/apps/:name/members", h.GetMembers)
	admin.PUT("/apps/:name/members", h.SetMembers)
}

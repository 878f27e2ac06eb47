// Package health implements C11: liveness/readiness probes and the
// Prometheus metrics registry shared by every binary, plus a
// request-scoped trace-id threaded through zap fields as the minimal
// form of tracing propagation (no external tracing backend is wired,
// per DESIGN.md).
package health

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checker reports whether a dependency (database, bus, ...) is
// currently reachable; the /readyz handler installed by Register runs
// every registered Checker and fails on the first error.
type Checker func(ctx context.Context) error

// Registry holds the metrics registry and the set of readiness checks
// for one binary, grounded on wisbric-nightowl's httpserver.Server
// (a *prometheus.Registry wired into promhttp.HandlerFor, a plain
// echo route for health).
type Registry struct {
	metrics  *prometheus.Registry
	checkers map[string]Checker
	ready    atomic.Bool
}

// NewRegistry builds a Registry with its own Prometheus registry,
// pre-registering the standard Go/process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	r := &Registry{metrics: reg, checkers: make(map[string]Checker)}
	r.ready.Store(true)
	return r
}

// MustRegister registers application-specific collectors (counters,
// histograms, ...) with the underlying Prometheus registry.
func (r *Registry) MustRegister(collectors ...prometheus.Collector) {
	r.metrics.MustRegister(collectors...)
}

// AddReadinessCheck adds a named dependency check consulted by
// /readyz; any failing checker flips the response to 503.
func (r *Registry) AddReadinessCheck(name string, check Checker) {
	r.checkers[name] = check
}

// SetReady overrides the readiness gate directly — used during shutdown
// to fail /readyz before the process actually stops accepting
// connections, so a load balancer drains traffic first.
func (r *Registry) SetReady(ready bool) {
	r.ready.Store(ready)
}

// Register wires /healthz, /readyz and /metrics onto e. Middleware added
// with e.Use still runs for these routes whatever the registration
// order; pkg/middleware's JWT verifier skips /healthz and /readyz by
// path, and its request and body loggers skip /healthz.
func (r *Registry) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/readyz", func(c echo.Context) error {
		if !r.ready.Load() {
			return c.NoContent(http.StatusServiceUnavailable)
		}
		for name, check := range r.checkers {
			if err := check(c.Request().Context()); err != nil {
				return c.String(http.StatusServiceUnavailable, name+": "+err.Error())
			}
		}
		return c.NoContent(http.StatusOK)
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(r.metrics, promhttp.HandlerOpts{})))
}

// TraceIDMiddleware assigns a request-scoped trace id (reusing an
// inbound X-Trace-Id if present) and stores it on the echo context so
// handlers can thread it through zap fields.
func TraceIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get("X-Trace-Id")
			if id == "" {
				id = uuid.NewString()
			}
			c.Set("trace_id", id)
			c.Response().Header().Set("X-Trace-Id", id)
			return next(c)
		}
	}
}

// TraceID reads the trace id set by TraceIDMiddleware, or "" if absent.
func TraceID(c echo.Context) string {
	id, _ := c.Get("trace_id").(string)
	return id
}

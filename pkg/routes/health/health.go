// Package health exposes liveness, readiness and dependency checks.
package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/szsalyi/customization-poc-sub000/pkg/database"
	"github.com/szsalyi/customization-poc-sub000/pkg/redis"
)

// Checker handles health check endpoints.
type Checker struct {
	db        database.DB
	redis     *redis.Client
	version   string
	startTime time.Time
	ready     atomic.Bool
}

// NewChecker creates a new health checker. redis may be nil.
func NewChecker(db database.DB, redisClient *redis.Client, version string) *Checker {
	return &Checker{
		db:        db,
		redis:     redisClient,
		version:   version,
		startTime: time.Now(),
	}
}

// SetReady sets the readiness state.
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

// RegisterRoutes registers health check endpoints.
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/health", c.Health)
	e.GET("/api/v1/health/live", c.Live)
	e.GET("/api/v1/health/ready", c.Ready)
}

// HealthStatus is the health check response.
type HealthStatus struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	Uptime     string                  `json:"uptime"`
	Checks     map[string]*CheckResult `json:"checks"`
	ReportedAt time.Time               `json:"reported_at"`
}

// CheckResult is one dependency check.
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Health returns the overall health status.
func (c *Checker) Health(ectx echo.Context) error {
	ctx, cancel := context.WithTimeout(ectx.Request().Context(), 3*time.Second)
	defer cancel()

	status := &HealthStatus{
		Status:     "healthy",
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     make(map[string]*CheckResult),
		ReportedAt: time.Now(),
	}

	if c.db != nil {
		start := time.Now()
		err := c.db.PingContext(ctx)
		latency := time.Since(start)

		if err != nil {
			status.Status = "unhealthy"
			status.Checks["database"] = &CheckResult{Status: "unhealthy", Message: err.Error()}
		} else {
			status.Checks["database"] = &CheckResult{Status: "healthy", Latency: latency.String()}
		}
	} else {
		status.Status = "unhealthy"
		status.Checks["database"] = &CheckResult{Status: "unhealthy", Message: "database not configured"}
	}

	if c.redis != nil {
		start := time.Now()
		err := c.redis.Ping(ctx)
		latency := time.Since(start)

		if err != nil {
			status.Status = "unhealthy"
			status.Checks["redis"] = &CheckResult{Status: "unhealthy", Message: err.Error()}
		} else {
			status.Checks["redis"] = &CheckResult{Status: "healthy", Latency: latency.String()}
		}
	}

	httpStatus := http.StatusOK
	if status.Status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	return ectx.JSON(httpStatus, status)
}

// Live reports that the process is running.
func (c *Checker) Live(ectx echo.Context) error {
	return ectx.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

// Ready reports whether the service accepts traffic.
func (c *Checker) Ready(ectx echo.Context) error {
	if c.ready.Load() {
		return ectx.JSON(http.StatusOK, map[string]string{"status": "ready"})
	}
	return ectx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
}

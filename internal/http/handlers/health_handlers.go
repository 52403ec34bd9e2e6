package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// HealthHandlers reports liveness of the gateway and its storage media
type HealthHandlers struct {
	checks  map[string]HealthCheck
	timeout time.Duration
}

// NewHealthHandlers creates health handlers running checks on every request
func NewHealthHandlers(checks map[string]HealthCheck) *HealthHandlers {
	return &HealthHandlers{checks: checks, timeout: 2 * time.Second}
}

// Health answers 200 when every check passes and 503 otherwise
func (h *HealthHandlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := gin.H{}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	c.JSON(status, gin.H{"ok": status == http.StatusOK, "checks": results})
}

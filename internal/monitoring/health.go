package monitoring

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthCheck struct {
	Name    string    `json:"name"`
	Status  string    `json:"status"`
	Message string    `json:"message,omitempty"`
	LastRun time.Time `json:"last_run"`
}

type HealthCheckFunc func(ctx context.Context) error

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// RegisterHealthCheck adds a named dependency check. Checks run on every
// health or readiness request.
func (m *Monitor) RegisterHealthCheck(name string, check HealthCheckFunc) {
	m.checksMu.Lock()
	defer m.checksMu.Unlock()
	m.checks[name] = check
}

// RunHealthChecks runs every registered check with a shared timeout.
func (m *Monitor) RunHealthChecks(ctx context.Context) []HealthCheck {
	m.checksMu.RLock()
	names := make([]string, 0, len(m.checks))
	for name := range m.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthCheckFunc, len(m.checks))
	for k, v := range m.checks {
		checks[k] = v
	}
	m.checksMu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	results := make([]HealthCheck, 0, len(names))
	for _, name := range names {
		result := HealthCheck{Name: name, Status: statusHealthy, LastRun: time.Now()}
		if err := checks[name](ctx); err != nil {
			result.Status = statusUnhealthy
			result.Message = err.Error()
		}
		results = append(results, result)
	}
	return results
}

func healthy(checks []HealthCheck) bool {
	for _, check := range checks {
		if check.Status != statusHealthy {
			return false
		}
	}
	return true
}

func (m *Monitor) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := m.RunHealthChecks(c.Request.Context())

		status, code := statusHealthy, http.StatusOK
		if !healthy(checks) {
			status, code = statusUnhealthy, http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now(),
			"checks":    checks,
			"uptime":    m.Uptime().String(),
		})
	}
}

func (m *Monitor) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if healthy(m.RunHealthChecks(c.Request.Context())) {
			c.JSON(http.StatusOK, gin.H{"status": "ready", "timestamp": time.Now()})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "timestamp": time.Now()})
	}
}

func (m *Monitor) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"timestamp": time.Now(),
			"uptime":    m.Uptime().String(),
		})
	}
}

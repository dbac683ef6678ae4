package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"askpdf/internal/transport/http/response"
)

// DependencyCheck reports whether one backing service is reachable.
type DependencyCheck func(ctx context.Context) error

type HealthHandler struct {
	appName   string
	env       string
	startedAt time.Time
	checks    map[string]DependencyCheck
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(appName, env string, startedAt time.Time, checks map[string]DependencyCheck) *HealthHandler {
	return &HealthHandler{
		appName:   appName,
		env:       env,
		startedAt: startedAt,
		checks:    checks,
	}
}

func (h *HealthHandler) Welcome(c *gin.Context) {
	response.Message(c, "Welcome to AskPDF API. Use /api/health to check status.")
}

// Liveness answers as long as the process serves requests.
func (h *HealthHandler) Liveness(c *gin.Context) {
	response.OK(c, gin.H{"status": "ok"})
}

// Check pings every dependency and answers 503 when any of them fails.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	allOK := true
	deps := make(map[string]dependencyStatus, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			allOK = false
			deps[name] = dependencyStatus{OK: false, Message: err.Error()}
			continue
		}
		deps[name] = dependencyStatus{OK: true}
	}

	statusCode := http.StatusOK
	if !allOK {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"app":          h.appName,
		"env":          h.env,
		"uptime_sec":   int(time.Since(h.startedAt).Seconds()),
		"dependencies": deps,
	})
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/esiclivre/esic-api/internal/services"
)

// HealthHandler serves service health endpoints
type HealthHandler struct {
	services *services.Container
	logger   *logrus.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(services *services.Container, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{services: services, logger: logger}
}

// GetHealth godoc
// @Summary Service health
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) GetHealth(c *gin.Context) {
	health := h.services.Health()

	status := "healthy"
	code := http.StatusOK
	if db, ok := health["database"].(map[string]interface{}); ok {
		if db["status"] == "unhealthy" {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	c.JSON(code, gin.H{
		"status":    status,
		"service":   "esic-api",
		"timestamp": time.Now(),
		"checks":    health,
	})
}

// GetLiveness godoc
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/live [get]
func (h *HealthHandler) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive", "timestamp": time.Now()})
}

// GetReadiness godoc
// @Summary Readiness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/ready [get]
func (h *HealthHandler) GetReadiness(c *gin.Context) {
	if h.services.Store != nil {
		if err := h.services.Store.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "not ready",
				"error":     err.Error(),
				"timestamp": time.Now(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "timestamp": time.Now()})
}

package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/esiclivre/esic-api/internal/api/dto"
	"github.com/esiclivre/esic-api/internal/esic"
)

// WorkerHandler controls the background worker lifecycle
type WorkerHandler struct {
	state       *esic.State
	coordinator *esic.Coordinator
	logger      *logrus.Logger
}

// NewWorkerHandler creates a new worker handler
func NewWorkerHandler(state *esic.State, coordinator *esic.Coordinator, logger *logrus.Logger) *WorkerHandler {
	return &WorkerHandler{state: state, coordinator: coordinator, logger: logger}
}

// Start godoc
// @Summary Start the background worker
// @Tags worker
// @Produce json
// @Success 200 {object} dto.WorkerStatusResponse
// @Router /api/v1/worker/start [post]
func (h *WorkerHandler) Start(c *gin.Context) {
	h.coordinator.Start(context.Background())
	h.logger.WithField("component", "api").Info("Worker start requested")
	c.JSON(http.StatusOK, dto.WorkerStatusResponse{Running: h.coordinator.Running()})
}

// Stop godoc
// @Summary Stop the background worker
// @Tags worker
// @Produce json
// @Success 200 {object} dto.WorkerStatusResponse
// @Router /api/v1/worker/stop [post]
func (h *WorkerHandler) Stop(c *gin.Context) {
	h.state.RequestStop()
	h.logger.WithField("component", "api").Info("Worker stop requested")
	c.JSON(http.StatusOK, dto.WorkerStatusResponse{Running: h.coordinator.Running()})
}

// RunOnce godoc
// @Summary Run a single worker pass
// @Tags worker
// @Produce json
// @Success 200 {object} dto.WorkerStatusResponse
// @Router /api/v1/worker/run-once [post]
func (h *WorkerHandler) RunOnce(c *gin.Context) {
	h.coordinator.RunOnce(context.Background())
	h.logger.WithField("component", "api").Info("Single worker pass requested")
	c.JSON(http.StatusOK, dto.WorkerStatusResponse{Running: h.coordinator.Running()})
}

// Status godoc
// @Summary Report worker status
// @Tags worker
// @Produce json
// @Success 200 {object} dto.WorkerStatusResponse
// @Router /api/v1/worker/status [get]
func (h *WorkerHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, dto.WorkerStatusResponse{Running: h.coordinator.Running()})
}

// SetCaptcha godoc
// @Summary Supply a challenge answer for the next login attempt
// @Tags worker
// @Produce json
// @Param value path string true "Challenge answer"
// @Success 200 {object} dto.StatusResponse
// @Router /api/v1/captcha/{value} [post]
func (h *WorkerHandler) SetCaptcha(c *gin.Context) {
	h.state.SetAnswer(c.Param("value"))
	h.logger.WithField("component", "api").Info("Challenge answer supplied")
	c.JSON(http.StatusOK, dto.StatusResponse{Status: "ok"})
}

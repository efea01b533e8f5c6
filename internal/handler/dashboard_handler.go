package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meridianpsych/practice-api/internal/service"
	"github.com/meridianpsych/practice-api/pkg/response"
)

// DashboardHandler serves the ops dashboard aggregates.
type DashboardHandler struct {
	service *service.DashboardService
	metrics *service.MetricsService
}

// NewDashboardHandler creates a new handler.
func NewDashboardHandler(svc *service.DashboardService, metrics *service.MetricsService) *DashboardHandler {
	return &DashboardHandler{service: svc, metrics: metrics}
}

// Summary godoc
// @Summary Dashboard summary
// @Description Appointment, message, subscriber and content aggregates
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/dashboard [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// System godoc
// @Summary Runtime metrics snapshot
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/dashboard/system [get]
func (h *DashboardHandler) System(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meridianpsych/practice-api/internal/service"
	appErrors "github.com/meridianpsych/practice-api/pkg/errors"
	"github.com/meridianpsych/practice-api/pkg/response"
)

// AvailabilityHandler exposes the availability resolver and the two schedule
// edit operations.
type AvailabilityHandler struct {
	service *service.AvailabilityService
}

// NewAvailabilityHandler creates a new handler.
func NewAvailabilityHandler(svc *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc}
}

// OpenSlots godoc
// @Summary Open slots for a date
// @Description Bookable times for the public scheduling picker
// @Tags Availability
// @Produce json
// @Param date path string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /availability/{date} [get]
func (h *AvailabilityHandler) OpenSlots(c *gin.Context) {
	day, err := h.service.OpenSlots(c.Request.Context(), c.Param("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, day, nil)
}

// Resolve godoc
// @Summary Full effective schedule for a date
// @Description Merged view including booked slots and their appointments
// @Tags Availability
// @Produce json
// @Param date path string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/availability/{date} [get]
func (h *AvailabilityHandler) Resolve(c *gin.Context) {
	day, err := h.service.Resolve(c.Request.Context(), c.Param("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, day, nil)
}

// ListRecurring godoc
// @Summary Weekly recurring template
// @Tags Availability
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/availability/recurring [get]
func (h *AvailabilityHandler) ListRecurring(c *gin.Context) {
	slots, err := h.service.ListRecurring(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// BulkRecurringEdit godoc
// @Summary Replace recurring slots for selected weekdays
// @Description Replaces every slot on the listed weekdays with the weekday x time cross product
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body service.BulkRecurringEditRequest true "Edit payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/availability/recurring [put]
func (h *AvailabilityHandler) BulkRecurringEdit(c *gin.Context) {
	var req service.BulkRecurringEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid recurring edit payload"))
		return
	}

	slots, err := h.service.ApplyBulkRecurringEdit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// DateOverrideEdit godoc
// @Summary Set the final open times for one date
// @Description Stores only the diff against the recurring baseline
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body service.DateOverrideEditRequest true "Edit payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/availability/overrides [put]
func (h *AvailabilityHandler) DateOverrideEdit(c *gin.Context) {
	var req service.DateOverrideEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid override edit payload"))
		return
	}

	overrides, err := h.service.ApplyDateOverrideEdit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overrides, nil)
}

package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meridianpsych/practice-api/internal/models"
	"github.com/meridianpsych/practice-api/internal/service"
	appErrors "github.com/meridianpsych/practice-api/pkg/errors"
	"github.com/meridianpsych/practice-api/pkg/response"
)

// AppointmentHandler wires HTTP endpoints to the appointment service.
type AppointmentHandler struct {
	service *service.AppointmentService
	metrics *service.MetricsService
}

// NewAppointmentHandler creates a new handler.
func NewAppointmentHandler(svc *service.AppointmentService, metrics *service.MetricsService) *AppointmentHandler {
	return &AppointmentHandler{service: svc, metrics: metrics}
}

// Book godoc
// @Summary Book an open slot
// @Description Public booking endpoint, creates a pending appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param payload body service.BookAppointmentRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments [post]
func (h *AppointmentHandler) Book(c *gin.Context) {
	var req service.BookAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid booking payload"))
		return
	}

	appt, err := h.service.Book(c.Request.Context(), req)
	if err != nil {
		switch appErrors.FromError(err).Code {
		case appErrors.ErrSlotTaken.Code:
			h.metrics.RecordBooking("conflict")
		default:
			h.metrics.RecordBooking("rejected")
		}
		response.Error(c, err)
		return
	}

	h.metrics.RecordBooking("accepted")
	response.Created(c, appt)
}

// List godoc
// @Summary List appointments
// @Tags Appointments
// @Produce json
// @Param status query string false "Comma-separated statuses"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Param search query string false "Client name or email"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/appointments [get]
func (h *AppointmentHandler) List(c *gin.Context) {
	filter := models.AppointmentFilter{Search: c.Query("search")}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, models.AppointmentStatus(strings.TrimSpace(s)))
		}
	}
	if raw := c.Query("from"); raw != "" {
		if from, err := time.Parse("2006-01-02", raw); err == nil {
			filter.DateFrom = &from
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err := time.Parse("2006-01-02", raw); err == nil {
			filter.DateTo = &to
		}
	}

	appointments, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appointments, pagination)
}

// Get godoc
// @Summary Appointment details
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/appointments/{id} [get]
func (h *AppointmentHandler) Get(c *gin.Context) {
	appt, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appt, nil)
}

// Update godoc
// @Summary Update appointment contact details
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body service.UpdateAppointmentRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/appointments/{id} [put]
func (h *AppointmentHandler) Update(c *gin.Context) {
	var req service.UpdateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid appointment payload"))
		return
	}

	appt, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appt, nil)
}

// Transition godoc
// @Summary Move an appointment through its lifecycle
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body map[string]string true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/appointments/{id}/status [put]
func (h *AppointmentHandler) Transition(c *gin.Context) {
	var payload struct {
		Status models.AppointmentStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "status required"))
		return
	}

	appt, err := h.service.Transition(c.Request.Context(), c.Param("id"), payload.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appt, nil)
}

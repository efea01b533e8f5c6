package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meridianpsych/practice-api/internal/models"
	"github.com/meridianpsych/practice-api/internal/service"
	appErrors "github.com/meridianpsych/practice-api/pkg/errors"
	"github.com/meridianpsych/practice-api/pkg/response"
)

// SubscriberHandler wires HTTP endpoints to the subscriber service.
type SubscriberHandler struct {
	service *service.SubscriberService
}

// NewSubscriberHandler creates a new handler.
func NewSubscriberHandler(svc *service.SubscriberService) *SubscriberHandler {
	return &SubscriberHandler{service: svc}
}

// Subscribe godoc
// @Summary Join the newsletter
// @Tags Newsletter
// @Accept json
// @Produce json
// @Param payload body service.SubscribeRequest true "Signup payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /newsletter/subscribe [post]
func (h *SubscriberHandler) Subscribe(c *gin.Context) {
	var req service.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid subscribe payload"))
		return
	}

	sub, err := h.service.Subscribe(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"email": sub.Email, "active": sub.Active})
}

// Unsubscribe godoc
// @Summary Leave the newsletter
// @Description Token arrives via the unsubscribe link in each email
// @Tags Newsletter
// @Produce json
// @Param token query string true "Unsubscribe token"
// @Success 204 "No Content"
// @Failure 404 {object} response.Envelope
// @Router /newsletter/unsubscribe [get]
func (h *SubscriberHandler) Unsubscribe(c *gin.Context) {
	if err := h.service.Unsubscribe(c.Request.Context(), c.Query("token")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// List godoc
// @Summary List subscribers
// @Tags Newsletter
// @Produce json
// @Param active query bool false "Active only"
// @Param search query string false "Search email or name"
// @Param page query int false "Page"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/subscribers [get]
func (h *SubscriberHandler) List(c *gin.Context) {
	filter := models.SubscriberFilter{
		ActiveOnly: c.Query("active") == "true",
		Search:     c.Query("search"),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "50"))

	subscribers, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subscribers, pagination)
}

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

// MessageHandler wires HTTP endpoints to the contact message service.
type MessageHandler struct {
	service *service.MessageService
}

// NewMessageHandler creates a new handler.
func NewMessageHandler(svc *service.MessageService) *MessageHandler {
	return &MessageHandler{service: svc}
}

// Submit godoc
// @Summary Submit the contact form
// @Tags Messages
// @Accept json
// @Produce json
// @Param payload body service.SubmitMessageRequest true "Message payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /contact [post]
func (h *MessageHandler) Submit(c *gin.Context) {
	var req service.SubmitMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid contact payload"))
		return
	}

	msg, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

// List godoc
// @Summary List contact messages
// @Tags Messages
// @Produce json
// @Param unread query bool false "Unread only"
// @Param search query string false "Search name, email or subject"
// @Param page query int false "Page"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/messages [get]
func (h *MessageHandler) List(c *gin.Context) {
	filter := models.MessageFilter{
		UnreadOnly: c.Query("unread") == "true",
		Search:     c.Query("search"),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	messages, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, messages, pagination)
}

// Get godoc
// @Summary Message details
// @Tags Messages
// @Produce json
// @Param id path string true "Message ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/messages/{id} [get]
func (h *MessageHandler) Get(c *gin.Context) {
	msg, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, msg, nil)
}

// MarkRead godoc
// @Summary Mark a message read
// @Tags Messages
// @Produce json
// @Param id path string true "Message ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/messages/{id}/read [put]
func (h *MessageHandler) MarkRead(c *gin.Context) {
	msg, err := h.service.MarkRead(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, msg, nil)
}

// Delete godoc
// @Summary Delete a message
// @Tags Messages
// @Param id path string true "Message ID"
// @Success 204 "No Content"
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/messages/{id} [delete]
func (h *MessageHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

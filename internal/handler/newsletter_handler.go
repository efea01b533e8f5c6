package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meridianpsych/practice-api/internal/service"
	appErrors "github.com/meridianpsych/practice-api/pkg/errors"
	"github.com/meridianpsych/practice-api/pkg/response"
)

// NewsletterHandler wires HTTP endpoints to the newsletter service.
type NewsletterHandler struct {
	service *service.NewsletterService
}

// NewNewsletterHandler creates a new handler.
func NewNewsletterHandler(svc *service.NewsletterService) *NewsletterHandler {
	return &NewsletterHandler{service: svc}
}

// List godoc
// @Summary List newsletter issues
// @Tags Newsletter
// @Produce json
// @Param page query int false "Page"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/newsletters [get]
func (h *NewsletterHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	issues, pagination, err := h.service.List(c.Request.Context(), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issues, pagination)
}

// Get godoc
// @Summary Newsletter issue details
// @Tags Newsletter
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/newsletters/{id} [get]
func (h *NewsletterHandler) Get(c *gin.Context) {
	issue, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}

// Compose godoc
// @Summary Draft a newsletter issue
// @Tags Newsletter
// @Accept json
// @Produce json
// @Param payload body service.ComposeNewsletterRequest true "Issue payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/newsletters [post]
func (h *NewsletterHandler) Compose(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ComposeNewsletterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid newsletter payload"))
		return
	}

	issue, err := h.service.Compose(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, issue)
}

// Update godoc
// @Summary Edit a draft issue
// @Tags Newsletter
// @Accept json
// @Produce json
// @Param id path string true "Issue ID"
// @Param payload body service.ComposeNewsletterRequest true "Issue payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/newsletters/{id} [put]
func (h *NewsletterHandler) Update(c *gin.Context) {
	var req service.ComposeNewsletterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid newsletter payload"))
		return
	}

	issue, err := h.service.UpdateDraft(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}

// Send godoc
// @Summary Send an issue to all active subscribers
// @Tags Newsletter
// @Produce json
// @Param id path string true "Issue ID"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/newsletters/{id}/send [post]
func (h *NewsletterHandler) Send(c *gin.Context) {
	issue, err := h.service.Send(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, issue, nil)
}

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

// PostHandler wires HTTP endpoints to the post service.
type PostHandler struct {
	service *service.PostService
}

// NewPostHandler creates a new handler.
func NewPostHandler(svc *service.PostService) *PostHandler {
	return &PostHandler{service: svc}
}

func postFilterFromQuery(c *gin.Context) models.PostFilter {
	filter := models.PostFilter{
		Category:  c.Query("category"),
		Tag:       c.Query("tag"),
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return filter
}

// ListPublished godoc
// @Summary List published posts
// @Tags Blog
// @Produce json
// @Param category query string false "Category"
// @Param tag query string false "Tag"
// @Param search query string false "Search in title and excerpt"
// @Param page query int false "Page"
// @Success 200 {object} response.Envelope
// @Router /posts [get]
func (h *PostHandler) ListPublished(c *gin.Context) {
	filter := postFilterFromQuery(c)
	filter.PublishedOnly = true

	posts, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, posts, pagination)
}

// GetBySlug godoc
// @Summary Published post by slug
// @Tags Blog
// @Produce json
// @Param slug path string true "Post slug"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /posts/{slug} [get]
func (h *PostHandler) GetBySlug(c *gin.Context) {
	post, err := h.service.GetPublishedBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, post, nil)
}

// ListAll godoc
// @Summary List all posts including drafts
// @Tags Blog
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/posts [get]
func (h *PostHandler) ListAll(c *gin.Context) {
	posts, pagination, err := h.service.List(c.Request.Context(), postFilterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, posts, pagination)
}

// Get godoc
// @Summary Post by id
// @Tags Blog
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/posts/{id} [get]
func (h *PostHandler) Get(c *gin.Context) {
	post, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, post, nil)
}

// Create godoc
// @Summary Create a post
// @Tags Blog
// @Accept json
// @Produce json
// @Param payload body service.SavePostRequest true "Post payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/posts [post]
func (h *PostHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.SavePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid post payload"))
		return
	}

	post, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, post)
}

// Update godoc
// @Summary Update a post
// @Tags Blog
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param payload body service.SavePostRequest true "Post payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/posts/{id} [put]
func (h *PostHandler) Update(c *gin.Context) {
	var req service.SavePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid post payload"))
		return
	}

	post, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, post, nil)
}

// Delete godoc
// @Summary Delete a post
// @Tags Blog
// @Param id path string true "Post ID"
// @Success 204 "No Content"
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/posts/{id} [delete]
func (h *PostHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

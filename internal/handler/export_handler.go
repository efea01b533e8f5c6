package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/meridianpsych/practice-api/internal/service"
	"github.com/meridianpsych/practice-api/pkg/response"
)

// ExportHandler streams rendered exports as downloads.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler creates a new handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// DaySheet godoc
// @Summary Printable day sheet
// @Description The resolved schedule for one date as a PDF
// @Tags Exports
// @Produce application/pdf
// @Param date path string true "Date (YYYY-MM-DD)"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /staff/exports/day-sheet/{date} [get]
func (h *ExportHandler) DaySheet(c *gin.Context) {
	file, err := h.service.DaySheet(c.Request.Context(), c.Param("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveDownload(c, file)
}

// Subscribers godoc
// @Summary Subscriber list export
// @Tags Exports
// @Produce text/csv
// @Param active query bool false "Active only"
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /staff/exports/subscribers [get]
func (h *ExportHandler) Subscribers(c *gin.Context) {
	file, err := h.service.Subscribers(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		response.Error(c, err)
		return
	}
	serveDownload(c, file)
}

func serveDownload(c *gin.Context, file *service.ExportFile) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(200, file.ContentType, file.Payload)
}

package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meridianpsych/practice-api/internal/models"
	appErrors "github.com/meridianpsych/practice-api/pkg/errors"
	"github.com/meridianpsych/practice-api/pkg/export"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title, subtitle string) ([]byte, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders the therapist's day sheet and audience exports.
type ExportService struct {
	resolver    slotResolver
	subscribers subscriberRepo
	csv         csvRenderer
	pdf         pdfRenderer
	logger      *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(resolver slotResolver, subscribers subscriberRepo, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		resolver:    resolver,
		subscribers: subscribers,
		csv:         csv,
		pdf:         pdf,
		logger:      logger,
	}
}

// DaySheet renders one day's effective schedule as a printable PDF.
func (s *ExportService) DaySheet(ctx context.Context, dateStr string) (*ExportFile, error) {
	day, err := s.resolver.Resolve(ctx, dateStr)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"Time", "Session", "Status", "Client", "Contact"},
	}
	for _, slot := range day.Slots {
		row := map[string]string{
			"Time":    slot.Time,
			"Session": slot.SessionType,
			"Status":  "Open",
			"Client":  "",
			"Contact": "",
		}
		if slot.Origin == models.SlotOriginSpecial {
			row["Session"] = slot.SessionType + " (added)"
		}
		if slot.IsBooked {
			row["Status"] = "Booked"
			if slot.Appointment != nil {
				row["Client"] = slot.Appointment.ClientName
				row["Contact"] = slot.Appointment.ClientEmail
			}
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	payload, err := s.pdf.Render(dataset, "Day Sheet", day.Date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render day sheet")
	}

	return &ExportFile{
		Filename:    fmt.Sprintf("day-sheet-%s.pdf", day.Date),
		ContentType: "application/pdf",
		Payload:     payload,
	}, nil
}

// Subscribers renders the newsletter audience as CSV.
func (s *ExportService) Subscribers(ctx context.Context, activeOnly bool) (*ExportFile, error) {
	list, _, err := s.subscribers.List(ctx, models.SubscriberFilter{ActiveOnly: activeOnly, PageSize: 500})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subscribers")
	}

	dataset := export.Dataset{
		Headers: []string{"Email", "Name", "Active", "Subscribed At"},
	}
	for _, sub := range list {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Email":         sub.Email,
			"Name":          sub.Name,
			"Active":        fmt.Sprintf("%t", sub.Active),
			"Subscribed At": sub.SubscribedAt.UTC().Format(time.RFC3339),
		})
	}

	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render subscriber export")
	}

	return &ExportFile{
		Filename:    fmt.Sprintf("subscribers-%s.csv", time.Now().UTC().Format("2006-01-02")),
		ContentType: "text/csv",
		Payload:     payload,
	}, nil
}

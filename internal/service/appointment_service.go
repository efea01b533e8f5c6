package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/meridianpsych/practice-api/internal/events"
	"github.com/meridianpsych/practice-api/internal/models"
	appErrors "github.com/meridianpsych/practice-api/pkg/errors"
)

type appointmentRepo interface {
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error)
	FindByID(ctx context.Context, id string) (*models.Appointment, error)
	ListByDate(ctx context.Context, date time.Time, statuses []models.AppointmentStatus) ([]models.Appointment, error)
	Create(ctx context.Context, appt *models.Appointment) error
	UpdateStatus(ctx context.Context, id string, status models.AppointmentStatus) error
	Update(ctx context.Context, appt *models.Appointment) error
}

type slotResolver interface {
	Resolve(ctx context.Context, dateStr string) (*models.DayAvailability, error)
}

type feedPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type cacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// BookAppointmentRequest is the public booking payload.
type BookAppointmentRequest struct {
	ClientName  string `json:"client_name" validate:"required"`
	ClientEmail string `json:"client_email" validate:"required,email"`
	ClientPhone string `json:"client_phone"`
	Date        string `json:"date" validate:"required"`
	StartTime   string `json:"start_time" validate:"required"`
	SessionType string `json:"session_type"`
	Notes       string `json:"notes"`
}

// UpdateAppointmentRequest edits contact details on an existing appointment.
type UpdateAppointmentRequest struct {
	ClientName  string `json:"client_name" validate:"required"`
	ClientEmail string `json:"client_email" validate:"required,email"`
	ClientPhone string `json:"client_phone"`
	SessionType string `json:"session_type"`
	Notes       string `json:"notes"`
}

// allowedTransitions is the staff-driven appointment lifecycle.
var allowedTransitions = map[models.AppointmentStatus][]models.AppointmentStatus{
	models.AppointmentPending:   {models.AppointmentConfirmed, models.AppointmentCancelled},
	models.AppointmentConfirmed: {models.AppointmentCompleted, models.AppointmentCancelled},
}

// AppointmentService handles booking and the appointment lifecycle.
type AppointmentService struct {
	repo      appointmentRepo
	resolver  slotResolver
	feed      feedPublisher
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAppointmentService builds the service.
func NewAppointmentService(repo appointmentRepo, resolver slotResolver, feed feedPublisher, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *AppointmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppointmentService{
		repo:      repo,
		resolver:  resolver,
		feed:      feed,
		cache:     cache,
		validator: validate,
		logger:    logger,
	}
}

// List returns appointments for the ops dashboard.
func (s *AppointmentService) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, *models.Pagination, error) {
	appointments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list appointments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return appointments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads one appointment.
func (s *AppointmentService) Get(ctx context.Context, id string) (*models.Appointment, error) {
	appt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	return appt, nil
}

// Book validates the requested slot against the day's effective availability
// and creates a pending appointment. The repository re-checks occupancy inside
// its transaction, so a race between two bookings still yields one winner.
func (s *AppointmentService) Book(ctx context.Context, req BookAppointmentRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}

	startTime, err := normalizeClock(req.StartTime)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start time, expected HH:MM")
	}

	day, err := s.resolver.Resolve(ctx, req.Date)
	if err != nil {
		return nil, err
	}

	var slot *models.EffectiveSlot
	for i := range day.Slots {
		if day.Slots[i].Time == startTime {
			slot = &day.Slots[i]
			break
		}
	}
	if slot == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "requested time is not offered on this date")
	}
	if slot.IsBooked {
		return nil, appErrors.ErrSlotTaken
	}

	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}

	sessionType := req.SessionType
	if sessionType == "" {
		sessionType = slot.SessionType
	}

	appt := &models.Appointment{
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
		ClientPhone: req.ClientPhone,
		Date:        date,
		StartTime:   startTime,
		SessionType: sessionType,
		Status:      models.AppointmentPending,
		Notes:       req.Notes,
	}

	if err := s.repo.Create(ctx, appt); err != nil {
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create appointment")
	}

	s.notifyChange(ctx, events.ActionCreated, appt.ID)
	return appt, nil
}

// Transition moves an appointment to a new status, enforcing the lifecycle.
func (s *AppointmentService) Transition(ctx context.Context, id string, target models.AppointmentStatus) (*models.Appointment, error) {
	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !transitionAllowed(appt.Status, target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "cannot move appointment from "+string(appt.Status)+" to "+string(target))
	}

	if err := s.repo.UpdateStatus(ctx, id, target); err != nil {
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update appointment status")
	}
	appt.Status = target

	s.notifyChange(ctx, events.ActionUpdated, id)
	return appt, nil
}

// Update edits client contact details and notes on an appointment.
func (s *AppointmentService) Update(ctx context.Context, id string, req UpdateAppointmentRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid appointment payload")
	}

	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	appt.ClientName = req.ClientName
	appt.ClientEmail = req.ClientEmail
	appt.ClientPhone = req.ClientPhone
	if req.SessionType != "" {
		appt.SessionType = req.SessionType
	}
	appt.Notes = req.Notes

	if err := s.repo.Update(ctx, appt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update appointment")
	}

	s.notifyChange(ctx, events.ActionUpdated, id)
	return appt, nil
}

func (s *AppointmentService) notifyChange(ctx context.Context, action, id string) {
	if s.feed != nil {
		if err := s.feed.Publish(ctx, events.Event{Table: "appointments", Action: action, ResourceID: id}); err != nil {
			s.logger.Warn("failed to publish appointment change", zap.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, "dashboard:*"); err != nil {
			s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
		}
	}
}

func transitionAllowed(from, to models.AppointmentStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

package service

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/meridianpsych/practice-api/internal/models"
	appErrors "github.com/meridianpsych/practice-api/pkg/errors"
)

const dateLayout = "2006-01-02"

type availabilityRepo interface {
	ListRecurringSlots(ctx context.Context) ([]models.RecurringSlot, error)
	ListRecurringByWeekday(ctx context.Context, weekday int) ([]models.RecurringSlot, error)
	ReplaceRecurringSlots(ctx context.Context, weekdays []int, slots []models.RecurringSlot) error
	ListOverridesByDate(ctx context.Context, date time.Time) ([]models.SpecialOverride, error)
	ReplaceOverrides(ctx context.Context, date time.Time, overrides []models.SpecialOverride) error
}

type dayAppointmentLister interface {
	ListByDate(ctx context.Context, date time.Time, statuses []models.AppointmentStatus) ([]models.Appointment, error)
}

// BulkRecurringEditRequest replaces every recurring slot for the listed
// weekdays with the weekday x time cross product.
type BulkRecurringEditRequest struct {
	Weekdays []int    `json:"weekdays" validate:"required,min=1,dive,min=0,max=6"`
	Times    []string `json:"times" validate:"required"`
}

// DateOverrideEditRequest sets the final desired open times for one date.
type DateOverrideEditRequest struct {
	Date          string   `json:"date" validate:"required"`
	SelectedTimes []string `json:"selected_times"`
	Reason        string   `json:"reason"`
}

// SlotDefaults carries the practice-wide defaults applied to newly created
// slots during bulk edits.
type SlotDefaults struct {
	DurationMinutes int
	SessionType     string
}

// AvailabilityService merges the weekly template, date overrides and existing
// bookings into per-date effective availability, and owns the two scoped
// replace operations that edit the template and the overrides.
type AvailabilityService struct {
	repo         availabilityRepo
	appointments dayAppointmentLister
	defaults     SlotDefaults
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewAvailabilityService builds the service.
func NewAvailabilityService(repo availabilityRepo, appointments dayAppointmentLister, defaults SlotDefaults, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.DurationMinutes <= 0 {
		defaults.DurationMinutes = 50
	}
	if defaults.SessionType == "" {
		defaults.SessionType = "individual"
	}
	return &AvailabilityService{
		repo:         repo,
		appointments: appointments,
		defaults:     defaults,
		validator:    validate,
		logger:       logger,
	}
}

// Resolve loads the three input record sets for a date and merges them.
func (s *AvailabilityService) Resolve(ctx context.Context, dateStr string) (*models.DayAvailability, error) {
	date, err := parseDate(dateStr)
	if err != nil {
		return nil, err
	}

	recurring, err := s.repo.ListRecurringSlots(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recurring slots")
	}
	overrides, err := s.repo.ListOverridesByDate(ctx, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load overrides")
	}
	appointments, err := s.appointments.ListByDate(ctx, date, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointments")
	}

	slots := s.resolveEffectiveSlots(date, recurring, overrides, appointments)
	return &models.DayAvailability{Date: date.Format(dateLayout), Slots: slots}, nil
}

// OpenSlots returns only the bookable subset of a day's availability, for the
// public booking picker.
func (s *AvailabilityService) OpenSlots(ctx context.Context, dateStr string) (*models.DayAvailability, error) {
	day, err := s.Resolve(ctx, dateStr)
	if err != nil {
		return nil, err
	}
	open := make([]models.EffectiveSlot, 0, len(day.Slots))
	for _, slot := range day.Slots {
		if slot.IsBooked {
			continue
		}
		slot.Appointment = nil
		open = append(open, slot)
	}
	day.Slots = open
	return day, nil
}

// resolveEffectiveSlots is the pure merge. For a given date each time value
// appears at most once; precedence is override > recurring template, and an
// occupying appointment marks the slot booked without removing it from view.
func (s *AvailabilityService) resolveEffectiveSlots(date time.Time, recurring []models.RecurringSlot, overrides []models.SpecialOverride, appointments []models.Appointment) []models.EffectiveSlot {
	weekday := int(date.Weekday())

	recurringTimes := make(map[string]models.RecurringSlot)
	for _, slot := range recurring {
		if slot.DayOfWeek != weekday || !slot.IsActive {
			continue
		}
		t, err := normalizeClock(slot.StartTime)
		if err != nil {
			s.logger.Warn("skipping recurring slot with malformed start time",
				zap.String("slot_id", slot.ID), zap.String("start_time", slot.StartTime), zap.Error(err))
			continue
		}
		recurringTimes[t] = slot
	}

	added := make(map[string]models.SpecialOverride)
	blocked := make(map[string]struct{})
	for _, override := range overrides {
		if !override.Date.Equal(date) && override.Date.Format(dateLayout) != date.Format(dateLayout) {
			continue
		}
		t, err := normalizeClock(override.StartTime)
		if err != nil {
			s.logger.Warn("skipping override with malformed start time",
				zap.String("override_id", override.ID), zap.String("start_time", override.StartTime), zap.Error(err))
			continue
		}
		if override.IsAvailable {
			added[t] = override
		} else {
			blocked[t] = struct{}{}
		}
	}

	booked := make(map[string]models.Appointment)
	for _, appt := range appointments {
		if !appt.Status.Occupies() {
			continue
		}
		t, err := normalizeClock(appt.StartTime)
		if err != nil {
			s.logger.Warn("skipping appointment with malformed start time",
				zap.String("appointment_id", appt.ID), zap.String("start_time", appt.StartTime), zap.Error(err))
			continue
		}
		booked[t] = appt
	}

	slots := make([]models.EffectiveSlot, 0, len(recurringTimes)+len(added))
	for t, slot := range recurringTimes {
		if _, isBlocked := blocked[t]; isBlocked {
			continue
		}
		slots = append(slots, models.EffectiveSlot{
			Time:        t,
			Origin:      models.SlotOriginRecurring,
			SessionType: slot.SessionType,
		})
	}
	for t, override := range added {
		// An added override that coincides with a recurring time is a
		// no-op confirmation, not a second slot.
		if _, exists := recurringTimes[t]; exists {
			continue
		}
		slots = append(slots, models.EffectiveSlot{
			Time:        t,
			Origin:      models.SlotOriginSpecial,
			SessionType: override.SessionType,
		})
	}

	offered := make(map[string]struct{}, len(slots))
	for i := range slots {
		offered[slots[i].Time] = struct{}{}
		if appt, ok := booked[slots[i].Time]; ok {
			apptCopy := appt
			slots[i].IsBooked = true
			slots[i].Appointment = &apptCopy
		}
	}

	// An occupying appointment keeps its time visible even after staff block
	// it or drop it from the template; the booking does not vanish from the
	// day view.
	for t, appt := range booked {
		if _, ok := offered[t]; ok {
			continue
		}
		apptCopy := appt
		slot := models.EffectiveSlot{
			Time:        t,
			Origin:      models.SlotOriginSpecial,
			SessionType: appt.SessionType,
			IsBooked:    true,
			Appointment: &apptCopy,
		}
		if rec, ok := recurringTimes[t]; ok {
			slot.Origin = models.SlotOriginRecurring
			slot.SessionType = rec.SessionType
		}
		slots = append(slots, slot)
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Time < slots[j].Time })
	return slots
}

// ListRecurring returns the full weekly template.
func (s *AvailabilityService) ListRecurring(ctx context.Context) ([]models.RecurringSlot, error) {
	slots, err := s.repo.ListRecurringSlots(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recurring slots")
	}
	return slots, nil
}

// ApplyBulkRecurringEdit replaces the template for the affected weekdays with
// the weekdays x times cross product. Weekdays not listed are untouched.
func (s *AvailabilityService) ApplyBulkRecurringEdit(ctx context.Context, req BulkRecurringEditRequest) ([]models.RecurringSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid recurring edit payload")
	}

	times, err := normalizeClockSet(req.Times)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time in recurring edit payload")
	}

	weekdays := dedupeInts(req.Weekdays)
	slots := make([]models.RecurringSlot, 0, len(weekdays)*len(times))
	for _, weekday := range weekdays {
		for _, t := range times {
			slots = append(slots, models.RecurringSlot{
				DayOfWeek:       weekday,
				StartTime:       t,
				DurationMinutes: s.defaults.DurationMinutes,
				SessionType:     s.defaults.SessionType,
				IsActive:        true,
			})
		}
	}

	if err := s.repo.ReplaceRecurringSlots(ctx, weekdays, slots); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace recurring slots")
	}
	return slots, nil
}

// ApplyDateOverrideEdit diffs the staff's desired open times for one date
// against the recurring baseline and stores only the difference: additions for
// times the template lacks, blocks for template times that were deselected.
// Times present in both sets produce no row, which keeps the override table
// sparse.
func (s *AvailabilityService) ApplyDateOverrideEdit(ctx context.Context, req DateOverrideEditRequest) ([]models.SpecialOverride, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid override edit payload")
	}

	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}

	selected, err := normalizeClockSet(req.SelectedTimes)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time in override edit payload")
	}

	baseline, err := s.repo.ListRecurringByWeekday(ctx, int(date.Weekday()))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recurring baseline")
	}
	baselineTimes := make(map[string]struct{}, len(baseline))
	for _, slot := range baseline {
		t, err := normalizeClock(slot.StartTime)
		if err != nil {
			s.logger.Warn("skipping recurring slot with malformed start time",
				zap.String("slot_id", slot.ID), zap.String("start_time", slot.StartTime), zap.Error(err))
			continue
		}
		baselineTimes[t] = struct{}{}
	}

	selectedSet := make(map[string]struct{}, len(selected))
	for _, t := range selected {
		selectedSet[t] = struct{}{}
	}

	overrides := make([]models.SpecialOverride, 0)
	for _, t := range selected {
		if _, inBaseline := baselineTimes[t]; inBaseline {
			continue
		}
		overrides = append(overrides, models.SpecialOverride{
			Date:            date,
			StartTime:       t,
			DurationMinutes: s.defaults.DurationMinutes,
			SessionType:     s.defaults.SessionType,
			IsAvailable:     true,
			Reason:          req.Reason,
		})
	}
	for t := range baselineTimes {
		if _, stillSelected := selectedSet[t]; stillSelected {
			continue
		}
		overrides = append(overrides, models.SpecialOverride{
			Date:            date,
			StartTime:       t,
			DurationMinutes: s.defaults.DurationMinutes,
			SessionType:     s.defaults.SessionType,
			IsAvailable:     false,
			Reason:          req.Reason,
		})
	}
	sort.Slice(overrides, func(i, j int) bool { return overrides[i].StartTime < overrides[j].StartTime })

	if err := s.repo.ReplaceOverrides(ctx, date, overrides); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace overrides")
	}
	return overrides, nil
}

func parseDate(raw string) (time.Time, error) {
	date, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date, expected YYYY-MM-DD")
	}
	return date.UTC(), nil
}

// normalizeClock canonicalises HH:MM and HH:MM:SS values to zero-padded HH:MM.
func normalizeClock(raw string) (string, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("15:04"), nil
		}
	}
	_, err := time.Parse("15:04", raw)
	return "", err
}

func normalizeClockSet(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	result := make([]string, 0, len(raw))
	for _, value := range raw {
		t, err := normalizeClock(value)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		result = append(result, t)
	}
	sort.Strings(result)
	return result, nil
}

func dedupeInts(values []int) []int {
	seen := make(map[int]struct{}, len(values))
	result := make([]int, 0, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	sort.Ints(result)
	return result
}

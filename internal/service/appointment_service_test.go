package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianpsych/practice-api/internal/events"
	"github.com/meridianpsych/practice-api/internal/models"
	appErrors "github.com/meridianpsych/practice-api/pkg/errors"
)

type appointmentRepoMock struct {
	stored    map[string]*models.Appointment
	createErr error
}

func newAppointmentRepoMock() *appointmentRepoMock {
	return &appointmentRepoMock{stored: make(map[string]*models.Appointment)}
}

func (m *appointmentRepoMock) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	var out []models.Appointment
	for _, appt := range m.stored {
		out = append(out, *appt)
	}
	return out, len(out), nil
}

func (m *appointmentRepoMock) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	appt, ok := m.stored[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *appt
	return &cp, nil
}

func (m *appointmentRepoMock) ListByDate(ctx context.Context, date time.Time, statuses []models.AppointmentStatus) ([]models.Appointment, error) {
	return nil, nil
}

func (m *appointmentRepoMock) Create(ctx context.Context, appt *models.Appointment) error {
	if m.createErr != nil {
		return m.createErr
	}
	if appt.ID == "" {
		appt.ID = "appt-1"
	}
	cp := *appt
	m.stored[appt.ID] = &cp
	return nil
}

func (m *appointmentRepoMock) UpdateStatus(ctx context.Context, id string, status models.AppointmentStatus) error {
	appt, ok := m.stored[id]
	if !ok {
		return appErrors.ErrNotFound
	}
	appt.Status = status
	return nil
}

func (m *appointmentRepoMock) Update(ctx context.Context, appt *models.Appointment) error {
	cp := *appt
	m.stored[appt.ID] = &cp
	return nil
}

type resolverStub struct {
	day *models.DayAvailability
	err error
}

func (s *resolverStub) Resolve(ctx context.Context, dateStr string) (*models.DayAvailability, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.day, nil
}

type feedRecorder struct {
	events []events.Event
}

func (f *feedRecorder) Publish(ctx context.Context, event events.Event) error {
	f.events = append(f.events, event)
	return nil
}

type cacheRecorder struct {
	patterns []string
}

func (c *cacheRecorder) DeleteByPattern(ctx context.Context, pattern string) error {
	c.patterns = append(c.patterns, pattern)
	return nil
}

func openTuesday() *models.DayAvailability {
	return &models.DayAvailability{
		Date: testTuesday,
		Slots: []models.EffectiveSlot{
			{Time: "10:00", Origin: models.SlotOriginRecurring, SessionType: "individual"},
			{Time: "11:00", Origin: models.SlotOriginRecurring, SessionType: "individual", IsBooked: true},
		},
	}
}

func TestBookCreatesPendingAppointment(t *testing.T) {
	repo := newAppointmentRepoMock()
	feed := &feedRecorder{}
	cache := &cacheRecorder{}
	service := NewAppointmentService(repo, &resolverStub{day: openTuesday()}, feed, cache, validator.New(), zap.NewNop())

	appt, err := service.Book(context.Background(), BookAppointmentRequest{
		ClientName:  "J. Doe",
		ClientEmail: "j.doe@example.com",
		Date:        testTuesday,
		StartTime:   "10:00",
	})
	require.NoError(t, err)

	assert.Equal(t, models.AppointmentPending, appt.Status)
	assert.Equal(t, "individual", appt.SessionType)
	assert.Len(t, feed.events, 1)
	assert.Equal(t, "appointments", feed.events[0].Table)
	assert.Equal(t, []string{"dashboard:*"}, cache.patterns)
}

func TestBookRejectsUnofferedTime(t *testing.T) {
	service := NewAppointmentService(newAppointmentRepoMock(), &resolverStub{day: openTuesday()}, nil, nil, validator.New(), zap.NewNop())

	_, err := service.Book(context.Background(), BookAppointmentRequest{
		ClientName:  "J. Doe",
		ClientEmail: "j.doe@example.com",
		Date:        testTuesday,
		StartTime:   "12:00",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBookRejectsBookedSlot(t *testing.T) {
	service := NewAppointmentService(newAppointmentRepoMock(), &resolverStub{day: openTuesday()}, nil, nil, validator.New(), zap.NewNop())

	_, err := service.Book(context.Background(), BookAppointmentRequest{
		ClientName:  "J. Doe",
		ClientEmail: "j.doe@example.com",
		Date:        testTuesday,
		StartTime:   "11:00",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotTaken.Code, appErrors.FromError(err).Code)
}

func TestBookSurfacesRepositoryConflict(t *testing.T) {
	repo := newAppointmentRepoMock()
	repo.createErr = appErrors.ErrSlotTaken
	service := NewAppointmentService(repo, &resolverStub{day: openTuesday()}, nil, nil, validator.New(), zap.NewNop())

	_, err := service.Book(context.Background(), BookAppointmentRequest{
		ClientName:  "J. Doe",
		ClientEmail: "j.doe@example.com",
		Date:        testTuesday,
		StartTime:   "10:00",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotTaken.Code, appErrors.FromError(err).Code)
}

func TestTransitionFollowsLifecycle(t *testing.T) {
	repo := newAppointmentRepoMock()
	repo.stored["appt-1"] = &models.Appointment{ID: "appt-1", Status: models.AppointmentPending}
	service := NewAppointmentService(repo, &resolverStub{}, nil, nil, validator.New(), zap.NewNop())

	appt, err := service.Transition(context.Background(), "appt-1", models.AppointmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentConfirmed, appt.Status)

	appt, err = service.Transition(context.Background(), "appt-1", models.AppointmentCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentCompleted, appt.Status)
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	repo := newAppointmentRepoMock()
	repo.stored["appt-1"] = &models.Appointment{ID: "appt-1", Status: models.AppointmentPending}
	service := NewAppointmentService(repo, &resolverStub{}, nil, nil, validator.New(), zap.NewNop())

	_, err := service.Transition(context.Background(), "appt-1", models.AppointmentCompleted)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestTransitionUnknownAppointment(t *testing.T) {
	service := NewAppointmentService(newAppointmentRepoMock(), &resolverStub{}, nil, nil, validator.New(), zap.NewNop())

	_, err := service.Transition(context.Background(), "missing", models.AppointmentConfirmed)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

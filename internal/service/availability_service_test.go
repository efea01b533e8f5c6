package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianpsych/practice-api/internal/models"
)

// 2024-01-02 is a Tuesday.
const testTuesday = "2024-01-02"

type availabilityRepoMock struct {
	recurring []models.RecurringSlot
	overrides []models.SpecialOverride

	replacedWeekdays  []int
	replacedSlots     []models.RecurringSlot
	replacedDate      time.Time
	replacedOverrides []models.SpecialOverride
	replaceCalls      int
}

func (m *availabilityRepoMock) ListRecurringSlots(ctx context.Context) ([]models.RecurringSlot, error) {
	return m.recurring, nil
}

func (m *availabilityRepoMock) ListRecurringByWeekday(ctx context.Context, weekday int) ([]models.RecurringSlot, error) {
	var slots []models.RecurringSlot
	for _, slot := range m.recurring {
		if slot.DayOfWeek == weekday {
			slots = append(slots, slot)
		}
	}
	return slots, nil
}

func (m *availabilityRepoMock) ReplaceRecurringSlots(ctx context.Context, weekdays []int, slots []models.RecurringSlot) error {
	m.replacedWeekdays = weekdays
	m.replacedSlots = slots
	return nil
}

func (m *availabilityRepoMock) ListOverridesByDate(ctx context.Context, date time.Time) ([]models.SpecialOverride, error) {
	return m.overrides, nil
}

func (m *availabilityRepoMock) ReplaceOverrides(ctx context.Context, date time.Time, overrides []models.SpecialOverride) error {
	m.replacedDate = date
	m.replacedOverrides = overrides
	m.replaceCalls++
	return nil
}

type apptListerMock struct {
	appointments []models.Appointment
}

func (m *apptListerMock) ListByDate(ctx context.Context, date time.Time, statuses []models.AppointmentStatus) ([]models.Appointment, error) {
	return m.appointments, nil
}

func tuesdayTemplate() []models.RecurringSlot {
	return []models.RecurringSlot{
		{ID: "r1", DayOfWeek: 2, StartTime: "10:00", SessionType: "individual", IsActive: true},
		{ID: "r2", DayOfWeek: 2, StartTime: "11:00", SessionType: "individual", IsActive: true},
		{ID: "r3", DayOfWeek: 2, StartTime: "14:00", SessionType: "individual", IsActive: true},
	}
}

func newTestAvailabilityService(repo *availabilityRepoMock, appts *apptListerMock) *AvailabilityService {
	return NewAvailabilityService(repo, appts, SlotDefaults{DurationMinutes: 50, SessionType: "individual"}, validator.New(), zap.NewNop())
}

func slotTimes(slots []models.EffectiveSlot) []string {
	times := make([]string, 0, len(slots))
	for _, slot := range slots {
		times = append(times, slot.Time)
	}
	return times
}

func TestResolveMergesTemplateAndOverrides(t *testing.T) {
	date, _ := time.Parse(dateLayout, testTuesday)
	repo := &availabilityRepoMock{
		recurring: tuesdayTemplate(),
		overrides: []models.SpecialOverride{
			{ID: "o1", Date: date, StartTime: "10:00", IsAvailable: false},
			{ID: "o2", Date: date, StartTime: "16:00", SessionType: "couples", IsAvailable: true},
		},
	}
	service := newTestAvailabilityService(repo, &apptListerMock{})

	day, err := service.Resolve(context.Background(), testTuesday)
	require.NoError(t, err)

	assert.Equal(t, testTuesday, day.Date)
	assert.Equal(t, []string{"11:00", "14:00", "16:00"}, slotTimes(day.Slots))
	assert.Equal(t, models.SlotOriginRecurring, day.Slots[0].Origin)
	assert.Equal(t, models.SlotOriginRecurring, day.Slots[1].Origin)
	assert.Equal(t, models.SlotOriginSpecial, day.Slots[2].Origin)
	assert.Equal(t, "couples", day.Slots[2].SessionType)
}

func TestResolveMarksOccupiedSlotsBooked(t *testing.T) {
	date, _ := time.Parse(dateLayout, testTuesday)
	repo := &availabilityRepoMock{
		recurring: tuesdayTemplate(),
		overrides: []models.SpecialOverride{
			{ID: "o1", Date: date, StartTime: "10:00", IsAvailable: false},
			{ID: "o2", Date: date, StartTime: "16:00", IsAvailable: true},
		},
	}
	appts := &apptListerMock{appointments: []models.Appointment{
		{ID: "a1", ClientName: "J. Doe", Date: date, StartTime: "14:00", Status: models.AppointmentConfirmed},
		{ID: "a2", Date: date, StartTime: "11:00", Status: models.AppointmentCancelled},
	}}
	service := newTestAvailabilityService(repo, appts)

	day, err := service.Resolve(context.Background(), testTuesday)
	require.NoError(t, err)
	require.Equal(t, []string{"11:00", "14:00", "16:00"}, slotTimes(day.Slots))

	assert.False(t, day.Slots[0].IsBooked, "cancelled appointment must not occupy the slot")
	assert.True(t, day.Slots[1].IsBooked)
	require.NotNil(t, day.Slots[1].Appointment)
	assert.Equal(t, "J. Doe", day.Slots[1].Appointment.ClientName)
	assert.False(t, day.Slots[2].IsBooked)
}

func TestResolveKeepsOccupiedSlotVisibleWhenBlocked(t *testing.T) {
	date, _ := time.Parse(dateLayout, testTuesday)
	repo := &availabilityRepoMock{
		recurring: tuesdayTemplate(),
		overrides: []models.SpecialOverride{
			{ID: "o1", Date: date, StartTime: "10:00", IsAvailable: false},
		},
	}
	appts := &apptListerMock{appointments: []models.Appointment{
		{ID: "a1", ClientName: "J. Doe", Date: date, StartTime: "10:00", Status: models.AppointmentConfirmed},
	}}
	service := newTestAvailabilityService(repo, appts)

	day, err := service.Resolve(context.Background(), testTuesday)
	require.NoError(t, err)
	require.Equal(t, []string{"10:00", "11:00", "14:00"}, slotTimes(day.Slots))
	assert.True(t, day.Slots[0].IsBooked)
	assert.Equal(t, models.SlotOriginRecurring, day.Slots[0].Origin)
	require.NotNil(t, day.Slots[0].Appointment)
	assert.Equal(t, "J. Doe", day.Slots[0].Appointment.ClientName)

	open, err := service.OpenSlots(context.Background(), testTuesday)
	require.NoError(t, err)
	assert.Equal(t, []string{"11:00", "14:00"}, slotTimes(open.Slots))
}

func TestResolveKeepsOccupiedSlotAfterTemplateChange(t *testing.T) {
	date, _ := time.Parse(dateLayout, testTuesday)
	repo := &availabilityRepoMock{recurring: tuesdayTemplate()}
	appts := &apptListerMock{appointments: []models.Appointment{
		{ID: "a1", Date: date, StartTime: "09:00", SessionType: "individual", Status: models.AppointmentPending},
	}}
	service := newTestAvailabilityService(repo, appts)

	day, err := service.Resolve(context.Background(), testTuesday)
	require.NoError(t, err)
	require.Equal(t, []string{"09:00", "10:00", "11:00", "14:00"}, slotTimes(day.Slots))
	assert.True(t, day.Slots[0].IsBooked)
	assert.Equal(t, models.SlotOriginSpecial, day.Slots[0].Origin)
}

func TestResolveAddedOverrideOnRecurringTimeYieldsOneSlot(t *testing.T) {
	date, _ := time.Parse(dateLayout, testTuesday)
	repo := &availabilityRepoMock{
		recurring: tuesdayTemplate(),
		overrides: []models.SpecialOverride{
			{ID: "o1", Date: date, StartTime: "10:00", IsAvailable: true},
		},
	}
	service := newTestAvailabilityService(repo, &apptListerMock{})

	day, err := service.Resolve(context.Background(), testTuesday)
	require.NoError(t, err)

	assert.Equal(t, []string{"10:00", "11:00", "14:00"}, slotTimes(day.Slots))
	assert.Equal(t, models.SlotOriginRecurring, day.Slots[0].Origin)
}

func TestResolveIgnoresInactiveAndOtherWeekdays(t *testing.T) {
	repo := &availabilityRepoMock{
		recurring: []models.RecurringSlot{
			{ID: "r1", DayOfWeek: 2, StartTime: "10:00", IsActive: true},
			{ID: "r2", DayOfWeek: 2, StartTime: "11:00", IsActive: false},
			{ID: "r3", DayOfWeek: 3, StartTime: "12:00", IsActive: true},
		},
	}
	service := newTestAvailabilityService(repo, &apptListerMock{})

	day, err := service.Resolve(context.Background(), testTuesday)
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00"}, slotTimes(day.Slots))
}

func TestResolveSkipsMalformedRecurringTime(t *testing.T) {
	repo := &availabilityRepoMock{
		recurring: []models.RecurringSlot{
			{ID: "r1", DayOfWeek: 2, StartTime: "25:99", IsActive: true},
			{ID: "r2", DayOfWeek: 2, StartTime: "10:00:00", IsActive: true},
		},
	}
	service := newTestAvailabilityService(repo, &apptListerMock{})

	day, err := service.Resolve(context.Background(), testTuesday)
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00"}, slotTimes(day.Slots))
}

func TestResolveRejectsInvalidDate(t *testing.T) {
	service := newTestAvailabilityService(&availabilityRepoMock{}, &apptListerMock{})

	_, err := service.Resolve(context.Background(), "02-01-2024")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid date")
}

func TestOpenSlotsExcludesBookedAndStripsAppointments(t *testing.T) {
	date, _ := time.Parse(dateLayout, testTuesday)
	repo := &availabilityRepoMock{recurring: tuesdayTemplate()}
	appts := &apptListerMock{appointments: []models.Appointment{
		{ID: "a1", Date: date, StartTime: "11:00", Status: models.AppointmentPending},
	}}
	service := newTestAvailabilityService(repo, appts)

	day, err := service.OpenSlots(context.Background(), testTuesday)
	require.NoError(t, err)

	assert.Equal(t, []string{"10:00", "14:00"}, slotTimes(day.Slots))
	for _, slot := range day.Slots {
		assert.Nil(t, slot.Appointment)
	}
}

func TestApplyBulkRecurringEditBuildsCrossProduct(t *testing.T) {
	repo := &availabilityRepoMock{}
	service := newTestAvailabilityService(repo, &apptListerMock{})

	slots, err := service.ApplyBulkRecurringEdit(context.Background(), BulkRecurringEditRequest{
		Weekdays: []int{3, 1, 3},
		Times:    []string{"9:00", "10:00", "09:00"},
	})
	require.NoError(t, err)

	require.Len(t, slots, 4)
	assert.Equal(t, []int{1, 3}, repo.replacedWeekdays)
	assert.Equal(t, "09:00", slots[0].StartTime)
	assert.Equal(t, 1, slots[0].DayOfWeek)
	assert.Equal(t, 50, slots[0].DurationMinutes)
	assert.Equal(t, "individual", slots[0].SessionType)
	assert.True(t, slots[0].IsActive)
}

func TestApplyBulkRecurringEditRejectsBadWeekday(t *testing.T) {
	service := newTestAvailabilityService(&availabilityRepoMock{}, &apptListerMock{})

	_, err := service.ApplyBulkRecurringEdit(context.Background(), BulkRecurringEditRequest{
		Weekdays: []int{7},
		Times:    []string{"10:00"},
	})
	require.Error(t, err)
}

func TestApplyDateOverrideEditStoresOnlyTheDiff(t *testing.T) {
	repo := &availabilityRepoMock{recurring: tuesdayTemplate()}
	service := newTestAvailabilityService(repo, &apptListerMock{})

	overrides, err := service.ApplyDateOverrideEdit(context.Background(), DateOverrideEditRequest{
		Date:          testTuesday,
		SelectedTimes: []string{"11:00", "14:00", "16:00"},
	})
	require.NoError(t, err)

	require.Len(t, overrides, 2)
	assert.Equal(t, "10:00", overrides[0].StartTime)
	assert.False(t, overrides[0].IsAvailable)
	assert.Equal(t, "16:00", overrides[1].StartTime)
	assert.True(t, overrides[1].IsAvailable)
	assert.Equal(t, testTuesday, repo.replacedDate.Format(dateLayout))
}

func TestApplyDateOverrideEditIsIdempotent(t *testing.T) {
	repo := &availabilityRepoMock{recurring: tuesdayTemplate()}
	service := newTestAvailabilityService(repo, &apptListerMock{})

	req := DateOverrideEditRequest{Date: testTuesday, SelectedTimes: []string{"11:00", "16:00"}}

	first, err := service.ApplyDateOverrideEdit(context.Background(), req)
	require.NoError(t, err)
	second, err := service.ApplyDateOverrideEdit(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, repo.replaceCalls)
}

func TestApplyDateOverrideEditEmptySelectionBlocksWholeDay(t *testing.T) {
	repo := &availabilityRepoMock{recurring: tuesdayTemplate()}
	service := newTestAvailabilityService(repo, &apptListerMock{})

	overrides, err := service.ApplyDateOverrideEdit(context.Background(), DateOverrideEditRequest{
		Date:   testTuesday,
		Reason: "conference",
	})
	require.NoError(t, err)

	require.Len(t, overrides, 3)
	for _, o := range overrides {
		assert.False(t, o.IsAvailable)
		assert.Equal(t, "conference", o.Reason)
	}
}

func TestApplyDateOverrideEditMatchingSelectionClearsOverrides(t *testing.T) {
	repo := &availabilityRepoMock{recurring: tuesdayTemplate()}
	service := newTestAvailabilityService(repo, &apptListerMock{})

	overrides, err := service.ApplyDateOverrideEdit(context.Background(), DateOverrideEditRequest{
		Date:          testTuesday,
		SelectedTimes: []string{"10:00", "11:00", "14:00"},
	})
	require.NoError(t, err)

	assert.Empty(t, overrides)
	assert.Equal(t, 1, repo.replaceCalls)
}

func TestApplyDateOverrideEditRejectsInvalidDate(t *testing.T) {
	service := newTestAvailabilityService(&availabilityRepoMock{}, &apptListerMock{})

	_, err := service.ApplyDateOverrideEdit(context.Background(), DateOverrideEditRequest{
		Date:          "not-a-date",
		SelectedTimes: []string{"10:00"},
	})
	require.Error(t, err)
}

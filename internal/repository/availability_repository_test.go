package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianpsych/practice-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAvailabilityRepositoryListRecurringByWeekday(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "day_of_week", "start_time", "duration_minutes", "session_type", "is_active", "created_at", "updated_at"}).
		AddRow("r1", 2, "10:00", 50, "individual", true, now, now).
		AddRow("r2", 2, "11:00", 50, "individual", true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, day_of_week, start_time, duration_minutes, session_type, is_active, created_at, updated_at FROM recurring_slots WHERE day_of_week = $1 AND is_active = true ORDER BY start_time ASC")).
		WithArgs(2).
		WillReturnRows(rows)

	slots, err := repo.ListRecurringByWeekday(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "10:00", slots[0].StartTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryReplaceRecurringSlots(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM recurring_slots WHERE day_of_week = ANY").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO recurring_slots").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO recurring_slots").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	slots := []models.RecurringSlot{
		{DayOfWeek: 2, StartTime: "10:00", DurationMinutes: 50, SessionType: "individual", IsActive: true},
		{DayOfWeek: 2, StartTime: "11:00", DurationMinutes: 50, SessionType: "individual", IsActive: true},
	}
	err := repo.ReplaceRecurringSlots(context.Background(), []int{2}, slots)
	require.NoError(t, err)
	assert.NotEmpty(t, slots[0].ID, "generated id must be written back")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryReplaceRecurringSlotsRollsBackOnInsertFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM recurring_slots WHERE day_of_week = ANY").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO recurring_slots").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.ReplaceRecurringSlots(context.Background(), []int{2}, []models.RecurringSlot{
		{DayOfWeek: 2, StartTime: "10:00"},
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryReplaceOverridesPinsDate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	date, _ := time.Parse("2006-01-02", "2024-01-02")

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM special_overrides WHERE date").
		WithArgs(date).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO special_overrides").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	otherDate, _ := time.Parse("2006-01-02", "2099-12-31")
	overrides := []models.SpecialOverride{
		{Date: otherDate, StartTime: "16:00", IsAvailable: true},
	}
	err := repo.ReplaceOverrides(context.Background(), date, overrides)
	require.NoError(t, err)
	assert.Equal(t, date, overrides[0].Date, "stored override must carry the edited date")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryReplaceOverridesEmptySetClearsDay(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	date, _ := time.Parse("2006-01-02", "2024-01-02")

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM special_overrides WHERE date").
		WithArgs(date).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, repo.ReplaceOverrides(context.Background(), date, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

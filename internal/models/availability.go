package models

import "time"

// SlotOrigin tells whether an effective slot comes from the weekly template
// or from a date-specific override.
type SlotOrigin string

const (
	SlotOriginRecurring SlotOrigin = "recurring"
	SlotOriginSpecial   SlotOrigin = "special"
)

// RecurringSlot is a weekly-repeating open appointment time keyed by weekday.
// DayOfWeek follows time.Weekday numbering (0 = Sunday).
type RecurringSlot struct {
	ID              string    `db:"id" json:"id"`
	DayOfWeek       int       `db:"day_of_week" json:"day_of_week"`
	StartTime       string    `db:"start_time" json:"start_time"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	SessionType     string    `db:"session_type" json:"session_type"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// SpecialOverride is a date-specific exception to the recurring template.
// IsAvailable=true adds a slot the template does not offer; false blocks one
// it does.
type SpecialOverride struct {
	ID              string    `db:"id" json:"id"`
	Date            time.Time `db:"date" json:"date"`
	StartTime       string    `db:"start_time" json:"start_time"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	SessionType     string    `db:"session_type" json:"session_type"`
	IsAvailable     bool      `db:"is_available" json:"is_available"`
	Reason          string    `db:"reason" json:"reason,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// EffectiveSlot is one entry in the merged per-date availability view.
type EffectiveSlot struct {
	Time        string       `json:"time"`
	Origin      SlotOrigin   `json:"origin"`
	SessionType string       `json:"session_type"`
	IsBooked    bool         `json:"is_booked"`
	Appointment *Appointment `json:"appointment,omitempty"`
}

// DayAvailability is the resolver output for one calendar date.
type DayAvailability struct {
	Date  string          `json:"date"`
	Slots []EffectiveSlot `json:"slots"`
}

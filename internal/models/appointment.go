package models

import "time"

// AppointmentStatus is the staff-driven appointment lifecycle state.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Occupies reports whether an appointment in this status consumes a slot.
func (s AppointmentStatus) Occupies() bool {
	return s == AppointmentPending || s == AppointmentConfirmed
}

// Appointment is a booking against a specific date and start time.
type Appointment struct {
	ID          string            `db:"id" json:"id"`
	ClientName  string            `db:"client_name" json:"client_name"`
	ClientEmail string            `db:"client_email" json:"client_email"`
	ClientPhone string            `db:"client_phone" json:"client_phone,omitempty"`
	Date        time.Time         `db:"date" json:"date"`
	StartTime   string            `db:"start_time" json:"start_time"`
	SessionType string            `db:"session_type" json:"session_type"`
	Status      AppointmentStatus `db:"status" json:"status"`
	Notes       string            `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// AppointmentFilter describes query params for listing appointments.
type AppointmentFilter struct {
	DateFrom *time.Time
	DateTo   *time.Time
	Statuses []AppointmentStatus
	Search   string
	Page     int
	PageSize int
}

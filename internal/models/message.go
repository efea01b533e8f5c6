package models

import "time"

// ContactMessage is a message submitted through the public contact form.
type ContactMessage struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Email     string     `db:"email" json:"email"`
	Phone     string     `db:"phone" json:"phone,omitempty"`
	Subject   string     `db:"subject" json:"subject"`
	Body      string     `db:"body" json:"body"`
	Read      bool       `db:"read" json:"read"`
	ReadAt    *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// MessageFilter describes query params for listing contact messages.
type MessageFilter struct {
	UnreadOnly bool
	Search     string
	Page       int
	PageSize   int
}

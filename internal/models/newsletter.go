package models

import "time"

// NewsletterStatus is the lifecycle state of a newsletter issue.
type NewsletterStatus string

const (
	NewsletterDraft   NewsletterStatus = "draft"
	NewsletterSending NewsletterStatus = "sending"
	NewsletterSent    NewsletterStatus = "sent"
)

// NewsletterIssue is a staff-composed newsletter.
type NewsletterIssue struct {
	ID             string           `db:"id" json:"id"`
	Subject        string           `db:"subject" json:"subject"`
	Body           string           `db:"body" json:"body"`
	BodyHTML       string           `db:"body_html" json:"body_html"`
	Status         NewsletterStatus `db:"status" json:"status"`
	RecipientCount int              `db:"recipient_count" json:"recipient_count"`
	SentCount      int              `db:"sent_count" json:"sent_count"`
	CreatedBy      string           `db:"created_by" json:"created_by"`
	SentAt         *time.Time       `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

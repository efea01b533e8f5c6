package models

import "time"

// Subscriber is a newsletter recipient.
type Subscriber struct {
	ID               string     `db:"id" json:"id"`
	Email            string     `db:"email" json:"email"`
	Name             string     `db:"name" json:"name,omitempty"`
	UnsubscribeToken string     `db:"unsubscribe_token" json:"-"`
	Active           bool       `db:"active" json:"active"`
	SubscribedAt     time.Time  `db:"subscribed_at" json:"subscribed_at"`
	UnsubscribedAt   *time.Time `db:"unsubscribed_at" json:"unsubscribed_at,omitempty"`
}

// SubscriberFilter describes query params for listing subscribers.
type SubscriberFilter struct {
	ActiveOnly bool
	Search     string
	Page       int
	PageSize   int
}

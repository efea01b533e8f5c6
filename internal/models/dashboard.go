package models

import "time"

// DashboardSummary aggregates counts shown on the ops dashboard.
type DashboardSummary struct {
	AppointmentsByStatus map[AppointmentStatus]int `json:"appointments_by_status"`
	UpcomingWeek         []DailyLoad               `json:"upcoming_week"`
	UnreadMessages       int                       `json:"unread_messages"`
	ActiveSubscribers    int                       `json:"active_subscribers"`
	SubscriberGrowth     []MonthlyCount            `json:"subscriber_growth"`
	PublishedPosts       int                       `json:"published_posts"`
	DraftPosts           int                       `json:"draft_posts"`
	GeneratedAt          time.Time                 `json:"generated_at"`
}

// DailyLoad is the number of occupied slots on one date.
type DailyLoad struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// MonthlyCount is a month-bucketed counter used for growth charts.
type MonthlyCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

package models

import (
	"time"

	"github.com/lib/pq"
)

// Post represents a blog article or podcast episode page.
type Post struct {
	ID          string         `db:"id" json:"id"`
	Slug        string         `db:"slug" json:"slug"`
	Title       string         `db:"title" json:"title"`
	Excerpt     string         `db:"excerpt" json:"excerpt"`
	Body        string         `db:"body" json:"body"`
	BodyHTML    string         `db:"body_html" json:"body_html"`
	Category    string         `db:"category" json:"category"`
	Tags        pq.StringArray `db:"tags" json:"tags"`
	AudioURL    string         `db:"audio_url" json:"audio_url,omitempty"`
	Published   bool           `db:"published" json:"published"`
	PublishedAt *time.Time     `db:"published_at" json:"published_at,omitempty"`
	AuthorID    string         `db:"author_id" json:"author_id"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// PostFilter describes query params for listing posts.
type PostFilter struct {
	Category      string
	Tag           string
	Search        string
	PublishedOnly bool
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}

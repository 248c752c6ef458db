package models

import "time"

// PostingHistory records one strategy attempt for one platform of a post.
type PostingHistory struct {
	ID           int64        `db:"id" json:"id"`
	UserID       int64        `db:"user_id" json:"user_id"`
	PostID       int64        `db:"post_id" json:"post_id"`
	Platform     Platform     `db:"platform" json:"platform"`
	Strategy     AuthStrategy `db:"strategy" json:"strategy"`
	ExternalID   string       `db:"external_id" json:"external_id,omitempty"`
	ErrorKind    string       `db:"error_kind" json:"error_kind,omitempty"`
	ErrorMessage string       `db:"error_message" json:"error_message"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
}

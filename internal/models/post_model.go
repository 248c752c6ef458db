package models

import "time"

type PostStatus string

const (
	PostStatusDraft      PostStatus = "draft"
	PostStatusScheduled  PostStatus = "scheduled"
	PostStatusPublishing PostStatus = "publishing"
	PostStatusPublished  PostStatus = "published"
	PostStatusFailed     PostStatus = "failed"
)

// forward lists the only moves a post may make. Published and failed are terminal.
var forward = map[PostStatus][]PostStatus{
	PostStatusDraft:      {PostStatusScheduled, PostStatusFailed},
	PostStatusScheduled:  {PostStatusPublishing, PostStatusFailed},
	PostStatusPublishing: {PostStatusPublished, PostStatusFailed},
}

// CanTransition reports whether a post in status s may move to next.
func (s PostStatus) CanTransition(next PostStatus) bool {
	for _, allowed := range forward[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type ScheduledPost struct {
	ID            int64               `db:"id" json:"id"`
	UserID        int64               `db:"user_id" json:"user_id"`
	Body          string              `db:"body" json:"body"`
	Platforms     []Platform          `db:"platforms" json:"platforms"`
	MediaKeys     []string            `db:"media_keys" json:"media_keys,omitempty"`
	ScheduledTime time.Time           `db:"scheduled_time" json:"scheduled_time"`
	Status        PostStatus          `db:"status" json:"status"`
	PublishedAt   *time.Time          `db:"published_at" json:"published_at,omitempty"`
	ErrorMessage  string              `db:"error_message" json:"error_message,omitempty"`
	ExternalIDs   map[Platform]string `db:"external_ids" json:"external_ids,omitempty"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updated_at"`
}

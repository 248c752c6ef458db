package transfer

import "github.com/maheshrc27/crosspost/internal/models"

// PostCreation is the form a post is scheduled from. ScheduledTime is RFC 3339.
type PostCreation struct {
	Body          string   `json:"body"`
	Platforms     []string `json:"platforms"`
	ScheduledTime string   `json:"scheduled_time"`
	Draft         bool     `json:"draft"`
}

type PostDetails struct {
	Post       *models.ScheduledPost      `json:"post"`
	History    []*models.PostingHistory   `json:"history"`
	Engagement []*models.EngagementRecord `json:"engagement"`
}

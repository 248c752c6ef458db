package models

import (
	"math"
	"time"
)

type Metrics struct {
	Likes       int64 `json:"likes"`
	Shares      int64 `json:"shares"`
	Comments    int64 `json:"comments"`
	Impressions int64 `json:"impressions"`
	Clicks      int64 `json:"clicks"`
}

// EngagementRecord is unique per (post, platform).
type EngagementRecord struct {
	ID             int64     `db:"id" json:"id"`
	PostID         int64     `db:"post_id" json:"post_id"`
	Platform       Platform  `db:"platform" json:"platform"`
	Likes          int64     `db:"likes" json:"likes"`
	Shares         int64     `db:"shares" json:"shares"`
	Comments       int64     `db:"comments" json:"comments"`
	Impressions    int64     `db:"impressions" json:"impressions"`
	Clicks         int64     `db:"clicks" json:"clicks"`
	EngagementRate int64     `db:"engagement_rate" json:"engagement_rate"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// EngagementRate is round(10000 * (likes+shares+comments) / impressions).
// Zero impressions yield zero.
func EngagementRate(likes, shares, comments, impressions int64) int64 {
	if impressions <= 0 {
		return 0
	}
	return int64(math.Round(10000 * float64(likes+shares+comments) / float64(impressions)))
}

func NewEngagementRecord(postID int64, platform Platform, m Metrics, now time.Time) EngagementRecord {
	return EngagementRecord{
		PostID:         postID,
		Platform:       platform,
		Likes:          m.Likes,
		Shares:         m.Shares,
		Comments:       m.Comments,
		Impressions:    m.Impressions,
		Clicks:         m.Clicks,
		EngagementRate: EngagementRate(m.Likes, m.Shares, m.Comments, m.Impressions),
		UpdatedAt:      now,
	}
}

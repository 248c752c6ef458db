package queue

import (
	"context"
	"log/slog"
)

// Collector is the part of the analytics service the worker drives.
type Collector interface {
	CollectPost(ctx context.Context, postID int64) (int, error)
}

type Queue struct {
	an     Collector
	logger *slog.Logger
}

func NewQueue(an Collector, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{an: an, logger: logger}
}

const TaskTypeCollectAnalytics = "analytics:collect"

type CollectAnalyticsPayload struct {
	PostID int64 `json:"post_id"`
}

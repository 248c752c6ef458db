package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/crosspost/internal/repository"
)

func (j *Queue) HandleCollectAnalyticsTask(ctx context.Context, task *asynq.Task) error {
	var payload CollectAnalyticsPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	n, err := j.an.CollectPost(ctx, payload.PostID)
	if errors.Is(err, repository.ErrNotFound) {
		j.logger.Info("post gone before analytics ran", "post_id", payload.PostID)
		return nil
	}
	if err != nil {
		j.logger.Warn("analytics collection failed", "post_id", payload.PostID, "updated", n, "error", err)
		return err
	}

	j.logger.Info("analytics collected", "post_id", payload.PostID, "updated", n)
	return nil
}

func (j *Queue) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypeCollectAnalytics, j.HandleCollectAnalyticsTask)
}

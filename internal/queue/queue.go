package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// uniqueWindow keeps a re-armed collection from stacking on top of a
// pending one for the same post.
const uniqueWindow = time.Hour

type Enqueuer interface {
	ScheduleAnalytics(postID int64, delay time.Duration) error
}

// taskClient is satisfied by *asynq.Client.
type taskClient interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type asynqEnqueuer struct {
	client taskClient
}

func NewEnqueuer(client taskClient) Enqueuer {
	return &asynqEnqueuer{client: client}
}

func (e *asynqEnqueuer) ScheduleAnalytics(postID int64, delay time.Duration) error {
	taskPayload, err := json.Marshal(CollectAnalyticsPayload{PostID: postID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeCollectAnalytics, taskPayload)

	_, err = e.client.Enqueue(task, asynq.ProcessIn(delay), asynq.Unique(delay+uniqueWindow))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		slog.Info("analytics collection already pending", "post_id", postID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue analytics for post %d: %w", postID, err)
	}

	slog.Info("analytics collection scheduled", "post_id", postID, "delay", delay)
	return nil
}

package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/queue"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/service"
	"golang.org/x/sync/errgroup"
)

type PublishJobConfig struct {
	// MaxConcurrentPosts above one publishes that many due posts in parallel.
	// Browser profiles stay exclusive per (owner, platform) either way.
	MaxConcurrentPosts int
	AnalyticsDelay     time.Duration
}

// PublishJob is one scheduler tick: claim every due post, publish it and
// persist the outcome.
type PublishJob struct {
	cfg    PublishJobConfig
	pr     repository.PostRepository
	orch   service.Orchestrator
	eq     queue.Enqueuer
	rec    service.Recorder
	logger *slog.Logger
	now    func() time.Time
}

func NewPublishJob(
	cfg PublishJobConfig,
	pr repository.PostRepository,
	orch service.Orchestrator,
	eq queue.Enqueuer,
	rec service.Recorder,
	logger *slog.Logger) *PublishJob {
	if cfg.MaxConcurrentPosts <= 0 {
		cfg.MaxConcurrentPosts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishJob{
		cfg:    cfg,
		pr:     pr,
		orch:   orch,
		eq:     eq,
		rec:    rec,
		logger: logger,
		now:    time.Now,
	}
}

func (j *PublishJob) Run(ctx context.Context) error {
	posts, err := j.pr.ListDue(ctx, j.now())
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		return nil
	}
	j.logger.Info("due posts", "count", len(posts))

	if j.cfg.MaxConcurrentPosts == 1 {
		for _, post := range posts {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			j.process(ctx, post)
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(j.cfg.MaxConcurrentPosts)
	for _, post := range posts {
		if ctx.Err() != nil {
			break
		}
		post := post
		g.Go(func() error {
			j.process(ctx, post)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (j *PublishJob) process(ctx context.Context, post *models.ScheduledPost) {
	// Claim before any platform is touched; an overlapping tick loses here.
	claimed, err := j.pr.Claim(ctx, post.ID)
	if err != nil {
		j.logger.Error("claim post", "post_id", post.ID, "error", err)
		return
	}
	if !claimed {
		j.logger.Debug("post claimed elsewhere", "post_id", post.ID)
		return
	}

	out := j.orch.Publish(ctx, post)

	// Outcome writes outlive ctx, otherwise a shutdown strands the post in
	// publishing.
	pctx := context.WithoutCancel(ctx)

	if !out.Published() {
		msg := out.Message()
		if err := j.pr.MarkFailed(pctx, post.ID, out.ExternalIDs, msg); err != nil {
			j.logger.Error("mark post failed", "post_id", post.ID, "error", err)
			return
		}
		j.record(models.PostStatusFailed)
		j.logger.Warn("post failed", "post_id", post.ID, "user_id", post.UserID, "error", msg)
		return
	}

	if err := j.pr.MarkPublished(pctx, post.ID, out.ExternalIDs, j.now(), out.Message()); err != nil {
		j.logger.Error("mark post published", "post_id", post.ID, "error", err)
		return
	}
	j.record(models.PostStatusPublished)
	j.logger.Info("post published", "post_id", post.ID, "user_id", post.UserID, "platforms", len(out.ExternalIDs))

	if j.eq == nil {
		return
	}
	if err := j.eq.ScheduleAnalytics(post.ID, j.cfg.AnalyticsDelay); err != nil {
		j.logger.Error("arm analytics", "post_id", post.ID, "error", err)
	}
}

func (j *PublishJob) record(status models.PostStatus) {
	if j.rec != nil {
		j.rec.PostFinished(status)
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/repository"
)

type MetricsFetcher interface {
	FetchMetrics(ctx context.Context, owner int64, p models.Platform, tok platform.Token, externalID string) (*models.Metrics, error)
}

// AnalyticsService refreshes engagement counters of published posts. Posts
// published through the browser carry synthetic ids and are skipped.
type AnalyticsService interface {
	CollectPost(ctx context.Context, postID int64) (int, error)
	Sweep(ctx context.Context, lookback time.Duration) (int, error)
	RefreshOwner(ctx context.Context, userID int64) (int, error)
}

type analyticsService struct {
	pr      repository.PostRepository
	cr      repository.CredentialRepository
	er      repository.EngagementRepository
	codec   *CredentialCodec
	fetcher MetricsFetcher
	rec     Recorder
	logger  *slog.Logger
	now     func() time.Time
}

func NewAnalyticsService(
	pr repository.PostRepository,
	cr repository.CredentialRepository,
	er repository.EngagementRepository,
	codec *CredentialCodec,
	fetcher MetricsFetcher,
	rec Recorder,
	logger *slog.Logger) AnalyticsService {
	if rec == nil {
		rec = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &analyticsService{
		pr:      pr,
		cr:      cr,
		er:      er,
		codec:   codec,
		fetcher: fetcher,
		rec:     rec,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *analyticsService) CollectPost(ctx context.Context, postID int64) (int, error) {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return 0, err
	}
	return s.collect(ctx, post)
}

func (s *analyticsService) Sweep(ctx context.Context, lookback time.Duration) (int, error) {
	posts, err := s.pr.ListPublishedSince(ctx, s.now().Add(-lookback))
	if err != nil {
		return 0, err
	}
	return s.collectAll(ctx, posts), nil
}

func (s *analyticsService) RefreshOwner(ctx context.Context, userID int64) (int, error) {
	if userID == 0 {
		err := errors.New("user is not valid")
		slog.Info(err.Error())
		return 0, err
	}
	posts, err := s.pr.ListPublishedByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return s.collectAll(ctx, posts), nil
}

func (s *analyticsService) collectAll(ctx context.Context, posts []*models.ScheduledPost) int {
	total := 0
	for _, post := range posts {
		if ctx.Err() != nil {
			break
		}
		n, err := s.collect(ctx, post)
		total += n
		if err != nil {
			s.logger.Warn("analytics collection incomplete", "post_id", post.ID, "error", err)
		}
	}
	return total
}

// collect upserts one record per platform of post that has a real external
// id and an active api token. Failures on one platform don't stop the others.
func (s *analyticsService) collect(ctx context.Context, post *models.ScheduledPost) (int, error) {
	if post.Status != models.PostStatusPublished {
		return 0, nil
	}

	creds, err := s.cr.ListByUserID(ctx, post.UserID)
	if err != nil {
		return 0, err
	}
	tokens := map[models.Platform]*models.Credential{}
	for _, c := range creds {
		if c.Strategy == models.StrategyAPIToken && c.IsActive {
			tokens[c.Platform] = c
		}
	}

	var (
		errs    []error
		updated int
	)
	for p, externalID := range post.ExternalIDs {
		if externalID == "" || models.IsSyntheticExternalID(externalID) {
			s.logger.Debug("no platform id to collect", "post_id", post.ID, "platform", p)
			continue
		}
		cred, ok := tokens[p]
		if !ok {
			s.logger.Debug("no api token to collect with", "post_id", post.ID, "platform", p)
			continue
		}
		tok, err := s.codec.OpenToken(cred.Payload)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}

		m, err := s.fetcher.FetchMetrics(ctx, post.UserID, p, tok, externalID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if m == nil {
			continue
		}

		rec := models.NewEngagementRecord(post.ID, p, *m, s.now())
		if err := s.er.Upsert(ctx, &rec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		s.rec.EngagementUpserted(p)
		updated++
	}
	return updated, errors.Join(errs...)
}

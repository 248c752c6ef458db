package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

var (
	ErrInvalidPost       = errors.New("invalid post")
	ErrPostNotFound      = errors.New("post not found")
	ErrPostNotCancelable = errors.New("post can no longer be cancelled")
)

const cancelReason = "cancelled by owner"

type PostService interface {
	Schedule(ctx context.Context, userID int64, pc *transfer.PostCreation, files [][]byte) (*models.ScheduledPost, error)
	Cancel(ctx context.Context, userID, postID int64) error
	List(ctx context.Context, userID int64) ([]*models.ScheduledPost, error)
	Get(ctx context.Context, userID, postID int64) (*transfer.PostDetails, error)
}

type postService struct {
	pr    repository.PostRepository
	ph    repository.PostingHistoryRepository
	er    repository.EngagementRepository
	media MediaStore
}

func NewPostService(
	pr repository.PostRepository,
	ph repository.PostingHistoryRepository,
	er repository.EngagementRepository,
	media MediaStore) PostService {
	return &postService{
		pr:    pr,
		ph:    ph,
		er:    er,
		media: media,
	}
}

func invalid(format string, args ...any) error {
	err := fmt.Errorf("%w: %s", ErrInvalidPost, fmt.Sprintf(format, args...))
	slog.Info(err.Error())
	return err
}

func (s *postService) Schedule(ctx context.Context, userID int64, pc *transfer.PostCreation, files [][]byte) (*models.ScheduledPost, error) {
	if userID == 0 {
		return nil, invalid("user is not valid")
	}
	if pc == nil {
		return nil, invalid("post creation data is nil")
	}
	if strings.TrimSpace(pc.Body) == "" {
		return nil, invalid("body cannot be empty")
	}

	scheduledTime, err := time.Parse(time.RFC3339, pc.ScheduledTime)
	if err != nil {
		return nil, invalid("scheduled time must be RFC 3339: %v", err)
	}

	platforms, err := parsePlatforms(pc.Platforms)
	if err != nil {
		return nil, err
	}

	mediaKeys := make([]string, 0, len(files))
	for _, file := range files {
		key, err := s.media.Upload(ctx, userID, file)
		if err != nil {
			if errors.Is(err, ErrUnsupportedMedia) {
				return nil, invalid("%v", err)
			}
			return nil, fmt.Errorf("upload media: %w", err)
		}
		mediaKeys = append(mediaKeys, key)
	}

	status := models.PostStatusScheduled
	if pc.Draft {
		status = models.PostStatusDraft
	}

	post := &models.ScheduledPost{
		UserID:        userID,
		Body:          pc.Body,
		Platforms:     platforms,
		MediaKeys:     mediaKeys,
		ScheduledTime: scheduledTime.UTC(),
		Status:        status,
	}
	if _, err := s.pr.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("error creating post: %w", err)
	}
	return post, nil
}

func parsePlatforms(raw []string) ([]models.Platform, error) {
	if len(raw) == 0 {
		return nil, invalid("no platforms selected")
	}
	seen := make(map[models.Platform]struct{}, len(raw))
	platforms := make([]models.Platform, 0, len(raw))
	for _, r := range raw {
		p, ok := models.ParsePlatform(strings.ToLower(strings.TrimSpace(r)))
		if !ok {
			return nil, invalid("unknown platform %q", r)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		platforms = append(platforms, p)
	}
	return platforms, nil
}

// Cancel fails a draft or scheduled post. A post that is already publishing
// runs to completion.
func (s *postService) Cancel(ctx context.Context, userID, postID int64) error {
	post, err := s.owned(ctx, userID, postID)
	if err != nil {
		return err
	}
	// unclaimed posts can still move towards publishing
	if !post.Status.CanTransition(models.PostStatusScheduled) && !post.Status.CanTransition(models.PostStatusPublishing) {
		slog.Info("post not cancelable", "post_id", post.ID, "status", post.Status)
		return ErrPostNotCancelable
	}

	ok, err := s.pr.Cancel(ctx, postID, userID, cancelReason)
	if err != nil {
		return err
	}
	if !ok {
		// claimed by the scheduler in the meantime
		slog.Info("post claimed before cancel", "post_id", post.ID)
		return ErrPostNotCancelable
	}
	return nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.ScheduledPost, error) {
	if userID == 0 {
		return nil, invalid("user is not valid")
	}
	return s.pr.ListByUserID(ctx, userID)
}

func (s *postService) Get(ctx context.Context, userID, postID int64) (*transfer.PostDetails, error) {
	post, err := s.owned(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	history, err := s.ph.ListByPost(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	engagement, err := s.er.ListByPost(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	return &transfer.PostDetails{Post: post, History: history, Engagement: engagement}, nil
}

func (s *postService) owned(ctx context.Context, userID, postID int64) (*models.ScheduledPost, error) {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	if post.UserID != userID {
		return nil, ErrPostNotFound
	}
	return post, nil
}

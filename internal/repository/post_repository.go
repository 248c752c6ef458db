package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/crosspost/internal/models"
)

type PostRepository interface {
	Create(ctx context.Context, post *models.ScheduledPost) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.ScheduledPost, error)
	ListDue(ctx context.Context, now time.Time) ([]*models.ScheduledPost, error)
	Claim(ctx context.Context, id int64) (bool, error)
	MarkPublished(ctx context.Context, id int64, externalIDs map[models.Platform]string, at time.Time, message string) error
	MarkFailed(ctx context.Context, id int64, externalIDs map[models.Platform]string, message string) error
	Cancel(ctx context.Context, id, userID int64, reason string) (bool, error)
	ListPublishedSince(ctx context.Context, since time.Time) ([]*models.ScheduledPost, error)
	ListPublishedByUser(ctx context.Context, userID int64) ([]*models.ScheduledPost, error)
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, user_id, body, platforms, media_keys, scheduled_time, status,
	published_at, error_message, external_ids, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.ScheduledPost, error) {
	var (
		post        models.ScheduledPost
		platforms   pq.StringArray
		mediaKeys   pq.StringArray
		publishedAt sql.NullTime
		externalIDs []byte
	)
	err := row.Scan(&post.ID, &post.UserID, &post.Body, &platforms, &mediaKeys, &post.ScheduledTime,
		&post.Status, &publishedAt, &post.ErrorMessage, &externalIDs, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}

	post.Platforms = make([]models.Platform, 0, len(platforms))
	for _, p := range platforms {
		post.Platforms = append(post.Platforms, models.Platform(p))
	}
	post.MediaKeys = []string(mediaKeys)
	if publishedAt.Valid {
		t := publishedAt.Time
		post.PublishedAt = &t
	}
	if len(externalIDs) > 0 {
		if err := json.Unmarshal(externalIDs, &post.ExternalIDs); err != nil {
			return nil, err
		}
	}
	return &post, nil
}

func (r *postRepository) queryPosts(ctx context.Context, query string, args ...any) ([]*models.ScheduledPost, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

func (r *postRepository) Create(ctx context.Context, post *models.ScheduledPost) (int64, error) {
	query := `
		INSERT INTO posts (user_id, body, platforms, media_keys, scheduled_time, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	platforms := make([]string, 0, len(post.Platforms))
	for _, p := range post.Platforms {
		platforms = append(platforms, string(p))
	}
	mediaKeys := post.MediaKeys
	if mediaKeys == nil {
		mediaKeys = []string{}
	}

	err := r.db.QueryRowContext(ctx, query, post.UserID, post.Body, pq.Array(platforms), pq.Array(mediaKeys),
		post.ScheduledTime, post.Status).Scan(&post.ID, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return post.ID, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1 ORDER BY scheduled_time DESC`
	return r.queryPosts(ctx, query, userID)
}

func (r *postRepository) ListDue(ctx context.Context, now time.Time) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE status = $1 AND scheduled_time <= $2 ORDER BY scheduled_time`
	return r.queryPosts(ctx, query, models.PostStatusScheduled, now)
}

// Claim moves a post from scheduled to publishing. Only one caller can win.
func (r *postRepository) Claim(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query, models.PostStatusPublishing, time.Now(), id, models.PostStatusScheduled)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

// MarkPublished finishes a post that went out on at least one platform.
// message lists the platforms that failed, if any.
func (r *postRepository) MarkPublished(ctx context.Context, id int64, externalIDs map[models.Platform]string, at time.Time, message string) error {
	query := `
		UPDATE posts
		SET status = $1, external_ids = $2, published_at = $3, error_message = $4, updated_at = $5
		WHERE id = $6 AND status = $7
	`
	return r.finish(ctx, query, models.PostStatusPublished, externalIDs, at, message, id)
}

func (r *postRepository) MarkFailed(ctx context.Context, id int64, externalIDs map[models.Platform]string, message string) error {
	query := `
		UPDATE posts
		SET status = $1, external_ids = $2, published_at = $3, error_message = $4, updated_at = $5
		WHERE id = $6 AND status = $7
	`
	return r.finish(ctx, query, models.PostStatusFailed, externalIDs, nil, message, id)
}

func (r *postRepository) finish(ctx context.Context, query string, status models.PostStatus,
	externalIDs map[models.Platform]string, publishedAt any, message string, id int64) error {
	if externalIDs == nil {
		externalIDs = map[models.Platform]string{}
	}
	ids, err := json.Marshal(externalIDs)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query, status, ids, publishedAt, message, time.Now(), id, models.PostStatusPublishing)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		slog.Info("post not in publishing state", "post_id", id)
		return ErrStaleState
	}
	return nil
}

// Cancel fails a draft or scheduled post owned by userID. It reports false when
// the post is missing, owned by someone else, or already past scheduled.
func (r *postRepository) Cancel(ctx context.Context, id, userID int64, reason string) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4 AND user_id = $5 AND status IN ($6, $7)
	`
	result, err := r.db.ExecContext(ctx, query, models.PostStatusFailed, reason, time.Now(), id, userID,
		models.PostStatusDraft, models.PostStatusScheduled)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

func (r *postRepository) ListPublishedSince(ctx context.Context, since time.Time) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE status = $1 AND published_at >= $2 ORDER BY published_at`
	return r.queryPosts(ctx, query, models.PostStatusPublished, since)
}

func (r *postRepository) ListPublishedByUser(ctx context.Context, userID int64) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1 AND status = $2 ORDER BY published_at DESC`
	return r.queryPosts(ctx, query, userID, models.PostStatusPublished)
}

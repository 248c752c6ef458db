package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/crosspost/internal/models"
)

type EngagementRepository interface {
	Upsert(ctx context.Context, rec *models.EngagementRecord) error
	ListByPost(ctx context.Context, postID int64) ([]*models.EngagementRecord, error)
}

type engagementRepository struct {
	db *sql.DB
}

func NewEngagementRepository(db *sql.DB) EngagementRepository {
	return &engagementRepository{db: db}
}

// Upsert keeps a single row per (post, platform); later snapshots overwrite earlier ones.
func (r *engagementRepository) Upsert(ctx context.Context, rec *models.EngagementRecord) error {
	query := `
		INSERT INTO engagement (post_id, platform, likes, shares, comments, impressions, clicks, engagement_rate, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (post_id, platform) DO UPDATE
		SET likes = EXCLUDED.likes,
			shares = EXCLUDED.shares,
			comments = EXCLUDED.comments,
			impressions = EXCLUDED.impressions,
			clicks = EXCLUDED.clicks,
			engagement_rate = EXCLUDED.engagement_rate,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query, rec.PostID, rec.Platform, rec.Likes, rec.Shares, rec.Comments,
		rec.Impressions, rec.Clicks, rec.EngagementRate, rec.UpdatedAt).Scan(&rec.ID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *engagementRepository) ListByPost(ctx context.Context, postID int64) ([]*models.EngagementRecord, error) {
	query := `
		SELECT id, post_id, platform, likes, shares, comments, impressions, clicks, engagement_rate, updated_at
		FROM engagement
		WHERE post_id = $1
		ORDER BY platform
	`
	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var recs []*models.EngagementRecord
	for rows.Next() {
		var rec models.EngagementRecord
		err := rows.Scan(&rec.ID, &rec.PostID, &rec.Platform, &rec.Likes, &rec.Shares, &rec.Comments,
			&rec.Impressions, &rec.Clicks, &rec.EngagementRate, &rec.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

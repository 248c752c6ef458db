package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

type CredentialRepository interface {
	Upsert(ctx context.Context, c *models.Credential) (int64, error)
	Get(ctx context.Context, userID int64, platform models.Platform, strategy models.AuthStrategy) (*models.Credential, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.Credential, error)
	ListActiveByStrategy(ctx context.Context, strategy models.AuthStrategy) ([]*models.Credential, error)
	Invalidate(ctx context.Context, id int64) error
	MarkValidated(ctx context.Context, id int64, at time.Time) error
	Remove(ctx context.Context, userID int64, platform models.Platform, strategy models.AuthStrategy) error
	RemoveAll(ctx context.Context, userID int64, platform models.Platform) error
}

type credentialRepository struct {
	db *sql.DB
}

func NewCredentialRepository(db *sql.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

const credentialColumns = `id, user_id, platform, strategy, payload, is_active, last_validated_at, created_at, updated_at`

func scanCredential(row rowScanner) (*models.Credential, error) {
	var (
		c           models.Credential
		validatedAt sql.NullTime
	)
	err := row.Scan(&c.ID, &c.UserID, &c.Platform, &c.Strategy, &c.Payload, &c.IsActive,
		&validatedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if validatedAt.Valid {
		t := validatedAt.Time
		c.LastValidatedAt = &t
	}
	return &c, nil
}

func (r *credentialRepository) queryCredentials(ctx context.Context, query string, args ...any) ([]*models.Credential, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return creds, nil
}

// Upsert stores the payload for (user, platform, strategy) and reactivates it.
func (r *credentialRepository) Upsert(ctx context.Context, c *models.Credential) (int64, error) {
	query := `
		INSERT INTO credentials (user_id, platform, strategy, payload, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (user_id, platform, strategy) DO UPDATE
		SET payload = EXCLUDED.payload,
			is_active = TRUE,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, c.UserID, c.Platform, c.Strategy, c.Payload).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	c.ID = id
	c.IsActive = true
	return id, nil
}

func (r *credentialRepository) Get(ctx context.Context, userID int64, platform models.Platform, strategy models.AuthStrategy) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE user_id = $1 AND platform = $2 AND strategy = $3`

	c, err := scanCredential(r.db.QueryRowContext(ctx, query, userID, platform, strategy))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return c, nil
}

func (r *credentialRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE user_id = $1 ORDER BY platform, strategy`
	return r.queryCredentials(ctx, query, userID)
}

func (r *credentialRepository) ListActiveByStrategy(ctx context.Context, strategy models.AuthStrategy) ([]*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE strategy = $1 AND is_active = TRUE`
	return r.queryCredentials(ctx, query, strategy)
}

func (r *credentialRepository) Invalidate(ctx context.Context, id int64) error {
	query := `UPDATE credentials SET is_active = FALSE, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	return r.exec(ctx, query, id)
}

func (r *credentialRepository) MarkValidated(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE credentials SET last_validated_at = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`
	return r.exec(ctx, query, at, id)
}

func (r *credentialRepository) Remove(ctx context.Context, userID int64, platform models.Platform, strategy models.AuthStrategy) error {
	query := `DELETE FROM credentials WHERE user_id = $1 AND platform = $2 AND strategy = $3`
	return r.exec(ctx, query, userID, platform, strategy)
}

func (r *credentialRepository) RemoveAll(ctx context.Context, userID int64, platform models.Platform) error {
	query := `DELETE FROM credentials WHERE user_id = $1 AND platform = $2`
	return r.exec(ctx, query, userID, platform)
}

func (r *credentialRepository) exec(ctx context.Context, query string, args ...any) error {
	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

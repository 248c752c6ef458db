// Package platform holds the official-API clients for every supported
// platform and the Gateway that enforces limits, caching and classification
// in front of them.
package platform

import (
	"context"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

// Token is the decrypted payload of an api_token credential.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	AccountID    string    `json:"account_id,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// MediaFile is one attachment of a post. URL is publicly fetchable; Path is
// only set once the file was materialized on local disk.
type MediaFile struct {
	Key         string
	URL         string
	ContentType string
	Path        string
}

type Content struct {
	Text  string
	Media []MediaFile
}

type Client interface {
	Platform() models.Platform
	MaxTextLength() int
	Connect(ctx context.Context, tok Token) (Conn, error)
}

// Conn is an authenticated handle for one account.
type Conn interface {
	Validate(ctx context.Context) error
	Publish(ctx context.Context, c Content) (string, error)
	FetchMetrics(ctx context.Context, externalID string) (*models.Metrics, error)
}

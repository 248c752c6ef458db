package models

import "time"

type AuthStrategy string

const (
	StrategyAPIToken          AuthStrategy = "api_token"
	StrategyCookieSnapshot    AuthStrategy = "cookie_snapshot"
	StrategyPersistentSession AuthStrategy = "persistent_session"
)

// DefaultStrategyOrder is the preference used to pick the primary credential
// when an owner has more than one for a platform.
var DefaultStrategyOrder = []AuthStrategy{StrategyAPIToken, StrategyCookieSnapshot, StrategyPersistentSession}

func ParseStrategy(s string) (AuthStrategy, bool) {
	for _, st := range DefaultStrategyOrder {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Credential is unique per (owner, platform, strategy). Payload is encrypted
// at rest; its plaintext shape depends on Strategy.
type Credential struct {
	ID              int64        `db:"id" json:"id"`
	UserID          int64        `db:"user_id" json:"user_id"`
	Platform        Platform     `db:"platform" json:"platform"`
	Strategy        AuthStrategy `db:"strategy" json:"strategy"`
	Payload         string       `db:"payload" json:"-"`
	IsActive        bool         `db:"is_active" json:"is_active"`
	LastValidatedAt *time.Time   `db:"last_validated_at" json:"last_validated_at,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

type ProfileState string

const (
	ProfileNoSession    ProfileState = "no_session"
	ProfilePendingLogin ProfileState = "pending_login"
	ProfileActive       ProfileState = "active"
	ProfileExpired      ProfileState = "expired"
	ProfileDeleted      ProfileState = "deleted"
)

package transfer

import (
	"time"

	"github.com/maheshrc27/crosspost/internal/browser"
)

type TokenConnect struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccountID    string    `json:"account_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type CookieConnect struct {
	Cookies []browser.Cookie `json:"cookies"`
}

type OnboardingStarted struct {
	LoginURL string `json:"login_url"`
	State    string `json:"state"`
}

type SessionValidation struct {
	Platform string `json:"platform"`
	Valid    bool   `json:"valid"`
}

type AnalyticsRefresh struct {
	Updated int `json:"updated"`
}

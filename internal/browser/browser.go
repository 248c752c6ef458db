// Package browser drives real browsers for platforms whose posts go through
// the web UI: disposable cookie-replay instances and persistent per-account
// profiles.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	ErrElementNotFound = errors.New("element not found")
	ErrSessionBusy     = errors.New("browser profile is in use")
	ErrNoSession       = errors.New("no browser session")
	ErrSessionExpired  = errors.New("browser session expired")
)

type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	HTTPOnly bool      `json:"http_only,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	SameSite string    `json:"same_site,omitempty"`
}

type Viewport struct {
	Width  int
	Height int
}

// OnboardingViewport is the window used for the visible login browser.
var OnboardingViewport = Viewport{Width: 1920, Height: 1080}

type LaunchOptions struct {
	Headless bool
	// UserDataDir binds the instance to a persistent profile. Empty means a
	// throwaway profile removed on Close.
	UserDataDir string
	Viewport    *Viewport
}

type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Instance, error)
}

type Instance interface {
	// NewPage opens a tab whose operations are bound to ctx.
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

type Page interface {
	Navigate(url string) error
	URL() (string, error)
	// Has reports whether selector matches right now, without waiting.
	Has(selector string) (bool, error)
	WaitVisible(selector string, timeout time.Duration) error
	Click(selector string) error
	Fill(selector, text string) error
	Upload(selector string, paths []string) error
	SetCookies(cookies []Cookie) error
	Reload() error
}

package browser

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

// Gauge counts live browser instances.
type Gauge interface {
	Inc()
	Dec()
}

type nopGauge struct{}

func (nopGauge) Inc() {}
func (nopGauge) Dec() {}

// CookieReplayEngine posts with a disposable headless browser seeded with a
// stored cookie snapshot. Every call launches its own instance and tears it
// down on every exit path.
type CookieReplayEngine struct {
	launcher Launcher
	poster   UIPoster
	flows    *Flows
	active   Gauge
	logger   *slog.Logger
	now      func() time.Time
}

func NewCookieReplayEngine(l Launcher, poster UIPoster, flows *Flows, active Gauge, logger *slog.Logger) *CookieReplayEngine {
	if active == nil {
		active = nopGauge{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CookieReplayEngine{launcher: l, poster: poster, flows: flows, active: active, logger: logger, now: time.Now}
}

// Publish returns a synthetic external id since the web UI does not expose
// the created post's id.
func (e *CookieReplayEngine) Publish(ctx context.Context, p models.Platform, cookies []Cookie, c PostContent) (string, error) {
	if err := e.poster.CheckContent(p, c); err != nil {
		return "", err
	}

	err := e.withSession(ctx, p, cookies, func(page Page) error {
		return e.poster.Post(ctx, page, p, c)
	})
	if err != nil {
		return "", err
	}
	return models.NewSyntheticExternalID(p, e.now()), nil
}

// Validate checks that the snapshot still yields a logged-in page.
func (e *CookieReplayEngine) Validate(ctx context.Context, p models.Platform, cookies []Cookie) error {
	return e.withSession(ctx, p, cookies, func(Page) error { return nil })
}

func (e *CookieReplayEngine) withSession(ctx context.Context, p models.Platform, cookies []Cookie, fn func(Page) error) error {
	if len(cookies) == 0 {
		return models.Errorf(models.KindAuthMissing, p, "cookies", "empty cookie snapshot")
	}
	flow, ok := e.flows.Lookup(p)
	if !ok {
		return models.Errorf(models.KindContentRejected, p, "cookies", "no web flow registered")
	}

	inst, err := e.launcher.Launch(ctx, LaunchOptions{Headless: true})
	if err != nil {
		return models.NewPublishError(models.KindResource, p, "launch", err)
	}
	e.active.Inc()
	defer func() {
		if err := inst.Close(); err != nil {
			e.logger.Warn("close cookie-replay browser", "platform", p, "error", err)
		}
		e.active.Dec()
	}()

	page, err := inst.NewPage(ctx)
	if err != nil {
		return models.NewPublishError(models.KindResource, p, "launch", err)
	}
	if err := page.Navigate(flow.CookieURL); err != nil {
		return stepError(ctx, p, "cookies", err)
	}
	if err := page.SetCookies(scopeCookies(cookies, flow.CookieURL)); err != nil {
		return models.NewPublishError(models.KindTransientPlatform, p, "cookies", err)
	}
	if err := page.Reload(); err != nil {
		return stepError(ctx, p, "cookies", err)
	}

	if err := e.poster.VerifyLoggedIn(ctx, page, p); err != nil {
		return err
	}
	return fn(page)
}

// scopeCookies fills in the domain of cookies exported without one.
func scopeCookies(cookies []Cookie, cookieURL string) []Cookie {
	host := ""
	if u, err := url.Parse(cookieURL); err == nil {
		host = u.Hostname()
	}

	out := make([]Cookie, len(cookies))
	for i, c := range cookies {
		if c.Domain == "" {
			c.Domain = host
		}
		out[i] = c
	}
	return out
}

package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/maheshrc27/crosspost/internal/models"
)

const markerPollInterval = 250 * time.Millisecond

type PostContent struct {
	Text       string
	MediaPaths []string
}

// UIPoster drives a logged-in page. VerifyLoggedIn fails with an auth-class
// error when the session is gone; Post fails with AutomationDrift when the
// page no longer matches the expected layout.
type UIPoster interface {
	CheckContent(p models.Platform, c PostContent) error
	VerifyLoggedIn(ctx context.Context, page Page, p models.Platform) error
	Post(ctx context.Context, page Page, p models.Platform, c PostContent) error
}

type FlowPoster struct {
	flows         *Flows
	markerTimeout time.Duration
}

func NewFlowPoster(flows *Flows, markerTimeout time.Duration) *FlowPoster {
	if markerTimeout <= 0 {
		markerTimeout = 10 * time.Second
	}
	return &FlowPoster{flows: flows, markerTimeout: markerTimeout}
}

func (fp *FlowPoster) flow(p models.Platform, op string) (UIFlow, error) {
	flow, ok := fp.flows.Lookup(p)
	if !ok {
		return UIFlow{}, models.Errorf(models.KindContentRejected, p, op, "no web flow registered")
	}
	return flow, nil
}

// CheckContent runs before any browser is launched.
func (fp *FlowPoster) CheckContent(p models.Platform, c PostContent) error {
	flow, err := fp.flow(p, "publish")
	if err != nil {
		return err
	}
	if n := utf8.RuneCountInString(c.Text); flow.MaxTextLength > 0 && n > flow.MaxTextLength {
		return models.Errorf(models.KindContentRejected, p, "publish", "text is %d characters, limit is %d", n, flow.MaxTextLength)
	}
	if flow.RequiresMedia && len(c.MediaPaths) == 0 {
		return models.Errorf(models.KindContentRejected, p, "publish", "at least one image or video is required")
	}
	if len(c.MediaPaths) > 0 && !flow.hasStep(StepUpload) {
		return models.Errorf(models.KindContentRejected, p, "publish", "media is not supported by the web flow")
	}
	return nil
}

func (f UIFlow) hasStep(a StepAction) bool {
	for _, s := range f.Compose {
		if s.Action == a {
			return true
		}
	}
	return false
}

func (fp *FlowPoster) VerifyLoggedIn(ctx context.Context, page Page, p models.Platform) error {
	flow, err := fp.flow(p, "verify")
	if err != nil {
		return err
	}
	if err := page.Navigate(flow.HomeURL); err != nil {
		return stepError(ctx, p, "verify", err)
	}
	if onLoginPage(page, flow) {
		return models.Errorf(models.KindAuthExpired, p, "verify", "redirected to login")
	}

	deadline := time.Now().Add(fp.markerTimeout)
	for {
		for _, marker := range flow.LoggedInMarkers {
			ok, err := page.Has(marker)
			if err != nil {
				return stepError(ctx, p, "verify", err)
			}
			if ok {
				return nil
			}
		}
		if onLoginPage(page, flow) {
			return models.Errorf(models.KindAuthExpired, p, "verify", "redirected to login")
		}
		if time.Now().After(deadline) {
			return models.Errorf(models.KindAuthExpired, p, "verify", "no logged-in marker visible")
		}

		select {
		case <-ctx.Done():
			return models.NewPublishError(models.KindTransientPlatform, p, "verify", ctx.Err())
		case <-time.After(markerPollInterval):
		}
	}
}

func onLoginPage(page Page, flow UIFlow) bool {
	u, err := page.URL()
	if err != nil {
		return false
	}
	for _, pattern := range flow.LoginURLPatterns {
		if strings.Contains(u, pattern) {
			return true
		}
	}
	return false
}

func (fp *FlowPoster) Post(ctx context.Context, page Page, p models.Platform, c PostContent) error {
	flow, err := fp.flow(p, "publish")
	if err != nil {
		return err
	}
	if flow.ComposeURL != "" {
		if err := page.Navigate(flow.ComposeURL); err != nil {
			return stepError(ctx, p, "publish", err)
		}
	}

	for _, step := range flow.Compose {
		var err error
		switch step.Action {
		case StepClick:
			err = page.Click(step.Selector)
		case StepFill:
			err = page.Fill(step.Selector, c.Text)
		case StepUpload:
			if len(c.MediaPaths) == 0 {
				continue
			}
			err = page.Upload(step.Selector, c.MediaPaths)
		case StepWait:
			err = page.WaitVisible(step.Selector, fp.markerTimeout)
		default:
			err = fmt.Errorf("unknown step %q", step.Action)
		}

		if err != nil {
			if step.Optional && errors.Is(err, ErrElementNotFound) {
				continue
			}
			return stepError(ctx, p, "publish", fmt.Errorf("%s %s: %w", step.Action, step.Selector, err))
		}
	}
	return nil
}

// stepError classifies a page failure. A missing element means the page
// layout drifted; the attempt's deadline or any other fault is transient.
func stepError(ctx context.Context, p models.Platform, op string, err error) error {
	if models.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, ErrElementNotFound) && ctx.Err() == nil {
		return models.NewPublishError(models.KindAutomationDrift, p, op, err)
	}
	return models.NewPublishError(models.KindTransientPlatform, p, op, err)
}

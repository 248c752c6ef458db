package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const defaultElementTimeout = 15 * time.Second

type RodConfig struct {
	// Bin is the Chromium binary. Empty lets rod locate or download one.
	Bin            string
	NoSandbox      bool
	ElementTimeout time.Duration
}

// RodLauncher starts Chromium through go-rod.
type RodLauncher struct {
	cfg RodConfig
}

func NewRodLauncher(cfg RodConfig) *RodLauncher {
	if cfg.ElementTimeout <= 0 {
		cfg.ElementTimeout = defaultElementTimeout
	}
	return &RodLauncher{cfg: cfg}
}

func (r *RodLauncher) Launch(ctx context.Context, opts LaunchOptions) (Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ctx bounds locating and starting Chromium, not the process lifetime.
	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		NoSandbox(r.cfg.NoSandbox)
	if r.cfg.Bin != "" {
		l = l.Bin(r.cfg.Bin)
	}
	if opts.UserDataDir != "" {
		l = l.UserDataDir(opts.UserDataDir)
	}
	if opts.Viewport != nil {
		l = l.Set("window-size", fmt.Sprintf("%d,%d", opts.Viewport.Width, opts.Viewport.Height))
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	return &rodInstance{
		browser:        b,
		launcher:       l,
		disposable:     opts.UserDataDir == "",
		viewport:       opts.Viewport,
		elementTimeout: r.cfg.ElementTimeout,
	}, nil
}

type rodInstance struct {
	browser        *rod.Browser
	launcher       *launcher.Launcher
	disposable     bool
	viewport       *Viewport
	elementTimeout time.Duration
}

func (i *rodInstance) NewPage(ctx context.Context) (Page, error) {
	var (
		p   *rod.Page
		err error
	)
	if i.disposable {
		p, err = stealth.Page(i.browser)
	} else {
		p, err = i.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("create tab: %w", err)
	}

	if i.viewport != nil {
		err = p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             i.viewport.Width,
			Height:            i.viewport.Height,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("set viewport: %w", err)
		}
	}
	return &rodPage{page: p.Context(ctx), ctx: ctx, elementTimeout: i.elementTimeout}, nil
}

// Close shuts the browser down. Throwaway profiles are deleted with it;
// persistent profiles stay on disk.
func (i *rodInstance) Close() error {
	err := i.browser.Close()
	if i.disposable {
		i.launcher.Cleanup()
	} else {
		i.launcher.Kill()
	}
	return err
}

type rodPage struct {
	page           *rod.Page
	ctx            context.Context
	elementTimeout time.Duration
}

func (p *rodPage) Navigate(url string) error {
	if err := p.page.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return p.page.WaitLoad()
}

func (p *rodPage) URL() (string, error) {
	info, err := p.page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *rodPage) Has(selector string) (bool, error) {
	has, _, err := p.page.Has(selector)
	return has, err
}

func (p *rodPage) element(selector string, timeout time.Duration) (*rod.Element, error) {
	el, err := p.page.Timeout(timeout).Element(selector)
	if err != nil {
		// The attempt's own deadline takes precedence over a missing element.
		if ctxErr := p.ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var nf *rod.ElementNotFoundError
		if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &nf) {
			return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
		}
		return nil, err
	}
	return el.CancelTimeout(), nil
}

func (p *rodPage) WaitVisible(selector string, timeout time.Duration) error {
	el, err := p.element(selector, timeout)
	if err != nil {
		return err
	}
	return el.Timeout(timeout).WaitVisible()
}

func (p *rodPage) Click(selector string) error {
	el, err := p.element(selector, p.elementTimeout)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) Fill(selector, text string) error {
	el, err := p.element(selector, p.elementTimeout)
	if err != nil {
		return err
	}
	return el.Input(text)
}

func (p *rodPage) Upload(selector string, paths []string) error {
	el, err := p.element(selector, p.elementTimeout)
	if err != nil {
		return err
	}
	return el.SetFiles(paths)
}

func (p *rodPage) SetCookies(cookies []Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if param.Path == "" {
			param.Path = "/"
		}
		if !c.Expires.IsZero() {
			param.Expires = proto.TimeSinceEpoch(c.Expires.Unix())
		}
		switch c.SameSite {
		case "Strict", "strict":
			param.SameSite = proto.NetworkCookieSameSiteStrict
		case "Lax", "lax":
			param.SameSite = proto.NetworkCookieSameSiteLax
		case "None", "none", "no_restriction":
			param.SameSite = proto.NetworkCookieSameSiteNone
		}
		params = append(params, param)
	}
	return p.page.SetCookies(params)
}

func (p *rodPage) Reload() error {
	if err := p.page.Reload(); err != nil {
		return err
	}
	return p.page.WaitLoad()
}

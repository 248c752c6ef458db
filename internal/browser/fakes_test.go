package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// fakeLauncher simulates Chromium. A profile is logged in once loggedIn is
// set for its directory; a throwaway instance is logged in when it receives a
// cookie named "auth_token".
type fakeLauncher struct {
	mu        sync.Mutex
	launchErr error
	loggedIn  map[string]bool
	missing   map[string]bool
	launches  int
	open      map[string]int
	maxOpen   map[string]int
	instances []*fakeInstance
	actions   []string
	hold      time.Duration
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{
		loggedIn: make(map[string]bool),
		missing:  make(map[string]bool),
		open:     make(map[string]int),
		maxOpen:  make(map[string]int),
	}
}

func (l *fakeLauncher) Launch(_ context.Context, opts LaunchOptions) (Instance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	l.launches++
	l.open[opts.UserDataDir]++
	if l.open[opts.UserDataDir] > l.maxOpen[opts.UserDataDir] {
		l.maxOpen[opts.UserDataDir] = l.open[opts.UserDataDir]
	}
	inst := &fakeInstance{l: l, opts: opts}
	l.instances = append(l.instances, inst)
	return inst, nil
}

func (l *fakeLauncher) record(a string) {
	l.mu.Lock()
	l.actions = append(l.actions, a)
	l.mu.Unlock()
}

func (l *fakeLauncher) setLoggedIn(dir string, v bool) {
	l.mu.Lock()
	l.loggedIn[dir] = v
	l.mu.Unlock()
}

func (l *fakeLauncher) openCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.open {
		n += c
	}
	return n
}

type fakeInstance struct {
	l      *fakeLauncher
	opts   LaunchOptions
	closed bool
}

func (i *fakeInstance) NewPage(ctx context.Context) (Page, error) {
	return &fakePage{inst: i, ctx: ctx}, nil
}

func (i *fakeInstance) Close() error {
	i.l.mu.Lock()
	defer i.l.mu.Unlock()
	if !i.closed {
		i.closed = true
		i.l.open[i.opts.UserDataDir]--
	}
	return nil
}

type fakePage struct {
	inst    *fakeInstance
	ctx     context.Context
	url     string
	cookies bool
}

func (p *fakePage) loggedIn() bool {
	p.inst.l.mu.Lock()
	defer p.inst.l.mu.Unlock()
	if p.inst.opts.UserDataDir == "" {
		return p.cookies
	}
	return p.inst.l.loggedIn[p.inst.opts.UserDataDir]
}

func (p *fakePage) Navigate(url string) error {
	p.inst.l.record("navigate " + url)
	p.url = url
	return nil
}

func (p *fakePage) URL() (string, error) { return p.url, nil }

func (p *fakePage) Has(selector string) (bool, error) {
	for _, m := range xFlow.LoggedInMarkers {
		if m == selector {
			return p.loggedIn(), nil
		}
	}
	return !p.isMissing(selector), nil
}

func (p *fakePage) isMissing(selector string) bool {
	p.inst.l.mu.Lock()
	defer p.inst.l.mu.Unlock()
	return p.inst.l.missing[selector]
}

func (p *fakePage) find(selector string) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	if p.isMissing(selector) {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return nil
}

func (p *fakePage) WaitVisible(selector string, _ time.Duration) error {
	return p.find(selector)
}

func (p *fakePage) Click(selector string) error {
	if err := p.find(selector); err != nil {
		return err
	}
	p.inst.l.record("click " + selector)
	if selector == xFlow.Compose[4].Selector && p.inst.l.hold > 0 {
		select {
		case <-time.After(p.inst.l.hold):
		case <-p.ctx.Done():
			return p.ctx.Err()
		}
	}
	return nil
}

func (p *fakePage) Fill(selector, text string) error {
	if err := p.find(selector); err != nil {
		return err
	}
	p.inst.l.record("fill " + text)
	return nil
}

func (p *fakePage) Upload(selector string, paths []string) error {
	if err := p.find(selector); err != nil {
		return err
	}
	p.inst.l.record(fmt.Sprintf("upload %d", len(paths)))
	return nil
}

func (p *fakePage) SetCookies(cookies []Cookie) error {
	for _, c := range cookies {
		if c.Domain == "" {
			return errors.New("cookie without domain")
		}
		if c.Name == "auth_token" {
			p.cookies = true
		}
	}
	return nil
}

func (p *fakePage) Reload() error { return nil }

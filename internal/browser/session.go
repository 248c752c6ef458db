package browser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

type SessionConfig struct {
	Root string
	// SessionTimeout expires a session that went unused this long.
	SessionTimeout time.Duration
	// OnboardingTimeout closes a login browser the owner never confirmed.
	OnboardingTimeout time.Duration
	// SecretKey encrypts the on-disk session metadata.
	SecretKey []byte
}

type SessionInfo struct {
	Platform    models.Platform     `json:"platform"`
	State       models.ProfileState `json:"state"`
	CreatedAt   time.Time           `json:"created_at"`
	LastUsedAt  time.Time           `json:"last_used_at"`
	ConfirmedAt *time.Time          `json:"confirmed_at,omitempty"`
	Expired     bool                `json:"expired"`
}

// Manager owns the persistent browser profiles, one directory per
// (owner, platform). The Registry makes sure a profile is never opened by two
// browsers at once.
type Manager struct {
	cfg      SessionConfig
	launcher Launcher
	poster   UIPoster
	flows    *Flows
	registry *Registry
	active   Gauge
	logger   *slog.Logger
	now      func() time.Time
}

func NewManager(cfg SessionConfig, l Launcher, poster UIPoster, flows *Flows, registry *Registry, active Gauge, logger *slog.Logger) *Manager {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 7 * 24 * time.Hour
	}
	if cfg.OnboardingTimeout <= 0 {
		cfg.OnboardingTimeout = 15 * time.Minute
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if active == nil {
		active = nopGauge{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		launcher: l,
		poster:   poster,
		flows:    flows,
		registry: registry,
		active:   active,
		logger:   logger,
		now:      time.Now,
	}
}

// ProfileDir is <root>/<owner>_<sha256(owner:platform)[:16]>_<platform>.
func (m *Manager) ProfileDir(owner int64, p models.Platform) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", owner, p)))
	name := fmt.Sprintf("%d_%s_%s", owner, hex.EncodeToString(sum[:])[:16], p)
	return filepath.Join(m.cfg.Root, name)
}

// StartOnboarding opens a visible browser on the platform's login page. The
// owner logs in by hand, then calls ConfirmOnboarding.
func (m *Manager) StartOnboarding(ctx context.Context, owner int64, p models.Platform) (string, error) {
	flow, ok := m.flows.Lookup(p)
	if !ok {
		return "", models.Errorf(models.KindContentRejected, p, "onboarding", "no web flow registered")
	}

	dir := m.ProfileDir(owner, p)
	lease, err := m.registry.TryAcquire(dir, ModeOnboarding)
	if err != nil {
		return "", err
	}
	release := true
	defer func() {
		if release {
			m.registry.Release(lease)
		}
	}()

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", models.NewPublishError(models.KindResource, p, "onboarding", err)
	}

	// The login browser outlives the request that opened it.
	inst, err := m.launcher.Launch(ctx, LaunchOptions{
		Headless:    false,
		UserDataDir: dir,
		Viewport:    &OnboardingViewport,
	})
	if err != nil {
		return "", models.NewPublishError(models.KindResource, p, "onboarding", err)
	}
	m.active.Inc()
	inst = &countedInstance{Instance: inst, active: m.active}
	if !m.registry.Attach(lease, inst, nil) {
		_ = inst.Close()
		return "", ErrSessionBusy
	}

	page, err := inst.NewPage(context.Background())
	if err != nil {
		return "", models.NewPublishError(models.KindResource, p, "onboarding", err)
	}
	m.registry.Attach(lease, inst, page)
	if err := page.Navigate(flow.LoginURL); err != nil {
		return "", stepError(ctx, p, "onboarding", err)
	}

	now := m.now()
	meta, err := readMetadata(dir, m.cfg.SecretKey)
	if err != nil {
		meta = &sessionMetadata{UserID: owner, Platform: p, CreatedAt: now}
	}
	meta.State = models.ProfilePendingLogin
	meta.LastUsedAt = now
	meta.ConfirmedAt = nil
	if err := writeMetadata(dir, m.cfg.SecretKey, meta); err != nil {
		return "", models.NewPublishError(models.KindResource, p, "onboarding", err)
	}

	release = false
	m.registry.ReleaseAfter(lease, m.cfg.OnboardingTimeout, func() {
		m.logger.Info("onboarding browser released after timeout", "user_id", owner, "platform", p)
	})
	m.logger.Info("onboarding started", "user_id", owner, "platform", p)
	return flow.LoginURL, nil
}

// ConfirmOnboarding checks the login browser for logged-in markers. On
// success the profile becomes active and the browser is closed; on failure it
// stays open so the owner can finish logging in.
func (m *Manager) ConfirmOnboarding(ctx context.Context, owner int64, p models.Platform) error {
	dir := m.ProfileDir(owner, p)
	lease, page, ok := m.registry.Current(dir)
	if !ok || lease.Mode != ModeOnboarding || page == nil {
		return ErrNoSession
	}

	if err := m.poster.VerifyLoggedIn(ctx, page, p); err != nil {
		return err
	}

	now := m.now()
	meta, err := readMetadata(dir, m.cfg.SecretKey)
	if err != nil {
		meta = &sessionMetadata{UserID: owner, Platform: p, CreatedAt: now}
	}
	meta.State = models.ProfileActive
	meta.LastUsedAt = now
	meta.ConfirmedAt = &now
	if err := writeMetadata(dir, m.cfg.SecretKey, meta); err != nil {
		return models.NewPublishError(models.KindResource, p, "onboarding", err)
	}

	m.registry.Release(lease)
	m.logger.Info("onboarding confirmed", "user_id", owner, "platform", p)
	return nil
}

// Publish posts through the owner's profile and returns a synthetic
// external id. It waits for the profile if another automation holds it.
func (m *Manager) Publish(ctx context.Context, owner int64, p models.Platform, c PostContent) (string, error) {
	if err := m.poster.CheckContent(p, c); err != nil {
		return "", err
	}

	err := m.withProfile(ctx, owner, p, "publish", func(page Page) error {
		return m.poster.Post(ctx, page, p, c)
	})
	if err != nil {
		return "", err
	}
	return models.NewSyntheticExternalID(p, m.now()), nil
}

// Validate reports whether the profile is still logged in. Auth failures
// come back as false with a nil error.
func (m *Manager) Validate(ctx context.Context, owner int64, p models.Platform) (bool, error) {
	err := m.withProfile(ctx, owner, p, "validate", func(Page) error { return nil })
	if err == nil {
		return true, nil
	}
	if models.IsAuthFailure(err) {
		return false, nil
	}
	return false, err
}

func (m *Manager) withProfile(ctx context.Context, owner int64, p models.Platform, op string, fn func(Page) error) error {
	dir := m.ProfileDir(owner, p)
	meta, err := m.usableSession(dir, p, op)
	if err != nil {
		return err
	}

	lease, err := m.registry.Acquire(ctx, dir, ModeAutomation)
	if err != nil {
		return models.NewPublishError(models.KindTransientPlatform, p, op, fmt.Errorf("waiting for profile: %w", err))
	}
	defer m.registry.Release(lease)

	// Re-read under the lease; onboarding or disconnect may have run meanwhile.
	if meta, err = m.usableSession(dir, p, op); err != nil {
		return err
	}

	inst, err := m.launcher.Launch(ctx, LaunchOptions{Headless: true, UserDataDir: dir})
	if err != nil {
		return models.NewPublishError(models.KindResource, p, "launch", err)
	}
	m.active.Inc()
	inst = &countedInstance{Instance: inst, active: m.active}
	if !m.registry.Attach(lease, inst, nil) {
		_ = inst.Close()
		return models.Errorf(models.KindTransientPlatform, p, op, "profile released while launching")
	}

	page, err := inst.NewPage(ctx)
	if err != nil {
		return models.NewPublishError(models.KindResource, p, "launch", err)
	}

	if err := m.poster.VerifyLoggedIn(ctx, page, p); err != nil {
		if models.IsAuthFailure(err) {
			meta.State = models.ProfileExpired
			if werr := writeMetadata(dir, m.cfg.SecretKey, meta); werr != nil {
				m.logger.Warn("mark session expired", "user_id", owner, "platform", p, "error", werr)
			}
		}
		return err
	}
	if err := fn(page); err != nil {
		return err
	}

	meta.LastUsedAt = m.now()
	if err := writeMetadata(dir, m.cfg.SecretKey, meta); err != nil {
		m.logger.Warn("update session metadata", "user_id", owner, "platform", p, "error", err)
	}
	return nil
}

// usableSession loads the metadata and enforces the idle timeout before any
// browser is launched.
func (m *Manager) usableSession(dir string, p models.Platform, op string) (*sessionMetadata, error) {
	meta, err := readMetadata(dir, m.cfg.SecretKey)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil, models.NewPublishError(models.KindAuthMissing, p, op, ErrNoSession)
		}
		return nil, models.NewPublishError(models.KindResource, p, op, err)
	}

	switch meta.State {
	case models.ProfileActive:
	case models.ProfilePendingLogin:
		return nil, models.Errorf(models.KindAuthMissing, p, op, "login was never confirmed")
	default:
		return nil, models.NewPublishError(models.KindAuthExpired, p, op, ErrSessionExpired)
	}

	if meta.idle(m.now(), m.cfg.SessionTimeout) {
		meta.State = models.ProfileExpired
		if err := writeMetadata(dir, m.cfg.SecretKey, meta); err != nil {
			m.logger.Warn("mark idle session expired", "platform", p, "error", err)
		}
		return nil, models.NewPublishError(models.KindAuthExpired, p, op, ErrSessionExpired)
	}
	return meta, nil
}

// Disconnect closes any browser on the profile and deletes it from disk.
func (m *Manager) Disconnect(_ context.Context, owner int64, p models.Platform) error {
	dir := m.ProfileDir(owner, p)
	m.registry.Evict(dir)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove profile: %w", err)
	}
	m.logger.Info("session deleted", "user_id", owner, "platform", p)
	return nil
}

// HasExistingSession reports an active, non-idle profile without launching
// a browser.
func (m *Manager) HasExistingSession(owner int64, p models.Platform) bool {
	meta, err := readMetadata(m.ProfileDir(owner, p), m.cfg.SecretKey)
	if err != nil {
		return false
	}
	return meta.State == models.ProfileActive && !meta.idle(m.now(), m.cfg.SessionTimeout)
}

func (m *Manager) ListSessions(owner int64) ([]SessionInfo, error) {
	dirs, err := filepath.Glob(filepath.Join(m.cfg.Root, fmt.Sprintf("%d_*", owner)))
	if err != nil {
		return nil, err
	}

	now := m.now()
	sessions := make([]SessionInfo, 0, len(dirs))
	for _, dir := range dirs {
		meta, err := readMetadata(dir, m.cfg.SecretKey)
		if err != nil {
			if !errors.Is(err, ErrNoSession) {
				m.logger.Warn("unreadable session metadata", "dir", filepath.Base(dir), "error", err)
			}
			continue
		}
		if meta.UserID != owner {
			continue
		}

		info := SessionInfo{
			Platform:    meta.Platform,
			State:       meta.State,
			CreatedAt:   meta.CreatedAt,
			LastUsedAt:  meta.LastUsedAt,
			ConfirmedAt: meta.ConfirmedAt,
			Expired:     meta.State == models.ProfileExpired || meta.idle(now, m.cfg.SessionTimeout),
		}
		if info.Expired {
			info.State = models.ProfileExpired
		}
		sessions = append(sessions, info)
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Platform < sessions[j].Platform })
	return sessions, nil
}

// Close shuts every browser the manager still holds.
func (m *Manager) Close() {
	m.registry.CloseAll()
}

type countedInstance struct {
	Instance
	active Gauge
	closed bool
}

func (c *countedInstance) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.active.Dec()
	return c.Instance.Close()
}

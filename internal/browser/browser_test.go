package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMarkerTimeout = 50 * time.Millisecond

func newTestManager(t *testing.T, l *fakeLauncher) *Manager {
	t.Helper()
	flows := DefaultFlows()
	return NewManager(SessionConfig{
		Root:              t.TempDir(),
		SessionTimeout:    7 * 24 * time.Hour,
		OnboardingTimeout: time.Minute,
		SecretKey:         utils.DeriveKey("test-secret"),
	}, l, NewFlowPoster(flows, testMarkerTimeout), flows, NewRegistry(), nil, nil)
}

func TestCookieReplayPublishReturnsSyntheticID(t *testing.T) {
	l := newFakeLauncher()
	flows := DefaultFlows()
	e := NewCookieReplayEngine(l, NewFlowPoster(flows, testMarkerTimeout), flows, nil, nil)

	id, err := e.Publish(context.Background(), models.PlatformX,
		[]Cookie{{Name: "auth_token", Value: "abc"}}, PostContent{Text: "hello"})
	require.NoError(t, err)
	assert.True(t, models.IsSyntheticExternalID(id))
	assert.Contains(t, l.actions, "fill hello")
	assert.Contains(t, l.actions, "click "+xFlow.Compose[4].Selector)
	assert.Zero(t, l.openCount())
}

func TestCookieReplayExpiredCookiesTearDown(t *testing.T) {
	l := newFakeLauncher()
	flows := DefaultFlows()
	e := NewCookieReplayEngine(l, NewFlowPoster(flows, testMarkerTimeout), flows, nil, nil)

	_, err := e.Publish(context.Background(), models.PlatformX,
		[]Cookie{{Name: "stale", Value: "x"}}, PostContent{Text: "hello"})
	assert.Equal(t, models.KindAuthExpired, models.KindOf(err))
	assert.Equal(t, 1, l.launches)
	assert.Zero(t, l.openCount())
	assert.NotContains(t, l.actions, "fill hello")
}

func TestCookieReplayDriftTearsDown(t *testing.T) {
	l := newFakeLauncher()
	l.missing[`[data-testid="tweetButton"]`] = true
	flows := DefaultFlows()
	e := NewCookieReplayEngine(l, NewFlowPoster(flows, testMarkerTimeout), flows, nil, nil)

	_, err := e.Publish(context.Background(), models.PlatformX,
		[]Cookie{{Name: "auth_token", Value: "abc"}}, PostContent{Text: "hello"})
	assert.Equal(t, models.KindAutomationDrift, models.KindOf(err))
	assert.Zero(t, l.openCount())
}

func TestCookieReplayRejectsBeforeLaunch(t *testing.T) {
	l := newFakeLauncher()
	flows := DefaultFlows()
	e := NewCookieReplayEngine(l, NewFlowPoster(flows, testMarkerTimeout), flows, nil, nil)

	_, err := e.Publish(context.Background(), models.PlatformX, nil, PostContent{Text: "hello"})
	assert.Equal(t, models.KindAuthMissing, models.KindOf(err))

	_, err = e.Publish(context.Background(), models.PlatformX,
		[]Cookie{{Name: "auth_token"}}, PostContent{Text: strings.Repeat("a", 281)})
	assert.Equal(t, models.KindContentRejected, models.KindOf(err))

	_, err = e.Publish(context.Background(), models.PlatformInstagram,
		[]Cookie{{Name: "auth_token"}}, PostContent{Text: "no media"})
	assert.Equal(t, models.KindContentRejected, models.KindOf(err))
	assert.Zero(t, l.launches)
}

func TestCookieReplayLaunchFailureIsResource(t *testing.T) {
	l := newFakeLauncher()
	l.launchErr = errors.New("chromium not found")
	flows := DefaultFlows()
	e := NewCookieReplayEngine(l, NewFlowPoster(flows, testMarkerTimeout), flows, nil, nil)

	_, err := e.Publish(context.Background(), models.PlatformX,
		[]Cookie{{Name: "auth_token"}}, PostContent{Text: "hello"})
	assert.Equal(t, models.KindResource, models.KindOf(err))
}

func TestProfileDirNaming(t *testing.T) {
	m := newTestManager(t, newFakeLauncher())
	dir := filepath.Base(m.ProfileDir(42, models.PlatformX))

	parts := strings.Split(dir, "_")
	require.Len(t, parts, 3)
	assert.Equal(t, "42", parts[0])
	assert.Len(t, parts[1], 16)
	assert.Equal(t, "x", parts[2])
	assert.NotEqual(t, dir, filepath.Base(m.ProfileDir(42, models.PlatformLinkedIn)))
}

func TestOnboardingLifecycle(t *testing.T) {
	l := newFakeLauncher()
	m := newTestManager(t, l)
	ctx := context.Background()
	dir := m.ProfileDir(1, models.PlatformX)

	loginURL, err := m.StartOnboarding(ctx, 1, models.PlatformX)
	require.NoError(t, err)
	assert.Equal(t, xFlow.LoginURL, loginURL)
	require.False(t, l.instances[0].opts.Headless)
	assert.Equal(t, &OnboardingViewport, l.instances[0].opts.Viewport)

	_, err = m.StartOnboarding(ctx, 1, models.PlatformX)
	assert.ErrorIs(t, err, ErrSessionBusy)
	assert.False(t, m.HasExistingSession(1, models.PlatformX))

	// Not logged in yet: the browser stays open.
	err = m.ConfirmOnboarding(ctx, 1, models.PlatformX)
	assert.True(t, models.IsAuthFailure(err))
	assert.Equal(t, 1, l.openCount())

	l.setLoggedIn(dir, true)
	require.NoError(t, m.ConfirmOnboarding(ctx, 1, models.PlatformX))
	assert.Zero(t, l.openCount())
	assert.True(t, m.HasExistingSession(1, models.PlatformX))

	info, err := os.Stat(filepath.Join(dir, metadataFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	raw, err := os.ReadFile(filepath.Join(dir, metadataFile))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "active")

	id, err := m.Publish(ctx, 1, models.PlatformX, PostContent{Text: "from profile"})
	require.NoError(t, err)
	assert.True(t, models.IsSyntheticExternalID(id))
	assert.Zero(t, l.openCount())

	sessions, err := m.ListSessions(1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, models.ProfileActive, sessions[0].State)
	assert.NotNil(t, sessions[0].ConfirmedAt)

	valid, err := m.Validate(ctx, 1, models.PlatformX)
	require.NoError(t, err)
	assert.True(t, valid)

	require.NoError(t, m.Disconnect(ctx, 1, models.PlatformX))
	assert.False(t, m.HasExistingSession(1, models.PlatformX))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	_, err = m.Publish(ctx, 1, models.PlatformX, PostContent{Text: "gone"})
	assert.Equal(t, models.KindAuthMissing, models.KindOf(err))
}

func TestPublishWithoutSessionIsAuthMissing(t *testing.T) {
	l := newFakeLauncher()
	m := newTestManager(t, l)

	_, err := m.Publish(context.Background(), 9, models.PlatformX, PostContent{Text: "hi"})
	assert.Equal(t, models.KindAuthMissing, models.KindOf(err))
	assert.Zero(t, l.launches)
}

func activateSession(t *testing.T, m *Manager, l *fakeLauncher, owner int64) {
	t.Helper()
	_, err := m.StartOnboarding(context.Background(), owner, models.PlatformX)
	require.NoError(t, err)
	l.setLoggedIn(m.ProfileDir(owner, models.PlatformX), true)
	require.NoError(t, m.ConfirmOnboarding(context.Background(), owner, models.PlatformX))
}

func TestIdleSessionExpiresWithoutLaunch(t *testing.T) {
	l := newFakeLauncher()
	m := newTestManager(t, l)
	activateSession(t, m, l, 1)
	launches := l.launches

	m.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }

	_, err := m.Publish(context.Background(), 1, models.PlatformX, PostContent{Text: "late"})
	assert.Equal(t, models.KindAuthExpired, models.KindOf(err))
	assert.Equal(t, launches, l.launches)

	sessions, err := m.ListSessions(1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Expired)
	assert.Equal(t, models.ProfileExpired, sessions[0].State)
}

func TestLoggedOutProfileBecomesExpired(t *testing.T) {
	l := newFakeLauncher()
	m := newTestManager(t, l)
	activateSession(t, m, l, 1)
	l.setLoggedIn(m.ProfileDir(1, models.PlatformX), false)

	valid, err := m.Validate(context.Background(), 1, models.PlatformX)
	require.NoError(t, err)
	assert.False(t, valid)

	_, err = m.Publish(context.Background(), 1, models.PlatformX, PostContent{Text: "hi"})
	assert.Equal(t, models.KindAuthExpired, models.KindOf(err))
}

func TestConcurrentPublishesNeverShareProfile(t *testing.T) {
	l := newFakeLauncher()
	m := newTestManager(t, l)
	activateSession(t, m, l, 1)
	l.hold = 30 * time.Millisecond

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Publish(context.Background(), 1, models.PlatformX, PostContent{Text: "race"})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Equal(t, 1, l.maxOpen[m.ProfileDir(1, models.PlatformX)])
}

func TestPublishWaitingForBusyProfileHonoursDeadline(t *testing.T) {
	l := newFakeLauncher()
	m := newTestManager(t, l)
	activateSession(t, m, l, 1)

	lease, err := m.registry.TryAcquire(m.ProfileDir(1, models.PlatformX), ModeAutomation)
	require.NoError(t, err)
	defer m.registry.Release(lease)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Publish(ctx, 1, models.PlatformX, PostContent{Text: "blocked"})
	assert.Equal(t, models.KindTransientPlatform, models.KindOf(err))
}

func TestAbandonedOnboardingIsReleased(t *testing.T) {
	l := newFakeLauncher()
	m := newTestManager(t, l)
	m.cfg.OnboardingTimeout = 20 * time.Millisecond

	_, err := m.StartOnboarding(context.Background(), 1, models.PlatformX)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return m.registry.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, l.openCount())
	_, err = m.StartOnboarding(context.Background(), 1, models.PlatformX)
	require.NoError(t, err)
	m.Close()
	assert.Zero(t, l.openCount())
}

func TestRegistryLeases(t *testing.T) {
	r := NewRegistry()

	a, err := r.TryAcquire("k", ModeOnboarding)
	require.NoError(t, err)
	_, err = r.TryAcquire("k", ModeAutomation)
	assert.ErrorIs(t, err, ErrSessionBusy)

	assert.False(t, r.Release(Lease{ID: "other", Key: "k"}), "stale lease must not free the key")
	assert.True(t, r.Release(a))
	assert.False(t, r.Release(a), "second release is a no-op")

	b, err := r.Acquire(context.Background(), "k", ModeAutomation)
	require.NoError(t, err)

	got := make(chan Lease)
	go func() {
		l, err := r.Acquire(context.Background(), "k", ModeAutomation)
		if err == nil {
			got <- l
		}
	}()
	select {
	case <-got:
		t.Fatal("second acquire must wait")
	case <-time.After(20 * time.Millisecond):
	}
	r.Release(b)
	select {
	case l := <-got:
		assert.NotEqual(t, b.ID, l.ID)
		r.Release(l)
	case <-time.After(time.Second):
		t.Fatal("waiter was not granted the key")
	}
	assert.Zero(t, r.Len())
}

func TestFlowPosterOptionalStepSkipped(t *testing.T) {
	l := newFakeLauncher()
	l.missing[`[data-testid="toast"]`] = true
	inst, err := l.Launch(context.Background(), LaunchOptions{Headless: true})
	require.NoError(t, err)
	page, err := inst.NewPage(context.Background())
	require.NoError(t, err)

	fp := NewFlowPoster(DefaultFlows(), testMarkerTimeout)
	require.NoError(t, fp.Post(context.Background(), page, models.PlatformX, PostContent{Text: "t", MediaPaths: []string{"/tmp/a.png"}}))
	assert.Contains(t, l.actions, "upload 1")
}

func TestFlowsRegister(t *testing.T) {
	flows := DefaultFlows()
	_, ok := flows.Lookup(models.PlatformYouTube)
	assert.False(t, ok)

	flows.Register(UIFlow{Platform: models.PlatformYouTube, HomeURL: "https://studio.youtube.com"})
	flow, ok := flows.Lookup(models.PlatformYouTube)
	require.True(t, ok)
	assert.Equal(t, "https://studio.youtube.com", flow.HomeURL)
}

package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/browser"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/repository"
)

const testSecret = "test-secret"

type memPosts struct {
	mu    sync.Mutex
	posts map[int64]*models.ScheduledPost
	next  int64
}

func newMemPosts(posts ...*models.ScheduledPost) *memPosts {
	m := &memPosts{posts: map[int64]*models.ScheduledPost{}}
	for _, p := range posts {
		m.next++
		if p.ID == 0 {
			p.ID = m.next
		}
		m.posts[p.ID] = p
	}
	return m
}

func (m *memPosts) Create(_ context.Context, post *models.ScheduledPost) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	post.ID = m.next
	post.CreatedAt = time.Now()
	post.UpdatedAt = post.CreatedAt
	cp := *post
	m.posts[post.ID] = &cp
	return post.ID, nil
}

func (m *memPosts) GetByID(_ context.Context, id int64) (*models.ScheduledPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPosts) list(match func(*models.ScheduledPost) bool) []*models.ScheduledPost {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ScheduledPost
	for _, p := range m.posts {
		if match(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memPosts) ListByUserID(_ context.Context, userID int64) ([]*models.ScheduledPost, error) {
	return m.list(func(p *models.ScheduledPost) bool { return p.UserID == userID }), nil
}

func (m *memPosts) ListDue(_ context.Context, now time.Time) ([]*models.ScheduledPost, error) {
	return m.list(func(p *models.ScheduledPost) bool {
		return p.Status == models.PostStatusScheduled && !p.ScheduledTime.After(now)
	}), nil
}

func (m *memPosts) Claim(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok || p.Status != models.PostStatusScheduled {
		return false, nil
	}
	p.Status = models.PostStatusPublishing
	return true, nil
}

func (m *memPosts) finish(id int64, status models.PostStatus, ids map[models.Platform]string, at *time.Time, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok || p.Status != models.PostStatusPublishing {
		return repository.ErrStaleState
	}
	p.Status = status
	p.ExternalIDs = ids
	p.PublishedAt = at
	p.ErrorMessage = msg
	return nil
}

func (m *memPosts) MarkPublished(_ context.Context, id int64, ids map[models.Platform]string, at time.Time, msg string) error {
	return m.finish(id, models.PostStatusPublished, ids, &at, msg)
}

func (m *memPosts) MarkFailed(_ context.Context, id int64, ids map[models.Platform]string, msg string) error {
	return m.finish(id, models.PostStatusFailed, ids, nil, msg)
}

func (m *memPosts) Cancel(_ context.Context, id, userID int64, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok || p.UserID != userID {
		return false, nil
	}
	if p.Status != models.PostStatusDraft && p.Status != models.PostStatusScheduled {
		return false, nil
	}
	p.Status = models.PostStatusFailed
	p.ErrorMessage = reason
	return true, nil
}

func (m *memPosts) ListPublishedSince(_ context.Context, since time.Time) ([]*models.ScheduledPost, error) {
	return m.list(func(p *models.ScheduledPost) bool {
		return p.Status == models.PostStatusPublished && p.PublishedAt != nil && !p.PublishedAt.Before(since)
	}), nil
}

func (m *memPosts) ListPublishedByUser(_ context.Context, userID int64) ([]*models.ScheduledPost, error) {
	return m.list(func(p *models.ScheduledPost) bool {
		return p.UserID == userID && p.Status == models.PostStatusPublished
	}), nil
}

type credKey struct {
	user     int64
	platform models.Platform
	strategy models.AuthStrategy
}

type memCreds struct {
	mu    sync.Mutex
	creds map[credKey]*models.Credential
	next  int64
}

func newMemCreds() *memCreds {
	return &memCreds{creds: map[credKey]*models.Credential{}}
}

func (m *memCreds) Upsert(_ context.Context, c *models.Credential) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := credKey{c.UserID, c.Platform, c.Strategy}
	if cur, ok := m.creds[k]; ok {
		cur.Payload = c.Payload
		cur.IsActive = true
		c.ID = cur.ID
		return cur.ID, nil
	}
	m.next++
	c.ID = m.next
	c.IsActive = true
	cp := *c
	m.creds[k] = &cp
	return c.ID, nil
}

func (m *memCreds) Get(_ context.Context, userID int64, p models.Platform, s models.AuthStrategy) (*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[credKey{userID, p, s}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCreds) ListByUserID(_ context.Context, userID int64) ([]*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Credential
	for _, c := range m.creds {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memCreds) ListActiveByStrategy(_ context.Context, s models.AuthStrategy) ([]*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Credential
	for _, c := range m.creds {
		if c.Strategy == s && c.IsActive {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memCreds) byID(id int64) *models.Credential {
	for _, c := range m.creds {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (m *memCreds) Invalidate(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.byID(id); c != nil {
		c.IsActive = false
	}
	return nil
}

func (m *memCreds) MarkValidated(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.byID(id); c != nil {
		c.LastValidatedAt = &at
	}
	return nil
}

func (m *memCreds) Remove(_ context.Context, userID int64, p models.Platform, s models.AuthStrategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, credKey{userID, p, s})
	return nil
}

func (m *memCreds) RemoveAll(_ context.Context, userID int64, p models.Platform) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.creds {
		if k.user == userID && k.platform == p {
			delete(m.creds, k)
		}
	}
	return nil
}

func (m *memCreds) active(userID int64, p models.Platform, s models.AuthStrategy) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[credKey{userID, p, s}]
	return ok && c.IsActive
}

type memHistory struct {
	mu      sync.Mutex
	entries []*models.PostingHistory
}

func (m *memHistory) Create(_ context.Context, ph *models.PostingHistory) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ph.ID = int64(len(m.entries) + 1)
	cp := *ph
	m.entries = append(m.entries, &cp)
	return ph.ID, nil
}

func (m *memHistory) ListByPost(_ context.Context, postID int64) ([]*models.PostingHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PostingHistory
	for _, e := range m.entries {
		if e.PostID == postID {
			out = append(out, e)
		}
	}
	return out, nil
}

type engKey struct {
	post     int64
	platform models.Platform
}

type memEngagement struct {
	mu   sync.Mutex
	recs map[engKey]*models.EngagementRecord
	next int64
}

func newMemEngagement() *memEngagement {
	return &memEngagement{recs: map[engKey]*models.EngagementRecord{}}
}

func (m *memEngagement) Upsert(_ context.Context, rec *models.EngagementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := engKey{rec.PostID, rec.Platform}
	if cur, ok := m.recs[k]; ok {
		rec.ID = cur.ID
	} else {
		m.next++
		rec.ID = m.next
	}
	cp := *rec
	m.recs[k] = &cp
	return nil
}

func (m *memEngagement) ListByPost(_ context.Context, postID int64) ([]*models.EngagementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.EngagementRecord
	for k, r := range m.recs {
		if k.post == postID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeMedia struct {
	files        []platform.MediaFile
	materialized int
	cleaned      int
	uploaded     [][]byte
	uploadErr    error
}

func (f *fakeMedia) Upload(_ context.Context, userID int64, file []byte) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploaded = append(f.uploaded, file)
	return "media/" + string(rune('a'+len(f.uploaded)-1)), nil
}

func (f *fakeMedia) Resolve(_ context.Context, keys []string) ([]platform.MediaFile, error) {
	out := make([]platform.MediaFile, 0, len(keys))
	for _, k := range keys {
		out = append(out, platform.MediaFile{Key: k, URL: "https://cdn.test/" + k, ContentType: "image/png"})
	}
	f.files = out
	return out, nil
}

func (f *fakeMedia) Materialize(_ context.Context, files []platform.MediaFile) ([]string, func(), error) {
	f.materialized++
	paths := make([]string, 0, len(files))
	for _, file := range files {
		paths = append(paths, "/tmp/"+file.Key)
	}
	return paths, func() { f.cleaned++ }, nil
}

type apiCall struct {
	owner   int64
	p       models.Platform
	tok     platform.Token
	content platform.Content
}

// fakeAPI answers per platform: an error from errs, otherwise "<platform>-id".
type fakeAPI struct {
	mu    sync.Mutex
	errs  map[models.Platform]error
	calls []apiCall
	block chan struct{}

	unsupported map[models.Platform]bool
	validateErr error
	forgotten   []models.Platform
	metrics     map[string]*models.Metrics
	metricsErr  error
}

func (f *fakeAPI) Publish(ctx context.Context, owner int64, p models.Platform, tok platform.Token, c platform.Content) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, apiCall{owner, p, tok, c})
	err := f.errs[p]
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return string(p) + "-id", nil
}

func (f *fakeAPI) Supports(p models.Platform) bool {
	return !f.unsupported[p]
}

func (f *fakeAPI) Validate(_ context.Context, owner int64, p models.Platform, tok platform.Token) error {
	return f.validateErr
}

func (f *fakeAPI) Forget(owner int64, p models.Platform) {
	f.forgotten = append(f.forgotten, p)
}

func (f *fakeAPI) FetchMetrics(_ context.Context, owner int64, p models.Platform, tok platform.Token, externalID string) (*models.Metrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, apiCall{owner: owner, p: p, tok: tok})
	if f.metricsErr != nil {
		return nil, f.metricsErr
	}
	return f.metrics[externalID], nil
}

func (f *fakeAPI) platforms() []models.Platform {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Platform
	for _, c := range f.calls {
		out = append(out, c.p)
	}
	return out
}

type fakeCookies struct {
	err         error
	validateErr error
	calls       int
	content     browser.PostContent
}

func (f *fakeCookies) Publish(_ context.Context, p models.Platform, cookies []browser.Cookie, c browser.PostContent) (string, error) {
	f.calls++
	f.content = c
	if f.err != nil {
		return "", f.err
	}
	return models.NewSyntheticExternalID(p, time.Unix(1700000000, 0)), nil
}

func (f *fakeCookies) Validate(_ context.Context, p models.Platform, cookies []browser.Cookie) error {
	return f.validateErr
}

type fakeSessions struct {
	err        error
	calls      int
	valid      bool
	confirmErr error
	started    []models.Platform
	removed    []models.Platform
	infos      []browser.SessionInfo
}

func (f *fakeSessions) Publish(_ context.Context, owner int64, p models.Platform, c browser.PostContent) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return models.NewSyntheticExternalID(p, time.Unix(1700000000, 0)), nil
}

func (f *fakeSessions) StartOnboarding(_ context.Context, owner int64, p models.Platform) (string, error) {
	f.started = append(f.started, p)
	return "https://login.test/" + string(p), nil
}

func (f *fakeSessions) ConfirmOnboarding(context.Context, int64, models.Platform) error {
	return f.confirmErr
}

func (f *fakeSessions) Validate(context.Context, int64, models.Platform) (bool, error) {
	return f.valid, f.err
}

func (f *fakeSessions) Disconnect(_ context.Context, owner int64, p models.Platform) error {
	f.removed = append(f.removed, p)
	return nil
}

func (f *fakeSessions) ListSessions(int64) ([]browser.SessionInfo, error) {
	return f.infos, nil
}

func (f *fakeSessions) ProfileDir(owner int64, p models.Platform) string {
	return "/sessions/" + string(p)
}

type countingRecorder struct {
	mu       sync.Mutex
	attempts map[string]int
	posts    map[models.PostStatus]int
	upserts  int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{attempts: map[string]int{}, posts: map[models.PostStatus]int{}}
}

func (r *countingRecorder) PublishAttempt(p models.Platform, s models.AuthStrategy, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[string(p)+"/"+string(s)+"/"+outcome]++
}

func (r *countingRecorder) PostFinished(status models.PostStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts[status]++
}

func (r *countingRecorder) EngagementUpserted(models.Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
}

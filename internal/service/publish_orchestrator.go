package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maheshrc27/crosspost/internal/browser"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/repository"
)

type FailurePolicy string

const (
	// AbortOnFirstFailure stops at the first platform that cannot be
	// recovered; the remaining platforms are never attempted and the post
	// fails as a whole.
	AbortOnFirstFailure FailurePolicy = "abort_on_first_failure"
	// ContinueOnFailure attempts every platform. The post is published when
	// at least one platform succeeded.
	ContinueOnFailure FailurePolicy = "continue_on_failure"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", AbortOnFirstFailure:
		return AbortOnFirstFailure, nil
	case ContinueOnFailure:
		return ContinueOnFailure, nil
	}
	return "", fmt.Errorf("unknown failure policy %q", s)
}

type APIPublisher interface {
	Publish(ctx context.Context, owner int64, p models.Platform, tok platform.Token, c platform.Content) (string, error)
}

type CookiePublisher interface {
	Publish(ctx context.Context, p models.Platform, cookies []browser.Cookie, c browser.PostContent) (string, error)
}

type SessionPublisher interface {
	Publish(ctx context.Context, owner int64, p models.Platform, c browser.PostContent) (string, error)
}

type OrchestratorConfig struct {
	// Strategies is the preference order used to pick a platform's primary
	// credential.
	Strategies []models.AuthStrategy
	Policy     FailurePolicy
	// PlatformDeadline bounds every attempt for one platform, fallback
	// included.
	PlatformDeadline time.Duration
}

type PlatformResult struct {
	Platform   models.Platform     `json:"platform"`
	Strategy   models.AuthStrategy `json:"strategy,omitempty"`
	ExternalID string              `json:"external_id,omitempty"`
	Err        error               `json:"-"`
}

// PublishOutcome is the result of one post's run. Only platforms that were
// attempted appear in Results.
type PublishOutcome struct {
	Results     []PlatformResult
	ExternalIDs map[models.Platform]string
	// Err is set when the post as a whole failed.
	Err error
}

func (o *PublishOutcome) Published() bool { return o.Err == nil }

func (o *PublishOutcome) Failures() []PlatformResult {
	var out []PlatformResult
	for _, r := range o.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Message is what gets stored on the post: the reason it failed, or the
// platforms that failed next to the ones that went through.
func (o *PublishOutcome) Message() string {
	failures := o.Failures()
	if len(failures) == 0 {
		if o.Err != nil {
			return models.UserMessage(o.Err)
		}
		return ""
	}
	msgs := make([]string, 0, len(failures))
	for _, f := range failures {
		msgs = append(msgs, models.UserMessage(f.Err))
	}
	return strings.Join(msgs, "; ")
}

type Orchestrator interface {
	Publish(ctx context.Context, post *models.ScheduledPost) *PublishOutcome
}

type orchestrator struct {
	cfg     OrchestratorConfig
	cr      repository.CredentialRepository
	ph      repository.PostingHistoryRepository
	media   MediaStore
	codec   *CredentialCodec
	api     APIPublisher
	cookies CookiePublisher
	session SessionPublisher
	rec     Recorder
	logger  *slog.Logger
}

func NewOrchestrator(
	cfg OrchestratorConfig,
	cr repository.CredentialRepository,
	ph repository.PostingHistoryRepository,
	media MediaStore,
	codec *CredentialCodec,
	api APIPublisher,
	cookies CookiePublisher,
	session SessionPublisher,
	rec Recorder,
	logger *slog.Logger,
) Orchestrator {
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = models.DefaultStrategyOrder
	}
	if cfg.Policy == "" {
		cfg.Policy = AbortOnFirstFailure
	}
	if cfg.PlatformDeadline <= 0 {
		cfg.PlatformDeadline = 3 * time.Minute
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &orchestrator{
		cfg:     cfg,
		cr:      cr,
		ph:      ph,
		media:   media,
		codec:   codec,
		api:     api,
		cookies: cookies,
		session: session,
		rec:     rec,
		logger:  logger,
	}
}

// postRun carries what is shared between the platforms of one post.
type postRun struct {
	post    *models.ScheduledPost
	files   []platform.MediaFile
	paths   []string
	local   bool
	cleanup func()
}

func (o *orchestrator) Publish(ctx context.Context, post *models.ScheduledPost) *PublishOutcome {
	out := &PublishOutcome{ExternalIDs: map[models.Platform]string{}}

	creds, err := o.cr.ListByUserID(ctx, post.UserID)
	if err != nil {
		out.Err = fmt.Errorf("load credentials: %w", err)
		return out
	}

	run := &postRun{post: post, cleanup: func() {}}
	defer func() { run.cleanup() }()

	if len(post.MediaKeys) > 0 {
		run.files, err = o.media.Resolve(ctx, post.MediaKeys)
		if err != nil {
			out.Err = models.NewPublishError(models.KindResource, "", "media", err)
			return out
		}
	}

	for _, p := range post.Platforms {
		res := o.publishPlatform(ctx, run, p, creds)
		out.Results = append(out.Results, res)
		if res.Err == nil {
			out.ExternalIDs[p] = res.ExternalID
			continue
		}
		if o.cfg.Policy == AbortOnFirstFailure {
			o.logger.Info("aborting remaining platforms", "post_id", post.ID, "platform", p, "error", res.Err)
			out.Err = res.Err
			return out
		}
	}

	if len(out.ExternalIDs) == 0 {
		if failures := out.Failures(); len(failures) > 0 {
			out.Err = failures[0].Err
		} else {
			out.Err = errors.New("post has no target platforms")
		}
	}
	return out
}

// plan returns the credentials to try for p, in order: the primary, then the
// persistent session as a last resort when it is not already the primary.
func (o *orchestrator) plan(p models.Platform, creds []*models.Credential) []*models.Credential {
	byStrategy := map[models.AuthStrategy]*models.Credential{}
	for _, c := range creds {
		if c.Platform == p && c.IsActive {
			byStrategy[c.Strategy] = c
		}
	}

	var plan []*models.Credential
	for _, s := range o.cfg.Strategies {
		if c, ok := byStrategy[s]; ok {
			plan = append(plan, c)
			break
		}
	}
	if len(plan) == 0 {
		return nil
	}
	if plan[0].Strategy != models.StrategyPersistentSession {
		if c, ok := byStrategy[models.StrategyPersistentSession]; ok {
			plan = append(plan, c)
		}
	}
	return plan
}

func (o *orchestrator) publishPlatform(ctx context.Context, run *postRun, p models.Platform, creds []*models.Credential) PlatformResult {
	res := PlatformResult{Platform: p}

	plan := o.plan(p, creds)
	if len(plan) == 0 {
		res.Err = models.Errorf(models.KindAuthMissing, p, "publish", "no active credential")
		o.rec.PublishAttempt(p, "", attemptOutcome(res.Err))
		return res
	}

	dctx, cancel := context.WithTimeout(ctx, o.cfg.PlatformDeadline)
	defer cancel()

	for i, cred := range plan {
		res.Strategy = cred.Strategy
		id, err := o.attempt(dctx, run, p, cred)
		if err != nil && errors.Is(dctx.Err(), context.DeadlineExceeded) {
			err = models.NewPublishError(models.KindTransientPlatform, p, "publish",
				fmt.Errorf("deadline of %s exceeded: %w", o.cfg.PlatformDeadline, err))
		}
		o.record(ctx, run.post, p, cred.Strategy, id, err)

		if err == nil {
			res.ExternalID, res.Err = id, nil
			return res
		}
		res.Err = err

		if !models.IsAuthFailure(err) {
			return res
		}
		if err := o.cr.Invalidate(ctx, cred.ID); err != nil {
			o.logger.Error("invalidate credential", "user_id", cred.UserID, "platform", p, "strategy", cred.Strategy, "error", err)
		}
		if i+1 < len(plan) {
			o.logger.Info("falling back to persistent session", "post_id", run.post.ID, "platform", p, "from", cred.Strategy)
		}
	}
	return res
}

func (o *orchestrator) attempt(ctx context.Context, run *postRun, p models.Platform, cred *models.Credential) (string, error) {
	post := run.post

	switch cred.Strategy {
	case models.StrategyAPIToken:
		tok, err := o.codec.OpenToken(cred.Payload)
		if err != nil {
			return "", models.NewPublishError(models.KindAuthMissing, p, "publish", err)
		}
		return o.api.Publish(ctx, post.UserID, p, tok, platform.Content{Text: post.Body, Media: run.files})

	case models.StrategyCookieSnapshot:
		cookies, err := o.codec.OpenCookies(cred.Payload)
		if err != nil {
			return "", models.NewPublishError(models.KindAuthMissing, p, "publish", err)
		}
		content, err := o.localContent(ctx, run, p)
		if err != nil {
			return "", err
		}
		return o.cookies.Publish(ctx, p, cookies, content)

	case models.StrategyPersistentSession:
		content, err := o.localContent(ctx, run, p)
		if err != nil {
			return "", err
		}
		return o.session.Publish(ctx, post.UserID, p, content)
	}
	return "", models.Errorf(models.KindAuthMissing, p, "publish", "unknown strategy %q", cred.Strategy)
}

// localContent downloads the post's media once per run; browser uploads
// need files on disk.
func (o *orchestrator) localContent(ctx context.Context, run *postRun, p models.Platform) (browser.PostContent, error) {
	if !run.local && len(run.files) > 0 {
		paths, cleanup, err := o.media.Materialize(ctx, run.files)
		if err != nil {
			return browser.PostContent{}, models.NewPublishError(models.KindResource, p, "media", err)
		}
		run.paths, run.cleanup, run.local = paths, cleanup, true
	}
	return browser.PostContent{Text: run.post.Body, MediaPaths: run.paths}, nil
}

func (o *orchestrator) record(ctx context.Context, post *models.ScheduledPost, p models.Platform, s models.AuthStrategy, id string, err error) {
	o.rec.PublishAttempt(p, s, attemptOutcome(err))

	entry := &models.PostingHistory{
		UserID:     post.UserID,
		PostID:     post.ID,
		Platform:   p,
		Strategy:   s,
		ExternalID: id,
	}
	if err != nil {
		entry.ErrorKind = string(models.KindOf(err))
		entry.ErrorMessage = err.Error()
		o.logger.Warn("publish attempt failed", "post_id", post.ID, "user_id", post.UserID, "platform", p, "strategy", s, "error", err)
	} else {
		o.logger.Info("published", "post_id", post.ID, "user_id", post.UserID, "platform", p, "strategy", s, "external_id", id)
	}
	if _, err := o.ph.Create(ctx, entry); err != nil {
		o.logger.Error("save posting history", "post_id", post.ID, "platform", p, "error", err)
	}
}

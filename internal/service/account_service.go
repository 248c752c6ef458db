package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/crosspost/internal/browser"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

var ErrUnknownPlatform = errors.New("unknown platform")

type TokenChecker interface {
	Supports(p models.Platform) bool
	Validate(ctx context.Context, owner int64, p models.Platform, tok platform.Token) error
	Forget(owner int64, p models.Platform)
}

type CookieChecker interface {
	Validate(ctx context.Context, p models.Platform, cookies []browser.Cookie) error
}

type SessionController interface {
	StartOnboarding(ctx context.Context, owner int64, p models.Platform) (string, error)
	ConfirmOnboarding(ctx context.Context, owner int64, p models.Platform) error
	Validate(ctx context.Context, owner int64, p models.Platform) (bool, error)
	Disconnect(ctx context.Context, owner int64, p models.Platform) error
	ListSessions(owner int64) ([]browser.SessionInfo, error)
	ProfileDir(owner int64, p models.Platform) string
}

type AccountService interface {
	ConnectToken(ctx context.Context, userID int64, platform string, in *transfer.TokenConnect) (*models.Credential, error)
	ConnectCookies(ctx context.Context, userID int64, platform string, in *transfer.CookieConnect) (*models.Credential, error)
	StartOnboarding(ctx context.Context, userID int64, platform string) (*transfer.OnboardingStarted, error)
	ConfirmOnboarding(ctx context.Context, userID int64, platform string) (*models.Credential, error)
	ValidateSession(ctx context.Context, userID int64, platform string) (bool, error)
	DisconnectSession(ctx context.Context, userID int64, platform string) error
	RemoveAccount(ctx context.Context, userID int64, platform string) error
	ListAccounts(ctx context.Context, userID int64) ([]*models.Credential, error)
	ListSessions(ctx context.Context, userID int64) ([]browser.SessionInfo, error)
}

type accountService struct {
	cr       repository.CredentialRepository
	codec    *CredentialCodec
	tokens   TokenChecker
	cookies  CookieChecker
	sessions SessionController
	now      func() time.Time
}

func NewAccountService(
	cr repository.CredentialRepository,
	codec *CredentialCodec,
	tokens TokenChecker,
	cookies CookieChecker,
	sessions SessionController) AccountService {
	return &accountService{
		cr:       cr,
		codec:    codec,
		tokens:   tokens,
		cookies:  cookies,
		sessions: sessions,
		now:      time.Now,
	}
}

func parsePlatform(raw string) (models.Platform, error) {
	p, ok := models.ParsePlatform(raw)
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownPlatform, raw)
		slog.Info(err.Error())
		return "", err
	}
	return p, nil
}

// ConnectToken stores an api_token credential once the platform accepted it.
func (s *accountService) ConnectToken(ctx context.Context, userID int64, raw string, in *transfer.TokenConnect) (*models.Credential, error) {
	p, err := parsePlatform(raw)
	if err != nil {
		return nil, err
	}
	if !s.tokens.Supports(p) {
		err := fmt.Errorf("%w: no api client for %s", ErrUnknownPlatform, p)
		slog.Info(err.Error())
		return nil, err
	}
	tok := platform.Token{
		AccessToken:  in.AccessToken,
		RefreshToken: in.RefreshToken,
		AccountID:    in.AccountID,
		ExpiresAt:    in.ExpiresAt,
	}
	payload, err := s.codec.SealToken(tok)
	if err != nil {
		return nil, err
	}

	s.tokens.Forget(userID, p)
	if err := s.tokens.Validate(ctx, userID, p, tok); err != nil {
		return nil, err
	}
	return s.store(ctx, userID, p, models.StrategyAPIToken, payload)
}

func (s *accountService) ConnectCookies(ctx context.Context, userID int64, raw string, in *transfer.CookieConnect) (*models.Credential, error) {
	p, err := parsePlatform(raw)
	if err != nil {
		return nil, err
	}
	payload, err := s.codec.SealCookies(in.Cookies)
	if err != nil {
		return nil, err
	}
	if err := s.cookies.Validate(ctx, p, in.Cookies); err != nil {
		return nil, err
	}
	return s.store(ctx, userID, p, models.StrategyCookieSnapshot, payload)
}

func (s *accountService) StartOnboarding(ctx context.Context, userID int64, raw string) (*transfer.OnboardingStarted, error) {
	p, err := parsePlatform(raw)
	if err != nil {
		return nil, err
	}
	loginURL, err := s.sessions.StartOnboarding(ctx, userID, p)
	if err != nil {
		return nil, err
	}
	return &transfer.OnboardingStarted{LoginURL: loginURL, State: string(models.ProfilePendingLogin)}, nil
}

// ConfirmOnboarding activates the session and records it as a
// persistent_session credential the orchestrator can pick or fall back to.
func (s *accountService) ConfirmOnboarding(ctx context.Context, userID int64, raw string) (*models.Credential, error) {
	p, err := parsePlatform(raw)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.ConfirmOnboarding(ctx, userID, p); err != nil {
		return nil, err
	}
	payload, err := s.codec.SealSession(s.sessions.ProfileDir(userID, p))
	if err != nil {
		return nil, err
	}
	return s.store(ctx, userID, p, models.StrategyPersistentSession, payload)
}

// ValidateSession reports whether the stored profile is still logged in. A
// dead session deactivates its credential.
func (s *accountService) ValidateSession(ctx context.Context, userID int64, raw string) (bool, error) {
	p, err := parsePlatform(raw)
	if err != nil {
		return false, err
	}
	ok, err := s.sessions.Validate(ctx, userID, p)
	if err != nil {
		return false, err
	}

	cred, err := s.cr.Get(ctx, userID, p, models.StrategyPersistentSession)
	if errors.Is(err, repository.ErrNotFound) {
		return ok, nil
	}
	if err != nil {
		return ok, err
	}
	if ok {
		return true, s.cr.MarkValidated(ctx, cred.ID, s.now())
	}
	return false, s.cr.Invalidate(ctx, cred.ID)
}

func (s *accountService) DisconnectSession(ctx context.Context, userID int64, raw string) error {
	p, err := parsePlatform(raw)
	if err != nil {
		return err
	}
	if err := s.sessions.Disconnect(ctx, userID, p); err != nil {
		return err
	}
	return s.cr.Remove(ctx, userID, p, models.StrategyPersistentSession)
}

// RemoveAccount drops every credential for the platform, the browser
// profile included.
func (s *accountService) RemoveAccount(ctx context.Context, userID int64, raw string) error {
	p, err := parsePlatform(raw)
	if err != nil {
		return err
	}
	if err := s.sessions.Disconnect(ctx, userID, p); err != nil {
		return err
	}
	s.tokens.Forget(userID, p)
	return s.cr.RemoveAll(ctx, userID, p)
}

func (s *accountService) ListAccounts(ctx context.Context, userID int64) ([]*models.Credential, error) {
	if userID == 0 {
		err := errors.New("user is not valid")
		slog.Info(err.Error())
		return nil, err
	}
	return s.cr.ListByUserID(ctx, userID)
}

func (s *accountService) ListSessions(_ context.Context, userID int64) ([]browser.SessionInfo, error) {
	return s.sessions.ListSessions(userID)
}

func (s *accountService) store(ctx context.Context, userID int64, p models.Platform, st models.AuthStrategy, payload string) (*models.Credential, error) {
	cred := &models.Credential{
		UserID:   userID,
		Platform: p,
		Strategy: st,
		Payload:  payload,
		IsActive: true,
	}
	id, err := s.cr.Upsert(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}
	now := s.now()
	if err := s.cr.MarkValidated(ctx, id, now); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}
	cred.LastValidatedAt = &now
	return cred, nil
}

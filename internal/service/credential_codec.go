package service

import (
	"errors"
	"fmt"

	"github.com/maheshrc27/crosspost/internal/browser"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

var ErrEmptyPayload = errors.New("credential payload is empty")

// sessionRef is the payload of a persistent_session credential. The profile
// itself lives on disk; the row only remembers where.
type sessionRef struct {
	ProfileDir string `json:"profile_dir"`
}

// CredentialCodec seals credential payloads with AES-GCM before they reach
// the database.
type CredentialCodec struct {
	key []byte
}

func NewCredentialCodec(secret string) *CredentialCodec {
	return &CredentialCodec{key: utils.DeriveKey(secret)}
}

func (c *CredentialCodec) SealToken(tok platform.Token) (string, error) {
	if tok.AccessToken == "" {
		return "", ErrEmptyPayload
	}
	return utils.SealJSON(tok, c.key)
}

func (c *CredentialCodec) OpenToken(payload string) (platform.Token, error) {
	var tok platform.Token
	if err := c.open(payload, &tok); err != nil {
		return platform.Token{}, err
	}
	if tok.AccessToken == "" {
		return platform.Token{}, ErrEmptyPayload
	}
	return tok, nil
}

func (c *CredentialCodec) SealCookies(cookies []browser.Cookie) (string, error) {
	if len(cookies) == 0 {
		return "", ErrEmptyPayload
	}
	return utils.SealJSON(cookies, c.key)
}

func (c *CredentialCodec) OpenCookies(payload string) ([]browser.Cookie, error) {
	var cookies []browser.Cookie
	if err := c.open(payload, &cookies); err != nil {
		return nil, err
	}
	return cookies, nil
}

func (c *CredentialCodec) SealSession(profileDir string) (string, error) {
	return utils.SealJSON(sessionRef{ProfileDir: profileDir}, c.key)
}

func (c *CredentialCodec) open(payload string, v any) error {
	if payload == "" {
		return ErrEmptyPayload
	}
	if err := utils.OpenJSON(payload, c.key, v); err != nil {
		return fmt.Errorf("open credential: %w", err)
	}
	return nil
}

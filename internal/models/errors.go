package models

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindAuthMissing       ErrorKind = "auth_missing"
	KindAuthExpired       ErrorKind = "auth_expired"
	KindTransientPlatform ErrorKind = "transient_platform"
	KindContentRejected   ErrorKind = "content_rejected"
	KindAutomationDrift   ErrorKind = "automation_drift"
	KindResource          ErrorKind = "resource"
)

// PublishError is raised by the layer that detects a failure, classified
// once, and carried up unchanged.
type PublishError struct {
	Kind     ErrorKind
	Platform Platform
	Op       string
	Err      error
}

func (e *PublishError) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Platform != "" {
		msg = string(e.Platform) + " " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PublishError) Unwrap() error { return e.Err }

func NewPublishError(kind ErrorKind, platform Platform, op string, err error) *PublishError {
	return &PublishError{Kind: kind, Platform: platform, Op: op, Err: err}
}

func Errorf(kind ErrorKind, platform Platform, op, format string, args ...any) *PublishError {
	return NewPublishError(kind, platform, op, fmt.Errorf(format, args...))
}

// KindOf returns the classification of err, or "" when err was never classified.
func KindOf(err error) ErrorKind {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func IsAuthFailure(err error) bool {
	k := KindOf(err)
	return k == KindAuthMissing || k == KindAuthExpired
}

// UserMessage renders err the way it is stored on a failed post.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var pe *PublishError
	if !errors.As(err, &pe) {
		return err.Error()
	}
	var detail string
	if pe.Err != nil {
		detail = ": " + pe.Err.Error()
	}
	switch pe.Kind {
	case KindAuthMissing:
		return fmt.Sprintf("%s: account not connected, reconnect required", pe.Platform)
	case KindAuthExpired:
		return fmt.Sprintf("%s: session expired, reconnect required%s", pe.Platform, detail)
	case KindContentRejected:
		return fmt.Sprintf("%s: content rejected%s", pe.Platform, detail)
	case KindAutomationDrift:
		return fmt.Sprintf("%s: web interface changed, reconnect the account%s", pe.Platform, detail)
	case KindTransientPlatform:
		return fmt.Sprintf("%s: platform unavailable%s", pe.Platform, detail)
	case KindResource:
		return fmt.Sprintf("%s: automation could not start%s", pe.Platform, detail)
	}
	return pe.Error()
}

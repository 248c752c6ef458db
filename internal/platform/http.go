package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/maheshrc27/crosspost/internal/models"
	"golang.org/x/oauth2"
)

type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// classify maps a failed call to the error taxonomy. Errors that were already
// classified pass through unchanged.
func classify(platform models.Platform, op string, err error) error {
	if err == nil {
		return nil
	}
	if models.KindOf(err) != "" {
		return err
	}

	var ae *apiError
	if errors.As(err, &ae) {
		switch {
		case ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden:
			return models.NewPublishError(models.KindAuthExpired, platform, op, err)
		case ae.Status == http.StatusTooManyRequests || ae.Status >= 500:
			return models.NewPublishError(models.KindTransientPlatform, platform, op, err)
		case ae.Status == http.StatusBadRequest || ae.Status == http.StatusConflict ||
			ae.Status == http.StatusUnprocessableEntity:
			return models.NewPublishError(models.KindContentRejected, platform, op, err)
		}
		return models.NewPublishError(models.KindTransientPlatform, platform, op, err)
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return models.NewPublishError(models.KindAuthExpired, platform, op, err)
	}
	return models.NewPublishError(models.KindTransientPlatform, platform, op, err)
}

// doJSON sends body as JSON and decodes the response into out. Non-2xx
// statuses come back as *apiError.
func doJSON(ctx context.Context, hc *http.Client, method, url string, headers map[string]string, body, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error marshalling payload: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return resp.Header, &apiError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp.Header, fmt.Errorf("error parsing response: %w", err)
		}
	}
	return resp.Header, nil
}

// bearerClient returns an HTTP client sending accessToken as a bearer token
// on top of base, when set.
func bearerClient(ctx context.Context, base *http.Client, accessToken string) *http.Client {
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
}

package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/maheshrc27/crosspost/internal/models"
)

const instagramMaxTextLength = 2200

type instagramClient struct {
	baseURL string
	hc      *http.Client
}

// NewInstagramClient publishes through the Instagram Graph API. baseURL
// includes the API version, e.g. https://graph.instagram.com/v21.0.
func NewInstagramClient(baseURL string, hc *http.Client) Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &instagramClient{baseURL: strings.TrimRight(baseURL, "/"), hc: hc}
}

func (c *instagramClient) Platform() models.Platform { return models.PlatformInstagram }

func (c *instagramClient) MaxTextLength() int { return instagramMaxTextLength }

func (c *instagramClient) Connect(_ context.Context, tok Token) (Conn, error) {
	if tok.AccessToken == "" {
		return nil, models.Errorf(models.KindAuthMissing, models.PlatformInstagram, "connect", "empty access token")
	}
	return &instagramConn{baseURL: c.baseURL, hc: c.hc, accessToken: tok.AccessToken, accountID: tok.AccountID}, nil
}

type instagramConn struct {
	baseURL     string
	hc          *http.Client
	accessToken string
	accountID   string
}

func (ig *instagramConn) Validate(ctx context.Context) error {
	var me struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	u := fmt.Sprintf("%s/me?fields=id,username&access_token=%s", ig.baseURL, url.QueryEscape(ig.accessToken))
	if _, err := doJSON(ctx, ig.hc, http.MethodGet, u, nil, nil, &me); err != nil {
		return classify(models.PlatformInstagram, "validate", err)
	}
	if me.ID == "" {
		return models.Errorf(models.KindAuthExpired, models.PlatformInstagram, "validate", "no account in response")
	}
	if ig.accountID == "" {
		ig.accountID = me.ID
	}
	return nil
}

// Publish creates one media container per attachment (a carousel when there
// is more than one) and then publishes it.
func (ig *instagramConn) Publish(ctx context.Context, c Content) (string, error) {
	if len(c.Media) == 0 {
		return "", models.Errorf(models.KindContentRejected, models.PlatformInstagram, "publish", "at least one image or video is required")
	}
	if ig.accountID == "" {
		if err := ig.Validate(ctx); err != nil {
			return "", err
		}
	}

	var creationID string
	if len(c.Media) == 1 {
		payload := ig.mediaPayload(c.Media[0])
		payload["caption"] = c.Text
		id, err := ig.createContainer(ctx, payload)
		if err != nil {
			return "", err
		}
		creationID = id
	} else {
		children := make([]string, 0, len(c.Media))
		for _, m := range c.Media {
			payload := ig.mediaPayload(m)
			payload["is_carousel_item"] = true
			id, err := ig.createContainer(ctx, payload)
			if err != nil {
				return "", err
			}
			children = append(children, id)
		}

		id, err := ig.createContainer(ctx, map[string]any{
			"media_type":   "CAROUSEL",
			"caption":      c.Text,
			"children":     strings.Join(children, ","),
			"access_token": ig.accessToken,
		})
		if err != nil {
			return "", err
		}
		creationID = id
	}

	var published struct {
		ID string `json:"id"`
	}
	body := map[string]any{"creation_id": creationID, "access_token": ig.accessToken}
	if _, err := doJSON(ctx, ig.hc, http.MethodPost, ig.baseURL+"/"+ig.accountID+"/media_publish", nil, body, &published); err != nil {
		return "", classify(models.PlatformInstagram, "publish", err)
	}
	if published.ID == "" {
		return "", models.NewPublishError(models.KindTransientPlatform, models.PlatformInstagram, "publish", errors.New("no media id returned"))
	}
	return published.ID, nil
}

func (ig *instagramConn) mediaPayload(m MediaFile) map[string]any {
	payload := map[string]any{"access_token": ig.accessToken}
	if strings.HasPrefix(m.ContentType, "video/") {
		payload["media_type"] = "REELS"
		payload["video_url"] = m.URL
	} else {
		payload["image_url"] = m.URL
	}
	return payload
}

func (ig *instagramConn) createContainer(ctx context.Context, payload map[string]any) (string, error) {
	var result struct {
		ID string `json:"id"`
	}
	if _, err := doJSON(ctx, ig.hc, http.MethodPost, ig.baseURL+"/"+ig.accountID+"/media", nil, payload, &result); err != nil {
		return "", classify(models.PlatformInstagram, "publish", err)
	}
	if result.ID == "" {
		return "", models.NewPublishError(models.KindTransientPlatform, models.PlatformInstagram, "publish", errors.New("no container id returned"))
	}
	return result.ID, nil
}

func (ig *instagramConn) FetchMetrics(ctx context.Context, externalID string) (*models.Metrics, error) {
	var result struct {
		Data []struct {
			Name   string `json:"name"`
			Values []struct {
				Value int64 `json:"value"`
			} `json:"values"`
		} `json:"data"`
	}
	u := fmt.Sprintf("%s/%s/insights?metric=likes,comments,shares,reach&access_token=%s",
		ig.baseURL, url.PathEscape(externalID), url.QueryEscape(ig.accessToken))
	if _, err := doJSON(ctx, ig.hc, http.MethodGet, u, nil, nil, &result); err != nil {
		return nil, classify(models.PlatformInstagram, "metrics", err)
	}

	m := &models.Metrics{}
	for _, d := range result.Data {
		if len(d.Values) == 0 {
			continue
		}
		v := d.Values[0].Value
		switch d.Name {
		case "likes":
			m.Likes = v
		case "comments":
			m.Comments = v
		case "shares":
			m.Shares = v
		case "reach":
			m.Impressions = v
		}
	}
	return m, nil
}

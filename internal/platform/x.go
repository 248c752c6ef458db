package platform

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/maheshrc27/crosspost/internal/models"
)

const xMaxTextLength = 280

type xClient struct {
	baseURL string
	hc      *http.Client
}

// NewXClient talks to the X API v2. hc may be nil.
func NewXClient(baseURL string, hc *http.Client) Client {
	return &xClient{baseURL: strings.TrimRight(baseURL, "/"), hc: hc}
}

func (c *xClient) Platform() models.Platform { return models.PlatformX }

func (c *xClient) MaxTextLength() int { return xMaxTextLength }

func (c *xClient) Connect(ctx context.Context, tok Token) (Conn, error) {
	if tok.AccessToken == "" {
		return nil, models.Errorf(models.KindAuthMissing, models.PlatformX, "connect", "empty access token")
	}
	return &xConn{baseURL: c.baseURL, hc: bearerClient(ctx, c.hc, tok.AccessToken)}, nil
}

type xConn struct {
	baseURL string
	hc      *http.Client
}

func (x *xConn) Validate(ctx context.Context) error {
	var me struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if _, err := doJSON(ctx, x.hc, http.MethodGet, x.baseURL+"/2/users/me", nil, nil, &me); err != nil {
		return classify(models.PlatformX, "validate", err)
	}
	if me.Data.ID == "" {
		return models.Errorf(models.KindAuthExpired, models.PlatformX, "validate", "no user in response")
	}
	return nil
}

func (x *xConn) Publish(ctx context.Context, c Content) (string, error) {
	if len(c.Media) > 0 {
		return "", models.Errorf(models.KindContentRejected, models.PlatformX, "publish", "media attachments are not supported by the API client")
	}

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	body := map[string]string{"text": c.Text}
	if _, err := doJSON(ctx, x.hc, http.MethodPost, x.baseURL+"/2/tweets", nil, body, &created); err != nil {
		return "", classify(models.PlatformX, "publish", err)
	}
	if created.Data.ID == "" {
		return "", models.NewPublishError(models.KindTransientPlatform, models.PlatformX, "publish", errors.New("no post id returned"))
	}
	return created.Data.ID, nil
}

func (x *xConn) FetchMetrics(ctx context.Context, externalID string) (*models.Metrics, error) {
	var result struct {
		Data struct {
			PublicMetrics struct {
				LikeCount       int64 `json:"like_count"`
				RetweetCount    int64 `json:"retweet_count"`
				QuoteCount      int64 `json:"quote_count"`
				ReplyCount      int64 `json:"reply_count"`
				ImpressionCount int64 `json:"impression_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	u := x.baseURL + "/2/tweets/" + url.PathEscape(externalID) + "?tweet.fields=public_metrics"
	if _, err := doJSON(ctx, x.hc, http.MethodGet, u, nil, nil, &result); err != nil {
		return nil, classify(models.PlatformX, "metrics", err)
	}

	pm := result.Data.PublicMetrics
	return &models.Metrics{
		Likes:       pm.LikeCount,
		Shares:      pm.RetweetCount + pm.QuoteCount,
		Comments:    pm.ReplyCount,
		Impressions: pm.ImpressionCount,
	}, nil
}

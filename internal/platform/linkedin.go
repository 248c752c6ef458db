package platform

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/maheshrc27/crosspost/internal/models"
)

const linkedInMaxTextLength = 3000

type linkedInClient struct {
	baseURL string
	version string
	hc      *http.Client
}

// NewLinkedInClient posts through the versioned LinkedIn REST API.
func NewLinkedInClient(baseURL, version string, hc *http.Client) Client {
	return &linkedInClient{baseURL: strings.TrimRight(baseURL, "/"), version: version, hc: hc}
}

func (c *linkedInClient) Platform() models.Platform { return models.PlatformLinkedIn }

func (c *linkedInClient) MaxTextLength() int { return linkedInMaxTextLength }

func (c *linkedInClient) Connect(ctx context.Context, tok Token) (Conn, error) {
	if tok.AccessToken == "" {
		return nil, models.Errorf(models.KindAuthMissing, models.PlatformLinkedIn, "connect", "empty access token")
	}
	return &linkedInConn{
		baseURL:  c.baseURL,
		version:  c.version,
		hc:       bearerClient(ctx, c.hc, tok.AccessToken),
		personID: tok.AccountID,
	}, nil
}

type linkedInConn struct {
	baseURL  string
	version  string
	hc       *http.Client
	personID string
}

func (l *linkedInConn) headers() map[string]string {
	return map[string]string{
		"LinkedIn-Version":          l.version,
		"X-Restli-Protocol-Version": "2.0.0",
	}
}

func (l *linkedInConn) Validate(ctx context.Context) error {
	var info struct {
		Sub string `json:"sub"`
	}
	if _, err := doJSON(ctx, l.hc, http.MethodGet, l.baseURL+"/v2/userinfo", nil, nil, &info); err != nil {
		return classify(models.PlatformLinkedIn, "validate", err)
	}
	if info.Sub == "" {
		return models.Errorf(models.KindAuthExpired, models.PlatformLinkedIn, "validate", "no member in response")
	}
	if l.personID == "" {
		l.personID = info.Sub
	}
	return nil
}

func (l *linkedInConn) Publish(ctx context.Context, c Content) (string, error) {
	if len(c.Media) > 0 {
		return "", models.Errorf(models.KindContentRejected, models.PlatformLinkedIn, "publish", "media attachments are not supported by the API client")
	}
	if l.personID == "" {
		if err := l.Validate(ctx); err != nil {
			return "", err
		}
	}

	body := map[string]any{
		"author":     "urn:li:person:" + l.personID,
		"commentary": c.Text,
		"visibility": "PUBLIC",
		"distribution": map[string]any{
			"feedDistribution":               "MAIN_FEED",
			"targetEntities":                 []string{},
			"thirdPartyDistributionChannels": []string{},
		},
		"lifecycleState":            "PUBLISHED",
		"isReshareDisabledByAuthor": false,
	}
	header, err := doJSON(ctx, l.hc, http.MethodPost, l.baseURL+"/rest/posts", l.headers(), body, nil)
	if err != nil {
		return "", classify(models.PlatformLinkedIn, "publish", err)
	}

	id := header.Get("x-restli-id")
	if id == "" {
		return "", models.NewPublishError(models.KindTransientPlatform, models.PlatformLinkedIn, "publish", errors.New("no post id returned"))
	}
	return id, nil
}

func (l *linkedInConn) FetchMetrics(ctx context.Context, externalID string) (*models.Metrics, error) {
	var result struct {
		LikesSummary struct {
			TotalLikes int64 `json:"totalLikes"`
		} `json:"likesSummary"`
		CommentsSummary struct {
			AggregatedTotalComments int64 `json:"aggregatedTotalComments"`
		} `json:"commentsSummary"`
	}
	u := l.baseURL + "/rest/socialActions/" + url.PathEscape(externalID)
	if _, err := doJSON(ctx, l.hc, http.MethodGet, u, l.headers(), nil, &result); err != nil {
		return nil, classify(models.PlatformLinkedIn, "metrics", err)
	}
	return &models.Metrics{
		Likes:    result.LikesSummary.TotalLikes,
		Comments: result.CommentsSummary.AggregatedTotalComments,
	}, nil
}

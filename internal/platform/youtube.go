package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/maheshrc27/crosspost/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const (
	youtubeMaxTextLength  = 5000
	youtubeMaxTitleLength = 100
)

type youtubeClient struct {
	oauth *oauth2.Config
	hc    *http.Client
	opts  []option.ClientOption
}

// NewYouTubeClient uploads videos with the YouTube Data API. Tokens are
// refreshed through the Google OAuth client when they carry a refresh token.
func NewYouTubeClient(clientID, clientSecret string, hc *http.Client, opts ...option.ClientOption) Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &youtubeClient{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeReadonlyScope},
			Endpoint:     google.Endpoint,
		},
		hc:   hc,
		opts: opts,
	}
}

func (c *youtubeClient) Platform() models.Platform { return models.PlatformYouTube }

func (c *youtubeClient) MaxTextLength() int { return youtubeMaxTextLength }

func (c *youtubeClient) Connect(ctx context.Context, tok Token) (Conn, error) {
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, models.Errorf(models.KindAuthMissing, models.PlatformYouTube, "connect", "empty access token")
	}

	// The token source outlives ctx; refreshes happen on later calls.
	ts := c.oauth.TokenSource(context.WithValue(context.Background(), oauth2.HTTPClient, c.hc), &oauth2.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.ExpiresAt,
	})
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, c.opts...)
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, models.NewPublishError(models.KindTransientPlatform, models.PlatformYouTube, "connect", err)
	}
	return &youtubeConn{service: service, hc: c.hc}, nil
}

type youtubeConn struct {
	service *youtube.Service
	hc      *http.Client
}

func (y *youtubeConn) Validate(ctx context.Context) error {
	resp, err := y.service.Channels.List([]string{"id"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return classify(models.PlatformYouTube, "validate", googleError(err))
	}
	if len(resp.Items) == 0 {
		return models.Errorf(models.KindAuthMissing, models.PlatformYouTube, "validate", "account has no channel")
	}
	return nil
}

// Publish streams the first video attachment from its public URL into a
// videos.insert upload. The first line of the text becomes the title.
func (y *youtubeConn) Publish(ctx context.Context, c Content) (string, error) {
	var video *MediaFile
	for i := range c.Media {
		if strings.HasPrefix(c.Media[i].ContentType, "video/") {
			video = &c.Media[i]
			break
		}
	}
	if video == nil {
		return "", models.Errorf(models.KindContentRejected, models.PlatformYouTube, "publish", "a video attachment is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, video.URL, nil)
	if err != nil {
		return "", models.NewPublishError(models.KindContentRejected, models.PlatformYouTube, "publish", err)
	}
	resp, err := y.hc.Do(req)
	if err != nil {
		return "", models.NewPublishError(models.KindTransientPlatform, models.PlatformYouTube, "publish", fmt.Errorf("error downloading video: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", models.Errorf(models.KindTransientPlatform, models.PlatformYouTube, "publish", "unexpected media status: %d", resp.StatusCode)
	}

	upload := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       videoTitle(c.Text),
			Description: c.Text,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}
	created, err := y.service.Videos.Insert([]string{"snippet", "status"}, upload).Media(resp.Body).Context(ctx).Do()
	if err != nil {
		return "", classify(models.PlatformYouTube, "publish", googleError(err))
	}
	if created.Id == "" {
		return "", models.NewPublishError(models.KindTransientPlatform, models.PlatformYouTube, "publish", errors.New("no video id returned"))
	}
	return created.Id, nil
}

func (y *youtubeConn) FetchMetrics(ctx context.Context, externalID string) (*models.Metrics, error) {
	resp, err := y.service.Videos.List([]string{"statistics"}).Id(externalID).Context(ctx).Do()
	if err != nil {
		return nil, classify(models.PlatformYouTube, "metrics", googleError(err))
	}
	if len(resp.Items) == 0 || resp.Items[0].Statistics == nil {
		return nil, models.Errorf(models.KindContentRejected, models.PlatformYouTube, "metrics", "video %s not found", externalID)
	}

	st := resp.Items[0].Statistics
	return &models.Metrics{
		Likes:       int64(st.LikeCount),
		Comments:    int64(st.CommentCount),
		Impressions: int64(st.ViewCount),
	}, nil
}

// googleError turns a googleapi error into an *apiError so it classifies
// like every other platform.
func googleError(err error) error {
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return &apiError{Status: ge.Code, Body: ge.Message}
	}
	return err
}

func videoTitle(text string) string {
	title, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	if title == "" {
		title = "Untitled"
	}
	if utf8.RuneCountInString(title) > youtubeMaxTitleLength {
		title = string([]rune(title)[:youtubeMaxTitleLength])
	}
	return title
}

package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXPublishAndMetrics(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/2/users/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"id":"u1"}}`))
	})
	mux.HandleFunc("/2/tweets", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["text"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"1789"}}`))
	})
	mux.HandleFunc("/2/tweets/1789", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"public_metrics":{"like_count":10,"retweet_count":3,"quote_count":2,"reply_count":5,"impression_count":1000}}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn, err := NewXClient(srv.URL, srv.Client()).Connect(context.Background(), Token{AccessToken: "tok"})
	require.NoError(t, err)
	require.NoError(t, conn.Validate(context.Background()))

	id, err := conn.Publish(context.Background(), Content{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "1789", id)

	m, err := conn.FetchMetrics(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.Metrics{Likes: 10, Shares: 5, Comments: 5, Impressions: 1000}, *m)
}

func TestXClassifiesStatuses(t *testing.T) {
	cases := []struct {
		status int
		want   models.ErrorKind
	}{
		{http.StatusUnauthorized, models.KindAuthExpired},
		{http.StatusForbidden, models.KindAuthExpired},
		{http.StatusTooManyRequests, models.KindTransientPlatform},
		{http.StatusBadGateway, models.KindTransientPlatform},
		{http.StatusBadRequest, models.KindContentRejected},
		{http.StatusUnprocessableEntity, models.KindContentRejected},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"detail":"nope"}`))
		}))

		conn, err := NewXClient(srv.URL, srv.Client()).Connect(context.Background(), Token{AccessToken: "tok"})
		require.NoError(t, err)
		_, err = conn.Publish(context.Background(), Content{Text: "hello"})
		assert.Equal(t, tc.want, models.KindOf(err), "status %d", tc.status)
		srv.Close()
	}
}

func TestXNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	conn, err := NewXClient(url, nil).Connect(context.Background(), Token{AccessToken: "tok"})
	require.NoError(t, err)
	_, err = conn.Publish(context.Background(), Content{Text: "hello"})
	assert.Equal(t, models.KindTransientPlatform, models.KindOf(err))
}

func TestConnectWithoutTokenIsAuthMissing(t *testing.T) {
	_, err := NewXClient("http://unused", nil).Connect(context.Background(), Token{})
	assert.Equal(t, models.KindAuthMissing, models.KindOf(err))

	_, err = NewLinkedInClient("http://unused", "202409", nil).Connect(context.Background(), Token{})
	assert.Equal(t, models.KindAuthMissing, models.KindOf(err))
}

func TestLinkedInPublishReadsRestliID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sub":"abc"}`))
	})
	mux.HandleFunc("/rest/posts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "202409", r.Header.Get("LinkedIn-Version"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "urn:li:person:abc", body["author"])
		assert.Equal(t, "launch day", body["commentary"])
		w.Header().Set("x-restli-id", "urn:li:share:42")
		w.WriteHeader(http.StatusCreated)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn, err := NewLinkedInClient(srv.URL, "202409", srv.Client()).Connect(context.Background(), Token{AccessToken: "tok"})
	require.NoError(t, err)
	require.NoError(t, conn.Validate(context.Background()))

	id, err := conn.Publish(context.Background(), Content{Text: "launch day"})
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:42", id)
}

func TestInstagramRequiresMedia(t *testing.T) {
	conn, err := NewInstagramClient("http://unused", nil).Connect(context.Background(), Token{AccessToken: "tok", AccountID: "17"})
	require.NoError(t, err)
	_, err = conn.Publish(context.Background(), Content{Text: "caption only"})
	assert.Equal(t, models.KindContentRejected, models.KindOf(err))
}

func TestInstagramCarouselPublish(t *testing.T) {
	var containers []map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/17/media", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		containers = append(containers, body)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "c" + string(rune('0'+len(containers)))})
	})
	mux.HandleFunc("/17/media_publish", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "c3", body["creation_id"])
		_, _ = w.Write([]byte(`{"id":"m99"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn, err := NewInstagramClient(srv.URL, srv.Client()).Connect(context.Background(), Token{AccessToken: "tok", AccountID: "17"})
	require.NoError(t, err)

	id, err := conn.Publish(context.Background(), Content{
		Text: "two pics",
		Media: []MediaFile{
			{URL: "https://cdn.example/a.jpg", ContentType: "image/jpeg"},
			{URL: "https://cdn.example/b.mp4", ContentType: "video/mp4"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "m99", id)

	require.Len(t, containers, 3)
	assert.Equal(t, true, containers[0]["is_carousel_item"])
	assert.Equal(t, "https://cdn.example/b.mp4", containers[1]["video_url"])
	assert.Equal(t, "CAROUSEL", containers[2]["media_type"])
	assert.Equal(t, "c1,c2", containers[2]["children"])
}

func TestYouTubeRequiresVideo(t *testing.T) {
	conn, err := NewYouTubeClient("id", "secret", nil).Connect(context.Background(), Token{AccessToken: "tok"})
	require.NoError(t, err)
	_, err = conn.Publish(context.Background(), Content{
		Text:  "no video",
		Media: []MediaFile{{URL: "https://cdn.example/a.jpg", ContentType: "image/jpeg"}},
	})
	assert.Equal(t, models.KindContentRejected, models.KindOf(err))
}

func TestVideoTitle(t *testing.T) {
	assert.Equal(t, "First line", videoTitle("First line\nrest of the description"))
	assert.Equal(t, "Untitled", videoTitle("   "))
	long := make([]rune, 150)
	for i := range long {
		long[i] = 'é'
	}
	assert.Len(t, []rune(videoTitle(string(long))), youtubeMaxTitleLength)
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleCreatesPost(t *testing.T) {
	posts := newMemPosts()
	media := &fakeMedia{}
	s := NewPostService(posts, &memHistory{}, newMemEngagement(), media)

	at := time.Date(2026, 11, 1, 9, 30, 0, 0, time.UTC)
	got, err := s.Schedule(context.Background(), owner, &transfer.PostCreation{
		Body:          "Hello world",
		Platforms:     []string{"x", "LinkedIn", "x"},
		ScheduledTime: at.Format(time.RFC3339),
	}, [][]byte{[]byte("img")})
	require.NoError(t, err)

	assert.NotZero(t, got.ID)
	assert.Equal(t, models.PostStatusScheduled, got.Status)
	assert.Equal(t, []models.Platform{models.PlatformX, models.PlatformLinkedIn}, got.Platforms)
	assert.Equal(t, []string{"media/a"}, got.MediaKeys)
	assert.True(t, at.Equal(got.ScheduledTime))

	stored, err := posts.GetByID(context.Background(), got.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", stored.Body)
}

func TestScheduleDraft(t *testing.T) {
	s := NewPostService(newMemPosts(), &memHistory{}, newMemEngagement(), &fakeMedia{})
	got, err := s.Schedule(context.Background(), owner, &transfer.PostCreation{
		Body:          "later",
		Platforms:     []string{"youtube"},
		ScheduledTime: "2026-11-01T09:30:00Z",
		Draft:         true,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusDraft, got.Status)
}

func TestScheduleValidation(t *testing.T) {
	cases := map[string]*transfer.PostCreation{
		"empty body":       {Body: " ", Platforms: []string{"x"}, ScheduledTime: "2026-11-01T09:30:00Z"},
		"no platforms":     {Body: "hi", ScheduledTime: "2026-11-01T09:30:00Z"},
		"unknown platform": {Body: "hi", Platforms: []string{"myspace"}, ScheduledTime: "2026-11-01T09:30:00Z"},
		"bad time":         {Body: "hi", Platforms: []string{"x"}, ScheduledTime: "2026-11-01T09:30"},
	}
	for name, pc := range cases {
		t.Run(name, func(t *testing.T) {
			posts := newMemPosts()
			s := NewPostService(posts, &memHistory{}, newMemEngagement(), &fakeMedia{})
			_, err := s.Schedule(context.Background(), owner, pc, nil)
			require.ErrorIs(t, err, ErrInvalidPost)
			assert.Empty(t, posts.posts)
		})
	}
}

func TestScheduleRejectsUnsupportedMedia(t *testing.T) {
	s := NewPostService(newMemPosts(), &memHistory{}, newMemEngagement(), &fakeMedia{uploadErr: ErrUnsupportedMedia})
	_, err := s.Schedule(context.Background(), owner, &transfer.PostCreation{
		Body: "hi", Platforms: []string{"x"}, ScheduledTime: "2026-11-01T09:30:00Z",
	}, [][]byte{[]byte("%PDF")})
	require.ErrorIs(t, err, ErrInvalidPost)
}

func TestCancel(t *testing.T) {
	posts := newMemPosts(
		&models.ScheduledPost{ID: 1, UserID: owner, Status: models.PostStatusScheduled},
		&models.ScheduledPost{ID: 2, UserID: owner, Status: models.PostStatusPublishing},
		&models.ScheduledPost{ID: 3, UserID: 99, Status: models.PostStatusScheduled},
		&models.ScheduledPost{ID: 4, UserID: owner, Status: models.PostStatusDraft},
		&models.ScheduledPost{ID: 5, UserID: owner, Status: models.PostStatusPublished},
	)
	s := NewPostService(posts, &memHistory{}, newMemEngagement(), &fakeMedia{})
	ctx := context.Background()

	require.NoError(t, s.Cancel(ctx, owner, 1))
	p, _ := posts.GetByID(ctx, 1)
	assert.Equal(t, models.PostStatusFailed, p.Status)
	assert.Equal(t, "cancelled by owner", p.ErrorMessage)

	assert.ErrorIs(t, s.Cancel(ctx, owner, 2), ErrPostNotCancelable)
	assert.ErrorIs(t, s.Cancel(ctx, owner, 3), ErrPostNotFound)
	assert.ErrorIs(t, s.Cancel(ctx, owner, 404), ErrPostNotFound)

	p, _ = posts.GetByID(ctx, 2)
	assert.Equal(t, models.PostStatusPublishing, p.Status)

	require.NoError(t, s.Cancel(ctx, owner, 4))
	assert.ErrorIs(t, s.Cancel(ctx, owner, 5), ErrPostNotCancelable)
	assert.ErrorIs(t, s.Cancel(ctx, owner, 1), ErrPostNotCancelable)
	p, _ = posts.GetByID(ctx, 5)
	assert.Equal(t, models.PostStatusPublished, p.Status)
}

func TestGetIncludesHistory(t *testing.T) {
	posts := newMemPosts(&models.ScheduledPost{ID: 5, UserID: owner, Status: models.PostStatusFailed})
	history := &memHistory{}
	_, err := history.Create(context.Background(), &models.PostingHistory{PostID: 5, Platform: models.PlatformX, Strategy: models.StrategyAPIToken, ErrorKind: "auth_expired"})
	require.NoError(t, err)

	engagement := newMemEngagement()
	rec := models.NewEngagementRecord(5, models.PlatformX, models.Metrics{Likes: 4, Impressions: 100}, time.Now())
	require.NoError(t, engagement.Upsert(context.Background(), &rec))

	s := NewPostService(posts, history, engagement, &fakeMedia{})
	got, err := s.Get(context.Background(), owner, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Post.ID)
	require.Len(t, got.History, 1)
	require.Len(t, got.Engagement, 1)
	assert.Equal(t, int64(400), got.Engagement[0].EngagementRate)

	_, err = s.Get(context.Background(), 99, 5)
	assert.True(t, errors.Is(err, ErrPostNotFound))
}

package models

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngagementRate(t *testing.T) {
	cases := []struct {
		name                                 string
		likes, shares, comments, impressions int64
		want                                 int64
	}{
		{"zero impressions", 10, 5, 3, 0, 0},
		{"nothing at all", 0, 0, 0, 0, 0},
		{"exact", 50, 25, 25, 1000, 1000},
		{"rounds half up", 1, 0, 0, 20000, 1},
		{"rounds down", 1, 0, 0, 30000, 0},
		{"more engagement than impressions", 30, 0, 0, 10, 30000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EngagementRate(tc.likes, tc.shares, tc.comments, tc.impressions))
		})
	}
}

func TestPostStatusForwardOnly(t *testing.T) {
	assert.True(t, PostStatusDraft.CanTransition(PostStatusScheduled))
	assert.True(t, PostStatusScheduled.CanTransition(PostStatusPublishing))
	assert.True(t, PostStatusPublishing.CanTransition(PostStatusPublished))
	assert.True(t, PostStatusPublishing.CanTransition(PostStatusFailed))

	assert.False(t, PostStatusPublished.CanTransition(PostStatusScheduled))
	assert.False(t, PostStatusFailed.CanTransition(PostStatusScheduled))
	assert.False(t, PostStatusPublishing.CanTransition(PostStatusScheduled))
	assert.False(t, PostStatusScheduled.CanTransition(PostStatusPublished))
}


func TestSyntheticExternalID(t *testing.T) {
	id := NewSyntheticExternalID(PlatformLinkedIn, time.Unix(1700000000, 0))
	assert.True(t, IsSyntheticExternalID(id))
	assert.Contains(t, id, "linkedin")
	assert.True(t, strings.HasPrefix(id, "local:"))
	assert.False(t, IsSyntheticExternalID("1790012345678"))
}

func TestPublishErrorClassification(t *testing.T) {
	base := errors.New("401 unauthorized")
	err := NewPublishError(KindAuthExpired, PlatformX, "publish", base)
	wrapped := errors.Join(errors.New("attempt 1"), err)

	require.Equal(t, KindAuthExpired, KindOf(wrapped))
	assert.True(t, IsAuthFailure(wrapped))
	assert.ErrorIs(t, wrapped, base)
	assert.Contains(t, UserMessage(err), "reconnect required")

	assert.Equal(t, ErrorKind(""), KindOf(base))
	assert.False(t, IsAuthFailure(NewPublishError(KindContentRejected, PlatformX, "publish", nil)))
	assert.Equal(t, "plain", UserMessage(errors.New("plain")))
}

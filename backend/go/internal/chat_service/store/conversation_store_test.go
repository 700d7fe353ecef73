package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
)

func TestMemoryConversationStore(t *testing.T) {
	s, err := NewMemoryConversationStore(2, 0)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	require.NoError(t, s.Append(ctx, "s1", "u1",
		models.ConversationMessage{Role: models.SpeakerUser, Content: "Bonjour"},
		models.ConversationMessage{Role: models.SpeakerAssistant, Content: "Bonjour !", Agent: models.AgentConversation},
	))
	first, err := s.Get(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, s.Append(ctx, "s1", "u1", models.ConversationMessage{Role: models.SpeakerUser, Content: "Les majeures ?"}))
	rec, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, first.ID, rec.ID)
	require.Len(t, rec.Messages, 3)
	assert.Equal(t, "Les majeures ?", rec.Messages[2].Content)
	assert.Len(t, first.Messages, 2, "earlier snapshot must not change")

	// 容量为 2，第三个会话淘汰最久未用的 s1
	require.NoError(t, s.Append(ctx, "s2", "", models.ConversationMessage{Content: "a"}))
	require.NoError(t, s.Append(ctx, "s3", "", models.ConversationMessage{Content: "b"}))
	_, err = s.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestNewMemoryConversationStore_InvalidCapacity(t *testing.T) {
	_, err := NewMemoryConversationStore(0, time.Minute)
	assert.Error(t, err)
}

func TestMemoryConversationStore_FeedbackAndList(t *testing.T) {
	s, err := NewMemoryConversationStore(8, 0)
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Append(ctx, "s1", "", models.ConversationMessage{ID: "m1", Role: models.SpeakerAssistant, Content: "a"}))
	now = now.Add(time.Minute)
	require.NoError(t, s.Append(ctx, "s2", "", models.ConversationMessage{ID: "m2", Role: models.SpeakerAssistant, Content: "b"}))

	before, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, s.SetFeedback(ctx, "s1", "m1", models.FeedbackNegative))
	require.NoError(t, s.SetFeedback(ctx, "s1", "m1", models.FeedbackPositive))
	assert.Empty(t, before.Messages[0].Feedback, "earlier snapshot must not change")

	assert.ErrorIs(t, s.SetFeedback(ctx, "s1", "m2", models.FeedbackPositive), ErrMessageNotFound)
	assert.ErrorIs(t, s.SetFeedback(ctx, "missing", "m1", models.FeedbackPositive), ErrMessageNotFound)

	recs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "s2", recs[0].SessionID)
	assert.Equal(t, models.FeedbackPositive, recs[1].Messages[0].Feedback)

	recs, err = s.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "s2", recs[0].SessionID)
}

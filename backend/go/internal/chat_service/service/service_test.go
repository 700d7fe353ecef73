package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Farx1/esilvchatbot/backend/go/internal/chat_service/store"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/freshness"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/orchestrator"
	kstore "github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/store"
	"github.com/Farx1/esilvchatbot/backend/go/internal/llm"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
)

type fakeAnswerer struct {
	queries []string
	result  *orchestrator.Result
	err     error
}

func (f *fakeAnswerer) Answer(_ context.Context, query string) (*orchestrator.Result, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newService(t *testing.T, k Answerer) (*ChatService, *store.MemoryConversationStore) {
	t.Helper()
	convs, err := store.NewMemoryConversationStore(16, 0)
	require.NoError(t, err)
	return NewChatService(k, llm.NewComposer(nil, logger.Discard()), convs, logger.Discard()), convs
}

func localResult() *orchestrator.Result {
	return &orchestrator.Result{
		Source:   orchestrator.SourceLocal,
		Decision: freshness.Decision{Mode: freshness.ModeNone, Reason: freshness.ReasonFresh},
		Facts:    []*models.Fact{{ID: "f1", Question: "Majeures ?", Answer: "Data & IA, Fintech, Cybersécurité"}},
	}
}

func TestChat_Retrieval(t *testing.T) {
	k := &fakeAnswerer{result: localResult()}
	svc, convs := newService(t, k)

	resp, err := svc.Chat(context.Background(), ChatRequest{Message: "  Quelles sont les majeures ?  ", SessionID: "s1", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, models.AgentRetrieval, resp.AgentType)
	assert.Equal(t, []string{"Quelles sont les majeures ?"}, k.queries)
	reply, ok := resp.Reply.(RetrievalReply)
	require.True(t, ok)
	assert.Equal(t, "Data & IA, Fintech, Cybersécurité", reply.Answer)
	assert.False(t, reply.Generated)
	assert.Equal(t, "local", reply.Source)

	rec, err := convs.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, rec.Messages, 2)
	assert.Equal(t, models.SpeakerUser, rec.Messages[0].Role)
	assert.Equal(t, models.AgentRetrieval, rec.Messages[1].Agent)
	assert.Equal(t, reply.Answer, rec.Messages[1].Content)
}

func TestChat_FormAndConversation(t *testing.T) {
	k := &fakeAnswerer{result: localResult()}
	svc, _ := newService(t, k)

	resp, err := svc.Chat(context.Background(), ChatRequest{Message: "Je veux m'inscrire"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)
	form, ok := resp.Reply.(FormReply)
	require.True(t, ok)
	assert.Contains(t, form.Fields, "email")

	resp, err = svc.Chat(context.Background(), ChatRequest{Message: "Bonjour"})
	require.NoError(t, err)
	assert.Equal(t, models.AgentConversation, resp.Reply.Kind())
	assert.Equal(t, greetingAnswer, resp.Reply.Text())

	assert.Empty(t, k.queries)
}

func TestChat_FollowUpUsesStoredHistory(t *testing.T) {
	k := &fakeAnswerer{result: localResult()}
	svc, _ := newService(t, k)
	ctx := context.Background()

	_, err := svc.Chat(ctx, ChatRequest{Message: "Bonjour", SessionID: "s1"})
	require.NoError(t, err)

	resp, err := svc.Chat(ctx, ChatRequest{Message: "Et pour la deuxième année ?", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, models.AgentRetrieval, resp.AgentType)
	assert.Len(t, k.queries, 1)
}

func TestChat_Errors(t *testing.T) {
	svc, _ := newService(t, &fakeAnswerer{err: fmt.Errorf("search: %w", kstore.ErrStoreUnavailable)})

	_, err := svc.Chat(context.Background(), ChatRequest{Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = svc.Chat(context.Background(), ChatRequest{Message: "Les frais de scolarité ?"})
	assert.ErrorIs(t, err, kstore.ErrStoreUnavailable)
}

type brokenConvs struct{}

func (brokenConvs) Append(context.Context, string, string, ...models.ConversationMessage) error {
	return fmt.Errorf("mongo down")
}

func (brokenConvs) Get(context.Context, string) (*models.ConversationRecord, error) {
	return nil, fmt.Errorf("mongo down")
}

func (brokenConvs) SetFeedback(context.Context, string, string, models.Feedback) error {
	return fmt.Errorf("mongo down")
}

func (brokenConvs) List(context.Context, int) ([]*models.ConversationRecord, error) {
	return nil, fmt.Errorf("mongo down")
}

func TestChat_PersistenceFailureIsIgnored(t *testing.T) {
	svc := NewChatService(&fakeAnswerer{result: localResult()}, llm.NewComposer(nil, logger.Discard()), brokenConvs{}, logger.Discard())
	resp, err := svc.Chat(context.Background(), ChatRequest{Message: "Quelles sont les majeures ?"})
	require.NoError(t, err)
	assert.Equal(t, models.AgentRetrieval, resp.AgentType)
}

func TestFeedbackOnReply(t *testing.T) {
	svc, convs := newService(t, &fakeAnswerer{result: localResult()})
	ctx := context.Background()

	resp, err := svc.Chat(ctx, ChatRequest{Message: "Quelles sont les majeures ?", SessionID: "s1"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.MessageID)

	fb, err := svc.Feedback(ctx, FeedbackRequest{SessionID: "s1", MessageID: resp.MessageID, Feedback: "down"})
	require.NoError(t, err)
	assert.Equal(t, models.FeedbackNegative, fb)

	rec, err := convs.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rec.Messages, 2)
	assert.Empty(t, rec.Messages[0].Feedback)
	assert.Equal(t, resp.MessageID, rec.Messages[1].ID)
	assert.Equal(t, models.FeedbackNegative, rec.Messages[1].Feedback)

	_, err = svc.Feedback(ctx, FeedbackRequest{SessionID: "s1"})
	assert.ErrorIs(t, err, ErrInvalidFeedback)
	_, err = svc.Feedback(ctx, FeedbackRequest{SessionID: "s1", MessageID: "nope", Feedback: "up"})
	assert.ErrorIs(t, err, store.ErrMessageNotFound)
}

func TestConversationsNewestFirst(t *testing.T) {
	svc, _ := newService(t, &fakeAnswerer{result: localResult()})
	ctx := context.Background()
	for _, id := range []string{"s1", "s2", "s3"} {
		_, err := svc.Chat(ctx, ChatRequest{Message: "Bonjour", SessionID: id})
		require.NoError(t, err)
	}

	recs, err := svc.Conversations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "s3", recs[0].SessionID)
	assert.Equal(t, "s2", recs[1].SessionID)

	none := NewChatService(&fakeAnswerer{}, llm.NewComposer(nil, logger.Discard()), nil, logger.Discard())
	recs, err = none.Conversations(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFormServiceSubmit(t *testing.T) {
	forms := NewFormService(store.NewMemoryFormStore(), logger.Discard())
	ctx := context.Background()

	sub, err := forms.Submit(ctx, &models.FormSubmission{Name: "Alice", Email: "alice@example.com", Program: "Bachelor"})
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, models.SubmissionPending, sub.Status)

	_, err = forms.Submit(ctx, &models.FormSubmission{Name: "Bob"})
	assert.ErrorIs(t, err, models.ErrInvalidSubmission)

	subs, err := forms.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "Alice", subs[0].Name)
}

package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/ai/mock"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/retrieval"
	"github.com/poiesic/docrag/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const guide = "Step 1. Do X. Step 2. Do Y."

type chatFixture struct {
	repos     *badger.Repositories
	manager   *Manager
	embedder  *mock.MockEmbedder
	generator *mock.MockGenerator
	chat      *Chat
	doc       *core.Document
}

func newChatFixture(t *testing.T, opts ...ChatOption) *chatFixture {
	t.Helper()
	m, repos := newTestManager(t)
	f := &chatFixture{
		repos:     repos,
		manager:   m,
		embedder:  mock.NewMockEmbedder(),
		generator: mock.NewMockGenerator(),
	}
	f.doc = addDocument(t, repos, "Guide", guide)

	retriever, err := retrieval.NewRetriever(repos.Documents, repos.Embeddings, f.embedder)
	require.NoError(t, err)

	f.generator.GenerateFunc = func(ctx context.Context, req *ai.GenerationRequest) (*ai.GenerationResponse, error) {
		if req.Context == titleInstructions {
			return &ai.GenerationResponse{Response: `Title: "the second step of the guide".`}, nil
		}
		return &ai.GenerationResponse{
			Response:  "  Do Y once X is done.  ",
			ModelInfo: map[string]any{"model_name": "test-llm"},
			Usage:     ai.Usage{InputTokens: 40, OutputTokens: 6, TotalTokens: 46},
		}, nil
	}

	opts = append([]ChatOption{WithTokenCounter(mock.MockTokenCounter{})}, opts...)
	f.chat, err = NewChat(m, retriever, f.generator, opts...)
	require.NoError(t, err)
	return f
}

func (f *chatFixture) conversation(t *testing.T, ids ...core.ID) core.ID {
	t.Helper()
	id, err := f.manager.CreateConversation(context.Background(), NewConversation{SessionID: "session", DocumentIDs: ids})
	require.NoError(t, err)
	return id
}

// answerRequests returns the generation requests that were not title requests.
func (f *chatFixture) answerRequests() []ai.GenerationRequest {
	var out []ai.GenerationRequest
	for _, req := range f.generator.Requests() {
		if req.Context != titleInstructions {
			out = append(out, req)
		}
	}
	return out
}

func TestNewChat(t *testing.T) {
	m, repos := newTestManager(t)
	retriever, err := retrieval.NewRetriever(repos.Documents, repos.Embeddings, mock.NewMockEmbedder())
	require.NoError(t, err)
	gen := mock.NewMockGenerator()

	_, err = NewChat(nil, retriever, gen)
	assert.Equal(t, ErrManagerRequired, err)
	_, err = NewChat(m, nil, gen)
	assert.Equal(t, ErrRetrieverRequired, err)
	_, err = NewChat(m, retriever, nil)
	assert.Equal(t, ErrGeneratorRequired, err)

	c, err := NewChat(m, retriever, gen)
	require.NoError(t, err)
	assert.Equal(t, ai.DefaultMaxLength, c.maxLength)
	assert.Equal(t, ai.DefaultTemperature, c.temperature)
	assert.Equal(t, DefaultGenerationTimeout, c.timeout)
}

func TestAsk(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	convID := f.conversation(t, f.doc.Id)

	reply, err := f.chat.Ask(ctx, convID, "  What is step 2? ")
	require.NoError(t, err)

	assert.Equal(t, convID, reply.ConversationId)
	assert.Equal(t, "Do Y once X is done.", reply.Answer)
	assert.Equal(t, retrieval.TierPattern, reply.Tier)
	require.Len(t, reply.Sources, 1)
	assert.Equal(t, f.doc.Id, reply.Sources[0].DocumentId)
	assert.Contains(t, reply.Sources[0].Snippet, "Do Y")
	assert.Equal(t, retrieval.ScorePattern, reply.Sources[0].Score)
	assert.Equal(t, 6, reply.TokenCount)
	assert.Equal(t, 46, reply.Usage.TotalTokens)
	assert.Equal(t, "test-llm", reply.ModelInfo["model_name"])
	assert.Equal(t, "The Second Step of the Guide", reply.Title)

	reqs := f.answerRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "What is step 2?", reqs[0].Message)
	assert.Contains(t, reqs[0].Context, "Relevant section:\nStep 2. Do Y.")
	assert.Empty(t, reqs[0].History)
	assert.Equal(t, ai.DefaultMaxLength, reqs[0].MaxLength)
	assert.Equal(t, ai.DefaultTemperature, reqs[0].Temperature)

	turns, err := f.manager.ListMessages(ctx, convID, 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, reply.UserTurnId, turns[0].Id)
	assert.Equal(t, core.RoleUser, turns[0].Role)
	assert.Equal(t, "What is step 2?", turns[0].Content)
	assert.Equal(t, 4, turns[0].TokenCount)
	assert.Empty(t, turns[0].Sources)
	assert.Equal(t, reply.TurnId, turns[1].Id)
	assert.Equal(t, core.RoleAssistant, turns[1].Role)
	assert.Equal(t, reply.Sources, turns[1].Sources)
	assert.Equal(t, 6, turns[1].TokenCount)

	conv, err := f.manager.GetConversation(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, "The Second Step of the Guide", conv.Title)
}

func TestAsk_SendsHistory(t *testing.T) {
	f := newChatFixture(t, WithHistoryLimit(2))
	ctx := context.Background()
	convID := f.conversation(t, f.doc.Id)

	_, err := f.chat.Ask(ctx, convID, "What is step 1?")
	require.NoError(t, err)
	_, err = f.chat.Ask(ctx, convID, "And step 2?")
	require.NoError(t, err)
	_, err = f.chat.Ask(ctx, convID, "Anything else?")
	require.NoError(t, err)

	reqs := f.answerRequests()
	require.Len(t, reqs, 3)
	require.Len(t, reqs[1].History, 2)
	assert.Equal(t, ai.HistoryMessage{Role: core.RoleUser, Content: "What is step 1?"}, reqs[1].History[0])
	assert.Equal(t, core.RoleAssistant, reqs[1].History[1].Role)
	require.Len(t, reqs[2].History, 2)
	assert.Equal(t, "And step 2?", reqs[2].History[0].Content)

	// Only the first question names the conversation
	titles := len(f.generator.Requests()) - len(reqs)
	assert.Equal(t, 1, titles)
}

func TestAsk_GenerationSettings(t *testing.T) {
	f := newChatFixture(t, WithGenerationDefaults(64, 0.2), WithEvidenceLimit(1))
	_, err := f.chat.Ask(context.Background(), f.conversation(t, f.doc.Id), "Summarize the guide")
	require.NoError(t, err)

	reqs := f.answerRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 64, reqs[0].MaxLength)
	assert.Equal(t, 0.2, reqs[0].Temperature)
}

func TestAsk_NoDocuments(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	convID := f.conversation(t)

	_, err := f.chat.Ask(ctx, convID, "What is step 2?")
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.ErrorIs(t, err, core.ErrNoDocuments)
	assert.Equal(t, 0, f.generator.CallCount())

	turns, err := f.manager.ListMessages(ctx, convID, 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, core.RoleUser, turns[0].Role)
}

func TestAsk_GenerationFailure(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	convID := f.conversation(t, f.doc.Id)
	f.generator.GenerateFunc = func(ctx context.Context, req *ai.GenerationRequest) (*ai.GenerationResponse, error) {
		return nil, errors.New("connection reset")
	}

	_, err := f.chat.Ask(ctx, convID, "What is step 2?")
	assert.ErrorIs(t, err, core.ErrUpstream)

	turns, err := f.manager.ListMessages(ctx, convID, 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, core.RoleUser, turns[0].Role)
}

func TestAsk_EmptyAnswer(t *testing.T) {
	f := newChatFixture(t)
	f.generator.GenerateFunc = func(ctx context.Context, req *ai.GenerationRequest) (*ai.GenerationResponse, error) {
		return &ai.GenerationResponse{Response: "   "}, nil
	}
	_, err := f.chat.Ask(context.Background(), f.conversation(t, f.doc.Id), "What is step 2?")
	assert.ErrorIs(t, err, core.ErrUpstream)
	assert.ErrorIs(t, err, ai.ErrEmptyResponse)
}

func TestAsk_GenerationTimeout(t *testing.T) {
	f := newChatFixture(t, WithGenerationTimeout(20*time.Millisecond))
	f.generator.GenerateFunc = func(ctx context.Context, req *ai.GenerationRequest) (*ai.GenerationResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	started := time.Now()
	_, err := f.chat.Ask(context.Background(), f.conversation(t, f.doc.Id), "What is step 2?")
	assert.ErrorIs(t, err, core.ErrUpstream)
	assert.Less(t, time.Since(started), 5*time.Second)
}

func TestAsk_EmbeddingOutageStillAnswers(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	_, err := f.repos.Documents.TransitionState(ctx, f.doc.Id, f.doc.Revision, core.StateReady, core.StateUnprocessed)
	require.NoError(t, err)
	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("service unavailable")
	}

	reply, err := f.chat.Ask(ctx, f.conversation(t, f.doc.Id), "Summarize the guide")
	require.NoError(t, err)
	assert.Equal(t, retrieval.TierFullDocument, reply.Tier)
	require.Len(t, reply.Sources, 1)
	assert.Equal(t, retrieval.ScoreDegraded, reply.Sources[0].Score)
}

func TestAsk_Rejections(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	convID := f.conversation(t, f.doc.Id)

	_, err := f.chat.Ask(ctx, convID, "   ")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.chat.Ask(ctx, 999, "What is step 2?")
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, f.manager.Deactivate(ctx, convID))
	_, err = f.chat.Ask(ctx, convID, "What is step 2?")
	assert.ErrorIs(t, err, ErrInactive)

	assert.Equal(t, 0, f.generator.CallCount())
}

func TestAsk_KeepsExistingTitle(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	convID, err := f.manager.CreateConversation(ctx, NewConversation{
		SessionID:   "session",
		DocumentIDs: []core.ID{f.doc.Id},
		Title:       "My Guide",
	})
	require.NoError(t, err)

	reply, err := f.chat.Ask(ctx, convID, "What is step 2?")
	require.NoError(t, err)
	assert.Equal(t, "My Guide", reply.Title)
	assert.Equal(t, 1, f.generator.CallCount())
}

func TestAsk_TitlesDisabled(t *testing.T) {
	f := newChatFixture(t, WithTitles(false))
	reply, err := f.chat.Ask(context.Background(), f.conversation(t, f.doc.Id), "What is step 2?")
	require.NoError(t, err)
	assert.Empty(t, reply.Title)
	assert.Equal(t, 1, f.generator.CallCount())
}

func TestAskDocuments(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	reply, err := f.chat.AskDocuments(ctx, "What is step 2?", []core.ID{f.doc.Id})
	require.NoError(t, err)
	assert.Zero(t, reply.ConversationId)
	assert.Zero(t, reply.TurnId)
	assert.Equal(t, "Do Y once X is done.", reply.Answer)
	require.Len(t, reply.Sources, 1)
	assert.Contains(t, reply.Sources[0].Snippet, "Do Y")

	_, err = f.manager.GetConversationBySession(ctx, "session")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.chat.AskDocuments(ctx, "What is step 2?", nil)
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = f.chat.AskDocuments(ctx, "", []core.ID{f.doc.Id})
	assert.ErrorIs(t, err, core.ErrValidation)
}

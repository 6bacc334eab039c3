package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SEPPAN-hub/aikomon/internal/models"
	"github.com/SEPPAN-hub/aikomon/internal/observability"
)

type mockCorpusScanner struct {
	scanFunc func(ctx context.Context) ([]models.MessageRecord, error)
}

func (m *mockCorpusScanner) Scan(ctx context.Context) ([]models.MessageRecord, error) {
	return m.scanFunc(ctx)
}

type mockPipelineMetrics struct {
	outcomes      []string
	searchResults []int
}

func (m *mockPipelineMetrics) RecordMention(_ context.Context, outcome string, _ time.Duration) {
	m.outcomes = append(m.outcomes, outcome)
}

func (m *mockPipelineMetrics) RecordSearch(_ context.Context, resultCount int) {
	m.searchResults = append(m.searchResults, resultCount)
}

func newTestMentionService(
	embed func(ctx context.Context, input string) ([]float32, error),
	scan func(ctx context.Context) ([]models.MessageRecord, error),
	complete func(ctx context.Context, systemPrompt string, turns []models.ConversationTurn, userPrompt string) (string, error),
	store *ConversationStore,
) *MentionService {
	encoder := NewEncoder(EncoderParams{
		Client:     &mockEmbeddingClient{createEmbeddingFunc: embed},
		Dimensions: 3,
	})
	answers := NewAnswerService(AnswerServiceParams{
		Completion:    &mockCompletionClient{completeFunc: complete},
		Conversations: store,
		HistoryWindow: 5,
	})

	return NewMentionService(MentionServiceParams{
		Encoder:       encoder,
		Corpus:        &mockCorpusScanner{scanFunc: scan},
		Answers:       answers,
		TopK:          3,
		MinSimilarity: 0.3,
	})
}

func TestMentionServiceHandleMention(t *testing.T) {
	ctx := context.Background()
	const key = "C123:1700000000.000100"

	t.Run("grounded answer flows end to end", func(t *testing.T) {
		store := NewConversationStore(40, 30)

		corpus := []models.MessageRecord{
			{Text: "the VPN config moved to the infra repo", Embedding: []float32{0.9, 0.1, 0}},
			{Text: "lunch is at noon", Embedding: []float32{0, 0, 1}},
		}

		var gotPrompt string

		svc := newTestMentionService(
			func(_ context.Context, _ string) ([]float32, error) {
				return []float32{1, 0, 0}, nil
			},
			func(_ context.Context) ([]models.MessageRecord, error) {
				return corpus, nil
			},
			func(_ context.Context, _ string, _ []models.ConversationTurn, userPrompt string) (string, error) {
				gotPrompt = userPrompt

				return "It moved to the infra repo.", nil
			},
			store,
		)

		answer := svc.HandleMention(ctx, key, "where is the VPN config?")

		assert.Equal(t, "It moved to the infra repo.", answer)
		assert.Contains(t, gotPrompt, "the VPN config moved to the infra repo")
		assert.NotContains(t, gotPrompt, "lunch is at noon")

		turns := store.Recent(key, 10)
		require.Len(t, turns, 2)
		assert.Equal(t, "where is the VPN config?", turns[0].Content)
		assert.Equal(t, "It moved to the infra repo.", turns[1].Content)
	})

	t.Run("encoding failure returns the encoding fallback", func(t *testing.T) {
		store := NewConversationStore(40, 30)

		svc := newTestMentionService(
			func(_ context.Context, _ string) ([]float32, error) {
				return nil, errors.New("provider down")
			},
			func(_ context.Context) ([]models.MessageRecord, error) {
				t.Fatal("corpus must not be scanned when encoding fails")

				return nil, nil
			},
			func(_ context.Context, _ string, _ []models.ConversationTurn, _ string) (string, error) {
				t.Fatal("generation must not run when encoding fails")

				return "", nil
			},
			store,
		)

		answer := svc.HandleMention(ctx, key, "anything?")

		assert.Equal(t, EncodingFallback, answer)
		assert.Empty(t, store.Recent(key, 10))
	})

	t.Run("scan failure degrades to an ungrounded answer", func(t *testing.T) {
		store := NewConversationStore(40, 30)

		var gotPrompt string

		svc := newTestMentionService(
			func(_ context.Context, _ string) ([]float32, error) {
				return []float32{1, 0, 0}, nil
			},
			func(_ context.Context) ([]models.MessageRecord, error) {
				return nil, errors.New("database unavailable")
			},
			func(_ context.Context, _ string, _ []models.ConversationTurn, userPrompt string) (string, error) {
				gotPrompt = userPrompt

				return "I have no record of that.", nil
			},
			store,
		)

		answer := svc.HandleMention(ctx, key, "where is the VPN config?")

		assert.Equal(t, "I have no record of that.", answer)
		assert.Contains(t, gotPrompt, "No relevant past messages were found.")
	})

	t.Run("an answer matching the fallback text counts as success", func(t *testing.T) {
		store := NewConversationStore(40, 30)
		metrics := &mockPipelineMetrics{}

		encoder := NewEncoder(EncoderParams{
			Client: &mockEmbeddingClient{
				createEmbeddingFunc: func(_ context.Context, _ string) ([]float32, error) {
					return []float32{1, 0, 0}, nil
				},
			},
			Dimensions: 3,
		})
		answers := NewAnswerService(AnswerServiceParams{
			Completion: &mockCompletionClient{
				completeFunc: func(_ context.Context, _ string, _ []models.ConversationTurn, _ string) (string, error) {
					return GenerationFallback, nil
				},
			},
			Conversations: store,
		})

		svc := NewMentionService(MentionServiceParams{
			Encoder: encoder,
			Corpus: &mockCorpusScanner{scanFunc: func(_ context.Context) ([]models.MessageRecord, error) {
				return nil, nil
			}},
			Answers: answers,
			TopK:    3,
			Metrics: metrics,
		})

		answer := svc.HandleMention(ctx, key, "repeat this sentence")

		assert.Equal(t, GenerationFallback, answer)
		require.Len(t, metrics.outcomes, 1)
		assert.Equal(t, observability.OutcomeSuccess, metrics.outcomes[0])
	})

	t.Run("generation failure surfaces the generation fallback", func(t *testing.T) {
		store := NewConversationStore(40, 30)

		svc := newTestMentionService(
			func(_ context.Context, _ string) ([]float32, error) {
				return []float32{1, 0, 0}, nil
			},
			func(_ context.Context) ([]models.MessageRecord, error) {
				return nil, nil
			},
			func(_ context.Context, _ string, _ []models.ConversationTurn, _ string) (string, error) {
				return "", errors.New("completion failed")
			},
			store,
		)

		answer := svc.HandleMention(ctx, key, "anything?")

		assert.Equal(t, GenerationFallback, answer)
		assert.Empty(t, store.Recent(key, 10))
	})
}

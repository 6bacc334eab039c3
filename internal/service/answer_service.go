package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/SEPPAN-hub/aikomon/internal/models"
	"github.com/SEPPAN-hub/aikomon/internal/observability"
)

// CompletionClient generates an answer from a system prompt, prior turns, and a user prompt.
type CompletionClient interface {
	Complete(ctx context.Context, systemPrompt string, turns []models.ConversationTurn, userPrompt string) (string, error)
}

// systemPrompt is the fixed persona and grounding instruction for every answer.
const systemPrompt = `You are an internal workspace assistant for a Slack team.
Answer the user's question using the retrieved past messages as grounding.
Summarize and synthesize rather than quoting verbatim. When the retrieved
messages do not cover the question, say so honestly instead of inventing facts.
Reply politely and concisely in the language the user asked in.`

// GenerationFallback is the fixed user-facing reply when answer generation fails.
const GenerationFallback = "Sorry, something went wrong while generating an answer. Please try again."

// AnswerService composes grounding context and conversation history into one
// completion call and records successful exchanges into the conversation store.
type AnswerService struct {
	completion    CompletionClient
	conversations *ConversationStore
	historyWindow int
	metrics       observability.GenerationMetrics
	logger        *slog.Logger
}

// AnswerServiceParams configures AnswerService. Metrics may be nil.
type AnswerServiceParams struct {
	Completion    CompletionClient
	Conversations *ConversationStore
	HistoryWindow int
	Metrics       observability.GenerationMetrics
	Logger        *slog.Logger
}

// NewAnswerService creates an AnswerService.
func NewAnswerService(p AnswerServiceParams) *AnswerService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	historyWindow := p.HistoryWindow
	if historyWindow <= 0 {
		historyWindow = 5
	}

	return &AnswerService{
		completion:    p.Completion,
		conversations: p.Conversations,
		historyWindow: historyWindow,
		metrics:       p.Metrics,
		logger:        logger,
	}
}

// Generate answers queryText grounded on the ranked records, conditioned on the
// conversation's recent turns. On success it appends the user query and the
// assistant answer to the conversation store and returns the answer with
// ok=true. On any failure it returns GenerationFallback with ok=false and
// leaves the conversation state untouched, so a retry sees the same history.
// The ok flag, not the reply text, is the failure signal: a model is free to
// produce any sentence, including one matching the fallback.
func (s *AnswerService) Generate(
	ctx context.Context, queryText string, ranked []models.RankedRecord, conversationKey string,
) (string, bool) {
	userPrompt := buildUserPrompt(queryText, ranked)
	turns := s.conversations.Recent(conversationKey, s.historyWindow)

	answer, err := s.completion.Complete(ctx, systemPrompt, turns, userPrompt)
	if err != nil {
		s.logger.Error("answer generation failed", "error", err, "conversation_key", conversationKey)

		if s.metrics != nil {
			s.metrics.RecordGeneration(ctx, observability.OutcomeFailure)
		}

		return GenerationFallback, false
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		s.logger.Error("answer generation returned empty text", "conversation_key", conversationKey)

		if s.metrics != nil {
			s.metrics.RecordGeneration(ctx, observability.OutcomeFailure)
		}

		return GenerationFallback, false
	}

	s.conversations.Append(conversationKey, models.RoleUser, queryText)
	s.conversations.Append(conversationKey, models.RoleAssistant, answer)

	if s.metrics != nil {
		s.metrics.RecordGeneration(ctx, observability.OutcomeSuccess)
	}

	return answer, true
}

// buildUserPrompt combines the grounding block and the live query into the final
// user turn. When nothing was retrieved the block says so explicitly; the model
// must still attempt an answer.
func buildUserPrompt(queryText string, ranked []models.RankedRecord) string {
	var b strings.Builder

	b.WriteString("[Retrieved past messages]\n")

	if len(ranked) == 0 {
		b.WriteString("No relevant past messages were found.\n")
	} else {
		for _, rec := range ranked {
			fmt.Fprintf(&b, "- %s (similarity %.2f)\n", rec.Text, rec.Similarity)
		}
	}

	b.WriteString("\n[Question]\n")
	b.WriteString(queryText)

	return b.String()
}

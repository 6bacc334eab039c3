package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/SEPPAN-hub/aikomon/internal/models"
	"github.com/SEPPAN-hub/aikomon/internal/observability"
)

// EncodingFallback is the fixed user-facing reply when the query cannot be embedded.
const EncodingFallback = "Sorry, I could not process your message. Please try again."

// CorpusScanner provides the full record corpus visible to the ranker.
type CorpusScanner interface {
	Scan(ctx context.Context) ([]models.MessageRecord, error)
}

// MentionService runs the encode -> rank -> generate pipeline for one inbound
// mention and always produces a user-visible reply string. Each stage's failure
// is absorbed here: encoding failures get a fixed reply, search failures degrade
// to ungrounded generation, and generation failures fall back inside AnswerService.
type MentionService struct {
	encoder *Encoder
	corpus  CorpusScanner
	answers *AnswerService

	topK          int
	minSimilarity float64

	metrics observability.PipelineMetrics
	logger  *slog.Logger
}

// MentionServiceParams configures MentionService. Metrics may be nil.
type MentionServiceParams struct {
	Encoder       *Encoder
	Corpus        CorpusScanner
	Answers       *AnswerService
	TopK          int
	MinSimilarity float64
	Metrics       observability.PipelineMetrics
	Logger        *slog.Logger
}

// NewMentionService creates a MentionService.
func NewMentionService(p MentionServiceParams) *MentionService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	topK := p.TopK
	if topK <= 0 {
		topK = 3
	}

	return &MentionService{
		encoder:       p.Encoder,
		corpus:        p.Corpus,
		answers:       p.Answers,
		topK:          topK,
		minSimilarity: p.MinSimilarity,
		metrics:       p.Metrics,
		logger:        logger,
	}
}

// HandleMention answers one query within its conversation. It never returns an
// empty string and never propagates an error: the reply is either a grounded
// answer or one of the fixed fallback strings.
func (s *MentionService) HandleMention(ctx context.Context, conversationKey, queryText string) string {
	start := time.Now()
	outcome := observability.OutcomeSuccess

	defer func() {
		if s.metrics != nil {
			s.metrics.RecordMention(ctx, outcome, time.Since(start))
		}
	}()

	queryVec, err := s.encoder.Encode(ctx, queryText)
	if err != nil {
		outcome = observability.OutcomeEncodingFailure

		return EncodingFallback
	}

	// A failed corpus scan is not fatal: the answer proceeds ungrounded.
	corpus, err := s.corpus.Scan(ctx)
	if err != nil {
		s.logger.Error("corpus scan failed, answering without grounding",
			"error", err, "conversation_key", conversationKey)

		corpus = nil
	}

	ranked := Rank(queryVec, corpus, s.topK, s.minSimilarity)

	if s.metrics != nil {
		s.metrics.RecordSearch(ctx, len(ranked))
	}

	answer, ok := s.answers.Generate(ctx, queryText, ranked, conversationKey)
	if !ok {
		outcome = observability.OutcomeGenerationFailure
	}

	return answer
}

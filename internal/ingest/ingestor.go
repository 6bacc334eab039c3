// Package ingest pulls channel history from the chat platform, embeds new
// messages, and persists them as message records.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/SEPPAN-hub/aikomon/internal/models"
	"github.com/SEPPAN-hub/aikomon/internal/observability"
	"github.com/SEPPAN-hub/aikomon/internal/slack"
	"github.com/SEPPAN-hub/aikomon/pkg/embeddings"
)

// HistorySource lists channels and fetches their message history.
type HistorySource interface {
	ListChannelIDs(ctx context.Context) ([]string, error)
	ChannelHistory(ctx context.Context, channelID string) ([]slack.SourceMessage, error)
}

// RecordStore persists message records and answers dedup checks.
type RecordStore interface {
	Exists(ctx context.Context, channelID, sourceTS string) (bool, error)
	Insert(ctx context.Context, rec models.MessageRecord) error
}

// Embedder turns message text into an embedding vector.
type Embedder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// Summary reports what one ingestion run did.
type Summary struct {
	Channels  int
	Scanned   int
	Inserted  int
	Duplicate int
	Skipped   int
	Failed    int
}

// Ingestor runs the batch ingestion pipeline. It is idempotent: re-running over
// unchanged history produces zero new inserts, because every message is deduped
// against the store by (channel, source timestamp) at full precision before it
// is embedded. A failure on one message never aborts the batch.
type Ingestor struct {
	source       HistorySource
	store        RecordStore
	encoder      Embedder
	limiter      *rate.Limiter
	skipAuthorID string
	metrics      observability.IngestMetrics
	logger       *slog.Logger
}

// IngestorParams configures an Ingestor. Metrics may be nil. EmbeddingRate is
// embedding calls per second; zero or negative disables rate limiting.
// SkipAuthorID, when set, excludes that author's messages (the bot's own
// replies must not feed back into the corpus).
type IngestorParams struct {
	Source        HistorySource
	Store         RecordStore
	Encoder       Embedder
	EmbeddingRate float64
	SkipAuthorID  string
	Metrics       observability.IngestMetrics
	Logger        *slog.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(p IngestorParams) *Ingestor {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if p.EmbeddingRate > 0 {
		limit = rate.Limit(p.EmbeddingRate)
	}

	return &Ingestor{
		source:       p.Source,
		store:        p.Store,
		encoder:      p.Encoder,
		limiter:      rate.NewLimiter(limit, 1),
		skipAuthorID: p.SkipAuthorID,
		metrics:      p.Metrics,
		logger:       logger,
	}
}

// Run ingests every visible channel sequentially and returns a summary.
// It fails only when the channel listing itself fails; per-channel and
// per-message errors are logged and skipped.
func (in *Ingestor) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	channelIDs, err := in.source.ListChannelIDs(ctx)
	if err != nil {
		return summary, fmt.Errorf("list channels: %w", err)
	}

	for _, channelID := range channelIDs {
		summary.Channels++

		messages, err := in.source.ChannelHistory(ctx, channelID)
		if err != nil {
			in.logger.Error("failed to fetch channel history, skipping channel",
				"channel_id", channelID, "error", err)

			continue
		}

		in.logger.Info("ingesting channel", "channel_id", channelID, "messages", len(messages))

		for i := range messages {
			summary.Scanned++
			in.ingestMessage(ctx, &messages[i], &summary)
		}
	}

	return summary, nil
}

// ingestMessage dedups, embeds, and persists one source message.
func (in *Ingestor) ingestMessage(ctx context.Context, msg *slack.SourceMessage, summary *Summary) {
	if in.skipAuthorID != "" && msg.AuthorID == in.skipAuthorID {
		in.recordOutcome(ctx, observability.OutcomeSkipped, summary)

		return
	}

	exists, err := in.store.Exists(ctx, msg.ChannelID, msg.TS)
	if err != nil {
		in.recordOutcome(ctx, observability.OutcomeFailure, summary)
		in.logger.Error("dedup check failed, skipping message",
			"channel_id", msg.ChannelID, "ts", msg.TS, "error", err)

		return
	}

	if exists {
		in.recordOutcome(ctx, observability.OutcomeDuplicate, summary)

		return
	}

	if err := in.limiter.Wait(ctx); err != nil {
		in.recordOutcome(ctx, observability.OutcomeFailure, summary)

		return
	}

	embedding, err := in.encoder.Encode(ctx, msg.Text)
	if err != nil {
		in.recordOutcome(ctx, observability.OutcomeFailure, summary)
		in.logger.Error("failed to embed message, skipping",
			"channel_id", msg.ChannelID, "ts", msg.TS, "error", err)

		return
	}

	// Stored vectors are unit length; similarity is then scale free.
	embeddings.NormalizeL2(embedding)

	rec := models.MessageRecord{
		ChannelID: msg.ChannelID,
		SourceTS:  msg.TS,
		Text:      msg.Text,
		AuthorID:  msg.AuthorID,
		PostedAt:  ParseSourceTS(msg.TS),
		Embedding: embedding,
		Raw:       msg.Raw,
	}

	if err := in.store.Insert(ctx, rec); err != nil {
		in.recordOutcome(ctx, observability.OutcomeFailure, summary)
		in.logger.Error("failed to persist message, skipping",
			"channel_id", msg.ChannelID, "ts", msg.TS, "error", err)

		return
	}

	in.recordOutcome(ctx, observability.OutcomeInserted, summary)
}

func (in *Ingestor) recordOutcome(ctx context.Context, outcome string, summary *Summary) {
	switch outcome {
	case observability.OutcomeInserted:
		summary.Inserted++
	case observability.OutcomeDuplicate:
		summary.Duplicate++
	case observability.OutcomeSkipped:
		summary.Skipped++
	default:
		summary.Failed++
	}

	if in.metrics != nil {
		in.metrics.RecordIngestedMessage(ctx, outcome)
	}
}

// ParseSourceTS converts a Slack "seconds.fraction" timestamp into a time.Time.
// The fractional part is kept (it is what distinguishes messages within the
// same second); an unparsable value yields the zero time.
func ParseSourceTS(ts string) time.Time {
	secPart, fracPart, _ := strings.Cut(ts, ".")

	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}
	}

	var nsec int64

	if fracPart != "" {
		// Pad or truncate the fraction to nanosecond precision.
		const nanoDigits = 9
		if len(fracPart) > nanoDigits {
			fracPart = fracPart[:nanoDigits]
		}

		frac, err := strconv.ParseInt(fracPart, 10, 64)
		if err == nil {
			for i := len(fracPart); i < nanoDigits; i++ {
				frac *= 10
			}

			nsec = frac
		}
	}

	return time.Unix(sec, nsec).UTC()
}

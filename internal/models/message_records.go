package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageRecord is a single ingested workspace message with its embedding.
// Records are immutable once stored: the ingestion pipeline creates them and
// nothing in this process updates or deletes them.
type MessageRecord struct {
	ID        uuid.UUID       `json:"id"`
	ChannelID string          `json:"channel_id"`
	SourceTS  string          `json:"source_ts"` // opaque Slack message ts, full precision
	Text      string          `json:"text"`
	AuthorID  string          `json:"author_id"`
	PostedAt  time.Time       `json:"posted_at"`
	Embedding []float32       `json:"-"`
	Raw       json.RawMessage `json:"raw,omitempty"` // source payload preserved verbatim
}

// RankedRecord is a MessageRecord with its similarity to a query vector.
// Computed per query; never persisted.
type RankedRecord struct {
	MessageRecord

	Similarity float64 `json:"similarity"`
}

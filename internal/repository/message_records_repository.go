// Package repository handles data access for stored message records.
package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/SEPPAN-hub/aikomon/internal/models"
)

// MessageRecordsRepository handles data access for the message_records table.
type MessageRecordsRepository struct {
	db         *pgxpool.Pool
	dimensions int
	logger     *slog.Logger
}

// NewMessageRecordsRepository creates a repository that validates embeddings
// against the given dimension when reading the corpus.
func NewMessageRecordsRepository(db *pgxpool.Pool, dimensions int, logger *slog.Logger) *MessageRecordsRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &MessageRecordsRepository{db: db, dimensions: dimensions, logger: logger}
}

// Insert stores one message record. Records are immutable: there is no update path.
func (r *MessageRecordsRepository) Insert(ctx context.Context, rec models.MessageRecord) error {
	id := rec.ID
	if id == uuid.Nil {
		id = uuid.Must(uuid.NewV7())
	}

	vec := pgvector.NewVector(rec.Embedding)

	_, err := r.db.Exec(ctx, `
		INSERT INTO message_records (id, channel_id, source_ts, message_text, author_id, posted_at, embedding, raw_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, rec.ChannelID, rec.SourceTS, rec.Text, rec.AuthorID, rec.PostedAt, vec, rec.Raw,
	)
	if err != nil {
		return fmt.Errorf("message record insert: %w", err)
	}

	return nil
}

// Exists reports whether a record for the given channel and source timestamp is
// already stored. The source timestamp is compared at full precision, so two
// distinct messages within the same second never conflate.
func (r *MessageRecordsRepository) Exists(ctx context.Context, channelID, sourceTS string) (bool, error) {
	var exists bool

	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM message_records WHERE channel_id = $1 AND source_ts = $2)`,
		channelID, sourceTS,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("message record exists: %w", err)
	}

	return exists, nil
}

// Scan returns the full corpus visible to the ranker. Rows with a missing or
// wrong-dimension embedding are excluded with a warning; a malformed record must
// never fail the whole search.
func (r *MessageRecordsRepository) Scan(ctx context.Context) ([]models.MessageRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, channel_id, source_ts, message_text, author_id, posted_at, embedding, raw_json
		FROM message_records
		ORDER BY posted_at, source_ts`)
	if err != nil {
		return nil, fmt.Errorf("message records scan: %w", err)
	}
	defer rows.Close()

	var records []models.MessageRecord

	for rows.Next() {
		var (
			rec models.MessageRecord
			vec *pgvector.Vector
		)

		if err := rows.Scan(&rec.ID, &rec.ChannelID, &rec.SourceTS, &rec.Text,
			&rec.AuthorID, &rec.PostedAt, &vec, &rec.Raw); err != nil {
			return nil, fmt.Errorf("scan message record: %w", err)
		}

		if vec != nil {
			rec.Embedding = vec.Slice()
		}

		if !ValidRecord(rec, r.dimensions) {
			r.logger.Warn("excluding malformed record from corpus",
				"record_id", rec.ID, "embedding_len", len(rec.Embedding))

			continue
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message records: %w", err)
	}

	return records, nil
}

// ValidRecord reports whether a record read from the store satisfies the corpus
// invariants: non-empty text and an embedding of exactly the expected dimension.
func ValidRecord(rec models.MessageRecord, dimensions int) bool {
	return rec.Text != "" && len(rec.Embedding) == dimensions
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/SEPPAN-hub/aikomon/internal/boterrors"
	"github.com/SEPPAN-hub/aikomon/internal/observability"
	"github.com/SEPPAN-hub/aikomon/internal/openai"
	"github.com/SEPPAN-hub/aikomon/pkg/cache"
)

const queryEmbeddingCacheName = "query_embedding"

// EmbeddingClient generates embedding vectors for text.
type EmbeddingClient interface {
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)
}

// Encoder turns text into a fixed-length embedding vector. Every failure mode,
// whether the provider is unreachable, the response is malformed, or the
// dimension is wrong, is converted to a typed *boterrors.EncodingError; callers
// never see a raw provider error. No retry happens at this layer.
type Encoder struct {
	client       EmbeddingClient
	dimensions   int
	queryCache   *cache.LoaderCache[[]float32]
	cacheMetrics observability.CacheMetrics
	logger       *slog.Logger
}

// EncoderParams configures an Encoder. QueryCache and CacheMetrics may be nil (no caching).
type EncoderParams struct {
	Client       EmbeddingClient
	Dimensions   int
	QueryCache   *cache.LoaderCache[[]float32]
	CacheMetrics observability.CacheMetrics
	Logger       *slog.Logger
}

// NewEncoder creates an Encoder.
func NewEncoder(p EncoderParams) *Encoder {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Encoder{
		client:       p.Client,
		dimensions:   p.Dimensions,
		queryCache:   p.QueryCache,
		cacheMetrics: p.CacheMetrics,
		logger:       logger,
	}
}

// Encode returns the embedding for text, of length equal to the configured
// dimension. The error, when non-nil, is always a *boterrors.EncodingError.
func (e *Encoder) Encode(ctx context.Context, text string) ([]float32, error) {
	var (
		vec []float32
		err error
	)

	if e.queryCache != nil {
		vec, err = e.embedCached(ctx, text)
	} else {
		vec, err = e.client.CreateEmbedding(ctx, text)
	}

	if err != nil {
		reason := boterrors.ReasonProviderError
		if errors.Is(err, openai.ErrDimensionMismatch) {
			reason = boterrors.ReasonDimensionMismatch
		}

		e.logger.Error("encode failed", "reason", reason, "error", err)

		return nil, boterrors.NewEncodingError(reason, err.Error())
	}

	if len(vec) != e.dimensions {
		e.logger.Error("encode returned wrong dimension", "got", len(vec), "want", e.dimensions)

		return nil, boterrors.NewEncodingError(boterrors.ReasonDimensionMismatch,
			fmt.Sprintf("got %d dimensions, want %d", len(vec), e.dimensions))
	}

	return vec, nil
}

func (e *Encoder) embedCached(ctx context.Context, text string) ([]float32, error) {
	vec, hit, err := e.queryCache.Get(ctx, text, func(ctx context.Context, key string) ([]float32, error) {
		return e.client.CreateEmbedding(ctx, key)
	})
	if err != nil {
		return nil, err
	}

	if e.cacheMetrics != nil {
		if hit {
			e.cacheMetrics.RecordHit(ctx, queryEmbeddingCacheName)
		} else {
			e.cacheMetrics.RecordMiss(ctx, queryEmbeddingCacheName)
		}
	}

	return vec, nil
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/aikomon")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_SIGNING_SECRET", "secret")
}

func TestLoad(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		setRequiredEnv(t)

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, "3000", cfg.Port)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
		assert.Equal(t, 1536, cfg.EmbeddingDimensions)
		assert.Equal(t, "gpt-3.5-turbo", cfg.ChatModel)
		assert.InDelta(t, 0.3, cfg.SearchMinSimilarity, 1e-9)
		assert.Equal(t, 3, cfg.SearchTopK)
		assert.Equal(t, 5, cfg.HistoryWindow)
		assert.Equal(t, 40, cfg.ConversationMaxTurns)
		assert.Equal(t, 30, cfg.ConversationRetainTurns)
		assert.InDelta(t, 2.0, cfg.IngestEmbeddingRateLimit, 1e-9)
	})

	t.Run("reads overrides from the environment", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("PORT", "8080")
		t.Setenv("EMBEDDING_DIMENSIONS", "3072")
		t.Setenv("SEARCH_MIN_SIMILARITY", "0.5")
		t.Setenv("SEARCH_TOP_K", "10")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, 3072, cfg.EmbeddingDimensions)
		assert.InDelta(t, 0.5, cfg.SearchMinSimilarity, 1e-9)
		assert.Equal(t, 10, cfg.SearchTopK)
	})

	t.Run("fails fast on each missing credential", func(t *testing.T) {
		required := []string{"DATABASE_URL", "OPENAI_API_KEY", "SLACK_BOT_TOKEN", "SLACK_SIGNING_SECRET"}

		for _, missing := range required {
			t.Run(missing, func(t *testing.T) {
				setRequiredEnv(t)
				t.Setenv(missing, "")

				_, err := Load()

				require.Error(t, err)
				assert.Contains(t, err.Error(), missing)
			})
		}
	})

	t.Run("rejects a non-positive embedding dimension", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("EMBEDDING_DIMENSIONS", "0")

		_, err := Load()

		assert.Error(t, err)
	})

	t.Run("rejects retain count above the cap", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("CONVERSATION_MAX_TURNS", "10")
		t.Setenv("CONVERSATION_RETAIN_TURNS", "20")

		_, err := Load()

		assert.Error(t, err)
	})

	t.Run("malformed numeric values fall back to defaults", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("SEARCH_TOP_K", "lots")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, 3, cfg.SearchTopK)
	})
}

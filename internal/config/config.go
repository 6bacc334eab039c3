// Package config provides application configuration loaded from environment variables.
package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	DatabaseURL        string
	Port               string
	LogLevel           string
	OpenAIAPIKey       string
	SlackBotToken      string
	SlackSigningSecret string

	// Embedding model and its fixed output dimension (must match the DB column).
	EmbeddingModel      string
	EmbeddingDimensions int

	// Chat completion model used for answer generation.
	ChatModel string

	// Minimum cosine similarity for a record to count as grounding; top-K cap.
	SearchMinSimilarity float64
	SearchTopK          int

	// Conversation window: turns sent to the model per query, hard cap per key,
	// and the count retained after a trim (trimming is batched, not per append).
	HistoryWindow           int
	ConversationMaxTurns    int
	ConversationRetainTurns int

	// Embedding calls per second during ingestion (provider rate limit).
	IngestEmbeddingRateLimit float64
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloat retrieves an environment variable as a float or returns a default value.
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// requireEnv returns the value of a required environment variable or an error when unset.
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", errors.New(key + " environment variable is required but not set")
	}

	return value, nil
}

// Load reads configuration from environment variables and returns a Config struct.
// It automatically loads .env file if it exists. The process must fail fast when
// a required value is absent, so Load returns an error for any missing credential.
func Load() (*Config, error) {
	// Load .env file if it exists. Skip logging when absent (e.g. env from secrets/parameter store).
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	databaseURL, err := requireEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}

	openAIAPIKey, err := requireEnv("OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}

	slackBotToken, err := requireEnv("SLACK_BOT_TOKEN")
	if err != nil {
		return nil, err
	}

	slackSigningSecret, err := requireEnv("SLACK_SIGNING_SECRET")
	if err != nil {
		return nil, err
	}

	embeddingDimensions := getEnvAsInt("EMBEDDING_DIMENSIONS", 1536)
	if embeddingDimensions <= 0 {
		return nil, errors.New("EMBEDDING_DIMENSIONS must be a positive integer")
	}

	searchTopK := getEnvAsInt("SEARCH_TOP_K", 3)
	if searchTopK <= 0 {
		return nil, errors.New("SEARCH_TOP_K must be a positive integer")
	}

	maxTurns := getEnvAsInt("CONVERSATION_MAX_TURNS", 40)
	retainTurns := getEnvAsInt("CONVERSATION_RETAIN_TURNS", 30)

	if maxTurns <= 0 || retainTurns <= 0 || retainTurns > maxTurns {
		return nil, errors.New("CONVERSATION_RETAIN_TURNS must be positive and not exceed CONVERSATION_MAX_TURNS")
	}

	cfg := &Config{
		DatabaseURL:        databaseURL,
		Port:               getEnv("PORT", "3000"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		OpenAIAPIKey:       openAIAPIKey,
		SlackBotToken:      slackBotToken,
		SlackSigningSecret: slackSigningSecret,

		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: embeddingDimensions,
		ChatModel:           getEnv("CHAT_MODEL", "gpt-3.5-turbo"),

		SearchMinSimilarity: getEnvAsFloat("SEARCH_MIN_SIMILARITY", 0.3),
		SearchTopK:          searchTopK,

		HistoryWindow:           getEnvAsInt("HISTORY_WINDOW", 5),
		ConversationMaxTurns:    maxTurns,
		ConversationRetainTurns: retainTurns,

		IngestEmbeddingRateLimit: getEnvAsFloat("INGEST_EMBEDDING_RATE_LIMIT", 2),
	}

	return cfg, nil
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/SEPPAN-hub/aikomon/internal/config"
	"github.com/SEPPAN-hub/aikomon/internal/ingest"
	"github.com/SEPPAN-hub/aikomon/internal/observability"
	"github.com/SEPPAN-hub/aikomon/internal/openai"
	"github.com/SEPPAN-hub/aikomon/internal/repository"
	"github.com/SEPPAN-hub/aikomon/internal/service"
	"github.com/SEPPAN-hub/aikomon/internal/slack"
	"github.com/SEPPAN-hub/aikomon/pkg/database"
)

// Batch ingestion binary. Walks every channel the bot can see, embeds messages
// that are not yet stored, and exits. Safe to re-run on a schedule.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	meterProvider, _, metrics, err := observability.NewMeterProvider("aikomon-ingest")
	if err != nil {
		slog.Error("Failed to create meter provider", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			slog.Error("Failed to shut down meter provider", "error", err)
		}
	}()

	logger := slog.Default()

	slackClient := slack.NewClient(cfg.SlackBotToken, logger)

	embeddingClient := openai.NewClient(cfg.OpenAIAPIKey,
		openai.WithModel(cfg.EmbeddingModel),
		openai.WithDimensions(cfg.EmbeddingDimensions),
	)

	// No query cache here: ingestion embeds each message exactly once.
	encoder := service.NewEncoder(service.EncoderParams{
		Client:     embeddingClient,
		Dimensions: cfg.EmbeddingDimensions,
		Logger:     logger,
	})

	recordsRepo := repository.NewMessageRecordsRepository(db, cfg.EmbeddingDimensions, logger)

	// The bot's own replies must not feed back into the corpus.
	botUserID, err := slackClient.BotUserID(ctx)
	if err != nil {
		slog.Error("Failed to resolve bot user ID", "error", err)
		os.Exit(1)
	}

	ingestor := ingest.NewIngestor(ingest.IngestorParams{
		Source:        slackClient,
		Store:         recordsRepo,
		Encoder:       encoder,
		EmbeddingRate: cfg.IngestEmbeddingRateLimit,
		SkipAuthorID:  botUserID,
		Metrics:       metrics.Ingest,
		Logger:        logger,
	})

	summary, err := ingestor.Run(ctx)
	if err != nil {
		slog.Error("Ingestion failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Ingestion complete",
		"channels", summary.Channels,
		"scanned", summary.Scanned,
		"inserted", summary.Inserted,
		"duplicate", summary.Duplicate,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
}

func setupLogging(level string) {
	var logLevel slog.Level

	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

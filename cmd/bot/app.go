package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SEPPAN-hub/aikomon/internal/api/handlers"
	"github.com/SEPPAN-hub/aikomon/internal/api/middleware"
	"github.com/SEPPAN-hub/aikomon/internal/config"
	"github.com/SEPPAN-hub/aikomon/internal/observability"
	"github.com/SEPPAN-hub/aikomon/internal/openai"
	"github.com/SEPPAN-hub/aikomon/internal/repository"
	"github.com/SEPPAN-hub/aikomon/internal/service"
	"github.com/SEPPAN-hub/aikomon/internal/slack"
	"github.com/SEPPAN-hub/aikomon/pkg/cache"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg           *config.Config
	db            *pgxpool.Pool
	server        *http.Server
	events        *handlers.EventsHandler
	meterProvider observability.MeterProviderShutdown
}

const queryEmbeddingCacheSize = 1000

// maxEventBodyBytes caps inbound Slack event payloads; real events are a few KB.
const maxEventBodyBytes = 1 << 20

// NewApp builds and wires all components. It does not start the HTTP server;
// call Run to start and block until shutdown or failure.
func NewApp(cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	meterProvider, metricsHandler, metrics, err := observability.NewMeterProvider("aikomon")
	if err != nil {
		return nil, fmt.Errorf("create meter provider: %w", err)
	}

	// Install RequestIDHandler so request_id appears in logs for the whole pipeline.
	slog.SetDefault(slog.New(observability.NewRequestIDHandler(slog.Default().Handler())))

	logger := slog.Default()

	slackClient := slack.NewClient(cfg.SlackBotToken, logger)

	embeddingClient := openai.NewClient(cfg.OpenAIAPIKey,
		openai.WithModel(cfg.EmbeddingModel),
		openai.WithDimensions(cfg.EmbeddingDimensions),
	)
	chatClient := openai.NewChatClient(cfg.OpenAIAPIKey,
		openai.WithChatModel(cfg.ChatModel),
	)

	queryCache, err := cache.NewLoaderCache[[]float32](queryEmbeddingCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create query embedding cache: %w", err)
	}

	encoder := service.NewEncoder(service.EncoderParams{
		Client:       embeddingClient,
		Dimensions:   cfg.EmbeddingDimensions,
		QueryCache:   queryCache,
		CacheMetrics: metrics.Cache,
		Logger:       logger,
	})

	recordsRepo := repository.NewMessageRecordsRepository(db, cfg.EmbeddingDimensions, logger)

	conversations := service.NewConversationStore(cfg.ConversationMaxTurns, cfg.ConversationRetainTurns)

	answers := service.NewAnswerService(service.AnswerServiceParams{
		Completion:    chatClient,
		Conversations: conversations,
		HistoryWindow: cfg.HistoryWindow,
		Metrics:       metrics.Generation,
		Logger:        logger,
	})

	mentions := service.NewMentionService(service.MentionServiceParams{
		Encoder:       encoder,
		Corpus:        recordsRepo,
		Answers:       answers,
		TopK:          cfg.SearchTopK,
		MinSimilarity: cfg.SearchMinSimilarity,
		Metrics:       metrics.Pipeline,
		Logger:        logger,
	})

	eventsHandler := handlers.NewEventsHandler(cfg.SlackSigningSecret, mentions, slackClient, logger)
	healthHandler := handlers.NewHealthHandler()

	server := newHTTPServer(cfg, eventsHandler, healthHandler, metricsHandler)

	return &App{
		cfg:           cfg,
		db:            db,
		server:        server,
		events:        eventsHandler,
		meterProvider: meterProvider,
	}, nil
}

// newHTTPServer builds the HTTP server and mux. Handler chain:
// RequestID -> Logging -> MaxBody so access logs carry the request_id.
func newHTTPServer(
	cfg *config.Config,
	events *handlers.EventsHandler,
	health *handlers.HealthHandler,
	metricsHandler http.Handler,
) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /slack/events", events.Events)
	mux.HandleFunc("GET /health", health.Check)
	mux.Handle("GET /metrics", metricsHandler)

	handler := middleware.MaxBody(maxEventBodyBytes)(mux)
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)

	const (
		readTimeout  = 15 * time.Second
		writeTimeout = 15 * time.Second
		idleTimeout  = 60 * time.Second
	)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled (e.g. signal)
// or the server fails. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Shutdown stops the HTTP server, drains in-flight mention handlers, then
// stops the meter provider. Call after Run returns.
func (a *App) Shutdown(ctx context.Context) error {
	if err := a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if mpErr := a.meterProvider.Shutdown(ctx); mpErr != nil {
			slog.Error("shutdown meter provider after server error", "error", mpErr)
		}

		return fmt.Errorf("server shutdown: %w", err)
	}

	// Events acked before shutdown still owe the user a reply.
	if err := a.events.Drain(ctx); err != nil {
		slog.Error("shutdown: in-flight mention handlers not drained", "error", err)
	}

	if err := a.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("meter provider shutdown: %w", err)
	}

	return nil
}

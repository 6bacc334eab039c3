package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/SEPPAN-hub/aikomon/internal/api/response"
	"github.com/SEPPAN-hub/aikomon/internal/models"
	"github.com/SEPPAN-hub/aikomon/internal/observability"
	botslack "github.com/SEPPAN-hub/aikomon/internal/slack"
)

// MentionHandler runs the retrieval/answer pipeline for one mention.
type MentionHandler interface {
	HandleMention(ctx context.Context, conversationKey, queryText string) string
}

// ReplySink posts a threaded reply back to the chat platform.
type ReplySink interface {
	PostReply(ctx context.Context, channelID, threadTS, text string) error
}

// panicFallback is posted when mention handling panics; no event may be dropped silently.
const panicFallback = "Sorry, an unexpected error occurred while handling your message."

// defaultHandleTimeout bounds one detached mention-handling unit (two provider
// calls plus a corpus scan).
const defaultHandleTimeout = 60 * time.Second

// EventsHandler handles POST /slack/events: signature verification, the URL
// verification challenge, and app_mention dispatch. Slack requires an ack
// within 3 seconds, so mention handling runs detached after the ack.
type EventsHandler struct {
	signingSecret string
	mentions      MentionHandler
	replies       ReplySink
	handleTimeout time.Duration
	logger        *slog.Logger

	// inflight tracks detached mention handlers so shutdown can drain them.
	inflight sync.WaitGroup
}

// NewEventsHandler creates an events handler.
func NewEventsHandler(signingSecret string, mentions MentionHandler, replies ReplySink, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &EventsHandler{
		signingSecret: signingSecret,
		mentions:      mentions,
		replies:       replies,
		handleTimeout: defaultHandleTimeout,
		logger:        logger,
	}
}

// Events handles POST /slack/events.
func (h *EventsHandler) Events(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.RespondBadRequest(w, "Failed to read request body")

		return
	}

	if err := h.verifySignature(r.Header, body); err != nil {
		h.logger.WarnContext(r.Context(), "rejected event with bad signature", "error", err)
		response.RespondUnauthorized(w, "Invalid request signature")

		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		response.RespondBadRequest(w, "Invalid event payload")

		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		// The challenge must be echoed back verbatim as the sole response.
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			response.RespondBadRequest(w, "Invalid challenge payload")

			return
		}

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)

		if _, err := w.Write([]byte(challenge.Challenge)); err != nil {
			h.logger.ErrorContext(r.Context(), "failed to write challenge response", "error", err)
		}

	case slackevents.CallbackEvent:
		if mention, ok := event.InnerEvent.Data.(*slackevents.AppMentionEvent); ok {
			// Ack before handling; Slack retries events not acked within 3s.
			h.inflight.Add(1)

			go func(ctx context.Context) {
				defer h.inflight.Done()
				h.handleMention(ctx, mention)
			}(h.detachedContext(r.Context()))
		}

		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusOK)
	}
}

// Drain blocks until every in-flight mention handler has finished or ctx
// expires. Called during shutdown so accepted events are not dropped
// mid-pipeline.
func (h *EventsHandler) Drain(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		h.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// verifySignature checks the Slack signing-secret signature over the raw body.
func (h *EventsHandler) verifySignature(header http.Header, body []byte) error {
	verifier, err := slackapi.NewSecretsVerifier(header, h.signingSecret)
	if err != nil {
		return err
	}

	if _, err := verifier.Write(body); err != nil {
		return err
	}

	return verifier.Ensure()
}

// detachedContext carries the request ID past the ack so the pipeline's logs
// still correlate with the inbound event.
func (h *EventsHandler) detachedContext(reqCtx context.Context) context.Context {
	ctx := context.Background()
	if id, ok := reqCtx.Value(observability.RequestIDKey).(string); ok && id != "" {
		ctx = context.WithValue(ctx, observability.RequestIDKey, id)
	}

	return ctx
}

// handleMention runs the pipeline for one mention and posts the reply, threaded
// under the mention's thread root. Any panic is recovered into a user-visible
// error reply so no event is silently dropped.
func (h *EventsHandler) handleMention(ctx context.Context, mention *slackevents.AppMentionEvent) {
	ctx, cancel := context.WithTimeout(ctx, h.handleTimeout)
	defer cancel()

	threadTS := mention.ThreadTimeStamp
	if threadTS == "" {
		threadTS = mention.TimeStamp
	}

	defer func() {
		if rec := recover(); rec != nil {
			h.logger.ErrorContext(ctx, "panic while handling mention",
				"panic", rec, "channel_id", mention.Channel)

			h.postReply(ctx, mention, threadTS, panicFallback)
		}
	}()

	key := models.ConversationKey(mention.Channel, threadTS)
	query := botslack.CleanMentionText(mention.Text)

	h.logger.InfoContext(ctx, "handling mention",
		"channel_id", mention.Channel, "author_id", mention.User, "conversation_key", key)

	answer := h.mentions.HandleMention(ctx, key, query)
	h.postReply(ctx, mention, threadTS, answer)
}

func (h *EventsHandler) postReply(ctx context.Context, mention *slackevents.AppMentionEvent, threadTS, text string) {
	reply := text
	if mention.User != "" {
		reply = "<@" + mention.User + "> " + text
	}

	if err := h.replies.PostReply(ctx, mention.Channel, threadTS, reply); err != nil {
		h.logger.ErrorContext(ctx, "failed to post reply",
			"error", err, "channel_id", mention.Channel)
	}
}

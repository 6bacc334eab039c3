// Package slack wraps the Slack Web API: the threaded reply sink for the bot
// and the channel history source for ingestion.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	slackapi "github.com/slack-go/slack"
)

// mentionPrefix matches one or more leading user-mention tokens (e.g. "<@U12345> ").
var mentionPrefix = regexp.MustCompile(`^(\s*<@[^>]+>\s*)+`)

// SourceMessage is one message fetched from the channel history API, with the
// source payload preserved for storage.
type SourceMessage struct {
	ChannelID string
	TS        string
	Text      string
	AuthorID  string
	Raw       json.RawMessage
}

// Client calls the Slack Web API with a retrying HTTP client.
type Client struct {
	api    *slackapi.Client
	logger *slog.Logger
}

// NewClient creates a Slack client authenticated with the bot token. Transient
// HTTP failures are retried by the underlying client; Slack API errors are not.
func NewClient(botToken string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 3
	httpClient.Logger = nil

	api := slackapi.New(botToken, slackapi.OptionHTTPClient(httpClient.StandardClient()))

	return &Client{api: api, logger: logger}
}

// BotUserID returns the authenticated bot's user ID (used to strip the mention
// token from inbound queries).
func (c *Client) BotUserID(ctx context.Context) (string, error) {
	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("slack auth test: %w", err)
	}

	return resp.UserID, nil
}

// PostReply posts text to the channel, threaded under threadTS so the visible
// thread matches the conversation key.
func (c *Client) PostReply(ctx context.Context, channelID, threadTS, text string) error {
	_, _, err := c.api.PostMessageContext(ctx, channelID,
		slackapi.MsgOptionText(text, false),
		slackapi.MsgOptionTS(threadTS),
	)
	if err != nil {
		return fmt.Errorf("slack post message: %w", err)
	}

	return nil
}

// ListChannelIDs returns the IDs of all non-archived channels the bot can see.
func (c *Client) ListChannelIDs(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		cursor string
	)

	for {
		channels, next, err := c.api.GetConversationsContext(ctx, &slackapi.GetConversationsParameters{
			ExcludeArchived: true,
			Limit:           1000,
			Types:           []string{"public_channel"},
			Cursor:          cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("slack list conversations: %w", err)
		}

		for _, ch := range channels {
			ids = append(ids, ch.ID)
		}

		if next == "" {
			return ids, nil
		}

		cursor = next
	}
}

// ChannelHistory returns the channel's message history, oldest page last as the
// API delivers it. Non-message items and empty texts are filtered out here so
// ingestion only sees embeddable messages.
func (c *Client) ChannelHistory(ctx context.Context, channelID string) ([]SourceMessage, error) {
	var (
		out    []SourceMessage
		cursor string
	)

	for {
		resp, err := c.api.GetConversationHistoryContext(ctx, &slackapi.GetConversationHistoryParameters{
			ChannelID: channelID,
			Limit:     1000,
			Cursor:    cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("slack conversation history: %w", err)
		}

		for i := range resp.Messages {
			msg := &resp.Messages[i]
			if msg.Type != "message" || strings.TrimSpace(msg.Text) == "" {
				continue
			}

			raw, err := json.Marshal(msg)
			if err != nil {
				c.logger.Warn("failed to marshal source message, storing without payload",
					"channel_id", channelID, "ts", msg.Timestamp, "error", err)

				raw = nil
			}

			out = append(out, SourceMessage{
				ChannelID: channelID,
				TS:        msg.Timestamp,
				Text:      msg.Text,
				AuthorID:  msg.User,
				Raw:       raw,
			})
		}

		if !resp.HasMore || resp.ResponseMetaData.NextCursor == "" {
			return out, nil
		}

		cursor = resp.ResponseMetaData.NextCursor
	}
}

// CleanMentionText strips the leading bot-mention token(s) from an app_mention
// text so only the actual question is embedded.
func CleanMentionText(text string) string {
	return strings.TrimSpace(mentionPrefix.ReplaceAllString(text, ""))
}

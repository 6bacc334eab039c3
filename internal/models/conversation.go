package models

import "time"

// Role identifies who produced a conversation turn.
type Role string

// Conversation turn roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one turn in a threaded conversation. Immutable once created.
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationKey derives the key grouping turns that belong to one Slack thread.
// threadTS is the thread root timestamp; callers pass the message's own ts for
// unthreaded mentions so each top-level mention starts its own conversation.
func ConversationKey(channelID, threadTS string) string {
	return channelID + ":" + threadTS
}

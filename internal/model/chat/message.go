package chat

import "time"

// Roles a transcript entry can carry. The widget only renders these two.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// Message is one turn of the conversation. Entries are immutable once
// appended; the transcript is an append-only ordered sequence and is
// never pruned within a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"`
	Text           string    `json:"text"`
	Mood           *float64  `json:"mood,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

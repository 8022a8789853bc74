package entities

import (
	"time"

	"github.com/google/uuid"
)

const (
	SenderUser  = "user"
	SenderBot   = "bot"
	SenderAgent = "agent"
)

// Message is a single turn in a conversation. Immutable once created;
// ordered by Timestamp within the conversation.
type Message struct {
	ID             uuid.UUID              `json:"id"`
	ConversationID uuid.UUID              `json:"conversation_id"`
	SenderType     string                 `json:"sender_type"` // user | bot | agent
	Content        string                 `json:"content"`
	Timestamp      time.Time              `json:"timestamp"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

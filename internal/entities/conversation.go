package entities

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a bounded session between one EndUser and a business on
// one channel. At most one active conversation per (end_user, business) is
// treated as current; expiry is a query-time window on started_at, never a
// background sweep.
type Conversation struct {
	ID         uuid.UUID              `json:"id"`
	EndUserID  uuid.UUID              `json:"end_user_id"`
	BusinessID uuid.UUID              `json:"business_id"`
	Channel    string                 `json:"channel"`
	StartedAt  time.Time              `json:"started_at"`
	EndedAt    *time.Time             `json:"ended_at,omitempty"`
	IsActive   bool                   `json:"is_active"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

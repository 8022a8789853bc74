package entities

import "github.com/google/uuid"

// Channel names as they arrive from the transports.
const (
	ChannelWebSocket = "websocket"
	ChannelWhatsApp  = "whatsapp"
	ChannelTelegram  = "telegram"
	ChannelFacebook  = "facebook"
	ChannelInstagram = "instagram"
	ChannelSMS       = "sms"
)

// EndUser is a human on one channel for one business.
// (business_id, channel, external_id) is unique.
type EndUser struct {
	ID          uuid.UUID              `json:"id"`
	BusinessID  uuid.UUID              `json:"business_id"`
	ExternalID  string                 `json:"external_id"` // channel-native id, possibly channel-prefixed
	Channel     string                 `json:"channel"`
	Name        string                 `json:"name,omitempty"`
	PhoneNumber string                 `json:"phone_number,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// NormalizeMetadata collapses an empty map to nil so "no metadata" has a
// single representation in storage and over the wire.
func NormalizeMetadata(m map[string]interface{}) map[string]interface{} {
	if len(m) == 0 {
		return nil
	}
	return m
}

package http

import (
	"strings"
	"unicode/utf8"

	"omnichat/internal/entities"
)

// Input validation constants
const (
	MaxContentLength    = 4000
	MaxExternalIDLength = 255
	MaxUsernameLength   = 50
)

var knownChannels = map[string]bool{
	entities.ChannelWebSocket: true,
	entities.ChannelWhatsApp:  true,
	entities.ChannelTelegram:  true,
	entities.ChannelFacebook:  true,
	entities.ChannelInstagram: true,
	entities.ChannelSMS:       true,
}

// ValidChannel checks the channel name against the transports we speak.
func ValidChannel(s string) bool {
	return knownChannels[strings.ToLower(strings.TrimSpace(s))]
}

// ValidExternalID rejects empty or oversized channel-native ids.
func ValidExternalID(s string) bool {
	return s != "" && len(s) <= MaxExternalIDLength
}

// ValidContent bounds the message body to what the messages table stores.
func ValidContent(s string) bool {
	return s != "" && len(s) <= MaxContentLength
}

// ValidUsername checks a management account name (alphanumeric plus _ and -).
func ValidUsername(s string) bool {
	if s == "" || len(s) > MaxUsernameLength {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// SanitizeString removes null bytes and invalid UTF-8
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")

	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r != utf8.RuneError {
				v = append(v, r)
			}
		}
		s = string(v)
	}
	return s
}

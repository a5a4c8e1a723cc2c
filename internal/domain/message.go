package domain

import "time"

// Platform identifies an external chat service. Each school runs its own
// bot on one or more platforms, each with its own credential.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformBale     Platform = "bale"
)

// ParsePlatform maps a webhook path segment to a known platform.
func ParsePlatform(s string) (Platform, bool) {
	switch Platform(s) {
	case PlatformTelegram:
		return PlatformTelegram, true
	case PlatformBale:
		return PlatformBale, true
	}
	return "", false
}

// InboundMessage is one normalized chat update. It is constructed once per
// webhook call and discarded after processing.
type InboundMessage struct {
	Platform       Platform
	TenantHint     string // school ID carried by the webhook URL
	ExternalChatID string
	RawText        string
	ReceivedAt     time.Time
}

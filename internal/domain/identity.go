package domain

import "context"

// ModelPreference selects cloud or on-premise inference for a user's queries.
type ModelPreference string

const (
	ModelCloud ModelPreference = "cloud"
	ModelLocal ModelPreference = "local"
)

// ResolveModelPreference applies the default policy: anything other than an
// explicit "local" resolves to cloud.
func ResolveModelPreference(s string) ModelPreference {
	if ModelPreference(s) == ModelLocal {
		return ModelLocal
	}
	return ModelCloud
}

// ChatBinding associates an external chat identity with an internal user and
// tenant. Bindings are created by the dashboards; the relay only reads them.
// At most one active binding exists per (platform, external chat ID).
type ChatBinding struct {
	Platform       Platform
	ExternalChatID string
	UserID         string
	SchoolID       string
	Role           string
	ModelPref      string
}

// BotCredential is the per-tenant bot token for one platform. At most one
// credential exists per (school, platform).
type BotCredential struct {
	SchoolID string
	Platform Platform
	Token    string
}

// IdentityResolver maps a chat back to its internal user and school.
// A nil binding with nil error means no binding exists. That is an
// expected, frequent outcome for unregistered senders, not a fault.
type IdentityResolver interface {
	Resolve(ctx context.Context, platform Platform, externalChatID string) (*ChatBinding, error)
}

// CredentialStore looks up the bot token for a school on a platform.
// An empty token with nil error means the tenant has not configured a bot
// for that platform.
type CredentialStore interface {
	GetToken(ctx context.Context, schoolID string, platform Platform) (string, error)
}

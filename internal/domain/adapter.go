package domain

import "context"

// PlatformAdapter translates between one platform's wire format and the
// normalized message types, and performs outbound API calls.
//
// Decode is pure: the same payload always yields the same message, and no
// side effects occur. TenantHint and ReceivedAt are stamped by the caller.
// Send calls perform one outbound request each with no internal retries;
// retry policy, if any, belongs to the orchestrator.
type PlatformAdapter interface {
	Name() Platform
	Decode(raw []byte) (InboundMessage, error)
	SendTyping(ctx context.Context, token, chatID string) error
	SendText(ctx context.Context, token, chatID, text string) error
}

package domain

import (
	"context"
	"time"
)

// Audit reasons recorded for operator follow-up.
const (
	ReasonUnmatchedUser   = "unmatched user"
	ReasonMissingBotToken = "missing bot token"
	ReasonMalformedUpdate = "malformed update"
	ReasonEmptyUpdate     = "empty update"
	ReasonAIFailure       = "ai failure"
)

// InteractionLogEntry is one durable record of an unmatched or failed
// interaction. Entries are append-only: the relay never mutates or deletes
// them.
type InteractionLogEntry struct {
	ID             string
	Platform       Platform
	ExternalChatID string
	RawText        string
	Reason         string
	Timestamp      time.Time
}

// Auditor records interaction log entries. Recording is best-effort: a
// failure is logged locally and never blocks or fails the relay.
type Auditor interface {
	Record(ctx context.Context, entry InteractionLogEntry)
}

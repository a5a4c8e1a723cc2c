package domain

import (
	"errors"
	"fmt"
)

// Decode failures. Both are non-fatal to the webhook: the update is dropped,
// audited, and the platform still gets a success response.
var (
	ErrMalformedUpdate = errors.New("malformed update payload")
	ErrEmptyUpdate     = errors.New("update carries no text or chat id")
)

// SendErrorKind classifies a failed outbound call to a platform API.
type SendErrorKind string

const (
	SendUnauthorized SendErrorKind = "unauthorized"
	SendRateLimited  SendErrorKind = "rate_limited"
	SendNetwork      SendErrorKind = "network"
)

// SendError is a platform API send failure. It is logged and swallowed by
// the orchestrator, never propagated to the webhook response.
type SendError struct {
	Kind   SendErrorKind
	Status int
	Msg    string
}

func (e *SendError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("platform send %s (HTTP %d): %s", e.Kind, e.Status, e.Msg)
	}
	return fmt.Sprintf("platform send %s: %s", e.Kind, e.Msg)
}

// AIErrorKind classifies a failed AI query.
type AIErrorKind string

const (
	AIUnreachable     AIErrorKind = "unreachable"
	AITimeout         AIErrorKind = "timeout"
	AIInvalidResponse AIErrorKind = "invalid_response"
)

// AIError is surfaced on the answer stream as its error marker. It is
// recoverable at the orchestrator level: one fallback message to the user,
// never fatal to the process.
type AIError struct {
	Kind AIErrorKind
	Msg  string
}

func (e *AIError) Error() string {
	return fmt.Sprintf("ai %s: %s", e.Kind, e.Msg)
}

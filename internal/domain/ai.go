package domain

import "context"

// AIQuery is one question to the AI backend on behalf of a resolved user.
// It is request-scoped and owned by the dispatcher for its lifetime.
type AIQuery struct {
	UserID   string
	SchoolID string
	Role     string
	Text     string
	Model    ModelPreference
}

// StreamChunkType classifies one element of an AI answer stream.
type StreamChunkType string

const (
	ChunkText  StreamChunkType = "text"
	ChunkDone  StreamChunkType = "done"
	ChunkError StreamChunkType = "error"
)

// StreamChunk is one element of the lazy, finite answer stream. The stream
// is terminated by exactly one done or error chunk, after which the channel
// is closed. It is consumed exactly once and cannot be restarted.
type StreamChunk struct {
	Type    StreamChunkType
	Content string
	Err     *AIError
}

// Dispatcher issues streaming queries to the AI backend. The returned channel
// begins yielding text chunks before the full answer is known.
type Dispatcher interface {
	Query(ctx context.Context, q AIQuery) <-chan StreamChunk
	Healthy(ctx context.Context) error
}

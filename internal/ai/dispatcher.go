// Package ai dispatches resolved user questions to the AI backend and turns
// the backend's incremental answer into a chunk stream the orchestrator can
// relay while the model is still generating.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"botrelay/internal/domain"
)

const (
	defaultIdleTimeout = 50 * time.Second
	streamBuffer       = 16
)

// Dispatcher implements domain.Dispatcher against the streaming answer API.
// Cloud and local inference use the same protocol on different base URLs;
// which one handles a query is decided by the user's stored preference,
// passed through untouched.
type Dispatcher struct {
	cloudBase   string
	localBase   string
	apiKey      string
	client      *http.Client
	idleTimeout time.Duration
	logger      *slog.Logger
}

type Config struct {
	CloudBase   string
	LocalBase   string
	APIKey      string
	Client      *http.Client
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

func New(cfg Config) *Dispatcher {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Client == nil {
		// No overall client timeout: answers stream for as long as chunks
		// keep arriving. The idle timer is the cutoff.
		cfg.Client = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		cloudBase:   strings.TrimRight(cfg.CloudBase, "/"),
		localBase:   strings.TrimRight(cfg.LocalBase, "/"),
		apiKey:      cfg.APIKey,
		client:      cfg.Client,
		idleTimeout: cfg.IdleTimeout,
		logger:      cfg.Logger,
	}
}

// aiRequest matches the backend's /api/chat request body.
type aiRequest struct {
	UserID   string `json:"user_id"`
	SchoolID string `json:"school_id"`
	Role     string `json:"role"`
	Text     string `json:"text"`
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
}

// aiStreamLine is one NDJSON line of the streamed answer.
type aiStreamLine struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
}

// Query issues the backend call and returns the answer stream. The stream is
// finite and consumed once: text chunks, then exactly one done or error
// chunk, then the channel closes. Cancelling ctx closes the stream without
// an error marker; partial output already relayed stands.
func (d *Dispatcher) Query(ctx context.Context, q domain.AIQuery) <-chan domain.StreamChunk {
	out := make(chan domain.StreamChunk, streamBuffer)
	go d.run(ctx, q, out)
	return out
}

func (d *Dispatcher) run(ctx context.Context, q domain.AIQuery, out chan<- domain.StreamChunk) {
	defer close(out)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	base := d.cloudBase
	if q.Model == domain.ModelLocal && d.localBase != "" {
		base = d.localBase
	}

	body, err := json.Marshal(aiRequest{
		UserID:   q.UserID,
		SchoolID: q.SchoolID,
		Role:     q.Role,
		Text:     q.Text,
		Model:    string(q.Model),
		Stream:   true,
	})
	if err != nil {
		d.fail(out, domain.AIInvalidResponse, fmt.Sprintf("marshal query: %v", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/chat", bytes.NewReader(body))
	if err != nil {
		d.fail(out, domain.AIUnreachable, err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		d.fail(out, domain.AIUnreachable, err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		d.fail(out, domain.AIUnreachable, fmt.Sprintf("backend returned %d: %s", resp.StatusCode, respBody))
		return
	}

	d.readStream(ctx, cancel, resp.Body, out, start, q)
}

// readStream consumes NDJSON lines and forwards text chunks as they arrive.
// The idle timer restarts on every line; when it fires before the next line
// the stream ends with a timeout marker and the request is cancelled.
func (d *Dispatcher) readStream(ctx context.Context, cancel context.CancelFunc, body io.Reader, out chan<- domain.StreamChunk, start time.Time, q domain.AIQuery) {
	type lineResult struct {
		line aiStreamLine
		err  error
	}

	lineCh := make(chan lineResult)
	go func() {
		dec := json.NewDecoder(body)
		for {
			var ln aiStreamLine
			err := dec.Decode(&ln)
			select {
			case lineCh <- lineResult{line: ln, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil || ln.Done {
				return
			}
		}
	}()

	timer := time.NewTimer(d.idleTimeout)
	defer timer.Stop()

	sentText := false
	for {
		select {
		case <-ctx.Done():
			return

		case <-timer.C:
			cancel()
			d.logger.Warn("ai stream idle timeout",
				"user_id", q.UserID,
				"school_id", q.SchoolID,
				"after", time.Since(start),
			)
			d.fail(out, domain.AITimeout, fmt.Sprintf("no chunk within %s", d.idleTimeout))
			return

		case res := <-lineCh:
			if res.err != nil {
				if ctx.Err() != nil {
					return
				}
				if res.err == io.EOF && sentText {
					// Backend closed the stream without a done flag after
					// producing output; the answer is complete enough.
					d.done(out, start, q)
					return
				}
				d.fail(out, domain.AIInvalidResponse, res.err.Error())
				return
			}

			if res.line.Content != "" {
				sentText = true
				select {
				case out <- domain.StreamChunk{Type: domain.ChunkText, Content: res.line.Content}:
				case <-ctx.Done():
					return
				}
			}
			if res.line.Done {
				d.done(out, start, q)
				return
			}

			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(d.idleTimeout)
		}
	}
}

func (d *Dispatcher) done(out chan<- domain.StreamChunk, start time.Time, q domain.AIQuery) {
	d.logger.Debug("ai stream completed",
		"user_id", q.UserID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	out <- domain.StreamChunk{Type: domain.ChunkDone}
}

func (d *Dispatcher) fail(out chan<- domain.StreamChunk, kind domain.AIErrorKind, msg string) {
	out <- domain.StreamChunk{Type: domain.ChunkError, Err: &domain.AIError{Kind: kind, Msg: msg}}
}

// Healthy pings the cloud backend's liveness endpoint.
func (d *Dispatcher) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cloudBase+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("ai backend not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ai backend returned status %d", resp.StatusCode)
	}
	return nil
}

package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"botrelay/internal/domain"
)

// Telegram caps messages at 4096 chars; stay under it so multi-byte text
// split at a rune boundary still fits.
const maxMessageLen = 4000

// botAPI issues calls against a Telegram-style Bot API host. Both platforms
// speak this protocol; the token is supplied per call because each school
// owns its own bot.
type botAPI struct {
	apiBase string
	client  *http.Client
	logger  *slog.Logger
}

// call performs one POST to {apiBase}/bot{token}/{method}. No retries: a
// failed send is classified and returned for the orchestrator to decide.
func (b *botAPI) call(ctx context.Context, token, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &domain.SendError{Kind: domain.SendNetwork, Msg: fmt.Sprintf("marshal %s payload: %v", method, err)}
	}

	url := fmt.Sprintf("%s/bot%s/%s", b.apiBase, token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &domain.SendError{Kind: domain.SendNetwork, Msg: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return &domain.SendError{Kind: domain.SendNetwork, Msg: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return classifyStatus(resp.StatusCode, string(respBody))
}

func classifyStatus(status int, body string) *domain.SendError {
	kind := domain.SendNetwork
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = domain.SendUnauthorized
	case status == http.StatusTooManyRequests:
		kind = domain.SendRateLimited
	}
	return &domain.SendError{Kind: kind, Status: status, Msg: body}
}

// sendText delivers text to a chat, splitting long content at the message
// limit. Chunks are sent in order; the first failure aborts the rest.
func (b *botAPI) sendText(ctx context.Context, token, chatID, text string) error {
	if text == "" {
		return nil
	}
	for _, chunk := range splitMessage(text, maxMessageLen) {
		err := b.call(ctx, token, "sendMessage", map[string]any{
			"chat_id": chatID,
			"text":    chunk,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *botAPI) sendTyping(ctx context.Context, token, chatID string) error {
	return b.call(ctx, token, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  "typing",
	})
}

// splitMessage cuts text into chunks of at most maxLen bytes, preferring to
// break at a newline when one falls in the second half of the window. A
// newline chosen as the cut point is consumed, not carried into the next
// chunk. Rune boundaries are respected so multi-byte text never splits
// mid-character.
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > maxLen {
		if nl := strings.LastIndex(text[:maxLen], "\n"); nl >= maxLen/2 {
			chunks = append(chunks, text[:nl])
			text = text[nl+1:]
			continue
		}
		cutAt := maxLen
		for cutAt > 0 && !isRuneStart(text[cutAt]) {
			cutAt--
		}
		if cutAt == 0 {
			cutAt = maxLen
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

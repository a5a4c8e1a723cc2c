package platform

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"botrelay/internal/domain"
)

const baleDefaultAPIBase = "https://tapi.bale.ai"

// Bale implements domain.PlatformAdapter for Bale bots. Bale exposes a
// Telegram-compatible Bot API, but its payloads are decoded with local
// structs so protocol drift on either side stays contained.
type Bale struct {
	api botAPI
}

type BaleConfig struct {
	APIBase string
	Client  *http.Client
	Logger  *slog.Logger
}

func NewBale(cfg BaleConfig) *Bale {
	if cfg.APIBase == "" {
		cfg.APIBase = baleDefaultAPIBase
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient()
	}
	return &Bale{
		api: botAPI{
			apiBase: strings.TrimRight(cfg.APIBase, "/"),
			client:  cfg.Client,
			logger:  cfg.Logger,
		},
	}
}

func (b *Bale) Name() domain.Platform { return domain.PlatformBale }

type baleUpdate struct {
	UpdateID int64        `json:"update_id"`
	Message  *baleMessage `json:"message"`
}

type baleMessage struct {
	MessageID int64     `json:"message_id"`
	Date      int64     `json:"date"`
	Text      string    `json:"text"`
	Chat      *baleChat `json:"chat"`
}

type baleChat struct {
	ID int64 `json:"id"`
}

func (b *Bale) Decode(raw []byte) (domain.InboundMessage, error) {
	var update baleUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		return domain.InboundMessage{}, domain.ErrMalformedUpdate
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return domain.InboundMessage{}, domain.ErrEmptyUpdate
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return domain.InboundMessage{}, domain.ErrEmptyUpdate
	}

	var receivedAt time.Time
	if msg.Date > 0 {
		receivedAt = time.Unix(msg.Date, 0)
	}

	return domain.InboundMessage{
		Platform:       domain.PlatformBale,
		ExternalChatID: strconv.FormatInt(msg.Chat.ID, 10),
		RawText:        text,
		ReceivedAt:     receivedAt,
	}, nil
}

func (b *Bale) SendTyping(ctx context.Context, token, chatID string) error {
	return b.api.sendTyping(ctx, token, chatID)
}

func (b *Bale) SendText(ctx context.Context, token, chatID, text string) error {
	return b.api.sendText(ctx, token, chatID, text)
}

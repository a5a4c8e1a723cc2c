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

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramDefaultAPIBase = "https://api.telegram.org"

// Telegram implements domain.PlatformAdapter for Telegram bots. Updates
// arrive in webhook mode, so decoding works on the native Update payload;
// sends go straight to the Bot API with the per-school token.
type Telegram struct {
	api botAPI
}

type TelegramConfig struct {
	APIBase string
	Client  *http.Client
	Logger  *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.APIBase == "" {
		cfg.APIBase = telegramDefaultAPIBase
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient()
	}
	return &Telegram{
		api: botAPI{
			apiBase: strings.TrimRight(cfg.APIBase, "/"),
			client:  cfg.Client,
			logger:  cfg.Logger,
		},
	}
}

func (t *Telegram) Name() domain.Platform { return domain.PlatformTelegram }

// Decode parses a native Telegram update. Edited messages and non-text
// updates (stickers, photos, joins) carry no relayable text and are
// reported as empty.
func (t *Telegram) Decode(raw []byte) (domain.InboundMessage, error) {
	var update tgbotapi.Update
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
		receivedAt = time.Unix(int64(msg.Date), 0)
	}

	return domain.InboundMessage{
		Platform:       domain.PlatformTelegram,
		ExternalChatID: strconv.FormatInt(msg.Chat.ID, 10),
		RawText:        text,
		ReceivedAt:     receivedAt,
	}, nil
}

func (t *Telegram) SendTyping(ctx context.Context, token, chatID string) error {
	return t.api.sendTyping(ctx, token, chatID)
}

func (t *Telegram) SendText(ctx context.Context, token, chatID, text string) error {
	return t.api.sendText(ctx, token, chatID, text)
}

// Package audit keeps the durable trail of interactions the relay could not
// complete: unknown senders, tenants without a bot token, broken updates.
// Operators work through this log to register users or fix credentials.
package audit

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"botrelay/internal/domain"

	"github.com/google/uuid"
)

// Auditor appends interaction log entries. Append-only and best-effort: a
// write failure is logged and swallowed so the relay path never blocks on
// bookkeeping.
type Auditor struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(db *sql.DB, logger *slog.Logger) *Auditor {
	return &Auditor{db: db, logger: logger}
}

func (a *Auditor) Record(ctx context.Context, entry domain.InteractionLogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	_, err := a.db.ExecContext(ctx,
		`INSERT INTO interaction_log (id, platform, external_chat_id, raw_text, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.Platform), entry.ExternalChatID, entry.RawText, entry.Reason, entry.Timestamp,
	)
	if err != nil {
		a.logger.Error("interaction log write failed",
			"reason", entry.Reason,
			"platform", entry.Platform,
			"chat_id", entry.ExternalChatID,
			"err", err,
		)
		return
	}

	a.logger.Info("interaction recorded",
		"reason", entry.Reason,
		"platform", entry.Platform,
		"chat_id", entry.ExternalChatID,
	)
}

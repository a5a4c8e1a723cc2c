package identity

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"botrelay/internal/domain"

	_ "modernc.org/sqlite"
)

const defaultTokenTTL = 30 * time.Second

// Store is the relay's read side of the binding and credential tables.
// The dashboards own the rows; the relay only looks them up. Bot tokens are
// additionally cached in memory for a short TTL so webhook latency does not
// depend on the database on every message.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	tokenTTL time.Duration
	tokenMu  sync.RWMutex
	tokens   map[string]cachedToken
}

type cachedToken struct {
	token   string
	expires time.Time
}

type StoreConfig struct {
	DBPath   string
	TokenTTL time.Duration
	Logger   *slog.Logger
}

func Open(cfg StoreConfig) (*Store, error) {
	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}

	s := &Store{
		db:       db,
		logger:   cfg.Logger,
		tokenTTL: cfg.TokenTTL,
		tokens:   make(map[string]cachedToken),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_bindings (
		platform         TEXT NOT NULL,
		external_chat_id TEXT NOT NULL,
		user_id          TEXT NOT NULL,
		school_id        TEXT NOT NULL,
		role             TEXT NOT NULL DEFAULT 'student',
		model_pref       TEXT NOT NULL DEFAULT '',
		created_at       DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at       DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (platform, external_chat_id)
	);

	CREATE TABLE IF NOT EXISTS bot_credentials (
		school_id  TEXT NOT NULL,
		platform   TEXT NOT NULL,
		token      TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (school_id, platform)
	);

	CREATE TABLE IF NOT EXISTS interaction_log (
		id               TEXT PRIMARY KEY,
		platform         TEXT NOT NULL,
		external_chat_id TEXT NOT NULL,
		raw_text         TEXT,
		reason           TEXT NOT NULL,
		created_at       DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interaction_time ON interaction_log(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Resolve looks up the binding for a chat. A nil binding with nil error is
// the expected outcome for unregistered senders.
func (s *Store) Resolve(ctx context.Context, platform domain.Platform, externalChatID string) (*domain.ChatBinding, error) {
	var b domain.ChatBinding
	err := s.db.QueryRowContext(ctx,
		`SELECT platform, external_chat_id, user_id, school_id, role, model_pref
		 FROM chat_bindings WHERE platform = ? AND external_chat_id = ?`,
		string(platform), externalChatID,
	).Scan(&b.Platform, &b.ExternalChatID, &b.UserID, &b.SchoolID, &b.Role, &b.ModelPref)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetToken returns the bot token for a school on a platform, or empty when
// the tenant has not configured one. A miss is not an error.
func (s *Store) GetToken(ctx context.Context, schoolID string, platform domain.Platform) (string, error) {
	key := schoolID + ":" + string(platform)

	s.tokenMu.RLock()
	cached, ok := s.tokens[key]
	s.tokenMu.RUnlock()
	if ok && time.Now().Before(cached.expires) {
		return cached.token, nil
	}

	var token string
	err := s.db.QueryRowContext(ctx,
		`SELECT token FROM bot_credentials WHERE school_id = ? AND platform = ?`,
		schoolID, string(platform),
	).Scan(&token)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	s.tokenMu.Lock()
	s.tokens[key] = cachedToken{token: token, expires: time.Now().Add(s.tokenTTL)}
	s.tokenMu.Unlock()

	return token, nil
}

// DB exposes the underlying handle so the auditor can share the connection.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	return s.db.Close()
}

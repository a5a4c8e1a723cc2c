package audit

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"botrelay/internal/domain"
	"botrelay/internal/identity"
)

func testAuditor(t *testing.T) (*Auditor, *identity.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, err := identity.Open(identity.StoreConfig{
		DBPath: filepath.Join(t.TempDir(), "relay.db"),
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store.DB(), logger), store
}

func TestRecord_Appends(t *testing.T) {
	a, store := testAuditor(t)

	a.Record(context.Background(), domain.InteractionLogEntry{
		Platform:       domain.PlatformTelegram,
		ExternalChatID: "123",
		RawText:        "سلام",
		Reason:         domain.ReasonUnmatchedUser,
	})

	var count int
	var reason, id string
	row := store.DB().QueryRow(`SELECT COUNT(*) FROM interaction_log`)
	if err := row.Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	row = store.DB().QueryRow(`SELECT id, reason FROM interaction_log`)
	if err := row.Scan(&id, &reason); err != nil {
		t.Fatal(err)
	}
	if reason != domain.ReasonUnmatchedUser {
		t.Errorf("reason = %q", reason)
	}
	if id == "" {
		t.Error("entry should get a generated ID")
	}
}

func TestRecord_FailureDoesNotPanic(t *testing.T) {
	a, store := testAuditor(t)
	store.Close() // force write failures

	// Must log and swallow, never panic or propagate.
	a.Record(context.Background(), domain.InteractionLogEntry{
		Platform:       domain.PlatformBale,
		ExternalChatID: "9",
		Reason:         domain.ReasonMissingBotToken,
	})
}

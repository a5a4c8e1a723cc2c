package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"botrelay/internal/domain"
)

func TestBaleDecode_Valid(t *testing.T) {
	payload := `{"update_id": 7, "message": {"message_id": 1, "date": 1714000001, "text": "خوبی؟", "chat": {"id": -456}}}`

	b := NewBale(BaleConfig{Logger: testLogger()})
	msg, err := b.Decode([]byte(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Platform != domain.PlatformBale {
		t.Errorf("platform = %q", msg.Platform)
	}
	if msg.ExternalChatID != "-456" {
		t.Errorf("chat id = %q", msg.ExternalChatID)
	}
	if msg.RawText != "خوبی؟" {
		t.Errorf("text = %q", msg.RawText)
	}
}

func TestBaleDecode_Malformed(t *testing.T) {
	b := NewBale(BaleConfig{Logger: testLogger()})
	if _, err := b.Decode([]byte(`{"message": [}`)); !errors.Is(err, domain.ErrMalformedUpdate) {
		t.Errorf("err = %v, want ErrMalformedUpdate", err)
	}
}

func TestBaleDecode_Empty(t *testing.T) {
	b := NewBale(BaleConfig{Logger: testLogger()})
	if _, err := b.Decode([]byte(`{"update_id": 1}`)); !errors.Is(err, domain.ErrEmptyUpdate) {
		t.Errorf("err = %v, want ErrEmptyUpdate", err)
	}
}

func TestBaleSendText_TokenInPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	b := NewBale(BaleConfig{APIBase: srv.URL, Client: srv.Client(), Logger: testLogger()})
	if err := b.SendText(context.Background(), "bale-tok", "9", "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/botbale-tok/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestBaleSendText_LongMessageSplit(t *testing.T) {
	var calls atomic.Int64
	var texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		texts = append(texts, body["text"].(string))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	long := make([]byte, maxMessageLen*2+100)
	for i := range long {
		long[i] = 'a'
	}

	b := NewBale(BaleConfig{APIBase: srv.URL, Client: srv.Client(), Logger: testLogger()})
	if err := b.SendText(context.Background(), "tok", "1", string(long)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
	joined := ""
	for _, s := range texts {
		joined += s
	}
	if joined != string(long) {
		t.Error("concatenated chunks differ from original text")
	}
}

package platform

import "testing"

func TestSharedHTTPClient_SingleInstance(t *testing.T) {
	first := SharedHTTPClient()
	second := SharedHTTPClient()
	if first == nil {
		t.Fatal("nil client")
	}
	if first != second {
		t.Error("each call built a new client instead of reusing one pool")
	}
}

func TestSharedHTTPClient_DefaultForAdapters(t *testing.T) {
	tg := NewTelegram(TelegramConfig{Logger: testLogger()})
	bl := NewBale(BaleConfig{Logger: testLogger()})
	if tg.api.client != bl.api.client {
		t.Error("adapters with no explicit client should share the pool")
	}
	if tg.api.client != SharedHTTPClient() {
		t.Error("adapter default client is not the shared one")
	}
}

package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTelegramSend(t *testing.T) {
	var gotPath string
	var gotReq sendMessageRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	tg := NewTelegramWithBaseURL(ts.URL, "bot-token", "chat-1")

	if err := tg.Send(context.Background(), "✅ *NEW ORDER PAID*"); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	if gotPath != "/botbot-token/sendMessage" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotReq.ChatID != "chat-1" || gotReq.Text != "✅ *NEW ORDER PAID*" {
		t.Fatalf("unexpected request: %+v", gotReq)
	}
	if gotReq.ParseMode != "Markdown" {
		t.Fatalf("parse mode = %q", gotReq.ParseMode)
	}
}

func TestTelegramSend_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	tg := NewTelegramWithBaseURL(ts.URL, "bot-token", "chat-1")

	if err := tg.Send(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error for non-200 response")
	}
}

func TestTelegramSend_DisabledWithoutToken(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer ts.Close()

	tg := NewTelegramWithBaseURL(ts.URL, "", "chat-1")

	if err := tg.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("disabled notifier must be a no-op, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("disabled notifier must not call the API, got %d calls", calls)
	}
}

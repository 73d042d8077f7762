package slack

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPostSendsAttachment(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Fatalf("invalid webhook body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, time.Second, slog.Default())
	err := client.Post(context.Background(), Payload{
		Type:    "success",
		Title:   "Reativação aprovada",
		Message: "Conta reativada",
		Data:    map[string]any{"userId": "u1"},
	})
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}

	attachments, ok := received["attachments"].([]any)
	if !ok || len(attachments) != 1 {
		t.Fatalf("expected one attachment, got %v", received)
	}
	attachment := attachments[0].(map[string]any)
	if attachment["color"] != "#2eb886" {
		t.Fatalf("expected success color, got %v", attachment["color"])
	}
	if attachment["title"] != "Reativação aprovada" {
		t.Fatalf("unexpected title: %v", attachment["title"])
	}
}

func TestUnknownTypeFallsBackToNeutralColor(t *testing.T) {
	msg := buildWebhookMessage(Payload{Type: "mystery", Title: "t", Message: "m"})
	attachment := msg["attachments"].([]map[string]any)[0]
	if attachment["color"] != fallbackColor {
		t.Fatalf("expected fallback color, got %v", attachment["color"])
	}
}

func TestExplicitColorWins(t *testing.T) {
	msg := buildWebhookMessage(Payload{Type: "success", Color: "#123456"})
	attachment := msg["attachments"].([]map[string]any)[0]
	if attachment["color"] != "#123456" {
		t.Fatalf("expected explicit color, got %v", attachment["color"])
	}
}

func TestNilClientIsDisabled(t *testing.T) {
	var client *Client
	if err := client.Post(context.Background(), Payload{Type: "info"}); err != nil {
		t.Fatalf("nil client should be a no-op, got %v", err)
	}
	if New("", time.Second, nil) != nil {
		t.Fatal("empty webhook URL should yield nil client")
	}
}

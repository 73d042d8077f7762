package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Payload is the typed business-alert message. Unknown Type values are
// rendered with the neutral fallback color.
type Payload struct {
	Type    string         `json:"type"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Color   string         `json:"color,omitempty"`
}

var typeColors = map[string]string{
	"success": "#2eb886",
	"info":    "#439fe0",
	"warning": "#f2c744",
	"error":   "#d00000",
	"alert":   "#d00000",
}

const fallbackColor = "#9e9e9e"

type Client struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// New returns nil when webhookURL is empty; callers treat a nil client as
// alerts disabled.
func New(webhookURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if strings.TrimSpace(webhookURL) == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		webhookURL: strings.TrimRight(webhookURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("component", "slack_client")),
	}
}

func (c *Client) Post(ctx context.Context, payload Payload) error {
	if c == nil {
		return nil
	}

	body, err := json.Marshal(buildWebhookMessage(payload))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}

func buildWebhookMessage(payload Payload) map[string]any {
	color := payload.Color
	if color == "" {
		if mapped, ok := typeColors[strings.ToLower(payload.Type)]; ok {
			color = mapped
		} else {
			color = fallbackColor
		}
	}

	attachment := map[string]any{
		"color": color,
		"title": payload.Title,
		"text":  payload.Message,
		"ts":    time.Now().Unix(),
	}

	if len(payload.Data) > 0 {
		keys := make([]string, 0, len(payload.Data))
		for key := range payload.Data {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fields := make([]map[string]any, 0, len(keys))
		for _, key := range keys {
			fields = append(fields, map[string]any{
				"title": key,
				"value": fmt.Sprintf("%v", payload.Data[key]),
				"short": true,
			})
		}
		attachment["fields"] = fields
	}

	return map[string]any{"attachments": []map[string]any{attachment}}
}

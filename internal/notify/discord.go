// Package notify sends target state changes to a Discord webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/sourcequery/internal/events"
	"github.com/energizer-project/sourcequery/internal/util"
)

const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// DiscordNotifier posts embeds to a Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
	logger     zerolog.Logger
	now        func() time.Time
}

// NewDiscordNotifier creates a notifier for webhookURL.
func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     util.ComponentLogger("discord"),
		now:        time.Now,
	}
}

// Subscribe registers the notifier for online and offline transitions.
func (d *DiscordNotifier) Subscribe(bus *events.EventBus) {
	bus.Subscribe("discord", d.onStateChange, events.EventServerOnline, events.EventServerOffline)
}

func (d *DiscordNotifier) onStateChange(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.ServerStatePayload)
	if !ok {
		return nil
	}

	name := p.Target
	if name == "" {
		name = p.Address
	}

	if event.Type == events.EventServerOnline {
		return d.Send(ctx, name+" is online",
			fmt.Sprintf("%s answered again (was %s).", p.Address, p.Previous), LevelInfo)
	}
	return d.Send(ctx, name+" is offline",
		fmt.Sprintf("%s stopped answering queries.", p.Address), LevelError)
}

// Send posts a single embed. level picks the embed colour.
func (d *DiscordNotifier) Send(ctx context.Context, title, message, level string) error {
	var color int
	switch level {
	case LevelError:
		color = 0xFF0000
	case LevelWarning:
		color = 0xFFAA00
	default:
		color = 0x00FF00
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       title,
				"description": message,
				"color":       color,
				"timestamp":   d.now().UTC().Format(time.RFC3339),
				"footer": map[string]string{
					"text": "sourcequery",
				},
			},
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	d.logger.Debug().Str("title", title).Msg("Discord webhook notification sent")
	return nil
}

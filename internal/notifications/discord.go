package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/lukasbauer/kaskada/internal/voice"
)

// Discord is a simple Discord webhook notifier.
type Discord struct {
	webhookURL string
	logger     *log.Logger
	client     *http.Client
	sent       func() // test hook, called after each delivery attempt
}

// NewDiscord creates a new Discord notifier. If webhookURL is empty,
// notifications are silently skipped.
func NewDiscord(webhookURL string, logger *log.Logger) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		logger:     logger,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled returns true if the webhook is configured.
func (d *Discord) Enabled() bool {
	return d != nil && d.webhookURL != ""
}

// discordMessage is the payload for Discord webhook.
type discordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// send posts a message to Discord webhook asynchronously.
// Errors are logged but don't affect caller.
func (d *Discord) send(msg discordMessage) {
	if !d.Enabled() {
		return
	}

	go func() {
		if d.sent != nil {
			defer d.sent()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		body, err := json.Marshal(msg)
		if err != nil {
			d.logger.Printf("discord: failed to marshal message: %v", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", d.webhookURL, bytes.NewReader(body))
		if err != nil {
			d.logger.Printf("discord: failed to create request: %v", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			d.logger.Printf("discord: failed to send webhook: %v", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			d.logger.Printf("discord: webhook returned status %d", resp.StatusCode)
		}
	}()
}

// NotifyTurnFailed reports a voice turn that ended with an error.
func (d *Discord) NotifyTurnFailed(turnID, conversationID string, stats voice.Stats, err error) {
	fields := []embedField{
		{Name: "Turn", Value: fmt.Sprintf("`%s`", turnID), Inline: true},
		{Name: "Conversation", Value: fmt.Sprintf("`%s`", conversationID), Inline: true},
		{Name: "Sentences", Value: fmt.Sprintf("%d (%d failed)", stats.Sentences, stats.FailedSentences), Inline: true},
	}
	if stats.UserText != "" {
		fields = append(fields, embedField{Name: "User said", Value: truncate(stats.UserText, 200)})
	}
	d.send(discordMessage{
		Embeds: []discordEmbed{{
			Title:       "Voice turn failed",
			Description: truncate(err.Error(), 1000),
			Color:       0xFF0000, // Red
			Fields:      fields,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}},
	})
}

// TurnObserver alerts when the observed turn fails. Turns the client
// abandoned or canceled are not reported.
func (d *Discord) TurnObserver(turnID, conversationID string) voice.Observer {
	return &alertObserver{d: d, turnID: turnID, conversationID: conversationID}
}

type alertObserver struct {
	voice.NopObserver
	d              *Discord
	turnID         string
	conversationID string
}

func (o *alertObserver) Finished(stats voice.Stats, err error) {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, voice.ErrAbandoned) {
		return
	}
	o.d.NotifyTurnFailed(o.turnID, o.conversationID, stats, err)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/slack-go/slack"
)

const maxErrorBody = 512

// HTTPWebhook posts chat payloads. Discord-style webhooks receive the
// payload as JSON; Slack incoming webhooks receive an equivalent
// attachment message.
type HTTPWebhook struct {
	client *http.Client
}

// NewHTTPWebhook returns a webhook sender. A nil client uses
// http.DefaultClient.
func NewHTTPWebhook(client *http.Client) *HTTPWebhook {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPWebhook{client: client}
}

// SendWebhook implements WebhookSender.
func (w *HTTPWebhook) SendWebhook(ctx context.Context, rawURL string, msg *discordgo.WebhookParams) error {
	if isSlackWebhook(rawURL) {
		if err := slack.PostWebhookCustomHTTPContext(ctx, rawURL, w.client, slackMessage(msg)); err != nil {
			return fmt.Errorf("notify: slack webhook: %w", err)
		}
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("notify: webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func isSlackWebhook(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), "hooks.slack.com")
}

// slackMessage maps the payload onto a Slack attachment message.
func slackMessage(msg *discordgo.WebhookParams) *slack.WebhookMessage {
	out := &slack.WebhookMessage{Text: msg.Content}
	for _, e := range msg.Embeds {
		att := slack.Attachment{
			Color: fmt.Sprintf("#%06x", e.Color),
			Title: e.Title,
			Text:  e.Description,
		}
		if e.Footer != nil {
			att.Footer = e.Footer.Text
		}
		out.Attachments = append(out.Attachments, att)
	}
	return out
}

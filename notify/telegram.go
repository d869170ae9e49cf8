// Package notify delivers operational alerts over Telegram and mail.
// Notifier failures are logged by callers and never abort ingestion.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

const (
	sendAttempts = 3
	sendBackoff  = 30 * time.Second
)

// Sender delivers one formatted message.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Telegram posts messages to a chat topic via the bot API.
type Telegram struct {
	Token     string
	ChatID    string
	Topic     string
	MessageID string

	// BaseURL overrides the API host in tests.
	BaseURL string
	Client  *http.Client
}

// Send delivers text, retrying with exponential backoff (30s, 60s,
// 120s) before giving up.
func (t *Telegram) Send(ctx context.Context, text string) error {
	var base = t.BaseURL
	if base == "" {
		base = "https://api.telegram.org"
	}
	var client = t.Client
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	var params = url.Values{}
	params.Set("chat_id", fmt.Sprintf("%s/%s", t.ChatID, t.Topic))
	params.Set("text", "\n"+text+"\n")
	params.Set("parse_mode", "MarkdownV2")
	params.Set("reply_to_message_id", t.MessageID)

	var endpoint = fmt.Sprintf("%s/bot%s/sendMessage?%s", base, t.Token, params.Encode())

	var attempt int
	var send = func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			log.WithFields(log.Fields{"attempt": attempt, "err": err}).
				Warn("telegram send failed")
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			var err = fmt.Errorf("telegram API returned %s", resp.Status)
			log.WithFields(log.Fields{"attempt": attempt, "err": err}).
				Warn("telegram send failed")
			return err
		}
		return nil
	}

	var policy = backoff.NewExponentialBackOff()
	policy.InitialInterval = sendBackoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = 4 * sendBackoff

	var err = backoff.Retry(send, backoff.WithContext(
		backoff.WithMaxRetries(policy, sendAttempts-1), ctx))
	if err != nil {
		return fmt.Errorf("sending telegram message after %d attempts: %w", sendAttempts, err)
	}
	return nil
}

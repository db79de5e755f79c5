package campaign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Sender delivers one reminder to one recipient.
type Sender interface {
	Notify(ctx context.Context, recipient common.Address, title, body, cta string) error
}

// PushOptions parameterise the push delivery client.
type PushOptions struct {
	BaseURL string
	Channel string
	Timeout time.Duration
}

// PushSender 通过推送服务的 payloads API 定向发送提醒。
type PushSender struct {
	opts    PushOptions
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewPushSender constructs a push sender.
func NewPushSender(opts PushOptions, logger zerolog.Logger) *PushSender {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PushSender{
		opts:    opts,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "push_sender").Logger(),
	}
}

type pushPayload struct {
	Channel      string           `json:"channel"`
	Recipient    string           `json:"recipient"`
	Notification pushNotification `json:"notification"`
	CTA          string           `json:"cta,omitempty"`
}

type pushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Notify implements Sender. The provider acknowledges a targeted payload
// with 204.
func (p *PushSender) Notify(ctx context.Context, recipient common.Address, title, body, cta string) error {
	payload, err := json.Marshal(pushPayload{
		Channel:      p.opts.Channel,
		Recipient:    recipient.Hex(),
		Notification: pushNotification{Title: title, Body: body},
		CTA:          cta,
	})
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	url := p.baseURL + "/v1/payloads"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("push api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	p.logger.Debug().Str("recipient", recipient.Hex()).Str("title", title).Msg("reminder delivered")
	return nil
}

var _ Sender = (*PushSender)(nil)

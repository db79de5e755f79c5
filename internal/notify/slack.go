package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SlackOptions parameterise the Slack notifier.
type SlackOptions struct {
	Token   string
	BaseURL string
	Timeout time.Duration
}

// SlackNotifier 通过 chat.postMessage 推送结构化告警。
type SlackNotifier struct {
	opts    SlackOptions
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewSlackNotifier constructs a Slack notifier.
func NewSlackNotifier(opts SlackOptions, logger zerolog.Logger) *SlackNotifier {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://slack.com/api"
	}

	return &SlackNotifier{
		opts:    opts,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "alert_slack").Logger(),
	}
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short,omitempty"`
}

type slackAttachment struct {
	Color      string       `json:"color,omitempty"`
	Title      string       `json:"title"`
	TitleLink  string       `json:"title_link,omitempty"`
	AuthorName string       `json:"author_name,omitempty"`
	Fields     []slackField `json:"fields,omitempty"`
	Footer     string       `json:"footer,omitempty"`
	FooterIcon string       `json:"footer_icon,omitempty"`
	TS         int64        `json:"ts,omitempty"`
}

type postMessageRequest struct {
	Channel     string            `json:"channel"`
	Attachments []slackAttachment `json:"attachments"`
}

// Send implements Notifier via chat.postMessage.
func (n *SlackNotifier) Send(ctx context.Context, channel string, msg Message) error {
	attachment := slackAttachment{
		Color:      msg.Color,
		Title:      msg.Title,
		TitleLink:  msg.Link,
		AuthorName: msg.Author,
		Footer:     msg.FooterText,
		FooterIcon: msg.FooterIcon,
	}
	if !msg.Timestamp.IsZero() {
		attachment.TS = msg.Timestamp.Unix()
	}
	for _, field := range msg.Fields {
		attachment.Fields = append(attachment.Fields, slackField{
			Title: field.Label,
			Value: field.Value,
			Short: field.Short,
		})
	}

	body, err := json.Marshal(postMessageRequest{Channel: channel, Attachments: []slackAttachment{attachment}})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	url := n.baseURL + "/chat.postMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+n.opts.Token)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode slack response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("slack api error: %s", result.Error)
	}

	n.logger.Info().Str("channel", channel).Str("title", msg.Title).Msg("告警已发送 (Slack)")
	return nil
}

var _ Notifier = (*SlackNotifier)(nil)

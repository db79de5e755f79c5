package campaign

import (
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

// SubscriberSource enumerates the accounts subscribed to reminder
// notifications.
type SubscriberSource interface {
	Subscribers(ctx context.Context) ([]common.Address, error)
}

// ChannelOptions parameterise the notification channel API client.
type ChannelOptions struct {
	BaseURL string
	Channel string
	Timeout time.Duration
}

// ChannelAPI lists a channel's subscribers over the push provider's REST
// API.
type ChannelAPI struct {
	opts    ChannelOptions
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewChannelAPI constructs a channel API client.
func NewChannelAPI(opts ChannelOptions, logger zerolog.Logger) *ChannelAPI {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ChannelAPI{
		opts:    opts,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "channel_api").Logger(),
	}
}

// Subscribers implements SubscriberSource.
func (c *ChannelAPI) Subscribers(ctx context.Context) ([]common.Address, error) {
	url := fmt.Sprintf("%s/v1/channels/%s/subscribers", c.baseURL, c.opts.Channel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create subscribers request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("subscribers api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var result struct {
		Subscribers []string `json:"subscribers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode subscribers response: %w", err)
	}

	subscribers := make([]common.Address, 0, len(result.Subscribers))
	for _, raw := range result.Subscribers {
		if !common.IsHexAddress(raw) {
			c.logger.Warn().Str("subscriber", raw).Msg("skipping malformed subscriber address")
			continue
		}
		subscribers = append(subscribers, common.HexToAddress(raw))
	}
	return subscribers, nil
}

var _ SubscriberSource = (*ChannelAPI)(nil)

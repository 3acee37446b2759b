// Package media provides a thin client for the Emby/Jellyfin user
// policy API. Only the operations the point economy needs are exposed.
package media

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"media-concierge-bot/internal/config"
)

// Client is the narrow media-server interface consumed by the checkin
// engine and the expiry enforcement job.
type Client interface {
	// BanOrUnban disables (isBan=true) or re-enables a media account.
	BanOrUnban(ctx context.Context, mediaID string, isBan bool) error
}

// EmbyClient talks to an Emby or Jellyfin server with API-key auth.
// Both servers accept the X-Emby-Token header.
type EmbyClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewEmbyClient creates a client from the media configuration.
func NewEmbyClient(cfg *config.MediaConfig) *EmbyClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &EmbyClient{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// BanOrUnban updates the user's policy IsDisabled flag. A 401 is
// retried once; Emby occasionally rejects the first request after a
// server restart.
func (c *EmbyClient) BanOrUnban(ctx context.Context, mediaID string, isBan bool) error {
	body, err := json.Marshal(map[string]any{"IsDisabled": isBan})
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}

	url := fmt.Sprintf("%s/Users/%s/Policy", c.baseURL, mediaID)

	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build policy request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Emby-Token", c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("policy request failed: %w", err)
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			log.Warn().Str("media_id", mediaID).Msg("Media server returned 401, retrying once")
			continue
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("policy request returned status %d", resp.StatusCode)
		}
		return nil
	}

	return fmt.Errorf("policy request unauthorized after retry")
}

// NoopClient is used when no media server is configured. Operations
// succeed without side effects so the economy keeps working.
type NoopClient struct{}

// BanOrUnban does nothing.
func (NoopClient) BanOrUnban(ctx context.Context, mediaID string, isBan bool) error {
	log.Debug().Str("media_id", mediaID).Bool("ban", isBan).Msg("Media server disabled, skipping ban change")
	return nil
}

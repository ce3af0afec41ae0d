// Package metagraph provides a concrete principal.Metagraph: each role's
// identity list is fetched from a JSON HTTP endpoint when one is
// configured, with a manual comma-separated fallback list, the same
// shape original_source/hotkey_whitelist.py uses for its
// ALLOW_MANUAL_HOTKEYS override — minus the live chain sync, which has
// no analogue outside Bittensor and is replaced here by a generic
// operator-supplied endpoint.
package metagraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client fetches miner/validator identity lists over HTTP, falling back
// to a static manual list when no endpoint is configured.
type Client struct {
	httpClient *http.Client

	minerURL     string
	validatorURL string

	manualMiners     []string
	manualValidators []string
}

// Config configures a Client.
type Config struct {
	MinerListURL           string
	ValidatorListURL       string
	ManualMinerHotkeys     []string
	ManualValidatorHotkeys []string
	Timeout                time.Duration
}

// New constructs a Client from cfg.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient:       &http.Client{Timeout: timeout},
		minerURL:         cfg.MinerListURL,
		validatorURL:     cfg.ValidatorListURL,
		manualMiners:     cfg.ManualMinerHotkeys,
		manualValidators: cfg.ManualValidatorHotkeys,
	}
}

// Miners implements principal.Metagraph.
func (c *Client) Miners(ctx context.Context) ([]string, error) {
	return c.fetch(ctx, c.minerURL, c.manualMiners)
}

// Validators implements principal.Metagraph.
func (c *Client) Validators(ctx context.Context) ([]string, error) {
	return c.fetch(ctx, c.validatorURL, c.manualValidators)
}

func (c *Client) fetch(ctx context.Context, url string, manual []string) ([]string, error) {
	if url == "" {
		return manual, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("metagraph: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metagraph: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metagraph: %s returned status %d", url, resp.StatusCode)
	}

	var identities []string
	if err := json.NewDecoder(resp.Body).Decode(&identities); err != nil {
		return nil, fmt.Errorf("metagraph: decode response from %s: %w", url, err)
	}
	return identities, nil
}

// Package quotes fetches motivational quotes. Quotes are ephemeral:
// nothing here is ever persisted.
package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"mindfuel/internal/domain"
)

// Client calls the public quote API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError represents a non-2xx quote API response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a quote API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Random returns a single random quote for the splash view.
func (c *Client) Random(ctx context.Context) (domain.Quote, error) {
	batch, err := c.get(ctx, "/random")
	if err != nil {
		return domain.Quote{}, err
	}
	if len(batch) == 0 {
		return domain.Quote{}, errors.New("quote API returned an empty batch")
	}
	return batch[0], nil
}

// List returns a batch of quotes.
func (c *Client) List(ctx context.Context) ([]domain.Quote, error) {
	return c.get(ctx, "/quotes")
}

func (c *Client) get(ctx context.Context, path string) ([]domain.Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, &APIError{Status: resp.StatusCode, Message: resp.Status}
	}
	var quotes []domain.Quote
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

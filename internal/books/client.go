// Package books searches the public book catalog API. Records from
// here are read-only: they carry the external provenance tag and are
// never written back anywhere.
package books

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mindfuel/internal/domain"
)

// Client queries the volume search endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError represents a non-2xx search response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a book search client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type volumeInfo struct {
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Description string   `json:"description"`
	ImageLinks  struct {
		Thumbnail string `json:"thumbnail"`
	} `json:"imageLinks"`
}

type searchResponse struct {
	Items []struct {
		ID         string     `json:"id"`
		VolumeInfo volumeInfo `json:"volumeInfo"`
	} `json:"items"`
}

// Search returns external-provenance book records for a free-text
// query. An empty result set is not an error.
func (c *Client) Search(ctx context.Context, query string) ([]domain.Book, error) {
	endpoint := c.baseURL + "/volumes?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
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
	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, err
	}
	out := make([]domain.Book, 0, len(sr.Items))
	for _, item := range sr.Items {
		out = append(out, domain.Book{
			ID:          item.ID,
			Title:       item.VolumeInfo.Title,
			Author:      joinAuthors(item.VolumeInfo.Authors),
			Description: orDefault(item.VolumeInfo.Description, "No description available."),
			Image:       item.VolumeInfo.ImageLinks.Thumbnail,
			Price:       "N/A",
			Content:     "Not available",
			Provenance:  domain.ProvenanceExternal,
		})
	}
	return out, nil
}

func joinAuthors(authors []string) string {
	if len(authors) == 0 {
		return "Unknown"
	}
	return strings.Join(authors, ", ")
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// Package docstore is a generic client for the hosted JSON document
// store. Resources are addressed by path segments and fetched as plain
// JSON-over-HTTPS; read-all returns a mapping from generated key to
// record. No authentication is attached: the store trusts its callers
// and access control lives in the client role convention.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client issues single-attempt requests against the document store.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError represents a non-2xx store response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a document store client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// List reads all records under path into out, which must be a pointer
// to a map keyed by generated record key. A missing collection decodes
// as an empty map.
func (c *Client) List(ctx context.Context, path string, out any) error {
	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if isNull(raw) {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// Get reads one record. The second return is false when the record
// does not exist.
func (c *Client) Get(ctx context.Context, path string, out any) (bool, error) {
	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, err
	}
	if isNull(raw) {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

// Create appends a record under path; the store generates and returns
// the new key.
func (c *Client) Create(ctx context.Context, path string, payload any) (string, error) {
	raw, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return "", err
	}
	var resp struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

// Patch merges fields into the record at path.
func (c *Client) Patch(ctx context.Context, path string, payload any) error {
	_, err := c.do(ctx, http.MethodPatch, path, payload)
	return err
}

// Put replaces the record at path.
func (c *Client) Put(ctx context.Context, path string, payload any) error {
	_, err := c.do(ctx, http.MethodPut, path, payload)
	return err
}

// Delete removes the record at path.
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, path, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	url := c.baseURL + "/" + strings.Trim(path, "/") + ".json"
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}
	return raw, nil
}

func isNull(raw []byte) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

// Package identity calls the hosted identity provider that owns all
// credential handling. The gateway never sees password hashes; it only
// forwards email+password and receives an issued user id.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Client calls the identity provider over HTTPS.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// APIError carries the provider-supplied failure message so it can be
// surfaced verbatim to the user.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs an identity provider client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Account is the provider's view of an authenticated account.
type Account struct {
	UserID  string
	Email   string
	Expires time.Time
}

// SignUp registers a new account and returns the issued user id.
func (c *Client) SignUp(ctx context.Context, email, password string) (Account, error) {
	return c.post(ctx, "accounts:signUp", email, password)
}

// SignIn verifies credentials and returns the account's user id.
func (c *Client) SignIn(ctx context.Context, email, password string) (Account, error) {
	return c.post(ctx, "accounts:signInWithPassword", email, password)
}

type tokenResponse struct {
	IDToken string `json:"idToken"`
	Email   string `json:"email"`
	LocalID string `json:"localId"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, action, email, password string) (Account, error) {
	payload := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Account{}, err
	}
	endpoint := c.baseURL + "/" + action + "?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return Account{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Account{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error.Message
		if msg == "" {
			msg = resp.Status
		}
		return Account{}, &APIError{Status: resp.StatusCode, Message: msg}
	}
	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return Account{}, err
	}
	return Account{
		UserID:  tok.LocalID,
		Email:   tok.Email,
		Expires: tokenExpiry(tok.IDToken),
	}, nil
}

// tokenExpiry reads the expiry claim from the provider's ID token.
// The token is never used for authorization here, so the signature is
// not verified; a malformed token just yields a zero expiry.
func tokenExpiry(idToken string) time.Time {
	if idToken == "" {
		return time.Time{}
	}
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(idToken, &claims); err != nil {
		slog.Debug("identity token parse failed", "err", err)
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

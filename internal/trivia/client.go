// Package trivia drives the multiple-choice quiz: fetching question
// batches from the public trivia API and running per-user quiz
// sessions through to score submission.
package trivia

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"mindfuel/internal/domain"
)

// Client fetches question batches from the trivia API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError represents a non-2xx trivia API response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a trivia API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type fetchResponse struct {
	ResponseCode int `json:"response_code"`
	Results      []struct {
		Question         string   `json:"question"`
		CorrectAnswer    string   `json:"correct_answer"`
		IncorrectAnswers []string `json:"incorrect_answers"`
	} `json:"results"`
}

// Fetch returns a batch of multiple-choice questions. Question and
// answer text arrives HTML-entity-encoded and is decoded here; the
// option order is shuffled so the correct answer holds no fixed
// position.
func (c *Client) Fetch(ctx context.Context, amount int) ([]domain.Question, error) {
	endpoint := fmt.Sprintf("%s/api.php?amount=%d&type=multiple", c.baseURL, amount)
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
	var fr fetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, err
	}
	if fr.ResponseCode != 0 {
		return nil, fmt.Errorf("trivia API response code %d", fr.ResponseCode)
	}
	out := make([]domain.Question, 0, len(fr.Results))
	for _, res := range fr.Results {
		correct := html.UnescapeString(res.CorrectAnswer)
		options := make([]string, 0, len(res.IncorrectAnswers)+1)
		for _, wrong := range res.IncorrectAnswers {
			options = append(options, html.UnescapeString(wrong))
		}
		options = append(options, correct)
		shuffle(options)
		out = append(out, domain.Question{
			Prompt:  html.UnescapeString(res.Question),
			Correct: correct,
			Options: options,
		})
	}
	return out, nil
}

// shuffle is a uniform Fisher-Yates permutation.
func shuffle(options []string) {
	rand.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
}

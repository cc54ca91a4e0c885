// Package gemini talks to the Google generative-language API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/aisaas/backend/internal/backoff"
	"github.com/aisaas/backend/internal/httputil"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-1.5-flash-latest"

	maxResponseBytes = 4 << 20

	apiKeyHeader = "x-goog-api-key"
)

// ErrEmptyContent is returned when a successful response carries no text.
var ErrEmptyContent = errors.New("gemini: response contained no text")

// APIError is a non-OK response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini: status %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed if sent again.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusServiceUnavailable
}

// Config captures the settings of the REST client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client generates text with the generateContent endpoint.
type Client struct {
	http       *httputil.Client
	httpClient *http.Client
	model      string
	policy     backoff.Policy
}

// Option customizes the client.
type Option func(*Client)

// WithPolicy overrides the retry policy (defaults to backoff.Default()).
func WithPolicy(p backoff.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client.
func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	c := &Client{
		model:  cfg.Model,
		policy: backoff.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = httputil.NewClient(httputil.ClientConfig{
		BaseURL:    cfg.BaseURL,
		Headers:    map[string]string{apiKeyHeader: cfg.APIKey},
		Timeout:    cfg.Timeout,
		HTTPClient: c.httpClient,
	})
	return c
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

// Generate sends prompt as a single user turn and returns the first
// candidate's text. 503 responses are retried according to the policy.
func (c *Client) Generate(ctx context.Context, prompt string, maxOutputTokens int) (string, error) {
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model))
	body := generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{MaxOutputTokens: maxOutputTokens},
	}

	var text string
	err := c.policy.Do(ctx, func(ctx context.Context, _ int) (bool, error) {
		out, err := c.generateOnce(ctx, path, body)
		if err != nil {
			var apiErr *APIError
			return errors.As(err, &apiErr) && apiErr.Retryable(), err
		}
		text = out
		return false, nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) generateOnce(ctx context.Context, path string, body generateRequest) (string, error) {
	resp, err := c.http.Post(ctx, path, body)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	defer resp.Body.Close()

	data, err := httputil.ReadAllStrict(resp.Body, maxResponseBytes)
	if err != nil {
		return "", fmt.Errorf("gemini: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(data, "error.message").String()
		if msg == "" {
			msg = "Unknown error"
		}
		return "", &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	text := gjson.GetBytes(data, "candidates.0.content.parts.0.text").String()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyContent
	}
	return text, nil
}

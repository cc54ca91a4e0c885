// Package huggingface calls a Hugging Face inference endpoint for
// text-to-image generation.
package huggingface

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aisaas/backend/internal/httputil"
)

const maxImageBytes = 20 << 20

// StatusError is a non-2xx response from the inference endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("huggingface: status %d: %s", e.StatusCode, e.Body)
}

// Config captures the endpoint and credentials.
type Config struct {
	APIURL     string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client generates images from prompts.
type Client struct {
	http *httputil.Client
	url  string
}

// New creates a client for the configured model endpoint.
func New(cfg Config) *Client {
	return &Client{
		http: httputil.NewClient(httputil.ClientConfig{
			Token:      cfg.APIKey,
			Timeout:    cfg.Timeout,
			HTTPClient: cfg.HTTPClient,
			Headers:    map[string]string{"Accept": "image/jpeg"},
		}),
		url: cfg.APIURL,
	}
}

type generateRequest struct {
	Inputs string `json:"inputs"`
}

// Generate returns the raw image bytes produced for prompt.
func (c *Client) Generate(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := c.http.Post(ctx, c.url, generateRequest{Inputs: prompt})
	if err != nil {
		return nil, fmt.Errorf("huggingface: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _, err := httputil.ReadAllWithLimit(resp.Body, 64<<10)
		if err != nil {
			return nil, fmt.Errorf("huggingface: read error body: %w", err)
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	data, err := httputil.ReadAllStrict(resp.Body, maxImageBytes)
	if err != nil {
		return nil, fmt.Errorf("huggingface: read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("huggingface: empty image response")
	}
	return data, nil
}

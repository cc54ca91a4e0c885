package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/aisaas/backend/internal/backoff"
)

const (
	DefaultReviewModel = "gemini-2.0-flash"

	reviewTemperature     = 0.7
	reviewMaxOutputTokens = 1000
)

type modelClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Reviewer sends a prompt together with an inline document to a multimodal
// model and returns the generated review.
type Reviewer struct {
	models modelClient
	model  string
	policy backoff.Policy
}

// ReviewerOption customizes a Reviewer.
type ReviewerOption func(*Reviewer)

// WithReviewPolicy overrides the retry policy.
func WithReviewPolicy(p backoff.Policy) ReviewerOption {
	return func(r *Reviewer) { r.policy = p }
}

// NewReviewer creates a Reviewer on the genai SDK.
func NewReviewer(ctx context.Context, apiKey, model string, opts ...ReviewerOption) (*Reviewer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newReviewer(client.Models, model, opts...), nil
}

func newReviewer(models modelClient, model string, opts ...ReviewerOption) *Reviewer {
	if model == "" {
		model = DefaultReviewModel
	}
	r := &Reviewer{models: models, model: model, policy: backoff.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Review asks the model to review document, which is sent inline with the
// given MIME type.
func (r *Reviewer) Review(ctx context.Context, prompt string, document []byte, mimeType string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(document, mimeType),
		}, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](reviewTemperature),
		MaxOutputTokens: reviewMaxOutputTokens,
	}

	var text string
	err := r.policy.Do(ctx, func(ctx context.Context, _ int) (bool, error) {
		resp, err := r.models.GenerateContent(ctx, r.model, contents, cfg)
		if err != nil {
			apiErr := asAPIError(err)
			return apiErr != nil && apiErr.Retryable(), apiErr.orWrap(err)
		}
		out := responseText(resp)
		if strings.TrimSpace(out) == "" {
			return false, ErrEmptyContent
		}
		text = out
		return false, nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// asAPIError converts an SDK error into the package's APIError.
func asAPIError(err error) *APIError {
	var v genai.APIError
	if errors.As(err, &v) {
		return &APIError{StatusCode: v.Code, Message: apiMessage(v.Message)}
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return &APIError{StatusCode: p.Code, Message: apiMessage(p.Message)}
	}
	return nil
}

func (e *APIError) orWrap(err error) error {
	if e != nil {
		return e
	}
	return fmt.Errorf("gemini: %w", err)
}

func apiMessage(msg string) string {
	if msg == "" {
		return "Unknown error"
	}
	return msg
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

package clerk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/aisaas/backend/internal/httputil"
)

const DefaultAPIURL = "https://api.clerk.com/v1"

// User is the subset of a Clerk user the backend reads.
type User struct {
	ID              string                 `json:"id"`
	PrivateMetadata map[string]interface{} `json:"private_metadata"`
	PublicMetadata  map[string]interface{} `json:"public_metadata"`
}

// APIError is a failed Backend API call.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clerk: status %d: %s", e.StatusCode, e.Message)
}

// ClientConfig configures the Backend API client.
type ClientConfig struct {
	SecretKey  string
	APIURL     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client calls the Clerk Backend API with the instance secret key.
type Client struct {
	http *httputil.Client
}

// NewClient creates a Backend API client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	return &Client{http: httputil.NewClient(httputil.ClientConfig{
		BaseURL:    cfg.APIURL,
		Token:      cfg.SecretKey,
		Timeout:    cfg.Timeout,
		HTTPClient: cfg.HTTPClient,
	})}
}

// GetUser fetches a user by id.
func (c *Client) GetUser(ctx context.Context, userID string) (User, error) {
	resp, err := c.http.Get(ctx, "/users/"+url.PathEscape(userID))
	if err != nil {
		return User{}, fmt.Errorf("clerk: get user: %w", err)
	}
	var user User
	if err := httputil.DecodeResponse(resp, &user); err != nil {
		return User{}, apiError(err)
	}
	return user, nil
}

type metadataPatch struct {
	PrivateMetadata map[string]interface{} `json:"private_metadata"`
}

// UpdatePrivateMetadata merges patch into the user's private metadata and
// returns the updated user.
func (c *Client) UpdatePrivateMetadata(ctx context.Context, userID string, patch map[string]interface{}) (User, error) {
	resp, err := c.http.Patch(ctx, "/users/"+url.PathEscape(userID)+"/metadata", metadataPatch{PrivateMetadata: patch})
	if err != nil {
		return User{}, fmt.Errorf("clerk: update metadata: %w", err)
	}
	var user User
	if err := httputil.DecodeResponse(resp, &user); err != nil {
		return User{}, apiError(err)
	}
	return user, nil
}

func apiError(err error) error {
	var se *httputil.StatusError
	if errors.As(err, &se) {
		return &APIError{
			StatusCode: se.StatusCode,
			Message:    se.Message("errors.0.long_message", "errors.0.message"),
		}
	}
	return fmt.Errorf("clerk: %w", err)
}

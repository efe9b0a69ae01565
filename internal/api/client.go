// Package api posts experiment records to the response API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"vocabcue/internal/experiment"
	"vocabcue/internal/logging"
	"vocabcue/internal/models"
)

// ErrNotJSON is returned when the API answers with something other than JSON
var ErrNotJSON = errors.New("response is not JSON")

// StatusError is a non-2xx answer from the API
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("api returned status %d: %s", e.StatusCode, e.Body)
}

// Options configures a Client
type Options struct {
	BaseURL string
	Timeout time.Duration

	// TokenURL, ClientID and ClientSecret enable OAuth2 client credentials
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client posts consent and response records. It does not batch or retry.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a client for the API at opts.BaseURL
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.TokenURL != "" && opts.ClientID != "" {
		ccfg := clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
			Scopes:       opts.Scopes,
		}
		// token requests go through the same transport as the API calls
		base := httpClient
		httpClient = ccfg.Client(context.WithValue(context.Background(), oauth2.HTTPClient, base))
		httpClient.Timeout = base.Timeout
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    httpClient,
		logger:  logging.OrNop(opts.Logger),
	}
}

// Ack is the API's acknowledgement body
type Ack struct {
	Status string `json:"status"`
	ID     int64  `json:"id,omitempty"`
}

// PostConsent sends the intake record
func (c *Client) PostConsent(ctx context.Context, consent models.Consent) error {
	_, err := c.post(ctx, "/consent", consent)
	if err != nil {
		c.logger.Warn("Consent submission failed",
			zap.String("participant", consent.UserID),
			zap.String("group", consent.Group),
			zap.Error(err))
		return experiment.Wrap(experiment.ErrSubmission, "post consent", err)
	}
	return nil
}

// PostResponse sends one per-word response
func (c *Client) PostResponse(ctx context.Context, event models.ResponseEvent) error {
	_, err := c.post(ctx, "/responses", event)
	if err != nil {
		c.logger.Warn("Response submission failed",
			zap.String("participant", event.UserID),
			zap.String("group", event.Group),
			zap.String("word", event.Word),
			zap.String("page_type", event.PageType),
			zap.Error(err))
		return experiment.Wrap(experiment.ErrSubmission, "post response "+event.PageType, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*Ack, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	var ack Ack
	if mediaType != "application/json" || json.Unmarshal(data, &ack) != nil {
		return nil, ErrNotJSON
	}

	c.logger.Debug("API accepted payload", zap.String("path", path), zap.Int64("id", ack.ID))
	return &ack, nil
}

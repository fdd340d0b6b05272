// Package ollama is a small HTTP client for the generate endpoint of an
// Ollama server, used by the ollama recognition backend.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Thangam2001/Utility-App/internal/logger"
)

const (
	DefaultEndpoint   = "http://localhost:11434"
	DefaultTimeout    = 2 * time.Minute
	DefaultMaxRetries = 2
	DefaultRetryDelay = 500 * time.Millisecond

	generatePath = "/api/generate"
)

// Config configures a Client. Zero values fall back to the defaults above,
// except MaxRetries where a negative value selects the default.
type Config struct {
	Endpoint    string
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	Temperature float64
	Logger      *logger.Logger
}

// Client talks to a single Ollama server
type Client struct {
	cfg  Config
	http *http.Client
	log  *logger.Logger
}

// New creates a client from cfg
func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: log,
	}
}

// Endpoint returns the server base URL
func (c *Client) Endpoint() string {
	return c.cfg.Endpoint
}

// Generate posts req to /api/generate and decodes the non-streaming reply
func (c *Client) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generate request: %w", err)
	}

	body, err := c.postWithRetry(ctx, generatePath, payload)
	if err != nil {
		return nil, err
	}

	var resp GenerateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode generate response: %w", err)
	}
	return &resp, nil
}

// GenerateWithImages runs a JSON-mode generate call with the given images
// attached as raw base64.
func (c *Client) GenerateWithImages(ctx context.Context, model, prompt string, images ...[]byte) (*GenerateResponse, error) {
	encoded := make([]string, 0, len(images))
	for _, img := range images {
		encoded = append(encoded, base64.StdEncoding.EncodeToString(img))
	}

	resp, err := c.Generate(ctx, &GenerateRequest{
		Model:   model,
		Prompt:  prompt,
		Images:  encoded,
		Format:  "json",
		Options: map[string]interface{}{"temperature": c.cfg.Temperature},
	})
	if err != nil {
		return nil, err
	}

	c.log.WithDuration(time.Duration(resp.TotalDuration)).
		WithFields("model", model, "images", len(images), "done_reason", resp.DoneReason).
		Debug("Ollama generate completed")
	return resp, nil
}

// postWithRetry retries transport failures and 5xx statuses, doubling the
// delay after each attempt. Other statuses fail immediately.
func (c *Client) postWithRetry(ctx context.Context, path string, payload []byte) ([]byte, error) {
	delay := c.cfg.RetryDelay
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			c.log.WithError(lastErr).Debugf("Retrying ollama request in %v (%d/%d)", delay, attempt, c.cfg.MaxRetries)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}

		status, body, err := c.post(ctx, path, payload)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		case status >= 500:
			lastErr = apiError(status, body)
		case status >= 300 || status < 200:
			return nil, apiError(status, body)
		default:
			return body, nil
		}
	}

	return nil, fmt.Errorf("ollama request failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

func (c *Client) post(ctx context.Context, path string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read ollama response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func apiError(status int, body []byte) error {
	msg := string(bytes.TrimSpace(body))
	var errResp ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		msg = errResp.Error
	}
	return fmt.Errorf("ollama API error (status %d): %s", status, msg)
}

// Package remote is an engine backed by an annotation server reached over
// HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"annotation-backend/internal/engine"
)

const maxErrorBody = 512

// Config describes how to reach the annotation server. TokenURL turns on
// OAuth2 client credentials.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	HTTPClient   *http.Client
}

// Client implements engine.Engine against the annotation server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a client without contacting the server.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("ENGINE_URL is required for the remote engine")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if strings.TrimSpace(cfg.TokenURL) != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		// The context is kept for token refreshes, so it must outlive requests.
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		authed := cc.Client(tokenCtx)
		authed.Timeout = timeout
		httpClient = authed
	}
	return &Client{baseURL: base, httpClient: httpClient}, nil
}

// NewFactory returns an engine factory that builds a client and checks the
// server is healthy before handing it out.
func NewFactory(cfg Config) engine.Factory {
	return func(ctx context.Context) (engine.Engine, error) {
		c, err := New(cfg)
		if err != nil {
			return nil, err
		}
		if err := c.CheckHealth(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

// CheckHealth calls GET /health.
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("annotation server health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("annotation server health: %s", statusError(resp))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	Annotations []wireAnnotation `json:"annotations"`
	Error       *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Process posts the document text and adds the returned annotations to cas.
func (c *Client) Process(ctx context.Context, cas *engine.CAS) error {
	payload, err := json.Marshal(analyzeRequest{Text: cas.Text()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return fmt.Errorf("annotation server timeout: %w", err)
		}
		return fmt.Errorf("annotation server request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("annotation server: %s", statusError(resp))
	}

	var parsed analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("annotation server response parse: %w", err)
	}
	if parsed.Error != nil {
		return fmt.Errorf("annotation server error: %s", parsed.Error.Message)
	}
	return addAll(cas, parsed.Annotations)
}

func statusError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return resp.Status
	}
	return resp.Status + ": " + msg
}

// ABOUTME: HTTP client for the Jules REST API
// ABOUTME: Typed JSON requests with API-key auth, rate limiting, and classified errors

package jules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/coven-cloudworker/internal/provider"
)

// Defaults for ClientConfig.
const (
	DefaultBaseURL    = "https://jules.googleapis.com"
	DefaultAPIVersion = "v1alpha"
	DefaultTimeout    = 30 * time.Second
)

// ClientConfig configures a Client.
type ClientConfig struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
	// RequestsPerSecond throttles outbound calls. Zero disables throttling.
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Client talks to one Jules endpoint.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a Client, filling unset fields with defaults.
func NewClient(cfg ClientConfig) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	version := cfg.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(base, "/") + "/" + version,
		http:    httpClient,
		logger:  logger.With("component", "jules"),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// do sends a JSON request and decodes the response into out (if non-nil).
// An empty response body leaves out untouched.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &provider.NetworkError{Provider: ProviderName, Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &provider.NetworkError{Provider: ProviderName, Op: method + " " + path, Err: err}
	}

	c.logger.Debug("jules request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &provider.APIError{Provider: ProviderName, StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// resourceName accepts a bare id or a full sessions/{id} name.
func resourceName(sessionID string) string {
	if strings.HasPrefix(sessionID, "sessions/") {
		return sessionID
	}
	return "sessions/" + sessionID
}

// CreateSessionParams are the inputs to CreateSession.
type CreateSessionParams struct {
	Prompt              string
	SourceName          string // sources/github/{owner}/{repo}
	StartingBranch      string
	Title               string
	RequirePlanApproval bool
	AutomationMode      AutomationMode
}

// CreateSession starts a new session.
func (c *Client) CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error) {
	mode := params.AutomationMode
	if mode == "" {
		mode = AutomationModeAutoCreatePR
	}
	body := createSessionRequest{
		Prompt: params.Prompt,
		SourceContext: SourceContext{
			Source:            params.SourceName,
			GithubRepoContext: &GithubRepoContext{StartingBranch: params.StartingBranch},
		},
		Title:               params.Title,
		RequirePlanApproval: params.RequirePlanApproval,
		AutomationMode:      mode,
	}

	var s Session
	if err := c.do(ctx, http.MethodPost, "/sessions", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSession fetches one session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodGet, "/"+resourceName(sessionID), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ApprovePlan approves the pending plan of a session.
func (c *Client) ApprovePlan(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/"+resourceName(sessionID)+":approvePlan", struct{}{}, nil)
}

// SendMessage posts a user message into a session.
func (c *Client) SendMessage(ctx context.Context, sessionID, message string) error {
	return c.do(ctx, http.MethodPost, "/"+resourceName(sessionID)+":sendMessage", sendMessageRequest{Prompt: message}, nil)
}

// ListActivities returns every activity of a session, following pagination.
func (c *Client) ListActivities(ctx context.Context, sessionID string) ([]Activity, error) {
	var all []Activity
	token := ""
	for {
		path := "/" + resourceName(sessionID) + "/activities"
		if token != "" {
			path += "?" + url.Values{"pageToken": {token}}.Encode()
		}

		var page ActivitiesResponse
		if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Activities...)

		if page.NextPageToken == "" || page.NextPageToken == token {
			return all, nil
		}
		token = page.NextPageToken
	}
}

// ListSources returns the repositories connected to the account.
func (c *Client) ListSources(ctx context.Context) ([]Source, error) {
	var all []Source
	token := ""
	for {
		path := "/sources"
		if token != "" {
			path += "?" + url.Values{"pageToken": {token}}.Encode()
		}

		var page SourcesResponse
		if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Sources...)

		if page.NextPageToken == "" || page.NextPageToken == token {
			return all, nil
		}
		token = page.NextPageToken
	}
}

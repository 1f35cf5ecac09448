// Package jobclient provides the HTTP client for a job kind's status, start
// and stop endpoints.
package jobclient

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

	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/ternarybob/pipewatch/internal/common"
	"github.com/ternarybob/pipewatch/internal/models"
)

const (
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5

	maxErrorBody = 4096
)

// ErrCommunication marks every failure to talk to the backend: transport
// errors, non-2xx answers and undecodable bodies. It says nothing about the
// job itself.
var ErrCommunication = errors.New("communication failure")

// APIError represents a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend API error: %s (status %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Unwrap lets errors.Is(err, ErrCommunication) match API errors.
func (e *APIError) Unwrap() error {
	return ErrCommunication
}

// Client talks to one job kind's endpoints under basePath.
type Client struct {
	kind        models.JobKind
	baseURL     string
	basePath    string
	httpClient  *http.Client
	logger      arbor.ILogger
	limiter     *rate.Limiter
	aliases     map[string]string
	tokenSource oauth2.TokenSource
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit. Zero disables limiting.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithFieldAliases maps backend status field names onto canonical names.
func WithFieldAliases(aliases map[string]string) ClientOption {
	return func(c *Client) {
		c.aliases = aliases
	}
}

// WithBearerToken authenticates every request with a static token.
func WithBearerToken(token string) ClientOption {
	return func(c *Client) {
		if token != "" {
			c.tokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		}
	}
}

// WithClientCredentials authenticates with the OAuth2 client-credentials flow.
func WithClientCredentials(cfg *clientcredentials.Config) ClientOption {
	return func(c *Client) {
		if cfg != nil && cfg.TokenURL != "" {
			c.tokenSource = cfg.TokenSource(context.Background())
		}
	}
}

// NewClient creates a client for kind. baseURL is the backend root and
// basePath the kind's prefix, e.g. "/api/news-collection".
func NewClient(kind models.JobKind, baseURL, basePath string, opts ...ClientOption) *Client {
	c := &Client{
		kind:     kind,
		baseURL:  strings.TrimRight(baseURL, "/"),
		basePath: "/" + strings.Trim(basePath, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.tokenSource != nil {
		base := c.httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		authed := *c.httpClient
		authed.Transport = &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, c.tokenSource), Base: base}
		c.httpClient = &authed
	}

	return c
}

// Kind returns the job kind this client is bound to.
func (c *Client) Kind() models.JobKind {
	return c.kind
}

// GetStatus reads the current job status.
func (c *Client) GetStatus(ctx context.Context) (*models.JobStatus, error) {
	body, err := c.do(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s status: %w", c.kind, err)
	}

	status, err := models.DecodeJobStatus(body, c.aliases)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s status: %w: %w", c.kind, ErrCommunication, err)
	}
	return status, nil
}

// Start requests a job launch. Refusals come back as an unaccepted
// response, including refusals the backend sends with a 4xx code.
func (c *Client) Start(ctx context.Context, req models.StartRequest) (*models.StartResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode start request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/start", payload)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			if refusal, ok := decodeRefusal(apiErr.Body); ok {
				return refusal, nil
			}
		}
		return nil, fmt.Errorf("failed to start %s: %w", c.kind, err)
	}

	var resp models.StartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode %s start response: %w: %w", c.kind, ErrCommunication, err)
	}
	if resp.Status == "" {
		return nil, fmt.Errorf("failed to decode %s start response: %w: missing status", c.kind, ErrCommunication)
	}
	return &resp, nil
}

// Stop requests cooperative cancellation.
func (c *Client) Stop(ctx context.Context) (*models.StopResponse, error) {
	body, err := c.do(ctx, http.MethodPost, "/stop", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to stop %s: %w", c.kind, err)
	}

	var resp models.StopResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode %s stop response: %w: %w", c.kind, ErrCommunication, err)
		}
	}
	return &resp, nil
}

// do performs a request against basePath+path and returns the body of a 2xx answer.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit wait: %w", ErrCommunication, err)
		}
	}

	endpoint := c.basePath + path
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := common.NewRequestID()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrCommunication, method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrCommunication, endpoint, err)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("kind", string(c.kind)).
			Str("method", method).
			Str("endpoint", endpoint).
			Str("request_id", requestID).
			Int("status", resp.StatusCode).
			Dur("duration", time.Since(start)).
			Msg("Backend request")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body, resp.Status),
			Endpoint:   endpoint,
			Body:       body,
		}
	}

	return body, nil
}

// errorMessage extracts a human message from an error body. FastAPI-style
// {"detail": ...} and {"message"|"error": ...} bodies are unwrapped.
func errorMessage(body []byte, fallback string) string {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, key := range []string{"detail", "message", "error"} {
			if s, ok := parsed[key].(string); ok && s != "" {
				return s
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fallback
}

// decodeRefusal recognises a start refusal sent with a 4xx status
func decodeRefusal(body []byte) (*models.StartResponse, bool) {
	var resp models.StartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, false
	}
	if resp.Status == "" || resp.Accepted() {
		return nil, false
	}
	return &resp, true
}

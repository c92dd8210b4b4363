// Package tusharepro retrieves quote data from the TusharePro HTTP API, a
// single POST endpoint multiplexed by api_name. Every call needs an account
// token, so the provider registers unready and is flipped ready once a token
// is found in the credential store.
package tusharepro

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pretium/internal/common"
	"github.com/ternarybob/pretium/internal/interfaces"
	"golang.org/x/time/rate"
)

const (
	// ProviderName is the registry name of this provider.
	ProviderName = "tusharepro"

	// DefaultBaseURL is the API endpoint.
	DefaultBaseURL = "http://api.tushare.pro"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	// Free tier accounts are throttled hard upstream.
	DefaultRateLimit = 1
)

// Client is a TusharePro API client. It implements the history, factors,
// financials and profile fetcher contracts.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter

	mu    sync.RWMutex
	token string
}

var (
	_ interfaces.HistoryFetcher    = (*Client)(nil)
	_ interfaces.FactorsFetcher    = (*Client)(nil)
	_ interfaces.FinancialsFetcher = (*Client)(nil)
	_ interfaces.ProfileFetcher    = (*Client)(nil)
)

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom API endpoint.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond float64) ClientOption {
	return func(c *Client) {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// NewClient creates a new TusharePro client. The token may be empty at
// construction and set later via SetToken.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewClientFromConfig creates a client from the provider configuration with
// no token; the app injects the token once the credential store yields one.
func NewClientFromConfig(cfg common.TushareConfig, logger arbor.ILogger) *Client {
	opts := []ClientOption{WithLogger(logger)}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, WithRateLimit(cfg.RateLimit))
	}
	if timeout, err := time.ParseDuration(cfg.Timeout); err == nil && timeout > 0 {
		opts = append(opts, WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return NewClient("", opts...)
}

// Name returns the provider's registry name.
func (c *Client) Name() string {
	return ProviderName
}

// SetToken replaces the account token. Safe under concurrent fetches.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = strings.TrimSpace(token)
}

// HasToken reports whether a token is configured.
func (c *Client) HasToken() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

// call posts one API request and unwraps the data envelope.
func (c *Client) call(ctx context.Context, apiName string, params map[string]string, fields string) (*apiData, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token == "" {
		return nil, fmt.Errorf("tushare token is not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait aborted: %w", err)
	}

	body, err := json.Marshal(apiRequest{
		APIName: apiName,
		Token:   token,
		Params:  params,
		Fields:  fields,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.logger != nil {
		c.logger.Debug().
			Str("api_name", apiName).
			Msg("Tushare request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, &APIError{
			APIName: apiName,
			Code:    resp.StatusCode,
			Message: strings.TrimSpace(string(raw)),
		}
	}

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if envelope.Code != 0 {
		return nil, &APIError{APIName: apiName, Code: envelope.Code, Message: envelope.Msg}
	}
	if envelope.Data == nil {
		return nil, fmt.Errorf("tushare %s returned no data", apiName)
	}

	return envelope.Data, nil
}

// Package eastmoney retrieves quote data from the Eastmoney public
// endpoints: kline history, realtime snapshots and the company profile
// pages. No credential is required, so the provider is always ready.
package eastmoney

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pretium/internal/common"
	"github.com/ternarybob/pretium/internal/interfaces"
	"github.com/ternarybob/pretium/internal/models"
	"golang.org/x/time/rate"
)

const (
	// ProviderName is the registry name of this provider.
	ProviderName = "eastmoney"

	// DefaultBaseURL is the kline history endpoint root.
	DefaultBaseURL = "https://push2his.eastmoney.com"

	// DefaultRealtimeURL is the realtime snapshot endpoint root.
	DefaultRealtimeURL = "https://push2.eastmoney.com"

	// DefaultProfileURL is the company profile pages root.
	DefaultProfileURL = "https://emweb.securities.eastmoney.com"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5

	// DefaultUserAgent mimics a desktop browser; the endpoints reject the
	// Go default agent.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// refererURL accompanies every request like the quote pages do.
	refererURL = "https://quote.eastmoney.com/"

	// utToken is the public access token the quote pages send.
	utToken = "fa5fd1943c7b386f1734de82599f7dc"
)

// Client is an Eastmoney endpoint client. It implements the history,
// realtime and profile fetcher contracts.
type Client struct {
	baseURL     string
	realtimeURL string
	profileURL  string
	userAgent   string
	httpClient  *http.Client
	logger      arbor.ILogger
	limiter     *rate.Limiter
}

var (
	_ interfaces.HistoryFetcher  = (*Client)(nil)
	_ interfaces.RealtimeFetcher = (*Client)(nil)
	_ interfaces.ProfileFetcher  = (*Client)(nil)
)

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom kline endpoint root.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithRealtimeURL sets a custom realtime endpoint root.
func WithRealtimeURL(realtimeURL string) ClientOption {
	return func(c *Client) {
		c.realtimeURL = strings.TrimRight(realtimeURL, "/")
	}
}

// WithProfileURL sets a custom profile pages root.
func WithProfileURL(profileURL string) ClientOption {
	return func(c *Client) {
		c.profileURL = strings.TrimRight(profileURL, "/")
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

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// NewClient creates a new Eastmoney client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		realtimeURL: DefaultRealtimeURL,
		profileURL:  DefaultProfileURL,
		userAgent:   DefaultUserAgent,
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

// NewClientFromConfig creates a client from the provider configuration.
// Empty config fields keep their defaults.
func NewClientFromConfig(cfg common.EastmoneyConfig, logger arbor.ILogger) *Client {
	opts := []ClientOption{WithLogger(logger)}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	if cfg.RealtimeURL != "" {
		opts = append(opts, WithRealtimeURL(cfg.RealtimeURL))
	}
	if cfg.ProfileURL != "" {
		opts = append(opts, WithProfileURL(cfg.ProfileURL))
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, WithRateLimit(cfg.RateLimit))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, WithUserAgent(cfg.UserAgent))
	}
	if timeout, err := time.ParseDuration(cfg.Timeout); err == nil && timeout > 0 {
		opts = append(opts, WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return NewClient(opts...)
}

// Name returns the provider's registry name.
func (c *Client) Name() string {
	return ProviderName
}

// do performs a rate-limited GET with the browser headers the endpoints
// expect. The caller closes the response body.
func (c *Client) do(ctx context.Context, rawURL string, params url.Values) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait aborted: %w", err)
	}

	reqURL := rawURL
	if len(params) > 0 {
		reqURL = rawURL + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", refererURL)

	if c.logger != nil {
		c.logger.Debug().
			Str("url", rawURL).
			Msg("Eastmoney request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Endpoint:   req.URL.Path,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	return resp, nil
}

// getJSON performs a GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, rawURL string, params url.Values, result interface{}) error {
	resp, err := c.do(ctx, rawURL, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// getDocument performs a GET and parses the response as HTML.
func (c *Client) getDocument(ctx context.Context, rawURL string, params url.Values) (*goquery.Document, error) {
	resp, err := c.do(ctx, rawURL, params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return doc, nil
}

// secIDsFor maps a canonical symbol to the Eastmoney security ids to try in
// order. CN exchanges resolve from the code prefix, US listings probe the
// NASDAQ, NYSE and AMEX ids.
func secIDsFor(market, symbol string) ([]string, error) {
	code, _ := models.SplitSymbol(symbol)
	switch market {
	case models.MarketCN:
		switch {
		case strings.HasPrefix(code, "6"):
			return []string{"1." + code}, nil
		case strings.HasPrefix(code, "0"), strings.HasPrefix(code, "3"),
			strings.HasPrefix(code, "4"), strings.HasPrefix(code, "8"), strings.HasPrefix(code, "9"):
			return []string{"0." + code}, nil
		}
		return nil, fmt.Errorf("cannot derive exchange for cn code %q", code)
	case models.MarketHK:
		return []string{"116." + code}, nil
	case models.MarketUS:
		return []string{"105." + code, "106." + code, "107." + code}, nil
	}
	return nil, fmt.Errorf("unsupported market %q", market)
}

// Package apiclient performs authenticated, rate-limited page fetches
// against the upstream REST APIs.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/northgate-data/ingest-cli/internal/resilience"
)

const bodyExcerptLimit = 200

// PageRequest describes one page fetch. Offset-style and cursor-style
// pagination are different wire protocols; UseCursor selects which one, and
// Page/Cursor are mutually exclusive accordingly.
type PageRequest struct {
	Endpoint  string
	PageSize  int
	Page      int    // 0-based page index (offset style)
	Cursor    string // opaque token (cursor style), empty on the first call
	Filter    string // optional server-side filter expression, e.g. "lastUpdated$gte:..."
	UseCursor bool
}

// Client fetches one page of an endpoint and returns the decoded JSON body.
type Client interface {
	FetchPage(ctx context.Context, req PageRequest) (json.RawMessage, error)
}

// Options configures an HTTPClient.
type Options struct {
	BaseURL       string
	Headers       map[string]string // auth headers, masked in diagnostics
	UserAgent     string
	Timeout       time.Duration // default 30s
	MaxRetries    int           // total attempts, default 3
	RatePerSecond rate.Limit    // default 5
}

// LedgerHeaders builds the two-token auth headers for the ledger API.
func LedgerHeaders(appSecretToken, agreementGrantToken string) map[string]string {
	return map[string]string{
		"X-AppSecretToken":      appSecretToken,
		"X-AgreementGrantToken": agreementGrantToken,
	}
}

// ShopHeaders builds the single-key auth header for the shop API.
func ShopHeaders(apiKey string) map[string]string {
	return map[string]string{
		"X-Api-Key": apiKey,
	}
}

// HTTPClient implements Client using net/http with rate limiting and
// transient-only retry. Beyond the network call it is side-effect free.
type HTTPClient struct {
	baseURL     string
	headers     map[string]string
	userAgent   string
	client      *http.Client
	limiter     *rate.Limiter
	retry       resilience.RetryConfig
	fingerprint string
}

// NewHTTPClient creates a client for one source API.
func NewHTTPClient(opts Options) *HTTPClient {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.RatePerSecond == 0 {
		opts.RatePerSecond = 5
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "ingest-cli/1.0"
	}

	var credentials []string
	for _, v := range opts.Headers {
		credentials = append(credentials, v)
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = opts.MaxRetries
	retry.ShouldRetry = isRetryable

	return &HTTPClient{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		headers:   opts.Headers,
		userAgent: opts.UserAgent,
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:     rate.NewLimiter(opts.RatePerSecond, int(opts.RatePerSecond)),
		retry:       retry,
		fingerprint: maskAll(credentials),
	}
}

// FetchPage issues one authenticated GET with pagination parameters and
// returns the decoded JSON body. Failures are typed so callers can decide
// retry eligibility; only transient ones are retried here.
func (c *HTTPClient) FetchPage(ctx context.Context, req PageRequest) (json.RawMessage, error) {
	if req.Endpoint == "" {
		return nil, eris.New("apiclient: empty endpoint path")
	}
	if req.PageSize < 1 || req.PageSize > 10000 {
		return nil, eris.Errorf("apiclient: page size %d out of range [1, 10000]", req.PageSize)
	}

	pageURL := c.buildURL(req)

	retry := c.retry
	retry.OnRetry = resilience.RetryLogger(c.baseURL, req.Endpoint)

	return resilience.Do(ctx, retry, func(ctx context.Context) (json.RawMessage, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "apiclient: rate limiter wait")
		}
		return c.fetchOnce(ctx, req.Endpoint, pageURL)
	})
}

func (c *HTTPClient) buildURL(req PageRequest) string {
	q := url.Values{}
	if req.UseCursor {
		q.Set("limit", strconv.Itoa(req.PageSize))
		if req.Cursor != "" {
			q.Set("cursor", req.Cursor)
		}
	} else {
		q.Set("pagesize", strconv.Itoa(req.PageSize))
		q.Set("skippages", strconv.Itoa(req.Page))
	}
	if req.Filter != "" {
		q.Set("filter", req.Filter)
	}
	return c.baseURL + "/" + req.Endpoint + "?" + q.Encode()
}

func (c *HTTPClient) fetchOnce(ctx context.Context, endpoint, pageURL string) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "apiclient: create request")
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(pageURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, bodyExcerptLimit))
		return nil, &APIError{
			StatusCode:  resp.StatusCode,
			BodyExcerpt: string(excerpt),
			Credentials: c.fingerprint,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(pageURL, err)
	}
	if !json.Valid(body) {
		return nil, &MalformedResponseError{Endpoint: endpoint, Err: eris.New("body is not valid JSON")}
	}
	return json.RawMessage(body), nil
}

// classifyTransportError distinguishes timeouts from other network failures
// so callers can reason about retry eligibility.
func classifyTransportError(pageURL string, err error) error {
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return &TimeoutError{URL: pageURL, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{URL: pageURL, Err: err}
	}
	return &ConnectionError{URL: pageURL, Err: err}
}

// isRetryable marks timeouts, connection failures and transient HTTP
// statuses as retry-eligible. Malformed responses and client errors are not.
func isRetryable(err error) bool {
	var te *TimeoutError
	var ce *ConnectionError
	if errors.As(err, &te) || errors.As(err, &ce) {
		return true
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return resilience.IsTransientHTTPStatus(ae.StatusCode)
	}
	return false
}

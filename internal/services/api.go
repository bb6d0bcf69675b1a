// Raw HTTP access to JSON APIs with rate limiting and retries
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/reel/internal/shared"
	"golang.org/x/time/rate"
)

// APIClient performs GET requests against a JSON API.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	attempts   uint
	delay      time.Duration
	logger     *log.Logger
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// IsJSON reports whether the body parses as JSON.
func (r *APIResponse) IsJSON() bool {
	return json.Valid(r.Body)
}

// StatusError is returned for non-2xx answers.
type StatusError struct {
	StatusCode int
	Path       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Path, e.StatusCode)
}

// Unwrap lets callers match [shared.ErrAPIRequest].
func (e *StatusError) Unwrap() error { return shared.ErrAPIRequest }

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// NewAPIClient creates a client rooted at baseURL. A zero rps disables rate limiting and
// attempts below one are raised to one.
func NewAPIClient(baseURL string, client *http.Client, rps float64, attempts uint, logger *log.Logger) *APIClient {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	if attempts < 1 {
		attempts = 1
	}

	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}

	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		limiter:    rate.NewLimiter(limit, burst),
		attempts:   attempts,
		delay:      250 * time.Millisecond,
		logger:     logger,
	}
}

// SetRetryDelay changes the base back-off between attempts.
func (a *APIClient) SetRetryDelay(d time.Duration) { a.delay = d }

// Get performs a GET request to path with query and returns the raw response of the
// first attempt that succeeds.
func (a *APIClient) Get(ctx context.Context, path string, query url.Values) (*APIResponse, error) {
	fullURL := a.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var resp *APIResponse
	err := retry.Do(
		func() error {
			r, err := a.do(ctx, fullURL, path)
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(a.attempts),
		retry.Delay(a.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			a.logger.Debug("retrying request", "path", path, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Retryable() {
			return nil, fmt.Errorf("%w: %w", shared.ErrServiceUnavailable, err)
		}
		return nil, err
	}
	return resp, nil
}

// GetJSON performs [APIClient.Get] and decodes the body into result.
func (a *APIClient) GetJSON(ctx context.Context, path string, query url.Values, result any) error {
	resp, err := a.Get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, result); err != nil {
		return fmt.Errorf("%w: failed to decode %s: %v", shared.ErrAPIRequest, path, err)
	}
	return nil
}

func (a *APIClient) do(ctx context.Context, fullURL, path string) (*APIResponse, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, retry.Unrecoverable(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrAPIRequest, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Path: path, Message: statusMessage(body)}
	}

	return &APIResponse{StatusCode: resp.StatusCode, Headers: resp.Header, Body: body}, nil
}

// isRetryable retries transport failures and 429/5xx answers.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}

// statusMessage extracts TMDB's status_message from an error body.
func statusMessage(body []byte) string {
	var payload struct {
		StatusMessage string `json:"status_message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.StatusMessage
}

// Package backend sends one multimodal prompt to one inference backend.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/chew-z/vision-dispatch/internal/api"
	"github.com/chew-z/vision-dispatch/internal/logging"
	"github.com/chew-z/vision-dispatch/internal/metrics"
	"github.com/chew-z/vision-dispatch/internal/models"
)

// RetryPolicy bounds retries of transient transport failures
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy returns three attempts five seconds apart
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 5 * time.Second}
}

// Options configures a Client
type Options struct {
	HTTPClient     *http.Client
	APIKey         string
	Retry          RetryPolicy
	AttemptTimeout time.Duration // zero means only the caller's context bounds an attempt
	Logger         *slog.Logger
}

// Client posts chat completion requests to backends
type Client struct {
	httpClient     *http.Client
	apiKey         string
	retry          RetryPolicy
	attemptTimeout time.Duration
	logger         *slog.Logger
}

// NewClient creates a backend client
func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = NewHTTPClient()
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry.MaxAttempts = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		httpClient:     opts.HTTPClient,
		apiKey:         opts.APIKey,
		retry:          opts.Retry,
		attemptTimeout: opts.AttemptTimeout,
		logger:         opts.Logger,
	}
}

// NewHTTPClient returns a client tuned for concurrent requests to a few hosts
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 50, // Default is 2, way too low for concurrent requests
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Query sends content to b and always returns an Outcome. Only transport
// failures are retried; any HTTP response ends the loop.
func (c *Client) Query(ctx context.Context, b models.Backend, content []api.ContentPart) Outcome {
	logger := logging.FromContext(ctx, c.logger).With("backend", b.Key, "model", b.Model)

	body, err := sonic.Marshal(api.ChatRequest{
		Model:     b.Model,
		Messages:  []api.Message{{Role: "user", Content: content}},
		MaxTokens: b.MaxTokens,
	})
	if err != nil {
		logger.Error("failed to encode backend request", "error", err)
		return failure(b.Key, ClassRequestError, fmt.Sprintf("failed to encode request for backend %s: %v", b.Key, err))
	}

	attempts := c.retry.MaxAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		status, respBody, err := c.post(ctx, b.Endpoint, body)
		if err == nil {
			outcome := interpret(b.Key, status, respBody)
			c.logAttempt(logger, b.Key, attempt, outcome.Class, slog.Int("status", status))
			return outcome
		}

		if ctx.Err() != nil {
			c.logAttempt(logger, b.Key, attempt, ClassCancelled, slog.Any("error", err))
			return cancelled(b.Key, ctx.Err())
		}

		if !IsTransient(err) {
			c.logAttempt(logger, b.Key, attempt, ClassRequestError, slog.Any("error", err))
			return failure(b.Key, ClassRequestError, fmt.Sprintf("request failed for backend %s: %v", b.Key, err))
		}

		c.logAttempt(logger, b.Key, attempt, ClassTransient, slog.Any("error", &TransientError{Attempt: attempt, Err: err}))

		if attempt < attempts {
			if err := wait(ctx, c.retry.Delay); err != nil {
				return cancelled(b.Key, err)
			}
		}
	}

	logger.Error("all retry attempts failed", "attempts", attempts)
	return failure(b.Key, ClassRetriesExhausted, fmt.Sprintf("all retry attempts failed for backend %s", b.Key))
}

// post performs one attempt and reads the whole body inside the attempt deadline
func (c *Client) post(ctx context.Context, endpoint string, body []byte) (int, []byte, error) {
	if c.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// logAttempt writes one record per attempt and counts it
func (c *Client) logAttempt(logger *slog.Logger, key string, attempt int, class Class, attr slog.Attr) {
	metrics.BackendAttempt(key, string(class))

	level := slog.LevelInfo
	switch class {
	case ClassTransient, ClassHTTPError, ClassUnexpectedFormat:
		level = slog.LevelWarn
	case ClassRequestError:
		level = slog.LevelError
	}
	logger.LogAttrs(context.Background(), level, "backend attempt",
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", c.retry.MaxAttempts),
		slog.String("outcome", string(class)),
		attr,
	)
}

// interpret converts a received HTTP response into an Outcome
func interpret(key string, status int, body []byte) Outcome {
	if status != http.StatusOK {
		return failure(key, ClassHTTPError, (&HTTPError{StatusCode: status, Body: string(body)}).Error())
	}

	var parsed api.ChatResponse
	if err := sonic.Unmarshal(body, &parsed); err != nil ||
		len(parsed.Choices) == 0 ||
		parsed.Choices[0].Message.Content == nil {
		// Malformed bodies stay success-shaped so the caller still sees the raw text
		return Outcome{
			Key:   key,
			OK:    true,
			Class: ClassUnexpectedFormat,
			Text:  (&ProtocolError{Body: string(body)}).Error(),
		}
	}

	return Outcome{
		Key:   key,
		OK:    true,
		Class: ClassAnswer,
		Text:  *parsed.Choices[0].Message.Content,
	}
}

// IsTransient reports whether err is a connection failure or timeout
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// wait sleeps for d unless ctx ends first
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

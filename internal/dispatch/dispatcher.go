// Package dispatch fans one prompt out to every configured backend and
// collects the answers into a fully keyed response.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chew-z/vision-dispatch/internal/api"
	"github.com/chew-z/vision-dispatch/internal/backend"
	"github.com/chew-z/vision-dispatch/internal/config"
	"github.com/chew-z/vision-dispatch/internal/logging"
	"github.com/chew-z/vision-dispatch/internal/metrics"
	"github.com/chew-z/vision-dispatch/internal/models"
	"golang.org/x/sync/errgroup"
)

// Placeholder is the value of a key whose backend has not produced an outcome
const Placeholder = "no response"

var (
	ErrNoBackends   = errors.New("no backends configured")
	ErrEmptyContent = errors.New("message has no content")
)

// Querier runs one backend invocation and never fails past its boundary
type Querier interface {
	Query(ctx context.Context, b models.Backend, content []api.ContentPart) backend.Outcome
}

// Options configures a Dispatcher
type Options struct {
	MaxConcurrency int // zero runs every backend at once
	Logger         *slog.Logger
}

// Dispatcher queries a fixed set of backends
type Dispatcher struct {
	client         Querier
	backends       []models.Backend
	maxConcurrency int
	logger         *slog.Logger
}

type result struct {
	key     string
	outcome backend.Outcome
}

// New creates a dispatcher over backends. The slice is copied.
func New(client Querier, backends []models.Backend, opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		client:         client,
		backends:       append([]models.Backend(nil), backends...),
		maxConcurrency: opts.MaxConcurrency,
		logger:         opts.Logger,
	}
}

// NewFromConfig wires a backend client and dispatcher from process configuration
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Dispatcher {
	client := backend.NewClient(backend.Options{
		APIKey: cfg.APIKey,
		Retry: backend.RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			Delay:       cfg.RetryDelay,
		},
		AttemptTimeout: cfg.AttemptTimeout,
		Logger:         logger,
	})
	return New(client, cfg.ResolvedBackends(), Options{
		MaxConcurrency: cfg.MaxConcurrency,
		Logger:         logger,
	})
}

// Backends returns the configured backends in order
func (d *Dispatcher) Backends() []models.Backend {
	return append([]models.Backend(nil), d.backends...)
}

// Dispatch queries every backend concurrently. The returned map always holds
// exactly one entry per configured backend; if ctx ends first, unfinished
// backends keep the placeholder. An error means the dispatch could not start.
func (d *Dispatcher) Dispatch(ctx context.Context, content []api.ContentPart) (api.AggregatedResponse, error) {
	if len(d.backends) == 0 {
		return nil, ErrNoBackends
	}
	if len(content) == 0 {
		return nil, ErrEmptyContent
	}

	logger := logging.FromContext(ctx, d.logger)
	start := time.Now()

	resp := make(api.AggregatedResponse, len(d.backends))
	for _, b := range d.backends {
		resp[b.Key] = Placeholder
	}

	results := make(chan result, len(d.backends))

	go func() {
		var g errgroup.Group
		if d.maxConcurrency > 0 {
			g.SetLimit(d.maxConcurrency)
		}
		for _, b := range d.backends {
			b := b
			g.Go(func() error {
				d.run(ctx, logger, b, content, results)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	for {
		select {
		case r, ok := <-results:
			if !ok {
				metrics.DispatchDuration("complete", time.Since(start))
				logger.Info("dispatch complete", "backends", len(d.backends), "duration", time.Since(start))
				return resp, nil
			}
			if abandoned(ctx, r) {
				continue
			}
			resp[r.key] = r.outcome.Display()

		case <-ctx.Done():
			// Take whatever already finished, leave the rest as placeholders
			drain(ctx, resp, results)
			metrics.DispatchDuration("deadline", time.Since(start))
			logger.Warn("dispatch deadline reached", "error", ctx.Err(), "duration", time.Since(start))
			return resp, nil
		}
	}
}

// run queries one backend; a panic leaves that backend's placeholder in place
func (d *Dispatcher) run(ctx context.Context, logger *slog.Logger, b models.Backend, content []api.ContentPart, results chan<- result) {
	defer func() {
		if p := recover(); p != nil {
			metrics.BackendOutcome(b.Key, "panic")
			logger.Error("backend task panicked", "backend", b.Key, "panic", p)
		}
	}()

	outcome := d.client.Query(ctx, b, content)
	metrics.BackendOutcome(b.Key, string(outcome.Class))
	results <- result{key: b.Key, outcome: outcome}
}

// abandoned reports a backend that gave up because ctx ended; its slot keeps the placeholder
func abandoned(ctx context.Context, r result) bool {
	return ctx.Err() != nil && r.outcome.Class == backend.ClassCancelled
}

func drain(ctx context.Context, resp api.AggregatedResponse, results <-chan result) {
	for {
		select {
		case r, ok := <-results:
			if !ok {
				return
			}
			if abandoned(ctx, r) {
				continue
			}
			resp[r.key] = r.outcome.Display()
		default:
			return
		}
	}
}

package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chew-z/vision-dispatch/internal/api"
	"github.com/chew-z/vision-dispatch/internal/backend"
	"github.com/chew-z/vision-dispatch/internal/config"
	"github.com/chew-z/vision-dispatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var textOnly = []api.ContentPart{{Type: api.ContentTypeText, Text: "hi"}}

var twoBackends = []models.Backend{
	{Key: "llama", Model: "scout", Endpoint: "http://unused", MaxTokens: 10},
	{Key: "llava", Model: "maverick", Endpoint: "http://unused", MaxTokens: 10},
}

// fakeQuerier answers per backend key with a canned behaviour
type fakeQuerier struct {
	mu       sync.Mutex
	calls    map[string]int
	behavior map[string]func(ctx context.Context) backend.Outcome
}

func newFake(behavior map[string]func(ctx context.Context) backend.Outcome) *fakeQuerier {
	return &fakeQuerier{calls: make(map[string]int), behavior: behavior}
}

func (f *fakeQuerier) Query(ctx context.Context, b models.Backend, _ []api.ContentPart) backend.Outcome {
	f.mu.Lock()
	f.calls[b.Key]++
	f.mu.Unlock()
	return f.behavior[b.Key](ctx)
}

func answer(key, text string) func(context.Context) backend.Outcome {
	return func(context.Context) backend.Outcome {
		return backend.Outcome{Key: key, OK: true, Class: backend.ClassAnswer, Text: text}
	}
}

func TestDispatch_AllSucceed(t *testing.T) {
	fake := newFake(map[string]func(context.Context) backend.Outcome{
		"llama": answer("llama", "scout says hi"),
		"llava": answer("llava", "maverick says hi"),
	})

	resp, err := New(fake, twoBackends, Options{}).Dispatch(context.Background(), textOnly)
	require.NoError(t, err)
	assert.Equal(t, api.AggregatedResponse{
		"llama": "scout says hi",
		"llava": "maverick says hi",
	}, resp)
	assert.Equal(t, 1, fake.calls["llama"])
	assert.Equal(t, 1, fake.calls["llava"])
}

func TestDispatch_FailureStaysInItsSlot(t *testing.T) {
	fake := newFake(map[string]func(context.Context) backend.Outcome{
		"llama": func(context.Context) backend.Outcome {
			return backend.Outcome{Key: "llama", Class: backend.ClassHTTPError, Text: "error 500: boom"}
		},
		"llava": answer("llava", "fine"),
	})

	resp, err := New(fake, twoBackends, Options{}).Dispatch(context.Background(), textOnly)
	require.NoError(t, err)
	assert.Equal(t, "error 500: boom", resp["llama"])
	assert.Equal(t, "fine", resp["llava"])
}

func TestDispatch_UsesConfiguredKeyNotOutcomeKey(t *testing.T) {
	fake := newFake(map[string]func(context.Context) backend.Outcome{
		"llama": answer("somebody-else", "a"),
		"llava": answer("llava", "b"),
	})

	resp, err := New(fake, twoBackends, Options{}).Dispatch(context.Background(), textOnly)
	require.NoError(t, err)
	assert.Len(t, resp, 2)
	assert.Equal(t, "a", resp["llama"])
}

func TestDispatch_PanicLeavesPlaceholder(t *testing.T) {
	fake := newFake(map[string]func(context.Context) backend.Outcome{
		"llama": func(context.Context) backend.Outcome { panic("unexpected fault") },
		"llava": answer("llava", "still here"),
	})

	resp, err := New(fake, twoBackends, Options{}).Dispatch(context.Background(), textOnly)
	require.NoError(t, err)
	assert.Equal(t, Placeholder, resp["llama"])
	assert.Equal(t, "still here", resp["llava"])
}

func TestDispatch_DeadlineKeepsPlaceholders(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	fake := newFake(map[string]func(context.Context) backend.Outcome{
		"llama": answer("llama", "quick"),
		"llava": func(context.Context) backend.Outcome {
			<-release
			return backend.Outcome{Key: "llava", OK: true, Text: "too late"}
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	resp, err := New(fake, twoBackends, Options{}).Dispatch(ctx, textOnly)
	require.NoError(t, err)
	assert.Equal(t, "quick", resp["llama"])
	assert.Equal(t, Placeholder, resp["llava"])
}

func TestDispatch_CancelledOutcomeAtDeadlineKeepsPlaceholder(t *testing.T) {
	fake := newFake(map[string]func(context.Context) backend.Outcome{
		"llama": func(ctx context.Context) backend.Outcome {
			<-ctx.Done()
			return backend.Outcome{
				Key:   "llama",
				Class: backend.ClassCancelled,
				Text:  "request cancelled for backend llama: " + ctx.Err().Error(),
			}
		},
		"llava": answer("llava", "quick"),
	})
	d := New(fake, twoBackends, Options{})

	for i := 0; i < 200; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Millisecond)
		resp, err := d.Dispatch(ctx, textOnly)
		cancel()

		require.NoError(t, err)
		require.Equal(t, Placeholder, resp["llama"], "run %d", i)
	}
}

func TestDispatch_RunsConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := func(key string) func(context.Context) backend.Outcome {
		return func(context.Context) backend.Outcome {
			n := inFlight.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(50 * time.Millisecond)
			inFlight.Add(-1)
			return backend.Outcome{Key: key, OK: true, Text: key}
		}
	}

	fake := newFake(map[string]func(context.Context) backend.Outcome{
		"llama": slow("llama"),
		"llava": slow("llava"),
	})

	_, err := New(fake, twoBackends, Options{}).Dispatch(context.Background(), textOnly)
	require.NoError(t, err)
	assert.Equal(t, int32(2), peak.Load())

	peak.Store(0)
	_, err = New(fake, twoBackends, Options{MaxConcurrency: 1}).Dispatch(context.Background(), textOnly)
	require.NoError(t, err)
	assert.Equal(t, int32(1), peak.Load())
}

func TestDispatch_OrchestrationErrors(t *testing.T) {
	fake := newFake(nil)

	_, err := New(fake, nil, Options{}).Dispatch(context.Background(), textOnly)
	assert.ErrorIs(t, err, ErrNoBackends)

	_, err = New(fake, twoBackends, Options{}).Dispatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyContent)

	assert.Empty(t, fake.calls)
}

func TestDispatch_KeysMatchConfigAcrossRuns(t *testing.T) {
	fake := newFake(map[string]func(context.Context) backend.Outcome{
		"llama": answer("llama", "a"),
		"llava": func(context.Context) backend.Outcome {
			return backend.Outcome{Key: "llava", Class: backend.ClassRetriesExhausted, Text: "all retry attempts failed for backend llava"}
		},
	})
	d := New(fake, twoBackends, Options{})

	for i := 0; i < 20; i++ {
		resp, err := d.Dispatch(context.Background(), textOnly)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"llama", "llava"}, keys(resp))
	}
}

// Two real mock upstreams: one fails with 500, the other answers.
func TestNewFromConfig_MixedUpstreams(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "model overloaded"}`))
	}))
	defer failing.Close()

	var hits atomic.Int32
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices": [{"message": {"content": "A cat on a mat."}}]}`))
	}))
	defer healthy.Close()

	cfg := config.DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.RetryDelay = time.Millisecond
	cfg.Backends = []models.Backend{
		{Key: "llama", Model: "scout", Endpoint: failing.URL},
		{Key: "llava", Model: "maverick", Endpoint: healthy.URL},
	}

	d := NewFromConfig(&cfg, nil)
	assert.Equal(t, []string{"llama", "llava"}, models.Keys(d.Backends()))

	resp, err := d.Dispatch(context.Background(), textOnly)
	require.NoError(t, err)
	assert.Contains(t, resp["llama"], "500")
	assert.Equal(t, "A cat on a mat.", resp["llava"])
	assert.Equal(t, int32(1), hits.Load())
}

func keys(resp api.AggregatedResponse) []string {
	out := make([]string, 0, len(resp))
	for k := range resp {
		out = append(out, k)
	}
	return out
}

package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

// flakyProvider fails a fixed number of times before succeeding.
type flakyProvider struct {
	failures int
	calls    int
}

func (f *flakyProvider) Name() string { return "flaky" }

func (f *flakyProvider) IsAvailable(ctx context.Context) bool { return true }

func (f *flakyProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("transient upstream error")
	}
	return &CompletionResponse{Text: "ok", Model: "flaky-1", TokensUsed: 7}, nil
}

func TestProxy_RetriesTransientFailures(t *testing.T) {
	retrySleepFunc = func(ctx context.Context, d time.Duration) error { return nil }
	defer func() {
		retrySleepFunc = func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		}
	}()

	provider := &flakyProvider{failures: 2}
	proxy := NewProxy(provider, Config{MaxRetries: 3}, zap.NewNop().Sugar())

	resp, err := proxy.Complete(context.Background(), CompletionRequest{Prompt: "hello"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Text != "ok" {
		t.Errorf("unexpected text: %s", resp.Text)
	}
	if provider.calls != 3 {
		t.Errorf("expected 3 provider calls, got %d", provider.calls)
	}
}

func TestProxy_ExhaustsRetries(t *testing.T) {
	retrySleepFunc = func(ctx context.Context, d time.Duration) error { return nil }
	defer func() {
		retrySleepFunc = func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		}
	}()

	provider := &flakyProvider{failures: 10}
	proxy := NewProxy(provider, Config{MaxRetries: 2}, zap.NewNop().Sugar())

	_, err := proxy.Complete(context.Background(), CompletionRequest{Prompt: "hello"})
	if err == nil {
		t.Fatal("expected error after retry budget")
	}
	if provider.calls != 2 {
		t.Errorf("expected 2 provider calls, got %d", provider.calls)
	}
}

func TestProxy_CachesCompletions(t *testing.T) {
	provider := &flakyProvider{}
	proxy := NewProxy(provider, Config{
		MaxRetries: 1,
		CacheTTL:   time.Minute,
		CacheDir:   t.TempDir(),
	}, zap.NewNop().Sugar())

	req := CompletionRequest{Prompt: "same prompt", Context: RoleContext{Role: "extractor"}}
	if _, err := proxy.Complete(context.Background(), req); err != nil {
		t.Fatalf("first Complete failed: %v", err)
	}
	if _, err := proxy.Complete(context.Background(), req); err != nil {
		t.Fatalf("second Complete failed: %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("expected cached second call, provider called %d times", provider.calls)
	}

	// A different prompt misses the cache.
	req.Prompt = "different prompt"
	if _, err := proxy.Complete(context.Background(), req); err != nil {
		t.Fatalf("third Complete failed: %v", err)
	}
	if provider.calls != 2 {
		t.Errorf("expected cache miss for new prompt, provider called %d times", provider.calls)
	}
}

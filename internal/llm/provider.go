// Package llm wraps the external proxy-agent endpoint: given a prompt and a
// role context, return a completion. Providers are black boxes with
// unspecified latency; the Proxy wrapper adds rate limiting, retries, and a
// completion cache on top.
package llm

import (
	"context"
	"time"

	"github.com/ppiankov/trawler/internal/model"
)

// RoleContext frames a completion request: which role the proxy plays and
// the system instructions for it.
type RoleContext struct {
	Role   string // e.g. "extractor", "scenario-author", "domain-service"
	System string // System prompt text
}

// CompletionRequest is one call to the proxy endpoint.
type CompletionRequest struct {
	Prompt      string
	Context     RoleContext
	Model       string // Overrides the configured default when set
	MaxTokens   int
	Temperature float64
}

// CompletionResponse is the proxy's answer.
type CompletionResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// Provider is one proxy backend.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Complete returns a completion for the prompt under the role context.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and reachable.
	IsAvailable(ctx context.Context) bool
}

// Config holds provider configuration.
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g. Ollama)
	BaseURL string

	// Timeout per API request
	Timeout time.Duration

	// MaxTokens for response generation
	MaxTokens int

	// MaxRetries for transient API failures
	MaxRetries int

	// RequestsPerSecond and Burst bound the call rate to the endpoint
	RequestsPerSecond float64
	Burst             int

	// CacheTTL for completion caching; zero disables the cache
	CacheTTL time.Duration
	CacheDir string
}

// ConfigFromModel converts the CLI-level proxy config.
func ConfigFromModel(pc model.ProxyConfig) Config {
	return Config{
		Provider:          pc.Provider,
		Model:             pc.Model,
		APIKey:            pc.APIKey,
		BaseURL:           pc.BaseURL,
		Timeout:           pc.Timeout,
		MaxTokens:         pc.MaxTokens,
		MaxRetries:        pc.MaxRetries,
		RequestsPerSecond: pc.RequestsPerSecond,
		Burst:             pc.Burst,
		CacheTTL:          pc.CacheTTL,
		CacheDir:          pc.CacheDir,
	}
}

// DefaultConfig returns sensible defaults with the provider disabled.
func DefaultConfig() Config {
	return Config{
		Timeout:           30 * time.Second,
		MaxTokens:         1500,
		MaxRetries:        3,
		RequestsPerSecond: 2,
		Burst:             4,
	}
}

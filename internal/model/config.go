package model

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the full runtime configuration, layered by the CLI:
// flags > TRAWLER_* env vars > ~/.trawler/config.yaml > defaults.
type Config struct {
	Store       StoreConfig       `yaml:"store"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Proxy       ProxyConfig       `yaml:"proxy"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Navigator   NavigatorConfig   `yaml:"navigator"`
	Parity      ParityConfig      `yaml:"parity"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Output      OutputConfig      `yaml:"output"`
}

// StoreConfig configures the knowledge store.
type StoreConfig struct {
	Path           string        `yaml:"path"`             // SQLite file
	LockTimeout    time.Duration `yaml:"lock_timeout"`     // Per-attempt entity lock wait
	MaxLockRetries int           `yaml:"max_lock_retries"` // Requeue attempts before giving up
}

// LedgerConfig configures the provenance ledger.
type LedgerConfig struct {
	Path string `yaml:"path"` // Append-only JSONL file
}

// ProxyConfig configures the external proxy-agent endpoint.
type ProxyConfig struct {
	Provider          string        `yaml:"provider"` // openai, anthropic, ollama
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"api_key,omitempty"`
	BaseURL           string        `yaml:"base_url,omitempty"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxTokens         int           `yaml:"max_tokens"`
	MaxRetries        int           `yaml:"max_retries"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	CacheTTL          time.Duration `yaml:"cache_ttl"` // Completion cache; 0 disables
	CacheDir          string        `yaml:"cache_dir"`
}

// FetchConfig configures source acquisition.
type FetchConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	UserAgent         string        `yaml:"user_agent"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	RespectRobots     bool          `yaml:"respect_robots"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // Per-host fetch rate; 0 disables
	Burst             int           `yaml:"burst"`
}

// NavigatorConfig bounds the validation loop and locates persisted state.
type NavigatorConfig struct {
	MaxCycles           int     `yaml:"max_cycles"`           // Validation loop ceiling, 3-5
	AcceptanceThreshold float64 `yaml:"acceptance_threshold"` // Pass rate required to deploy
	StateDir            string  `yaml:"state_dir"`            // Expedition state files
}

// ParityConfig configures the replacement gate.
type ParityConfig struct {
	MinTasks         int     `yaml:"min_tasks"`         // Matched task set floor
	ReplaceThreshold float64 `yaml:"replace_threshold"` // Routing flips at or above this score
}

// ConcurrencyConfig bounds parallel work.
type ConcurrencyConfig struct {
	Expeditions     int `yaml:"expeditions"`      // Concurrent navigators in batch mode
	ScenarioWorkers int `yaml:"scenario_workers"` // Concurrent scenario executions
}

// OutputConfig controls reporting.
type OutputConfig struct {
	Verbose bool   `yaml:"verbose"`
	DataDir string `yaml:"data_dir"` // Root for store, ledger, and state files
}

// DefaultConfig returns the built-in defaults. DataDir-relative paths are
// resolved by ResolvePaths once the final data dir is known.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".trawler")

	return &Config{
		Store: StoreConfig{
			Path:           "",
			LockTimeout:    5 * time.Second,
			MaxLockRetries: 4,
		},
		Ledger: LedgerConfig{Path: ""},
		Proxy: ProxyConfig{
			Provider:          "",
			Timeout:           30 * time.Second,
			MaxTokens:         1500,
			MaxRetries:        3,
			RequestsPerSecond: 2,
			Burst:             4,
			CacheTTL:          24 * time.Hour,
		},
		Fetch: FetchConfig{
			Timeout:           30 * time.Second,
			UserAgent:         "Trawler/0.1 (+https://github.com/ppiankov/trawler)",
			MaxBodyBytes:      2_000_000,
			RespectRobots:     true,
			RequestsPerSecond: 1,
			Burst:             2,
		},
		Navigator: NavigatorConfig{
			MaxCycles:           4,
			AcceptanceThreshold: 0.95,
			StateDir:            "",
		},
		Parity: ParityConfig{
			MinTasks:         10,
			ReplaceThreshold: 0.90,
		},
		Concurrency: ConcurrencyConfig{
			Expeditions:     4,
			ScenarioWorkers: 8,
		},
		Output: OutputConfig{
			Verbose: false,
			DataDir: dataDir,
		},
	}
}

// ResolvePaths fills store, ledger, cache, and state paths that were left
// empty, rooting them under the data dir.
func (c *Config) ResolvePaths() {
	dir := c.Output.DataDir
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(dir, "knowledge.db")
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = filepath.Join(dir, "provenance.jsonl")
	}
	if c.Navigator.StateDir == "" {
		c.Navigator.StateDir = filepath.Join(dir, "expeditions")
	}
	if c.Proxy.CacheDir == "" {
		c.Proxy.CacheDir = filepath.Join(dir, "cache")
	}
}

package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/trawler/internal/cache"
	"github.com/ppiankov/trawler/internal/extract"
	"github.com/ppiankov/trawler/internal/fetch"
	"github.com/ppiankov/trawler/internal/ledger"
	"github.com/ppiankov/trawler/internal/llm"
	"github.com/ppiankov/trawler/internal/logging"
	"github.com/ppiankov/trawler/internal/model"
	"github.com/ppiankov/trawler/internal/navigator"
	"github.com/ppiankov/trawler/internal/registry"
	"github.com/ppiankov/trawler/internal/store"
	"github.com/ppiankov/trawler/internal/synth"
)

// loadConfig layers the runtime configuration: defaults, then the config
// file viper located, then environment and flag overrides.
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()

	if path := viper.ConfigFileUsed(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if viper.GetBool("verbose") {
		cfg.Output.Verbose = true
	}
	if v := viper.GetString("proxy.provider"); v != "" {
		cfg.Proxy.Provider = v
	}
	if v := viper.GetString("proxy.model"); v != "" {
		cfg.Proxy.Model = v
	}
	if v := viper.GetString("output.data_dir"); v != "" {
		cfg.Output.DataDir = v
	}

	// Provider keys come from the conventional env vars, never from flags.
	if cfg.Proxy.APIKey == "" {
		switch cfg.Proxy.Provider {
		case "openai":
			cfg.Proxy.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic", "claude":
			cfg.Proxy.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if cfg.Proxy.BaseURL == "" && cfg.Proxy.Provider == "ollama" {
		cfg.Proxy.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}

	cfg.ResolvePaths()
	return cfg, nil
}

// app is the wired object graph behind every command that touches the
// factory. Close releases the store and ledger.
type app struct {
	cfg      *model.Config
	logger   *zap.SugaredLogger
	ledger   *ledger.Ledger
	store    *store.Store
	proxy    *llm.Proxy
	registry *registry.Registry
}

// buildApp assembles the shared components from configuration.
func buildApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Output.Verbose)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	led, err := ledger.Open(cfg.Ledger.Path, logger)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Store.Path, led, logger, store.Options{
		LockTimeout:    cfg.Store.LockTimeout,
		MaxLockRetries: cfg.Store.MaxLockRetries,
	})
	if err != nil {
		_ = led.Close()
		return nil, err
	}

	var proxy *llm.Proxy
	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.Proxy))
	if err != nil {
		_ = st.Close()
		_ = led.Close()
		return nil, err
	}
	if provider != nil {
		proxy = llm.NewProxy(provider, llm.ConfigFromModel(cfg.Proxy), logger)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		ledger:   led,
		store:    st,
		proxy:    proxy,
		registry: registry.New(st, st, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warnw("Store close failed", "error", err)
	}
	if err := a.ledger.Close(); err != nil {
		a.logger.Warnw("Ledger close failed", "error", err)
	}
	_ = a.logger.Sync()
}

// navigator wires a ready-to-run Navigator over the app's components.
func (a *app) navigator() (*navigator.Navigator, error) {
	if a.proxy == nil {
		return nil, fmt.Errorf("no proxy provider configured; set proxy.provider (openai, anthropic, ollama)")
	}

	var fetchCache cache.Cache
	if a.cfg.Proxy.CacheTTL > 0 && a.cfg.Proxy.CacheDir != "" {
		fetchCache = cache.NewLayeredCache(
			a.cfg.Proxy.CacheTTL,
			filepath.Join(a.cfg.Proxy.CacheDir, "fetch"),
			a.cfg.Proxy.CacheTTL,
		)
	}
	fetcher := fetch.NewFetcher(a.cfg.Fetch, fetchCache, a.logger)
	extractor := extract.New(a.proxy, a.logger)
	synthesizer := synth.New(a.store, a.proxy, a.logger)
	runner := &synth.EvidenceRunner{Facts: a.store}

	return navigator.New(navigator.Deps{
		Fetcher:     fetcher,
		Extractor:   extractor,
		Committer:   a.store,
		Synthesizer: synthesizer,
		Runner:      runner,
	}, a.cfg.Navigator, a.cfg.Concurrency.ScenarioWorkers, a.logger), nil
}

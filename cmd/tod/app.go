package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/erentorlak/todv2/internal/api"
	"github.com/erentorlak/todv2/internal/capability"
	"github.com/erentorlak/todv2/internal/catalog"
	"github.com/erentorlak/todv2/internal/config"
	"github.com/erentorlak/todv2/internal/orchestrator"
	"github.com/erentorlak/todv2/internal/state"
	"github.com/erentorlak/todv2/internal/tools"
)

// app is everything a command needs to hold a conversation.
type app struct {
	cfg     *config.Config
	catalog *catalog.Live
	store   state.Store
	engine  *orchestrator.Engine
	emitter *orchestrator.EventEmitter
	logger  *orchestrator.DebugLogger
	backend string
}

type appOptions struct {
	// ephemeral keeps sessions in memory only.
	ephemeral bool
	// debugLog, when set, traces every stage transition to this file.
	debugLog string
	// trace, when set and debugLog is not, receives the same trace.
	trace io.Writer
	// events attaches an event emitter for the TUI.
	events bool
	// registerer receives the engine metrics; nil means the default registry.
	registerer prometheus.Registerer
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	reg, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	caps, backend, err := newCapabilities(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var store state.Store
	if opts.ephemeral {
		store = state.NewMemory()
	} else {
		db, err := state.OpenAndMigrate(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		store = db
	}

	a := &app{
		cfg:     cfg,
		catalog: catalog.NewLive(reg, cfg.Dialog.CatalogPath, cfg.Dialog.StrictCatalog),
		store:   store,
		logger:  orchestrator.NopLogger(),
		backend: backend,
	}

	if opts.debugLog != "" {
		logger, err := orchestrator.NewDebugLogger(opts.debugLog)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("open debug log: %w", err)
		}
		a.logger = logger
	} else if opts.trace != nil {
		a.logger = orchestrator.NewWriterLogger(opts.trace)
	}

	metrics := orchestrator.DefaultMetrics()
	if opts.registerer != nil {
		metrics = orchestrator.MustNewMetrics(opts.registerer)
	}

	engineOpts := []orchestrator.Option{
		orchestrator.WithCapabilities(caps),
		orchestrator.WithMaxRetries(cfg.Dialog.MaxRetries),
		orchestrator.WithMaxParallel(cfg.Dialog.MaxParallel),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithLogger(a.logger),
	}
	if opts.events {
		a.emitter = orchestrator.NewEventEmitter(256)
		engineOpts = append(engineOpts, orchestrator.WithEventEmitter(a.emitter))
	}

	a.engine = orchestrator.New(orchestrator.RequiredConfig{
		Catalog: a.catalog,
		Tools:   tools.Travel(),
		Store:   store,
	}, engineOpts...)
	return a, nil
}

// Close releases the store, the debug log and the event stream.
func (a *app) Close() error {
	if a.emitter != nil {
		a.emitter.Close()
	}
	return errors.Join(a.logger.Close(), a.store.Close())
}

// loadCatalog returns the configured catalogue, or the built-in travel one.
func loadCatalog(cfg *config.Config) (*catalog.Registry, error) {
	if cfg.Dialog.CatalogPath == "" {
		return catalog.Default(), nil
	}
	reg, err := catalog.Load(cfg.Dialog.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if err := reg.Validate(cfg.Dialog.StrictCatalog); err != nil {
		return nil, fmt.Errorf("validate catalog %s: %w", cfg.Dialog.CatalogPath, err)
	}
	return reg, nil
}

// newCapabilities builds the classifier, extractor and generator for the
// configured provider. A model provider without credentials falls back to
// the offline rules with a warning.
func newCapabilities(ctx context.Context, cfg *config.Config) (capability.Set, string, error) {
	offline := capability.Set{
		Classifier: capability.NameClassifier{},
		Extractor:  capability.PatternExtractor{},
	}

	var (
		llm    api.Completer
		client interface{ Model() string }
	)
	switch cfg.LLM.Provider {
	case config.ProviderNone:
		return offline, "offline", nil

	case config.ProviderAnthropic, config.ProviderBedrock:
		bedrock := cfg.LLM.Provider == config.ProviderBedrock
		var key string
		if !bedrock {
			var err error
			if key, err = config.GetAPIKey(cfg, config.ProviderAnthropic); err != nil {
				log.Printf("[tod] %v; using offline rules (set llm.provider=none to silence this)", err)
				return offline, "offline", nil
			}
		}
		c, err := api.NewAnthropicClient(ctx, api.AnthropicConfig{
			Model:         cfg.LLM.Model,
			APIKey:        key,
			UseAWSBedrock: bedrock,
			AWSRegion:     cfg.AWS.Region,
			AWSProfile:    cfg.AWS.Profile,
			Roles:         cfg.LLM.APIRoles(),
		})
		if err != nil {
			return capability.Set{}, "", fmt.Errorf("create %s client: %w", cfg.LLM.Provider, err)
		}
		llm, client = c, c

	case config.ProviderGoogle:
		key, err := config.GetAPIKey(cfg, config.ProviderGoogle)
		if err != nil {
			log.Printf("[tod] %v; using offline rules (set llm.provider=none to silence this)", err)
			return offline, "offline", nil
		}
		c, err := api.NewGeminiClient(ctx, api.GeminiConfig{
			Model:  cfg.LLM.Model,
			APIKey: key,
			Roles:  cfg.LLM.APIRoles(),
		})
		if err != nil {
			return capability.Set{}, "", fmt.Errorf("create gemini client: %w", err)
		}
		llm, client = c, c

	default:
		return capability.Set{}, "", fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}

	return capability.Set{
		Classifier: capability.NewLLMClassifier(llm, cfg.Dialog.ClassifierCacheSize),
		Extractor:  capability.NewLLMExtractor(llm),
		Generator:  capability.NewLLMGenerator(llm),
	}, cfg.LLM.Provider + "/" + client.Model(), nil
}

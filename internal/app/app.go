// Package app is the composition root. It builds every process-wide
// collaborator once from the configuration and hands them to the service.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/phuslu/log"

	"github.com/seenimoa/diligence/internal/aggregate"
	"github.com/seenimoa/diligence/internal/config"
	"github.com/seenimoa/diligence/internal/currency"
	"github.com/seenimoa/diligence/internal/diligence"
	"github.com/seenimoa/diligence/internal/infra"
	"github.com/seenimoa/diligence/internal/llm"
	"github.com/seenimoa/diligence/internal/provider"
	"github.com/seenimoa/diligence/internal/providers"
	"github.com/seenimoa/diligence/internal/storage"
	"github.com/seenimoa/diligence/internal/synth"
)

// App holds the wired components.
type App struct {
	Config    *config.Config
	Logger    *log.Logger
	Stores    *storage.Stores
	Cache     *infra.Cache
	Converter *currency.Converter
	Registry  *provider.Registry
	Skipped   []providers.Skipped
	Router    *llm.Router
	Service   *diligence.Service

	// LLMErr is why no generative backend could be built, if any.
	LLMErr error
}

// Option configures New.
type Option func(*options)

type options struct {
	observer aggregate.Observer
	rates    currency.RateSource
}

// WithObserver receives the progress events of every request.
func WithObserver(o aggregate.Observer) Option {
	return func(opts *options) { opts.observer = o }
}

// WithRateSource replaces the exchange-rate client.
func WithRateSource(src currency.RateSource) Option {
	return func(opts *options) { opts.rates = src }
}

// New wires the application. A missing generative backend is not an error
// here; the service reports it as misconfiguration on every request.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = &log.DefaultLogger
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	stores, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, Stores: stores}

	a.Cache = infra.NewCache(stores.Cache, cfg.Cache.TTL(), infra.WithCacheLogger(logger))

	rates := o.rates
	if rates == nil {
		rates = currency.NewExchangeRateClient(cfg.Currency.BaseURL, cfg.Currency.APIKey)
	}
	a.Converter = currency.NewConverter(rates, a.Cache, logger)

	a.Registry = provider.NewRegistry()
	a.Skipped, err = providers.RegisterAllTo(a.Registry, cfg.Providers, cfg.Cache.TTL(), provider.Deps{
		Cache:     a.Cache,
		Converter: a.Converter,
		Logger:    logger,
	})
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("register providers: %w", err)
	}
	for _, s := range a.Skipped {
		logger.Info().Str("provider", s.Name).Str("reason", s.Reason).Msg("provider skipped")
	}

	var backend synth.Backend
	a.Router, a.LLMErr = llm.NewRouterFromConfig(cfg.LLM, logger)
	if a.LLMErr != nil {
		if !errors.Is(a.LLMErr, llm.ErrNoProviders) {
			stores.Close()
			return nil, fmt.Errorf("llm setup failed: %w", a.LLMErr)
		}
		logger.Warn().Err(a.LLMErr).Msg("no generative backend configured")
	} else {
		backend = a.Router
		logger.Info().Strs("chain", a.Router.Chain()).Msg("generative backends ready")
	}

	synthesizer := synth.New(backend, synth.Options{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout(),
	}, synth.WithLogger(logger))

	a.Service = diligence.New(diligence.Config{
		Aggregator:  aggregate.New(a.Registry, cfg.Orchestrator.Timeout(), logger),
		Synthesizer: synthesizer,
		Store:       stores.Reports,
		Registry:    a.Registry,
		Ready:       a.ready,
		Observer:    o.observer,
		Logger:      logger,
	})
	return a, nil
}

func (a *App) ready() error {
	if a.Router == nil {
		if a.LLMErr != nil {
			return a.LLMErr
		}
		return llm.ErrNoProviders
	}
	return nil
}

// Close releases the storage backends.
func (a *App) Close() error {
	if a.Stores == nil {
		return nil
	}
	return a.Stores.Close()
}

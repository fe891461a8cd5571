// Package providers builds the concrete data-provider adapters from
// configuration and registers them with a provider registry.
package providers

import (
	"errors"
	"fmt"
	"time"

	"github.com/seenimoa/diligence/internal/config"
	"github.com/seenimoa/diligence/internal/infra"
	"github.com/seenimoa/diligence/internal/provider"
	"github.com/seenimoa/diligence/internal/providers/analyst"
	"github.com/seenimoa/diligence/internal/providers/funding"
	"github.com/seenimoa/diligence/internal/providers/market"
	"github.com/seenimoa/diligence/internal/providers/network"
	"github.com/seenimoa/diligence/internal/providers/news"
	"github.com/seenimoa/diligence/internal/providers/sec"
)

// Skipped records an adapter that was not registered and why.
type Skipped struct {
	Name   string
	Reason string
}

// Settings converts one provider section into adapter settings.
func Settings(pc config.ProviderConfig, cacheTTL time.Duration) provider.Settings {
	return provider.Settings{
		APIKey:  pc.APIKey,
		BaseURL: pc.BaseURL,
		RateLimit: infra.RateLimitConfig{
			MaxRequests: pc.MaxRequests,
			Window:      pc.Window(),
		},
		Timeout:  pc.Timeout(),
		CacheTTL: cacheTTL,
		Retry: infra.RetryOptions{
			Retries:   pc.Retries,
			BaseDelay: pc.BaseDelay(),
			MaxDelay:  pc.MaxDelay(),
		},
	}
}

// RegisterAllTo creates every enabled adapter and registers it. Adapters
// that are disabled or lack a required credential are skipped and reported;
// any other construction error aborts.
func RegisterAllTo(reg *provider.Registry, cfg config.ProvidersConfig, cacheTTL time.Duration, deps provider.Deps) ([]Skipped, error) {
	type builder struct {
		name string
		pc   config.ProviderConfig
		new  func(provider.Settings) (provider.Adapter, error)
	}
	builders := []builder{
		{"market", cfg.Market, func(s provider.Settings) (provider.Adapter, error) { return market.New(s, deps) }},
		{"news", cfg.News, func(s provider.Settings) (provider.Adapter, error) { return news.New(s, deps, cfg.NewsRSSURL) }},
		{"sec", cfg.SEC, func(s provider.Settings) (provider.Adapter, error) {
			return sec.New(s, deps, sec.Options{UserAgent: cfg.SECUserAgent, TickersURL: cfg.SECTickersURL})
		}},
		{"network", cfg.Network, func(s provider.Settings) (provider.Adapter, error) { return network.New(s, deps) }},
		{"funding", cfg.Funding, func(s provider.Settings) (provider.Adapter, error) { return funding.New(s, deps) }},
		{"analyst", cfg.Analyst, func(s provider.Settings) (provider.Adapter, error) { return analyst.New(s, deps) }},
	}

	var skipped []Skipped
	for _, b := range builders {
		if !b.pc.Enabled {
			skipped = append(skipped, Skipped{Name: b.name, Reason: "disabled"})
			continue
		}
		a, err := b.new(Settings(b.pc, cacheTTL))
		if err != nil {
			var credErr *provider.ErrInvalidCredentials
			if errors.As(err, &credErr) {
				skipped = append(skipped, Skipped{Name: b.name, Reason: credErr.Detail})
				if deps.Logger != nil {
					deps.Logger.Warn().Str("provider", b.name).Str("reason", credErr.Detail).Msg("provider not registered")
				}
				continue
			}
			return skipped, fmt.Errorf("build provider %s: %w", b.name, err)
		}
		if err := reg.Register(a); err != nil {
			return skipped, err
		}
	}
	return skipped, nil
}

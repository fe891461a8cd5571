// Package provider defines the adapter abstraction for external company-data
// sources. Every adapter fetches one company through the same pipeline
// (cache, rate limit, retry, normalize, cache write) and reports a tagged
// Result instead of an error.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/phuslu/log"

	"github.com/seenimoa/diligence/internal/infra"
	"github.com/seenimoa/diligence/pkg/utils"
)

// ProviderCredential describes a credential for a provider.
type ProviderCredential struct {
	Name        string `json:"name"`        // e.g., "api_key"
	Description string `json:"description"` // e.g., "NewsAPI key from newsapi.org"
	Required    bool   `json:"required"`
	EnvVar      string `json:"env_var"` // environment variable name, e.g., "DILIGENCE_PROVIDERS_NEWS_API_KEY"
}

// ProviderInfo holds metadata about a registered provider.
type ProviderInfo struct {
	Name        string               `json:"name"`        // e.g., "market", "sec"
	Description string               `json:"description"` // human-readable description
	Website     string               `json:"website"`
	Credentials []ProviderCredential `json:"credentials"`
	MaxRequests int                  `json:"max_requests"`
	WindowSecs  int                  `json:"window_seconds"`
}

// Adapter is the interface every data provider implements.
type Adapter interface {
	// Info returns metadata about this provider.
	Info() ProviderInfo

	// Fetch retrieves and normalizes data for one company. It never panics
	// and never returns an error; failures are encoded in the Result.
	Fetch(ctx context.Context, company string) Result
}

// CurrencyConverter converts monetary amounts between ISO 4217 currencies.
type CurrencyConverter interface {
	ConvertAmount(ctx context.Context, amount any, from, to string) float64
}

// Deps are the process-wide collaborators shared by every adapter.
type Deps struct {
	Cache     *infra.Cache
	Converter CurrencyConverter
	Logger    *log.Logger
}

// FX returns the configured converter, or one that leaves amounts unchanged.
func (d Deps) FX() CurrencyConverter {
	if d.Converter == nil {
		return identityConverter{}
	}
	return d.Converter
}

type identityConverter struct{}

func (identityConverter) ConvertAmount(_ context.Context, amount any, _, _ string) float64 {
	switch v := amount.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		f, _ := utils.ParseNumber(v)
		return f
	}
	return 0
}

// BearerHeaders returns JSON request headers with a bearer token.
func BearerHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + token,
		"Accept":        "application/json",
	}
}

// Sentinel errors adapters return from their fetch step. Run maps them to
// Result variants.
var (
	// ErrNoMatch means the provider was reached but knows nothing about the company.
	ErrNoMatch = errors.New("no match for company")

	// ErrMalformed means the upstream response did not have the expected shape.
	ErrMalformed = errors.New("malformed provider response")

	// ErrRateLimited means the upstream signalled quota exhaustion.
	ErrRateLimited = errors.New("rate limited by provider")

	// ErrUnauthorized means the credentials were rejected.
	ErrUnauthorized = errors.New("provider rejected credentials")
)

// ErrProviderNotFound is returned when a requested provider is not registered.
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return fmt.Sprintf("provider %q not found", e.Name)
}

// ErrInvalidCredentials is returned when provider credentials are missing or invalid.
type ErrInvalidCredentials struct {
	Provider string
	Detail   string
}

func (e *ErrInvalidCredentials) Error() string {
	return fmt.Sprintf("invalid credentials for provider %q: %s", e.Provider, e.Detail)
}

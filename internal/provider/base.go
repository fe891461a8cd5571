package provider

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/phuslu/log"

	"github.com/seenimoa/diligence/internal/infra"
)

// DefaultTimeout bounds a single provider fetch including its retries.
const DefaultTimeout = 60 * time.Second

// Settings is the per-provider configuration shared by all adapters.
type Settings struct {
	APIKey    string
	BaseURL   string
	RateLimit infra.RateLimitConfig
	Timeout   time.Duration
	CacheTTL  time.Duration
	Retry     infra.RetryOptions
}

// BaseAdapter provides the shared fetch pipeline for adapter implementations.
// Embed it in concrete adapters and call Run from Fetch.
type BaseAdapter struct {
	info     ProviderInfo
	settings Settings
	cache    *infra.Cache
	limiter  *infra.RateLimiter
	logger   *log.Logger
}

// NewBaseAdapter validates credentials and builds the adapter's private
// rate limiter. The cache is shared across adapters; keys are namespaced
// by provider name.
func NewBaseAdapter(info ProviderInfo, s Settings, cache *infra.Cache, logger *log.Logger) (BaseAdapter, error) {
	for _, cred := range info.Credentials {
		if cred.Required && s.APIKey == "" {
			return BaseAdapter{}, &ErrInvalidCredentials{
				Provider: info.Name,
				Detail:   "missing required credential: " + cred.Name,
			}
		}
	}

	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.Retry.BaseDelay <= 0 {
		s.Retry = infra.DefaultRetryOptions()
	}
	limiter, err := infra.NewRateLimiter(s.RateLimit.MaxRequests, s.RateLimit.Window)
	if err != nil {
		return BaseAdapter{}, fmt.Errorf("provider %q: %w", info.Name, err)
	}
	if cache == nil {
		cache = infra.NewCache(nil, s.CacheTTL)
	}
	if logger == nil {
		logger = &log.DefaultLogger
	}

	info.MaxRequests = s.RateLimit.MaxRequests
	info.WindowSecs = int(s.RateLimit.Window / time.Second)

	return BaseAdapter{
		info:     info,
		settings: s,
		cache:    cache,
		limiter:  limiter,
		logger:   logger,
	}, nil
}

func (b *BaseAdapter) Info() ProviderInfo          { return b.info }
func (b *BaseAdapter) Name() string                { return b.info.Name }
func (b *BaseAdapter) Settings() Settings          { return b.settings }
func (b *BaseAdapter) Logger() *log.Logger         { return b.logger }
func (b *BaseAdapter) Limiter() *infra.RateLimiter { return b.limiter }

// Run executes the adapter pipeline for company: cache lookup, rate-limit
// wait, retried fetch, cache write. fetch performs the network calls and
// normalization; ErrNoMatch from it yields an Empty result. Panics inside
// fetch are recovered into an UpstreamError failure.
func Run[T any](ctx context.Context, b *BaseAdapter, company string, fetch func(ctx context.Context) (T, error)) (res Result) {
	name := b.info.Name
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Str("provider", name).Str("company", company).Msgf("adapter panic: %v", r)
			res = Failure(name, KindUpstreamError, fmt.Sprintf("internal error: %v", r))
		}
		res.Latency = time.Since(start)
	}()

	key := CacheKey(name, company)
	if cached, ok := infra.GetJSON[T](ctx, b.cache, key); ok {
		r := Success(name, cached)
		r.Cached = true
		return r
	}

	ctx, cancel := context.WithTimeout(ctx, b.settings.Timeout)
	defer cancel()

	if err := b.limiter.WaitForSlot(ctx); err != nil {
		b.logger.Warn().Str("provider", name).Str("company", company).Err(err).Msg("gave up waiting for rate-limit slot")
		return Failure(name, KindTimeout, "waiting for rate-limit slot: "+err.Error())
	}

	opts := b.settings.Retry
	userShouldRetry := opts.ShouldRetry
	opts.ShouldRetry = func(err error) bool {
		if errors.Is(err, ErrNoMatch) {
			return false
		}
		if userShouldRetry != nil {
			return userShouldRetry(err)
		}
		return infra.IsRetryableHTTP(err)
	}
	opts.OnRetry = func(attempt int, delay time.Duration, err error) {
		b.logger.Info().
			Str("provider", name).
			Str("company", company).
			Int("attempt", attempt).
			Dur("delay", delay).
			Err(err).
			Msg("retrying provider call")
	}

	data, err := infra.Retry(ctx, fetch, opts)
	if err != nil {
		if errors.Is(err, ErrNoMatch) {
			return Empty(name, err.Error())
		}
		kind := Classify(err)
		b.logger.Warn().Str("provider", name).Str("company", company).Str("kind", string(kind)).Err(err).Msg("provider fetch failed")
		return Failure(name, kind, err.Error())
	}

	infra.SetJSON(ctx, b.cache, key, data, b.settings.CacheTTL)
	return Success(name, data)
}

var spaceRun = regexp.MustCompile(`\s+`)

// NormalizeCompany lower-cases and collapses whitespace in a company identifier.
func NormalizeCompany(company string) string {
	return spaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(company)), " ")
}

// CacheKey builds the cache key for one provider and company.
func CacheKey(provider, company string) string {
	return "provider:" + provider + ":" + NormalizeCompany(company)
}

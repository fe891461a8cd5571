package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"

	"github.com/seenimoa/diligence/internal/config"
	"github.com/seenimoa/diligence/internal/infra"
)

// Router routes LLM requests to the primary provider and falls back along
// a configured chain when it fails.
type Router struct {
	mu         sync.RWMutex
	providers  map[string]LLMProvider
	primary    string
	fallbacks  []string
	maxRetries int
	retryDelay time.Duration
	logger     *log.Logger
}

// RouterOption configures the router.
type RouterOption func(*Router)

// WithFallbacks sets the fallback provider chain.
func WithFallbacks(providers ...string) RouterOption {
	return func(r *Router) { r.fallbacks = providers }
}

// WithMaxRetries sets the maximum number of retry attempts per provider.
func WithMaxRetries(n int) RouterOption {
	return func(r *Router) { r.maxRetries = n }
}

// WithRetryDelay sets the base delay between retries.
func WithRetryDelay(d time.Duration) RouterOption {
	return func(r *Router) { r.retryDelay = d }
}

// WithLogger sets the logger used to report retries and fallbacks.
func WithLogger(logger *log.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRouter creates a new LLM router with the given primary provider.
func NewRouter(primary string, opts ...RouterOption) *Router {
	r := &Router{
		providers:  make(map[string]LLMProvider),
		primary:    primary,
		maxRetries: 2,
		retryDelay: 1 * time.Second,
		logger:     &log.DefaultLogger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterProvider adds a provider to the router.
func (r *Router) RegisterProvider(provider LLMProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.Name()] = provider
}

// GetProvider returns a registered provider by name.
func (r *Router) GetProvider(name string) (LLMProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Primary returns the primary provider.
func (r *Router) Primary() (LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[r.primary]
	if !ok {
		return nil, fmt.Errorf("%w: primary provider %q not registered", ErrNoProviders, r.primary)
	}
	return p, nil
}

// Chat routes a chat request through the provider chain with fallback.
// Transient failures are retried on the same provider first. Any other
// failure moves on to the next provider, except cancellation and prompts
// that no backend can accept.
func (r *Router) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	var (
		lastErr error
		tried   int
	)
	for _, name := range r.providerChain() {
		provider, ok := r.GetProvider(name)
		if !ok {
			continue
		}
		tried++

		resp, err := r.chatWithRetry(ctx, provider, messages, opts)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrContextLength) {
			return nil, err
		}
		r.logger.Warn().Str("provider", name).Err(err).Msg("llm provider failed, trying next")
	}
	if tried == 0 {
		return nil, ErrNoProviders
	}
	return nil, fmt.Errorf("llm/router: all providers failed, last error: %w", lastErr)
}

// HealthCheck pings all registered providers and returns their status.
func (r *Router) HealthCheck(ctx context.Context) map[string]error {
	r.mu.RLock()
	providers := make(map[string]LLMProvider, len(r.providers))
	for k, v := range r.providers {
		providers[k] = v
	}
	r.mu.RUnlock()

	results := make(map[string]error, len(providers))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, provider := range providers {
		wg.Add(1)
		go func(n string, p LLMProvider) {
			defer wg.Done()
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			err := p.Ping(pingCtx)
			mu.Lock()
			results[n] = err
			mu.Unlock()
		}(name, provider)
	}

	wg.Wait()
	return results
}

// Name returns the name of the primary provider (satisfies LLMProvider).
func (r *Router) Name() string {
	return "router/" + r.primary
}

// Ping checks the primary provider's health (satisfies LLMProvider).
func (r *Router) Ping(ctx context.Context) error {
	p, err := r.Primary()
	if err != nil {
		return err
	}
	return p.Ping(ctx)
}

// ProviderNames returns the sorted names of all registered providers.
func (r *Router) ProviderNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Chain returns the registered providers in the order Chat tries them.
func (r *Router) Chain() []string {
	var out []string
	for _, name := range r.providerChain() {
		if _, ok := r.GetProvider(name); ok {
			out = append(out, name)
		}
	}
	return out
}

// ── Internal Helpers ──

func (r *Router) providerChain() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain := []string{r.primary}
	for _, fb := range r.fallbacks {
		if fb != r.primary {
			chain = append(chain, fb)
		}
	}
	return chain
}

func (r *Router) chatWithRetry(ctx context.Context, provider LLMProvider, messages []Message, opts *ChatOptions) (*Response, error) {
	return infra.Retry(ctx, func(ctx context.Context) (*Response, error) {
		return provider.Chat(ctx, messages, opts)
	}, infra.RetryOptions{
		Retries:     r.maxRetries,
		BaseDelay:   r.retryDelay,
		MaxDelay:    8 * r.retryDelay,
		ShouldRetry: isTransient,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			r.logger.Debug().Str("provider", provider.Name()).Int("attempt", attempt).Dur("delay", delay).Err(err).Msg("retrying llm call")
		},
	})
}

// isTransient reports whether a failed call may succeed when repeated.
func isTransient(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}

// preferredOrder is used to pick a primary when none is configured.
var preferredOrder = []string{ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderOllama}

// NewRouterFromConfig creates a fully configured Router from the
// generative backend config. Backends without credentials are skipped.
// It returns ErrNoProviders when no backend is usable.
func NewRouterFromConfig(cfg config.LLMConfig, logger *log.Logger) (*Router, error) {
	client := &http.Client{Timeout: cfg.Timeout()}
	var available []LLMProvider

	if cfg.OpenAIKey != "" {
		model := cfg.Model
		if !strings.HasPrefix(model, "gpt") && !strings.HasPrefix(model, "o") {
			model = ""
		}
		p, err := NewOpenAIProvider(cfg.OpenAIKey,
			WithOpenAIBaseURL(cfg.OpenAIURL),
			WithOpenAIModel(model),
			WithOpenAIHTTPClient(client),
		)
		if err == nil {
			available = append(available, p)
		}
	}

	if cfg.AnthropicKey != "" {
		p, err := NewAnthropicProvider(cfg.AnthropicKey,
			WithAnthropicModel(defaultAnthropicModel(cfg.Model)),
			WithAnthropicHTTPClient(client),
		)
		if err == nil {
			available = append(available, p)
		}
	}

	if cfg.GeminiKey != "" {
		p, err := NewGeminiProvider(cfg.GeminiKey,
			WithGeminiModel(defaultGeminiModel(cfg.Model)),
			WithGeminiHTTPClient(client),
		)
		if err == nil {
			available = append(available, p)
		} else if logger != nil {
			logger.Warn().Err(err).Msg("gemini backend unavailable")
		}
	}

	// Ollama needs no key, only a reachable URL.
	if cfg.OllamaURL != "" {
		model := cfg.Model
		if cfg.Primary != ProviderOllama {
			model = "" // default local model
		}
		p, err := NewOllamaProvider(cfg.OllamaURL, WithOllamaModel(model))
		if err == nil {
			available = append(available, p)
		}
	}

	if len(available) == 0 {
		return nil, ErrNoProviders
	}

	registered := make(map[string]bool, len(available))
	for _, p := range available {
		registered[p.Name()] = true
	}

	primary := cfg.Primary
	if !registered[primary] {
		for _, name := range preferredOrder {
			if registered[name] {
				primary = name
				break
			}
		}
	}

	fallbacks := cfg.Fallbacks
	if len(fallbacks) == 0 {
		for _, name := range preferredOrder {
			if registered[name] && name != primary {
				fallbacks = append(fallbacks, name)
			}
		}
	}

	router := NewRouter(primary,
		WithFallbacks(fallbacks...),
		WithMaxRetries(cfg.Retries),
		WithRetryDelay(time.Second),
		WithLogger(logger),
	)
	for _, p := range available {
		router.RegisterProvider(p)
	}
	return router, nil
}

func defaultGeminiModel(model string) string {
	if strings.HasPrefix(model, "gemini") {
		return model
	}
	return geminiDefaultModel
}

func defaultAnthropicModel(model string) string {
	if strings.HasPrefix(model, "claude") {
		return model
	}
	return anthropicDefaultModel
}

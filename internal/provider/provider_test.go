package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phuslu/log"

	"github.com/seenimoa/diligence/internal/infra"
)

var quietLogger = &log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}

type payload struct {
	Symbol string  `json:"symbol"`
	Value  float64 `json:"value"`
}

// mockAdapter implements Adapter with a pluggable fetch step.
type mockAdapter struct {
	BaseAdapter
	calls   atomic.Int32
	fetchFn func(ctx context.Context, company string) (payload, error)
}

func testSettings() Settings {
	return Settings{
		RateLimit: infra.RateLimitConfig{MaxRequests: 100, Window: time.Second},
		Timeout:   time.Second,
		Retry: infra.RetryOptions{
			Retries:   2,
			BaseDelay: time.Millisecond,
			MaxDelay:  2 * time.Millisecond,
		},
	}
}

func newMockAdapter(t *testing.T, name string, cache *infra.Cache) *mockAdapter {
	t.Helper()
	base, err := NewBaseAdapter(ProviderInfo{Name: name, Description: "Mock " + name}, testSettings(), cache, quietLogger)
	if err != nil {
		t.Fatalf("NewBaseAdapter: %v", err)
	}
	return &mockAdapter{BaseAdapter: base}
}

func (m *mockAdapter) Fetch(ctx context.Context, company string) Result {
	return Run(ctx, &m.BaseAdapter, company, func(ctx context.Context) (payload, error) {
		m.calls.Add(1)
		if m.fetchFn != nil {
			return m.fetchFn(ctx, company)
		}
		return payload{Symbol: "MOCK", Value: 1}, nil
	})
}

// --- Registry Tests ---

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	a := newMockAdapter(t, "test-provider", nil)

	if err := reg.Register(a); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, err := reg.Get("test-provider")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Info().Name != "test-provider" {
		t.Errorf("expected name test-provider, got %s", got.Info().Name)
	}
}

func TestRegistryGetNotFound(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("nonexistent")
	if err == nil {
		t.Fatal("expected error for nonexistent provider")
	}
	var nf *ErrProviderNotFound
	if !errors.As(err, &nf) {
		t.Errorf("expected ErrProviderNotFound, got %T", err)
	}
}

func TestRegistryListSorted(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"sec", "analyst", "news"} {
		_ = reg.Register(newMockAdapter(t, name, nil))
	}

	names := reg.Names()
	want := []string{"analyst", "news", "sec"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestRegistryUnregister(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(newMockAdapter(t, "gone", nil))
	reg.Unregister("gone")
	if reg.Len() != 0 {
		t.Errorf("expected empty registry, got %d", reg.Len())
	}
}

func TestNewBaseAdapterRequiresKey(t *testing.T) {
	info := ProviderInfo{
		Name:        "keyed",
		Credentials: []ProviderCredential{{Name: "api_key", Required: true}},
	}
	_, err := NewBaseAdapter(info, testSettings(), nil, quietLogger)
	var ic *ErrInvalidCredentials
	if !errors.As(err, &ic) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestNewBaseAdapterRejectsBadRateLimit(t *testing.T) {
	s := testSettings()
	s.RateLimit.MaxRequests = 0
	if _, err := NewBaseAdapter(ProviderInfo{Name: "x"}, s, nil, quietLogger); err == nil {
		t.Fatal("expected error for zero max requests")
	}
}

// --- Pipeline Tests ---

func TestRunWarmCacheSkipsNetwork(t *testing.T) {
	cache := infra.NewCache(nil, time.Hour)
	a := newMockAdapter(t, "market", cache)
	ctx := context.Background()

	first := a.Fetch(ctx, "Apple")
	if !first.OK() || first.Cached {
		t.Fatalf("first fetch: %+v", first)
	}
	second := a.Fetch(ctx, "  APPLE ")
	if !second.Cached {
		t.Fatal("expected cached result for normalized identifier")
	}
	if a.calls.Load() != 1 {
		t.Fatalf("fetch called %d times, want 1", a.calls.Load())
	}
	got, ok := DataAs[payload](second)
	if !ok || got.Symbol != "MOCK" {
		t.Fatalf("cached data = %+v", got)
	}
	if a.Limiter().InFlight() != 1 {
		t.Errorf("cache hit must not consume rate-limit budget, in flight = %d", a.Limiter().InFlight())
	}
}

func TestRunNoMatchIsEmpty(t *testing.T) {
	a := newMockAdapter(t, "market", nil)
	a.fetchFn = func(context.Context, string) (payload, error) {
		return payload{}, fmt.Errorf("symbol search %q: %w", "Unknown Corp Inc", ErrNoMatch)
	}

	res := a.Fetch(context.Background(), "Unknown Corp Inc")
	if res.Status != StatusEmpty {
		t.Fatalf("status = %s, want empty", res.Status)
	}
	if a.calls.Load() != 1 {
		t.Errorf("no-match must not be retried, calls = %d", a.calls.Load())
	}
}

func TestRunRetriesUpstreamErrors(t *testing.T) {
	a := newMockAdapter(t, "news", nil)
	a.fetchFn = func(context.Context, string) (payload, error) {
		if a.calls.Load() < 3 {
			return payload{}, &infra.HTTPError{StatusCode: 503, Status: "503 Service Unavailable"}
		}
		return payload{Symbol: "OK"}, nil
	}

	res := a.Fetch(context.Background(), "Apple")
	if !res.OK() {
		t.Fatalf("expected success after retries, got %+v", res)
	}
	if a.calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", a.calls.Load())
	}
}

func TestRunClientErrorFailsFast(t *testing.T) {
	a := newMockAdapter(t, "news", nil)
	a.fetchFn = func(context.Context, string) (payload, error) {
		return payload{}, &infra.HTTPError{StatusCode: 401, Status: "401 Unauthorized"}
	}

	res := a.Fetch(context.Background(), "Apple")
	if res.Status != StatusFailure || res.Kind != KindUnauthorized {
		t.Fatalf("got %+v, want unauthorized failure", res)
	}
	if a.calls.Load() != 1 {
		t.Errorf("4xx must not be retried, calls = %d", a.calls.Load())
	}
}

func TestRunFailureIsNotCached(t *testing.T) {
	cache := infra.NewCache(nil, time.Hour)
	a := newMockAdapter(t, "sec", cache)
	a.fetchFn = func(context.Context, string) (payload, error) {
		return payload{}, ErrMalformed
	}
	a.Fetch(context.Background(), "Apple")

	if _, ok := cache.Get(context.Background(), CacheKey("sec", "Apple")); ok {
		t.Fatal("failures must not be written to the cache")
	}
}

func TestRunRecoversPanic(t *testing.T) {
	a := newMockAdapter(t, "analyst", nil)
	a.fetchFn = func(context.Context, string) (payload, error) {
		panic("nil map write")
	}

	res := a.Fetch(context.Background(), "Apple")
	if res.Status != StatusFailure || res.Kind != KindUpstreamError {
		t.Fatalf("got %+v, want upstream failure", res)
	}
}

func TestRunRespectsTimeout(t *testing.T) {
	a := newMockAdapter(t, "slow", nil)
	a.settings.Timeout = 20 * time.Millisecond
	a.fetchFn = func(ctx context.Context, _ string) (payload, error) {
		<-ctx.Done()
		return payload{}, ctx.Err()
	}

	res := a.Fetch(context.Background(), "Apple")
	if res.Kind != KindTimeout {
		t.Fatalf("kind = %s, want timeout", res.Kind)
	}
}

// --- Classification ---

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want FailureKind
	}{
		{nil, ""},
		{context.DeadlineExceeded, KindTimeout},
		{fmt.Errorf("wrap: %w", ErrRateLimited), KindRateLimited},
		{ErrUnauthorized, KindUnauthorized},
		{ErrMalformed, KindMalformed},
		{&infra.DecodeError{URL: "u", Err: io.ErrUnexpectedEOF}, KindMalformed},
		{&infra.HTTPError{StatusCode: 429}, KindRateLimited},
		{&infra.HTTPError{StatusCode: 403}, KindUnauthorized},
		{&infra.HTTPError{StatusCode: 504}, KindTimeout},
		{&infra.HTTPError{StatusCode: 500}, KindUpstreamError},
		{errors.New("connection reset"), KindUpstreamError},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestDataAs(t *testing.T) {
	r := Success("p", &payload{Symbol: "PTR"})
	if got, ok := DataAs[payload](r); !ok || got.Symbol != "PTR" {
		t.Errorf("pointer payload: %+v %v", got, ok)
	}

	r = Success("p", map[string]any{"symbol": "MAP", "value": 2.5})
	if got, ok := DataAs[payload](r); !ok || got.Symbol != "MAP" || got.Value != 2.5 {
		t.Errorf("map payload: %+v %v", got, ok)
	}

	if _, ok := DataAs[payload](Empty("p", "none")); ok {
		t.Error("empty result must not yield data")
	}
}

func TestCacheKeyNormalizes(t *testing.T) {
	if CacheKey("news", "  Apple   Inc ") != CacheKey("news", "apple inc") {
		t.Error("cache key should ignore case and whitespace runs")
	}
	if CacheKey("news", "apple") == CacheKey("sec", "apple") {
		t.Error("cache key must be namespaced by provider")
	}
}

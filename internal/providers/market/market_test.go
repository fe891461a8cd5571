package market

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/diligence/internal/infra"
	"github.com/seenimoa/diligence/internal/provider"
	"github.com/seenimoa/diligence/pkg/models"
)

var quietLogger = &log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}

// fixedFX converts with a static rate table keyed by source currency.
type fixedFX map[string]float64

func (f fixedFX) ConvertAmount(_ context.Context, amount any, from, _ string) float64 {
	rate, ok := f[from]
	if !ok {
		rate = 1
	}
	return amount.(float64) * rate
}

const (
	searchApple = `{"bestMatches":[
		{"1. symbol":"APLE","2. name":"Apple Hospitality REIT","3. type":"Equity","8. currency":"USD","9. matchScore":"0.6"},
		{"1. symbol":"AAPL","2. name":"Apple Inc","3. type":"Equity","8. currency":"USD","9. matchScore":"0.8889"}]}`
	overviewApple = `{"Symbol":"AAPL","Name":"Apple Inc","Exchange":"NASDAQ","Currency":"USD","Sector":"TECHNOLOGY",
		"MarketCapitalization":"3000000000000","PERatio":"29.5","Beta":"1.24","ProfitMargin":"0.246","RevenueTTM":"390000000000",
		"52WeekHigh":"199.62","52WeekLow":"164.08","EPS":"None"}`
	quoteApple   = `{"Global Quote":{"01. symbol":"AAPL","02. open":"190","03. high":"192","04. low":"188","05. price":"191","06. volume":"5000","07. latest trading day":"2026-10-16","08. previous close":"189","09. change":"2","10. change percent":"1.06%"}}`
	balanceApple = `{"symbol":"AAPL","annualReports":[{"totalLiabilities":"300","totalShareholderEquity":"60","totalCurrentAssets":"150","totalCurrentLiabilities":"140"}]}`
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc, fx provider.CurrencyConverter) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a, err := New(provider.Settings{
		APIKey:    "test-key",
		BaseURL:   srv.URL,
		RateLimit: infra.RateLimitConfig{MaxRequests: 100, Window: time.Minute},
		Timeout:   5 * time.Second,
		Retry:     infra.RetryOptions{Retries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}, provider.Deps{Converter: fx, Logger: quietLogger})
	require.NoError(t, err)
	return a
}

func appleHandler(calls *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Query().Get("function") {
		case "SYMBOL_SEARCH":
			_, _ = io.WriteString(w, searchApple)
		case "OVERVIEW":
			_, _ = io.WriteString(w, overviewApple)
		case "GLOBAL_QUOTE":
			_, _ = io.WriteString(w, quoteApple)
		case "BALANCE_SHEET":
			_, _ = io.WriteString(w, balanceApple)
		default:
			http.NotFound(w, r)
		}
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(provider.Settings{RateLimit: infra.RateLimitConfig{MaxRequests: 5, Window: time.Minute}}, provider.Deps{})
	var credErr *provider.ErrInvalidCredentials
	assert.ErrorAs(t, err, &credErr)
}

func TestFetchApple(t *testing.T) {
	var calls atomic.Int32
	a := newTestAdapter(t, appleHandler(&calls), fixedFX{})

	res := a.Fetch(context.Background(), "Apple")
	require.Equal(t, provider.StatusSuccess, res.Status, res.Detail)

	o, ok := provider.DataAs[models.CompanyOverview](res)
	require.True(t, ok)
	assert.Equal(t, "AAPL", o.Symbol, "highest match score wins")
	assert.Equal(t, 3e12, o.MarketCap)
	assert.Equal(t, 3e12, o.MarketCapUSD)
	assert.Equal(t, 29.5, o.PERatio)
	assert.Zero(t, o.EPS, "None parses to zero")
	require.NotNil(t, o.Quote)
	assert.Equal(t, 191.0, o.Quote.Price)
	assert.Equal(t, 1.06, o.Quote.ChangePercent)
	assert.InDelta(t, 5.0, o.DebtToEquity, 1e-9)
	assert.InDelta(t, 150.0/140.0, o.CurrentRatio, 1e-9)
	assert.Equal(t, int32(4), calls.Load())
}

func TestFetchConvertsForeignMarketCap(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("function") {
		case "SYMBOL_SEARCH":
			_, _ = io.WriteString(w, `{"bestMatches":[{"1. symbol":"SAP.DEX","2. name":"SAP SE","8. currency":"EUR","9. matchScore":"0.9"}]}`)
		case "OVERVIEW":
			_, _ = io.WriteString(w, `{"Symbol":"SAP.DEX","Name":"SAP SE","MarketCapitalization":"200000000000"}`)
		default:
			_, _ = io.WriteString(w, `{}`)
		}
	}
	a := newTestAdapter(t, handler, fixedFX{"EUR": 1.1})

	res := a.Fetch(context.Background(), "SAP")
	o, ok := provider.DataAs[models.CompanyOverview](res)
	require.True(t, ok, res.Detail)
	assert.Equal(t, "EUR", o.Currency, "currency falls back to the search match")
	assert.InDelta(t, 220e9, o.MarketCapUSD, 1)
	assert.Nil(t, o.Quote)
}

func TestFetchNoteIsRateLimited(t *testing.T) {
	var calls atomic.Int32
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"Note":"Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`)
	}, nil)

	res := a.Fetch(context.Background(), "Apple")
	assert.Equal(t, provider.StatusFailure, res.Status)
	assert.Equal(t, provider.KindRateLimited, res.Kind)
	assert.Equal(t, int32(1), calls.Load(), "quota notes are not retried")
}

func TestFetchNoMatchIsEmpty(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"bestMatches":[]}`)
	}, nil)

	res := a.Fetch(context.Background(), "Unknown Corp Inc")
	assert.Equal(t, provider.StatusEmpty, res.Status)
	assert.Empty(t, res.Kind)
}

func TestFetchEmptyOverviewIsEmpty(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("function") == "SYMBOL_SEARCH" {
			_, _ = io.WriteString(w, `{"bestMatches":[{"1. symbol":"ZZZZ","9. matchScore":"0.3"}]}`)
			return
		}
		_, _ = io.WriteString(w, `{}`)
	}, nil)

	assert.Equal(t, provider.StatusEmpty, a.Fetch(context.Background(), "zzzz").Status)
}

func TestFetchMissingMatchesIsMalformed(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"unexpected":true}`)
	}, nil)

	res := a.Fetch(context.Background(), "Apple")
	assert.Equal(t, provider.KindMalformed, res.Kind)
}

func TestFetchInvalidKeyIsUnauthorized(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"Error Message":"the parameter apikey is invalid or missing."}`)
	}, nil)

	assert.Equal(t, provider.KindUnauthorized, a.Fetch(context.Background(), "Apple").Kind)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ok := appleHandler(&atomic.Int32{})
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		ok(w, r)
	}, nil)

	res := a.Fetch(context.Background(), "Apple")
	assert.Equal(t, provider.StatusSuccess, res.Status, res.Detail)
}

func TestFetchWarmCacheSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	a := newTestAdapter(t, appleHandler(&calls), nil)

	first := a.Fetch(context.Background(), "Apple")
	require.True(t, first.OK())
	before := calls.Load()

	second := a.Fetch(context.Background(), "  APPLE ")
	require.True(t, second.OK())
	assert.True(t, second.Cached)
	assert.Equal(t, before, calls.Load())

	o, _ := provider.DataAs[models.CompanyOverview](second)
	assert.Equal(t, "AAPL", o.Symbol)
}

func TestBestMatchPrefersExactTicker(t *testing.T) {
	m, ok := bestMatch([]avMatch{
		{Symbol: "MSFT", MatchScore: "0.5"},
		{Symbol: "MSF.DEX", MatchScore: "0.9"},
	}, "msft")
	require.True(t, ok)
	assert.Equal(t, "MSFT", m.Symbol)

	_, ok = bestMatch(nil, "x")
	assert.False(t, ok)
}

func TestFetchTakesSlotPerUpstreamCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(appleHandler(&calls))
	t.Cleanup(srv.Close)

	a, err := New(provider.Settings{
		APIKey:    "test-key",
		BaseURL:   srv.URL,
		RateLimit: infra.RateLimitConfig{MaxRequests: 5, Window: time.Minute},
		Timeout:   300 * time.Millisecond,
		Retry:     infra.RetryOptions{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}, provider.Deps{Converter: fixedFX{}, Logger: quietLogger})
	require.NoError(t, err)

	res := a.Fetch(context.Background(), "Apple")
	require.Equal(t, provider.StatusSuccess, res.Status, res.Detail)
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, 4, a.Limiter().InFlight())

	// One slot left: the search goes out, the overview waits until the
	// fetch deadline.
	res = a.Fetch(context.Background(), "AAPL")
	assert.Equal(t, provider.StatusFailure, res.Status)
	assert.Equal(t, provider.KindTimeout, res.Kind)
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, 5, a.Limiter().InFlight())
}

package sec

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

const tickersJSON = `{
	"0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."},
	"1": {"cik_str": 789019, "ticker": "MSFT", "title": "MICROSOFT CORP"},
	"2": {"cik_str": 1111111, "ticker": "APLE", "title": "Apple Hospitality REIT, Inc."}
}`

const appleSubmissions = `{
	"cik": "320193",
	"name": "Apple Inc.",
	"tickers": ["AAPL"],
	"filings": {"recent": {
		"accessionNumber": ["0000320193-26-000001","0000320193-26-000002","0000320193-26-000003","0000320193-26-000004","0000320193-26-000005","0000320193-26-000006","0000320193-26-000007","0000320193-26-000008"],
		"filingDate":      ["2026-08-01","2026-09-15","2026-07-20","2026-05-02","2026-02-01","2025-11-01","2026-10-01","2026-01-10"],
		"form":            ["10-Q","4","8-K","10-Q","10-Q","10-K","SC 13G","DEF 14A"],
		"primaryDocument": ["aapl-q3.htm","form4.xml","aapl-8k.htm","aapl-q2.htm","aapl-q1.htm","aapl-10k.htm","sc13g.htm","proxy.htm"],
		"primaryDocDescription": ["10-Q","","8-K","10-Q","10-Q","10-K","","Proxy statement"]
	}}
}`

type fakeEdgar struct {
	tickerCalls     atomic.Int32
	submissionCalls atomic.Int32
	userAgent       atomic.Value
	submissions     func(w http.ResponseWriter, r *http.Request)
}

func newTestAdapter(t *testing.T, f *fakeEdgar) *Adapter {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/files/company_tickers.json", func(w http.ResponseWriter, r *http.Request) {
		f.tickerCalls.Add(1)
		f.userAgent.Store(r.Header.Get("User-Agent"))
		_, _ = io.WriteString(w, tickersJSON)
	})
	mux.HandleFunc("/submissions/", func(w http.ResponseWriter, r *http.Request) {
		f.submissionCalls.Add(1)
		if f.submissions != nil {
			f.submissions(w, r)
			return
		}
		if r.URL.Path != "/submissions/CIK0000320193.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, appleSubmissions)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	a, err := New(provider.Settings{
		BaseURL:   srv.URL,
		RateLimit: infra.RateLimitConfig{MaxRequests: 100, Window: time.Second},
		Timeout:   5 * time.Second,
		Retry:     infra.RetryOptions{Retries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}, provider.Deps{Logger: quietLogger}, Options{
		UserAgent:  "test-agent test@example.com",
		TickersURL: srv.URL + "/files/company_tickers.json",
	})
	require.NoError(t, err)
	return a
}

func TestFetchFilings(t *testing.T) {
	f := &fakeEdgar{}
	a := newTestAdapter(t, f)

	res := a.Fetch(context.Background(), "Apple")
	require.Equal(t, provider.StatusSuccess, res.Status, res.Detail)
	assert.Equal(t, "test-agent test@example.com", f.userAgent.Load())

	set, ok := provider.DataAs[models.FilingSet](res)
	require.True(t, ok)
	assert.Equal(t, "320193", set.CIK)
	assert.Equal(t, "AAPL", set.Ticker)
	assert.Equal(t, "Apple Inc.", set.CompanyName)
	require.Len(t, set.Filings, MaxFilings)

	forms := make([]string, 0, len(set.Filings))
	for i, fl := range set.Filings {
		forms = append(forms, fl.FormType)
		if i > 0 {
			assert.False(t, fl.Date.After(set.Filings[i-1].Date), "filings are newest first")
		}
	}
	assert.Equal(t, []string{"10-Q", "8-K", "10-Q", "10-Q", "DEF 14A"}, forms)
	assert.Equal(t,
		"https://www.sec.gov/Archives/edgar/data/320193/000032019326000001/aapl-q3.htm",
		set.Filings[0].FilingURL)
	assert.Equal(t, "Proxy statement", set.Filings[4].Description)
}

func TestFetchByTicker(t *testing.T) {
	a := newTestAdapter(t, &fakeEdgar{})
	res := a.Fetch(context.Background(), "aapl")
	assert.Equal(t, provider.StatusSuccess, res.Status, res.Detail)
}

func TestFetchUnknownCompanyIsEmpty(t *testing.T) {
	f := &fakeEdgar{}
	a := newTestAdapter(t, f)

	res := a.Fetch(context.Background(), "Unknown Corp Inc")
	assert.Equal(t, provider.StatusEmpty, res.Status)
	assert.Zero(t, f.submissionCalls.Load())
}

func TestTickersFileIsReused(t *testing.T) {
	f := &fakeEdgar{}
	a := newTestAdapter(t, f)

	a.Fetch(context.Background(), "Apple")
	a.Fetch(context.Background(), "Microsoft")
	assert.Equal(t, int32(1), f.tickerCalls.Load())
}

func TestFetchMissingRecentIsMalformed(t *testing.T) {
	f := &fakeEdgar{submissions: func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"cik":"320193","name":"Apple Inc.","filings":{}}`)
	}}
	res := newTestAdapter(t, f).Fetch(context.Background(), "Apple")
	assert.Equal(t, provider.KindMalformed, res.Kind)
}

func TestFetchServerErrorIsRetried(t *testing.T) {
	f := &fakeEdgar{}
	f.submissions = func(w http.ResponseWriter, r *http.Request) {
		if f.submissionCalls.Load() == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, appleSubmissions)
	}
	res := newTestAdapter(t, f).Fetch(context.Background(), "Apple")
	assert.Equal(t, provider.StatusSuccess, res.Status, res.Detail)
	assert.Equal(t, int32(2), f.submissionCalls.Load())
}

func TestMatchEntry(t *testing.T) {
	entries := []edgarTickerEntry{
		{CIK: 320193, Ticker: "AAPL", Title: "Apple Inc."},
		{CIK: 789019, Ticker: "MSFT", Title: "MICROSOFT CORP"},
		{CIK: 1111111, Ticker: "APLE", Title: "Apple Hospitality REIT, Inc."},
	}
	tests := []struct {
		query string
		cik   int64
		ok    bool
	}{
		{"AAPL", 320193, true},
		{"Apple Inc.", 320193, true},
		{"apple", 320193, true},
		{"Microsoft Corporation", 789019, true},
		{"APLE", 1111111, true},
		{"Apple Hospitality REIT", 1111111, true},
		{"Unknown Corp Inc", 0, false},
		{"  ", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			e, ok := matchEntry(entries, tt.query)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.cik, e.CIK)
		})
	}
}

func TestIsMaterialForm(t *testing.T) {
	for _, f := range []string{"10-K", "10-q", "8-K", "20-F", "6-K", "40-F", "S-1", "DEF 14A"} {
		assert.True(t, IsMaterialForm(f), f)
	}
	for _, f := range []string{"4", "SC 13G", "424B2", ""} {
		assert.False(t, IsMaterialForm(f), f)
	}
}

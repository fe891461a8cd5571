package network

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
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

const appleProfile = `{
	"name": "Apple",
	"description": "  We're a diverse collective of thinkers and doers.  ",
	"website": "http://www.apple.com/careers",
	"industry": "Computers and Electronics Manufacturing",
	"company_size": [10001, null],
	"company_size_on_linkedin": 166869,
	"hq": {"city": "Cupertino", "state": "California", "country": "US"},
	"founded_year": 1976,
	"follower_count": 17000000,
	"specialities": ["Innovative Product Development", "World-Class Operations"]
}`

func newTestAdapter(t *testing.T, h http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	a, err := New(provider.Settings{
		APIKey:    "token",
		BaseURL:   srv.URL,
		RateLimit: infra.RateLimitConfig{MaxRequests: 100, Window: time.Minute},
		Timeout:   5 * time.Second,
		Retry:     infra.RetryOptions{Retries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}, provider.Deps{Logger: quietLogger})
	require.NoError(t, err)
	return a
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(provider.Settings{
		RateLimit: infra.RateLimitConfig{MaxRequests: 1, Window: time.Second},
	}, provider.Deps{Logger: quietLogger})
	var credErr *provider.ErrInvalidCredentials
	assert.ErrorAs(t, err, &credErr)
}

func TestFetchProfile(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/linkedin/company/resolve":
			assert.Equal(t, "Apple", r.URL.Query().Get("company_name"))
			_, _ = io.WriteString(w, `{"url":"https://www.linkedin.com/company/apple/"}`)
		case "/linkedin/company":
			assert.Equal(t, "https://www.linkedin.com/company/apple/", r.URL.Query().Get("url"))
			_, _ = io.WriteString(w, appleProfile)
		default:
			http.NotFound(w, r)
		}
	})

	res := a.Fetch(context.Background(), "Apple")
	require.Equal(t, provider.StatusSuccess, res.Status, res.Detail)

	p, ok := provider.DataAs[models.NetworkProfile](res)
	require.True(t, ok)
	assert.Equal(t, "Apple", p.Name)
	assert.Equal(t, "We're a diverse collective of thinkers and doers.", p.Description)
	assert.Equal(t, "10001+", p.CompanySize)
	assert.Equal(t, 166869, p.Employees)
	assert.Equal(t, "Cupertino, California, US", p.Headquarters)
	assert.Equal(t, 1976, p.FoundedYear)
	assert.Equal(t, 17000000, p.Followers)
	assert.Len(t, p.Specialities, 2)
	assert.Equal(t, "https://www.linkedin.com/company/apple/", p.ProfileURL)
}

func TestResolveNotFoundIsEmpty(t *testing.T) {
	calls := 0
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"code":404,"description":"Not found"}`)
	})

	res := a.Fetch(context.Background(), "Unknown Corp Inc")
	assert.Equal(t, provider.StatusEmpty, res.Status)
	assert.Equal(t, 1, calls)
}

func TestResolveNullURLIsEmpty(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"url":null}`)
	})
	assert.Equal(t, provider.StatusEmpty, a.Fetch(context.Background(), "Unknown Corp Inc").Status)
}

func TestUnauthorized(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	res := a.Fetch(context.Background(), "Apple")
	assert.Equal(t, provider.StatusFailure, res.Status)
	assert.Equal(t, provider.KindUnauthorized, res.Kind)
}

func TestProfileWithoutNameIsMalformed(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/linkedin/company/resolve" {
			_, _ = io.WriteString(w, `{"url":"https://www.linkedin.com/company/x/"}`)
			return
		}
		_, _ = io.WriteString(w, `{}`)
	})
	assert.Equal(t, provider.KindMalformed, a.Fetch(context.Background(), "X").Kind)
}

func TestSizeRange(t *testing.T) {
	n := func(v int) *int { return &v }
	assert.Equal(t, "", sizeRange(nil))
	assert.Equal(t, "51-200", sizeRange([]*int{n(51), n(200)}))
	assert.Equal(t, "10001+", sizeRange([]*int{n(10001), nil}))
	assert.Equal(t, "", sizeRange([]*int{nil, n(10)}))
}

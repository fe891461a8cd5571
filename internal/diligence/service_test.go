package diligence

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/diligence/internal/aggregate"
	"github.com/seenimoa/diligence/internal/llm"
	"github.com/seenimoa/diligence/internal/provider"
	"github.com/seenimoa/diligence/internal/report"
	"github.com/seenimoa/diligence/internal/synth"
)

var (
	quietLogger = &log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}
	fixedNow    = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
)

type countingAdapter struct {
	name  string
	calls atomic.Int32
}

func (a *countingAdapter) Info() provider.ProviderInfo { return provider.ProviderInfo{Name: a.name} }

func (a *countingAdapter) Fetch(_ context.Context, _ string) provider.Result {
	a.calls.Add(1)
	return provider.Empty(a.name, "no match")
}

type downBackend struct{}

func (downBackend) Name() string { return "down" }

func (downBackend) Chat(context.Context, []llm.Message, *llm.ChatOptions) (*llm.Response, error) {
	return nil, llm.ErrProviderDown
}

type failingStore struct{ report.Store }

func (failingStore) Save(context.Context, *report.Report) error { return errors.New("disk full") }

func newService(t *testing.T, adapter *countingAdapter, mutate func(*Config)) *Service {
	t.Helper()
	reg := provider.NewRegistry()
	require.NoError(t, reg.Register(adapter))

	clock := func() time.Time { return fixedNow }
	var n atomic.Int32
	cfg := Config{
		Aggregator:  aggregate.New(reg, time.Second, quietLogger, aggregate.WithClock(clock)),
		Synthesizer: synth.New(downBackend{}, synth.Options{}, synth.WithClock(clock), synth.WithLogger(quietLogger)),
		Store:       report.NewMemoryStore(),
		Registry:    reg,
		Logger:      quietLogger,
		Now:         clock,
		NewID: func() string {
			return []string{"req-1", "req-2", "req-3"}[n.Add(1)-1]
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		company string
		wantErr bool
	}{
		{"plain", "Apple", false},
		{"trimmed", "  Apple  ", false},
		{"empty", "", true},
		{"whitespace", " \t\n", true},
		{"too long", string(make([]byte, 201)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := Validate(Request{CompanyName: tt.company})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Apple", req.CompanyName)
		})
	}
}

func TestGenerateRejectsInvalidBeforeProviderWork(t *testing.T) {
	adapter := &countingAdapter{name: "market"}
	svc := newService(t, adapter, nil)

	_, err := svc.Generate(context.Background(), Request{CompanyName: "   "})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, adapter.calls.Load())
}

func TestGenerateMisconfigured(t *testing.T) {
	adapter := &countingAdapter{name: "market"}
	svc := newService(t, adapter, func(c *Config) {
		c.Ready = func() error { return llm.ErrNoProviders }
	})

	_, err := svc.Generate(context.Background(), Request{CompanyName: "Apple"})
	assert.ErrorIs(t, err, ErrMisconfigured)
	assert.Contains(t, err.Error(), "no providers configured")
	assert.Zero(t, adapter.calls.Load())
}

func TestGenerateProducesAndStoresReport(t *testing.T) {
	adapter := &countingAdapter{name: "market"}

	var (
		mu     sync.Mutex
		events []aggregate.Event
	)
	svc := newService(t, adapter, func(c *Config) {
		c.Observer = func(e aggregate.Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		}
	})

	r, err := svc.Generate(context.Background(), Request{CompanyName: " Apple "})
	require.NoError(t, err)
	assert.Equal(t, "req-1", r.ID)
	assert.Equal(t, "Apple", r.Company)
	assert.Equal(t, "2026-10-18", r.DateBucket)
	assert.True(t, r.Metadata.Degraded)
	assert.Equal(t, int32(1), adapter.calls.Load())

	stored, err := svc.Get(context.Background(), "apple", "")
	require.NoError(t, err)
	assert.Equal(t, r.ID, stored.ID)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	assert.Equal(t, aggregate.EventAggregationFinished, events[len(events)-1].Type)
}

func TestGenerateReuse(t *testing.T) {
	adapter := &countingAdapter{name: "market"}
	svc := newService(t, adapter, nil)
	ctx := context.Background()

	first, err := svc.Generate(ctx, Request{CompanyName: "Apple"})
	require.NoError(t, err)

	again, err := svc.Generate(ctx, Request{CompanyName: "Apple", Reuse: true})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, int32(1), adapter.calls.Load())

	fresh, err := svc.Generate(ctx, Request{CompanyName: "Apple"})
	require.NoError(t, err)
	assert.Equal(t, "req-2", fresh.ID)
	assert.Equal(t, int32(2), adapter.calls.Load())
}

func TestGenerateSurvivesStoreFailure(t *testing.T) {
	adapter := &countingAdapter{name: "market"}
	svc := newService(t, adapter, func(c *Config) {
		c.Store = failingStore{Store: report.NewMemoryStore()}
	})

	r, err := svc.Generate(context.Background(), Request{CompanyName: "Apple"})
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestGetAndHistory(t *testing.T) {
	svc := newService(t, &countingAdapter{name: "market"}, nil)
	ctx := context.Background()

	_, err := svc.Get(ctx, "Apple", "")
	assert.ErrorIs(t, err, report.ErrNotFound)

	_, err = svc.Get(ctx, "Apple", "18-10-2026")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.History(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Generate(ctx, Request{CompanyName: "Apple"})
	require.NoError(t, err)

	rows, err := svc.History(ctx, "APPLE")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2026-10-18", rows[0].DateBucket)
	assert.Equal(t, report.GenerationFallback, rows[0].Generation)
}

func TestProviders(t *testing.T) {
	svc := newService(t, &countingAdapter{name: "market"}, nil)
	infos := svc.Providers()
	require.Len(t, infos, 1)
	assert.Equal(t, "market", infos[0].Name)
}

func TestCheckWithoutPipeline(t *testing.T) {
	assert.ErrorIs(t, New(Config{}).Check(), ErrMisconfigured)
}

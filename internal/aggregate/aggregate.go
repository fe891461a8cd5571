// Package aggregate fans a company lookup out to every registered provider
// adapter and collects exactly one result per adapter under a global
// deadline.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/diligence/internal/provider"
)

// DefaultTimeout is the aggregation budget when none is configured.
const DefaultTimeout = 90 * time.Second

// Context is the outcome of one aggregation: the company, when it was
// requested and one Result per adapter keyed by provider name.
type Context struct {
	RequestID   string                     `json:"requestId"`
	Company     string                     `json:"company"`
	RequestedAt time.Time                  `json:"requestedAt"`
	Duration    time.Duration              `json:"duration"`
	Results     map[string]provider.Result `json:"results"`
}

// Result returns the result of one provider.
func (c *Context) Result(name string) (provider.Result, bool) {
	r, ok := c.Results[name]
	return r, ok
}

// Providers returns the provider names in sorted order.
func (c *Context) Providers() []string {
	names := make([]string, 0, len(c.Results))
	for name := range c.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Succeeded returns the sorted names of providers that returned data.
func (c *Context) Succeeded() []string {
	var out []string
	for _, name := range c.Providers() {
		if c.Results[name].OK() {
			out = append(out, name)
		}
	}
	return out
}

// Failed returns the sorted names of providers that failed.
func (c *Context) Failed() []string {
	var out []string
	for _, name := range c.Providers() {
		if c.Results[name].Status == provider.StatusFailure {
			out = append(out, name)
		}
	}
	return out
}

// Data decodes the payload of a successful provider result.
func Data[T any](c *Context, name string) (T, bool) {
	r, ok := c.Results[name]
	if !ok {
		var zero T
		return zero, false
	}
	return provider.DataAs[T](r)
}

// Orchestrator runs all adapters of a registry concurrently.
type Orchestrator struct {
	registry *provider.Registry
	timeout  time.Duration
	logger   *log.Logger
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator over reg. A non-positive timeout uses
// DefaultTimeout.
func New(reg *provider.Registry, timeout time.Duration, logger *log.Logger, opts ...Option) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = &log.DefaultLogger
	}
	o := &Orchestrator{
		registry: reg,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Timeout returns the aggregation budget.
func (o *Orchestrator) Timeout() time.Duration { return o.timeout }

// Providers returns the names of the adapters an aggregation will call.
func (o *Orchestrator) Providers() []string {
	infos := o.registry.List()
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

// Aggregate queries every adapter for company. It returns when all adapters
// have answered or the budget runs out; adapters still running at that
// point are recorded as Failure(Timeout). A failing adapter never affects
// the others. Observers are called concurrently.
func (o *Orchestrator) Aggregate(ctx context.Context, company string, observers ...Observer) *Context {
	return o.AggregateWithID(ctx, uuid.NewString(), company, observers...)
}

// AggregateWithID is Aggregate with a caller-chosen request ID.
func (o *Orchestrator) AggregateWithID(ctx context.Context, requestID, company string, observers ...Observer) *Context {
	start := o.now()
	adapters := o.registry.Adapters()
	emit := fanout(observers)

	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]provider.Result, len(adapters))
		sealed  bool
	)

	var g errgroup.Group
	for _, a := range adapters {
		name := a.Info().Name
		g.Go(func() error {
			emit(Event{Type: EventProviderStarted, RequestID: requestID, Company: company, Provider: name, Time: o.now()})
			res := safeFetch(runCtx, a, company)
			res.Provider = name

			mu.Lock()
			late := sealed
			if !late {
				results[name] = res
			}
			mu.Unlock()

			if late {
				o.logger.Debug().Str("provider", name).Str("company", company).Str("status", string(res.Status)).Msg("discarding late provider result")
				return nil
			}
			emit(finishedEvent(requestID, company, res, o.now()))
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-runCtx.Done():
		mu.Lock()
		sealed = true
		var timedOut []provider.Result
		for _, a := range adapters {
			name := a.Info().Name
			if _, ok := results[name]; ok {
				continue
			}
			res := provider.Failure(name, provider.KindTimeout, fmt.Sprintf("no response within %s", o.timeout))
			res.Latency = o.now().Sub(start)
			results[name] = res
			timedOut = append(timedOut, res)
		}
		mu.Unlock()

		for _, res := range timedOut {
			o.logger.Warn().Str("provider", res.Provider).Str("company", company).Dur("timeout", o.timeout).Msg("provider timed out")
			emit(finishedEvent(requestID, company, res, o.now()))
		}
	}

	mu.Lock()
	out := &Context{
		RequestID:   requestID,
		Company:     company,
		RequestedAt: start,
		Duration:    o.now().Sub(start),
		Results:     make(map[string]provider.Result, len(results)),
	}
	for k, v := range results {
		out.Results[k] = v
	}
	mu.Unlock()

	emit(Event{
		Type:      EventAggregationFinished,
		RequestID: requestID,
		Company:   company,
		Latency:   out.Duration,
		Time:      o.now(),
	})
	o.logger.Info().
		Str("company", company).
		Str("request_id", requestID).
		Int("providers", len(out.Results)).
		Int("succeeded", len(out.Succeeded())).
		Int("failed", len(out.Failed())).
		Dur("duration", out.Duration).
		Msg("aggregation finished")
	return out
}

// safeFetch isolates one adapter call from panics.
func safeFetch(ctx context.Context, a provider.Adapter, company string) (res provider.Result) {
	name := a.Info().Name
	defer func() {
		if r := recover(); r != nil {
			res = provider.Failure(name, provider.KindUpstreamError, fmt.Sprintf("adapter panic: %v", r))
		}
	}()
	return a.Fetch(ctx, company)
}

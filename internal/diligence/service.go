// Package diligence is the request-level entry point: it validates a
// due-diligence request, runs the provider aggregation and the synthesis
// and persists the resulting report.
package diligence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/seenimoa/diligence/internal/aggregate"
	"github.com/seenimoa/diligence/internal/provider"
	"github.com/seenimoa/diligence/internal/report"
	"github.com/seenimoa/diligence/pkg/utils"
)

var (
	// ErrInvalidRequest means the request failed validation.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrMisconfigured means the service cannot produce reports at all,
	// e.g. no generative backend has credentials.
	ErrMisconfigured = errors.New("service misconfigured")
)

// Request is an inbound due-diligence request.
type Request struct {
	CompanyName string `json:"companyName" validate:"required,max=200"`
	Reuse       bool   `json:"reuse"`
}

// Aggregator collects provider data for one company.
type Aggregator interface {
	AggregateWithID(ctx context.Context, requestID, company string, observers ...aggregate.Observer) *aggregate.Context
	Providers() []string
}

// Synthesizer turns an aggregation into a report.
type Synthesizer interface {
	Synthesize(ctx context.Context, agg *aggregate.Context) *report.Report
}

// Config wires a Service.
type Config struct {
	Aggregator  Aggregator
	Synthesizer Synthesizer
	Store       report.Store
	Registry    *provider.Registry

	// Ready reports whether the generative backend is usable. A non-nil
	// error turns every request into ErrMisconfigured.
	Ready func() error

	// Observer receives progress events of every request.
	Observer aggregate.Observer

	Logger *log.Logger
	Now    func() time.Time
	NewID  func() string
}

// Service produces due-diligence reports.
type Service struct {
	agg      Aggregator
	synth    Synthesizer
	store    report.Store
	registry *provider.Registry
	ready    func() error
	observer aggregate.Observer
	logger   *log.Logger
	now      func() time.Time
	newID    func() string
}

var validate = validator.New()

// New creates a Service. A nil Store uses an in-memory store.
func New(cfg Config) *Service {
	s := &Service{
		agg:      cfg.Aggregator,
		synth:    cfg.Synthesizer,
		store:    cfg.Store,
		registry: cfg.Registry,
		ready:    cfg.Ready,
		observer: cfg.Observer,
		logger:   cfg.Logger,
		now:      cfg.Now,
		newID:    cfg.NewID,
	}
	if s.store == nil {
		s.store = report.NewMemoryStore()
	}
	if s.registry == nil {
		s.registry = provider.NewRegistry()
	}
	if s.logger == nil {
		s.logger = &log.DefaultLogger
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Validate checks req and returns it with the company name trimmed.
func Validate(req Request) (Request, error) {
	req.CompanyName = strings.TrimSpace(req.CompanyName)
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return req, fmt.Errorf("%w: %s", ErrInvalidRequest, describe(verrs[0]))
		}
		return req, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return req, nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "companyName is required"
	case "max":
		return "companyName must be at most " + fe.Param() + " characters"
	}
	return "companyName is invalid"
}

// Check returns ErrMisconfigured when the service cannot serve requests.
func (s *Service) Check() error {
	if s.agg == nil || s.synth == nil {
		return fmt.Errorf("%w: report pipeline not configured", ErrMisconfigured)
	}
	if s.ready != nil {
		if err := s.ready(); err != nil {
			return fmt.Errorf("%w: %v", ErrMisconfigured, err)
		}
	}
	return nil
}

// Generate runs the full pipeline for req. The only errors it returns are
// ErrInvalidRequest and ErrMisconfigured, both detected before any provider
// is called. Provider and synthesis failures are carried inside the report.
func (s *Service) Generate(ctx context.Context, req Request, observers ...aggregate.Observer) (*report.Report, error) {
	req, err := Validate(req)
	if err != nil {
		return nil, err
	}
	if err := s.Check(); err != nil {
		return nil, err
	}

	if req.Reuse {
		bucket := utils.DateBucket(s.now())
		if r, err := s.store.Get(ctx, req.CompanyName, bucket); err == nil {
			s.logger.Info().Str("company", req.CompanyName).Str("report_id", r.ID).Msg("reusing stored report")
			return r, nil
		} else if !errors.Is(err, report.ErrNotFound) {
			s.logger.Warn().Str("company", req.CompanyName).Err(err).Msg("report lookup failed")
		}
	}

	requestID := s.newID()
	start := s.now()
	if s.observer != nil {
		observers = append(observers, s.observer)
	}

	agg := s.agg.AggregateWithID(ctx, requestID, req.CompanyName, observers...)
	r := s.synth.Synthesize(ctx, agg)

	if err := s.store.Save(ctx, r); err != nil {
		s.logger.Warn().Str("company", req.CompanyName).Str("request_id", requestID).Err(err).Msg("failed to persist report")
	}

	s.logger.Info().
		Str("company", req.CompanyName).
		Str("request_id", requestID).
		Strs("succeeded", agg.Succeeded()).
		Strs("failed", agg.Failed()).
		Str("generation", r.Metadata.Generation).
		Dur("elapsed", s.now().Sub(start)).
		Msg("report generated")
	return r, nil
}

// Get returns the stored report for company on dateBucket; an empty bucket
// means today (UTC).
func (s *Service) Get(ctx context.Context, company, dateBucket string) (*report.Report, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return nil, fmt.Errorf("%w: company is required", ErrInvalidRequest)
	}
	if dateBucket == "" {
		dateBucket = utils.DateBucket(s.now())
	} else if _, err := utils.ParseDateBucket(dateBucket); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return s.store.Get(ctx, company, dateBucket)
}

// History lists stored reports for company, newest first.
func (s *Service) History(ctx context.Context, company string) ([]report.Summary, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return nil, fmt.Errorf("%w: company is required", ErrInvalidRequest)
	}
	rows, err := s.store.List(ctx, company)
	if err != nil {
		return nil, err
	}
	report.SortSummaries(rows)
	return rows, nil
}

// Providers describes the registered adapters.
func (s *Service) Providers() []provider.ProviderInfo {
	return s.registry.List()
}

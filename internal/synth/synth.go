// Package synth turns an aggregation into a report. It renders a fixed
// prompt from the provider data, asks the generative backend once and
// merges the answer over a report built from the data itself. Backend
// failures yield that data-only report instead of an error.
package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phuslu/log"

	"github.com/seenimoa/diligence/internal/aggregate"
	"github.com/seenimoa/diligence/internal/llm"
	"github.com/seenimoa/diligence/internal/report"
)

// DefaultTimeout bounds the backend call when no timeout is configured.
const DefaultTimeout = 90 * time.Second

// FallbackNotice opens the executive summary of a fallback report.
const FallbackNotice = "Automated fallback report: narrative analysis is unavailable because the text generation backend failed"

// Backend is the generative text service. llm.Router and every
// llm.LLMProvider satisfy it.
type Backend interface {
	Name() string
	Chat(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (*llm.Response, error)
}

// Options tune the backend request.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Synthesizer writes reports.
type Synthesizer struct {
	backend Backend
	opts    Options
	logger  *log.Logger
	now     func() time.Time
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithClock overrides the time source used for GeneratedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Synthesizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a synthesizer. A nil backend always produces fallback reports.
func New(backend Backend, opts Options, options ...Option) *Synthesizer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	s := &Synthesizer{
		backend: backend,
		opts:    opts,
		logger:  &log.DefaultLogger,
		now:     time.Now,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Synthesize always returns a normalized report.
func (s *Synthesizer) Synthesize(ctx context.Context, agg *aggregate.Context) *report.Report {
	d := decode(agg, s.now().UTC())
	base := baseReport(agg, d)

	content, backendName, err := s.generate(ctx, agg)
	if err != nil {
		s.logger.Warn().
			Str("company", agg.Company).
			Str("request_id", agg.RequestID).
			Str("kind", "synthesis_failure").
			Err(err).
			Msg("report synthesis fell back to provider data")
		r := fallback(agg, base, err)
		report.Normalize(r)
		return r
	}

	r := base
	r.Metadata.Backend = backendName
	if n, perr := ParseResponse(content); perr == nil {
		merge(r, n)
		r.Metadata.Generation = report.GenerationStructured
	} else {
		s.logger.Debug().Str("company", agg.Company).Err(perr).Msg("backend answered in free text")
		wrapFreeText(r, content)
		r.Metadata.Generation = report.GenerationFreeText
	}
	report.Normalize(r)
	return r
}

func (s *Synthesizer) generate(ctx context.Context, agg *aggregate.Context) (string, string, error) {
	if s.backend == nil {
		return "", "", llm.ErrNoProviders
	}
	prompt, err := BuildPrompt(agg)
	if err != nil {
		return "", "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	resp, err := s.backend.Chat(ctx, []llm.Message{
		llm.SystemMessage(systemPrompt),
		llm.UserMessage(prompt),
	}, &llm.ChatOptions{
		Model:       s.opts.Model,
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
		JSON:        true,
	})
	if err != nil {
		return "", "", err
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", "", llm.ErrEmptyResponse
	}
	name := resp.Provider
	if name == "" {
		name = s.backend.Name()
	}
	return content, name, nil
}

// fallback marks base as a data-only report.
func fallback(agg *aggregate.Context, base *report.Report, cause error) *report.Report {
	base.ExecutiveSummary = fmt.Sprintf("%s (%s). The sections below are compiled directly from provider data. %s",
		FallbackNotice, failureReason(cause), availability(agg))
	base.Metadata.Generation = report.GenerationFallback
	base.Metadata.Degraded = true
	return base
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, llm.ErrRateLimit):
		return "quota exhausted"
	case errors.Is(err, llm.ErrNoAPIKey):
		return "authentication failed"
	case errors.Is(err, llm.ErrNoProviders):
		return "no backend configured"
	case errors.Is(err, llm.ErrEmptyResponse):
		return "empty response"
	default:
		return "backend unreachable"
	}
}

// merge lays the narrative over the data-derived report. Figures, news and
// filings stay as the providers reported them, and so do metrics the
// narrative repeats.
func merge(r *report.Report, n *Narrative) {
	r.ExecutiveSummary = n.ExecutiveSummary
	if len(n.KeyFindings) > 0 {
		r.KeyFindings = n.KeyFindings
	}

	for k, v := range metricStrings(n.FinancialAnalysis.Metrics) {
		if _, ok := r.FinancialAnalysis.Metrics[k]; !ok {
			r.FinancialAnalysis.Metrics[k] = v
		}
	}
	setText(&r.FinancialAnalysis.Narrative, n.FinancialAnalysis.Narrative)

	ma := &r.MarketAnalysis
	setText(&ma.Position, n.MarketAnalysis.Position)
	setList(&ma.Competitors, n.MarketAnalysis.Competitors)
	setList(&ma.SWOT.Strengths, n.MarketAnalysis.SWOT.Strengths)
	setList(&ma.SWOT.Weaknesses, n.MarketAnalysis.SWOT.Weaknesses)
	setList(&ma.SWOT.Opportunities, n.MarketAnalysis.SWOT.Opportunities)
	setList(&ma.SWOT.Threats, n.MarketAnalysis.SWOT.Threats)

	ra := &r.RiskAssessment
	setText(&ra.RiskRating, normalizeRating(n.RiskAssessment.RiskRating))
	setList(&ra.Financial, n.RiskAssessment.Financial)
	setList(&ra.Market, n.RiskAssessment.Market)
	setList(&ra.Operational, n.RiskAssessment.Operational)
	setList(&ra.Regulatory, n.RiskAssessment.Regulatory)
	setList(&ra.ESG, n.RiskAssessment.ESG)

	setText(&r.RecentDevelopments.Summary, n.RecentDevelopments.Summary)
	setText(&r.RecentDevelopments.Sentiment, normalizeSentiment(n.RecentDevelopments.Sentiment))
}

// wrapFreeText keeps an unstructured answer as the report's narrative
// sections and leaves the data-derived fields in place.
func wrapFreeText(r *report.Report, content string) {
	r.ExecutiveSummary = content
	r.FinancialAnalysis.Narrative = content
}

func setText(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, v []string) {
	var out []string
	for _, s := range v {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

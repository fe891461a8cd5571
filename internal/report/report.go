// Package report defines the due-diligence report document, its
// placeholder normalization, persistence contract and Markdown rendering.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/seenimoa/diligence/internal/provider"
	"github.com/seenimoa/diligence/pkg/utils"
)

// NA is the placeholder for any text field without data.
const NA = "N/A"

// Generation modes recorded in Metadata.Generation.
const (
	GenerationStructured = "structured"
	GenerationFreeText   = "free_text"
	GenerationFallback   = "fallback"
)

// ════════════════════════════════════════════════════════════════════
// Report document
// ════════════════════════════════════════════════════════════════════

// Report is the synthesized due-diligence document for one company.
// After Normalize every field is populated.
type Report struct {
	ID                 string             `json:"id"`
	Company            string             `json:"company"`
	DateBucket         string             `json:"dateBucket"`
	ExecutiveSummary   string             `json:"executiveSummary"`
	KeyFindings        []string           `json:"keyFindings"`
	FinancialAnalysis  FinancialAnalysis  `json:"financialAnalysis"`
	MarketAnalysis     MarketAnalysis     `json:"marketAnalysis"`
	RiskAssessment     RiskAssessment     `json:"riskAssessment"`
	RecentDevelopments RecentDevelopments `json:"recentDevelopments"`
	Metadata           Metadata           `json:"metadata"`
}

// FinancialAnalysis holds display metrics, narrative and USD-normalized figures.
type FinancialAnalysis struct {
	Metrics   map[string]string `json:"metrics"`
	Narrative string            `json:"narrative"`
	Figures   []Figure          `json:"figures"`
}

// Figure is a monetary amount in its reporting currency and in USD.
type Figure struct {
	Label     string  `json:"label"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	AmountUSD float64 `json:"amountUsd"`
	Formatted string  `json:"formatted"`
}

// MarketAnalysis describes competitive position.
type MarketAnalysis struct {
	Position    string   `json:"position"`
	Competitors []string `json:"competitors"`
	SWOT        SWOT     `json:"swot"`
}

// SWOT lists strengths, weaknesses, opportunities and threats.
type SWOT struct {
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	Opportunities []string `json:"opportunities"`
	Threats       []string `json:"threats"`
}

// RiskAssessment carries categorized risk lists and the overall rating.
type RiskAssessment struct {
	RiskRating  string   `json:"riskRating"`
	RiskScore   float64  `json:"riskScore"`
	Financial   []string `json:"financialRisks"`
	Market      []string `json:"marketRisks"`
	Operational []string `json:"operationalRisks"`
	Regulatory  []string `json:"regulatoryRisks"`
	ESG         []string `json:"esgRisks"`
}

// RecentDevelopments lists news and regulatory filings.
type RecentDevelopments struct {
	Summary   string       `json:"summary"`
	Sentiment string       `json:"sentiment"`
	News      []NewsItem   `json:"news"`
	Filings   []FilingItem `json:"filings"`
}

// NewsItem is one article in the report.
type NewsItem struct {
	Title       string `json:"title"`
	Source      string `json:"source"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Sentiment   string `json:"sentiment"`
}

// FilingItem is one regulatory filing in the report.
type FilingItem struct {
	Form        string `json:"form"`
	Date        string `json:"date"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// Metadata records how the report was produced.
type Metadata struct {
	RequestID      string                    `json:"requestId"`
	GeneratedAt    time.Time                 `json:"generatedAt"`
	DataSources    []string                  `json:"dataSources"`
	ProviderStatus map[string]ProviderStatus `json:"providerStatus"`
	Generation     string                    `json:"generation"`
	Backend        string                    `json:"backend"`
	Degraded       bool                      `json:"degraded"`
}

// ProviderStatus summarizes one provider's result.
type ProviderStatus struct {
	Status  provider.Status      `json:"status"`
	Kind    provider.FailureKind `json:"kind,omitempty"`
	Detail  string               `json:"detail,omitempty"`
	Cached  bool                 `json:"cached"`
	Latency string               `json:"latency"`
}

// StatusOf builds a ProviderStatus from a provider result.
func StatusOf(r provider.Result) ProviderStatus {
	return ProviderStatus{
		Status:  r.Status,
		Kind:    r.Kind,
		Detail:  r.Detail,
		Cached:  r.Cached,
		Latency: r.Latency.Round(time.Millisecond).String(),
	}
}

// ════════════════════════════════════════════════════════════════════
// Placeholders
// ════════════════════════════════════════════════════════════════════

// Normalize fills every empty field with a placeholder so consumers never
// branch on field presence. It is idempotent.
func Normalize(r *Report) {
	if r == nil {
		return
	}
	text(&r.Company)
	text(&r.ExecutiveSummary)
	list(&r.KeyFindings)
	if r.DateBucket == "" {
		t := r.Metadata.GeneratedAt
		if t.IsZero() {
			t = time.Now()
		}
		r.DateBucket = utils.DateBucket(t)
	}

	fa := &r.FinancialAnalysis
	if fa.Metrics == nil {
		fa.Metrics = map[string]string{}
	}
	for k, v := range fa.Metrics {
		if v == "" {
			fa.Metrics[k] = NA
		}
	}
	text(&fa.Narrative)
	if fa.Figures == nil {
		fa.Figures = []Figure{}
	}

	ma := &r.MarketAnalysis
	text(&ma.Position)
	list(&ma.Competitors)
	list(&ma.SWOT.Strengths)
	list(&ma.SWOT.Weaknesses)
	list(&ma.SWOT.Opportunities)
	list(&ma.SWOT.Threats)

	ra := &r.RiskAssessment
	text(&ra.RiskRating)
	list(&ra.Financial)
	list(&ra.Market)
	list(&ra.Operational)
	list(&ra.Regulatory)
	list(&ra.ESG)

	rd := &r.RecentDevelopments
	text(&rd.Summary)
	text(&rd.Sentiment)
	if rd.News == nil {
		rd.News = []NewsItem{}
	}
	for i := range rd.News {
		text(&rd.News[i].Title)
		text(&rd.News[i].Source)
		text(&rd.News[i].PublishedAt)
		text(&rd.News[i].Sentiment)
	}
	if rd.Filings == nil {
		rd.Filings = []FilingItem{}
	}
	for i := range rd.Filings {
		text(&rd.Filings[i].Description)
	}

	md := &r.Metadata
	list(&md.DataSources)
	if md.ProviderStatus == nil {
		md.ProviderStatus = map[string]ProviderStatus{}
	}
	text(&md.Generation)
	text(&md.Backend)
}

func text(s *string) {
	if *s == "" {
		*s = NA
	}
}

func list(s *[]string) {
	if *s == nil {
		*s = []string{}
	}
}

// IsNA reports whether s is empty or the placeholder.
func IsNA(s string) bool { return s == "" || s == NA }

// Clone returns a deep copy of r.
func (r *Report) Clone() *Report {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	var out Report
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return &out
}

// SortedProviders returns the provider names in ProviderStatus, sorted.
func (r *Report) SortedProviders() []string {
	names := make([]string, 0, len(r.Metadata.ProviderStatus))
	for n := range r.Metadata.ProviderStatus {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ════════════════════════════════════════════════════════════════════
// Keys
// ════════════════════════════════════════════════════════════════════

// Key is the persistence key for a company's report in one date bucket.
func Key(company, dateBucket string) string {
	return fmt.Sprintf("%s@%s", provider.NormalizeCompany(company), dateBucket)
}

// Key returns the report's own persistence key.
func (r *Report) Key() string { return Key(r.Company, r.DateBucket) }

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

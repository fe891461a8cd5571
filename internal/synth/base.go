package synth

import (
	"fmt"
	"strings"
	"time"

	"github.com/seenimoa/diligence/internal/aggregate"
	"github.com/seenimoa/diligence/internal/analysis/risk"
	"github.com/seenimoa/diligence/internal/analysis/sentiment"
	"github.com/seenimoa/diligence/internal/currency"
	"github.com/seenimoa/diligence/internal/provider"
	"github.com/seenimoa/diligence/internal/report"
	"github.com/seenimoa/diligence/pkg/models"
	"github.com/seenimoa/diligence/pkg/utils"
)

// Metric keys written from provider data.
const (
	MetricMarketCapUSD   = "MarketCapitalizationUSD"
	MetricMarketCap      = "MarketCapitalization"
	MetricRevenueUSD     = "RevenueTTMUSD"
	MetricProfitMargin   = "ProfitMargin"
	MetricPERatio        = "PERatio"
	MetricEPS            = "EPS"
	MetricBeta           = "Beta"
	MetricDebtToEquity   = "DebtToEquity"
	MetricSharePrice     = "SharePrice"
	MetricTotalFunding   = "TotalFundingUSD"
	MetricLastFunding    = "LastFundingType"
	MetricConsensus      = "AnalystConsensus"
	MetricTargetPriceUSD = "AnalystTargetPriceUSD"
	MetricEmployees      = "Employees"
)

// sourceData holds the decoded payloads of one aggregation.
type sourceData struct {
	market     *models.CompanyOverview
	news       *models.NewsDigest
	filings    *models.FilingSet
	network    *models.NetworkProfile
	funding    *models.FundingProfile
	analyst    *models.AnalystCoverage
	generated  time.Time
	assessment risk.Assessment
}

func decode(agg *aggregate.Context, generated time.Time) *sourceData {
	d := &sourceData{generated: generated}
	if v, ok := aggregate.Data[models.CompanyOverview](agg, SourceMarket); ok {
		d.market = &v
	}
	if v, ok := aggregate.Data[models.NewsDigest](agg, SourceNews); ok {
		d.news = &v
	}
	if v, ok := aggregate.Data[models.FilingSet](agg, SourceSEC); ok {
		d.filings = &v
	}
	if v, ok := aggregate.Data[models.NetworkProfile](agg, SourceNetwork); ok {
		d.network = &v
	}
	if v, ok := aggregate.Data[models.FundingProfile](agg, SourceFunding); ok {
		d.funding = &v
	}
	if v, ok := aggregate.Data[models.AnalystCoverage](agg, SourceAnalyst); ok {
		d.analyst = &v
	}
	d.assessment = risk.Assess(d.riskInputs())
	return d
}

func (d *sourceData) riskInputs() risk.Inputs {
	var in risk.Inputs
	if m := d.market; m != nil {
		in.DebtToEquity = risk.Known(m.DebtToEquity)
		in.CurrentRatio = risk.Known(m.CurrentRatio)
		if m.ProfitMargin != 0 {
			in.ProfitMarginPct = risk.Float(m.ProfitMargin * 100)
		}
		in.Beta = risk.Known(m.Beta)
		in.VolatilityPct = risk.Known(m.Quote.Volatility())
	}
	if a := d.analyst; a != nil && in.Beta == nil {
		in.Beta = risk.Known(a.Beta)
	}
	return in
}

// baseReport builds a complete report from provider data alone. It is the
// fallback report and the skeleton the narrative is merged into.
func baseReport(agg *aggregate.Context, d *sourceData) *report.Report {
	r := &report.Report{
		ID:         agg.RequestID,
		Company:    agg.Company,
		DateBucket: utils.DateBucket(d.generated),
		FinancialAnalysis: report.FinancialAnalysis{
			Metrics: d.metrics(),
			Figures: d.figures(),
		},
		MarketAnalysis: report.MarketAnalysis{
			Position: d.position(agg.Company),
			SWOT:     d.swot(),
		},
		RiskAssessment: report.RiskAssessment{
			RiskRating: string(d.assessment.Rating),
			RiskScore:  d.assessment.Score,
			Financial:  d.assessment.FinancialConcerns,
			Market:     d.assessment.MarketConcerns,
		},
		RecentDevelopments: d.developments(),
		KeyFindings:        d.findings(),
		Metadata: report.Metadata{
			RequestID:      agg.RequestID,
			GeneratedAt:    d.generated,
			DataSources:    agg.Succeeded(),
			ProviderStatus: map[string]report.ProviderStatus{},
		},
	}
	for name, res := range agg.Results {
		r.Metadata.ProviderStatus[name] = report.StatusOf(res)
	}
	if r.Metadata.DataSources == nil {
		r.Metadata.DataSources = []string{}
	}
	return r
}

func (d *sourceData) metrics() map[string]string {
	m := map[string]string{}
	if o := d.market; o != nil {
		m[MetricMarketCapUSD] = currency.FormatCurrency(o.MarketCapUSD, "USD")
		if o.MarketCap != 0 {
			m[MetricMarketCap] = currency.FormatCurrency(o.MarketCap, o.Currency)
		}
		if o.RevenueTTMUSD != 0 {
			m[MetricRevenueUSD] = currency.FormatCurrency(o.RevenueTTMUSD, "USD")
		}
		if o.ProfitMargin != 0 {
			m[MetricProfitMargin] = fmt.Sprintf("%.1f%%", o.ProfitMargin*100)
		}
		if o.PERatio != 0 {
			m[MetricPERatio] = utils.TrimDecimals(o.PERatio)
		}
		if o.EPS != 0 {
			m[MetricEPS] = utils.TrimDecimals(o.EPS)
		}
		if o.Beta != 0 {
			m[MetricBeta] = utils.TrimDecimals(o.Beta)
		}
		if o.DebtToEquity != 0 {
			m[MetricDebtToEquity] = utils.TrimDecimals(o.DebtToEquity)
		}
		if o.Quote != nil && o.Quote.Price != 0 {
			m[MetricSharePrice] = currency.FormatCurrency(o.Quote.Price, o.Currency)
		}
	}
	if f := d.funding; f != nil {
		if f.TotalFundingUSD != 0 {
			m[MetricTotalFunding] = currency.FormatCurrency(f.TotalFundingUSD, "USD")
		}
		if f.LastFundingType != "" {
			m[MetricLastFunding] = f.LastFundingType
		}
	}
	if a := d.analyst; a != nil {
		if a.Consensus != "" {
			m[MetricConsensus] = a.Consensus
		}
		if a.TargetPriceUSD != 0 {
			m[MetricTargetPriceUSD] = currency.FormatCurrency(a.TargetPriceUSD, "USD")
		}
	}
	if n := d.network; n != nil {
		switch {
		case n.Employees != 0:
			m[MetricEmployees] = fmt.Sprint(n.Employees)
		case n.CompanySize != "":
			m[MetricEmployees] = n.CompanySize
		}
	}
	return m
}

func (d *sourceData) figures() []report.Figure {
	var out []report.Figure
	add := func(label string, amount float64, ccy string, usd float64) {
		if amount == 0 && usd == 0 {
			return
		}
		out = append(out, report.Figure{
			Label:     label,
			Amount:    amount,
			Currency:  ccy,
			AmountUSD: usd,
			Formatted: currency.FormatCurrency(usd, "USD"),
		})
	}
	if o := d.market; o != nil {
		add("Market capitalization", o.MarketCap, o.Currency, o.MarketCapUSD)
		add("Revenue (TTM)", o.RevenueTTM, o.Currency, o.RevenueTTMUSD)
	}
	if f := d.funding; f != nil {
		add("Total funding", f.TotalFunding, f.TotalFundingCcy, f.TotalFundingUSD)
	}
	if a := d.analyst; a != nil {
		add("Analyst target price", a.TargetPrice, a.TargetCurrency, a.TargetPriceUSD)
	}
	if out == nil {
		out = []report.Figure{}
	}
	return out
}

func (d *sourceData) position(company string) string {
	var parts []string
	if o := d.market; o != nil && o.Sector != "" {
		p := fmt.Sprintf("%s is listed on %s in the %s sector", nonEmpty(o.Name, company), nonEmpty(o.Exchange, "an exchange"), o.Sector)
		if o.Industry != "" {
			p += " (" + o.Industry + ")"
		}
		parts = append(parts, p+".")
	}
	if n := d.network; n != nil && n.Industry != "" {
		p := fmt.Sprintf("Its professional profile lists the %s industry", n.Industry)
		if n.CompanySize != "" {
			p += " with " + n.CompanySize + " employees"
		}
		parts = append(parts, p+".")
	}
	if f := d.funding; f != nil && f.Status != "" {
		parts = append(parts, fmt.Sprintf("Funding status: %s.", f.Status))
	}
	return strings.Join(parts, " ")
}

func (d *sourceData) swot() report.SWOT {
	s := report.SWOT{}
	if o := d.market; o != nil {
		if o.ProfitMargin >= 0.2 {
			s.Strengths = append(s.Strengths, fmt.Sprintf("High profit margin (%.1f%%)", o.ProfitMargin*100))
		}
		if o.MarketCapUSD >= 1e11 {
			s.Strengths = append(s.Strengths, "Large market capitalization ("+utils.FormatCompact(o.MarketCapUSD)+" USD)")
		}
	}
	s.Weaknesses = append(s.Weaknesses, d.assessment.FinancialConcerns...)
	if a := d.analyst; a != nil && a.Consensus == "buy" {
		s.Opportunities = append(s.Opportunities, fmt.Sprintf("Analyst consensus is buy (%d of %d ratings)", a.BuyCount, a.BuyCount+a.HoldCount+a.SellCount))
	}
	if f := d.funding; f != nil && f.LastFundingType != "" {
		s.Opportunities = append(s.Opportunities, "Recent "+f.LastFundingType+" financing")
	}
	s.Threats = append(s.Threats, d.assessment.MarketConcerns...)
	if n := d.news; n != nil && n.OverallLabel == sentiment.LabelNegative {
		s.Threats = append(s.Threats, "Negative news sentiment")
	}
	return s
}

func (d *sourceData) developments() report.RecentDevelopments {
	rd := report.RecentDevelopments{}
	if n := d.news; n != nil {
		articles := append([]models.NewsArticle(nil), n.Articles...)
		summary := sentiment.Aggregate(articles, d.generated)
		rd.Sentiment = nonEmpty(n.OverallLabel, summary.Label)
		for _, a := range articles {
			item := report.NewsItem{
				Title:     a.Title,
				Source:    a.Source,
				URL:       a.URL,
				Sentiment: a.Sentiment,
			}
			if !a.PublishedAt.IsZero() {
				item.PublishedAt = utils.DateBucket(a.PublishedAt)
			}
			rd.News = append(rd.News, item)
		}
		rd.Summary = fmt.Sprintf("%d recent articles, %d positive and %d negative.", len(articles), summary.Positive, summary.Negative)
	}
	if f := d.filings; f != nil {
		for _, fl := range f.Filings {
			rd.Filings = append(rd.Filings, report.FilingItem{
				Form:        fl.FormType,
				Date:        utils.DateBucket(fl.Date),
				Description: fl.Description,
				URL:         fl.FilingURL,
			})
		}
		if len(f.Filings) > 0 {
			latest := f.Filings[0]
			rd.Summary = strings.TrimSpace(rd.Summary + fmt.Sprintf(" Latest filing: %s on %s.", latest.FormType, utils.DateBucket(latest.Date)))
		}
	}
	return rd
}

func (d *sourceData) findings() []string {
	var out []string
	if o := d.market; o != nil && o.MarketCapUSD != 0 {
		out = append(out, "Market capitalization of "+currency.FormatCurrency(o.MarketCapUSD, "USD"))
	}
	if a := d.analyst; a != nil && a.Consensus != "" {
		out = append(out, "Analyst consensus: "+a.Consensus)
	}
	if f := d.funding; f != nil && f.TotalFundingUSD != 0 {
		out = append(out, "Total funding raised: "+currency.FormatCurrency(f.TotalFundingUSD, "USD"))
	}
	if n := d.news; n != nil && n.OverallLabel != "" {
		out = append(out, "News sentiment is "+n.OverallLabel)
	}
	out = append(out, fmt.Sprintf("Rule-based risk rating: %s (score %.0f)", d.assessment.Rating, d.assessment.Score))
	return out
}

// availability describes which providers contributed, for summaries.
func availability(agg *aggregate.Context) string {
	var ok, empty, failed []string
	for _, name := range agg.Providers() {
		r := agg.Results[name]
		switch {
		case r.OK():
			ok = append(ok, name)
		case r.Status == provider.StatusEmpty:
			empty = append(empty, name)
		default:
			failed = append(failed, fmt.Sprintf("%s (%s)", name, r.Kind))
		}
	}
	var parts []string
	if len(ok) > 0 {
		parts = append(parts, "Data sources: "+strings.Join(ok, ", ")+".")
	}
	if len(empty) > 0 {
		parts = append(parts, "No matching records: "+strings.Join(empty, ", ")+".")
	}
	if len(failed) > 0 {
		parts = append(parts, "Unavailable: "+strings.Join(failed, ", ")+".")
	}
	if len(parts) == 0 {
		return "No provider data was available."
	}
	return strings.Join(parts, " ")
}

func nonEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

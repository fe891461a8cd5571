package synth

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/seenimoa/diligence/internal/aggregate"
	"github.com/seenimoa/diligence/internal/currency"
	"github.com/seenimoa/diligence/internal/provider"
	"github.com/seenimoa/diligence/pkg/models"
	"github.com/seenimoa/diligence/pkg/utils"
)

// Provider names as registered by the adapters.
const (
	SourceMarket  = "market"
	SourceNews    = "news"
	SourceSEC     = "sec"
	SourceNetwork = "network"
	SourceFunding = "funding"
	SourceAnalyst = "analyst"
)

// sections fixes the order of the prompt sections. Every section is always
// rendered, with a placeholder when its provider has no data.
var sections = []struct {
	source string
	title  string
}{
	{SourceMarket, "Market and Financial Data"},
	{SourceNews, "Recent News"},
	{SourceSEC, "Regulatory Filings"},
	{SourceNetwork, "Company Profile"},
	{SourceFunding, "Funding History"},
	{SourceAnalyst, "Analyst Coverage"},
}

const systemPrompt = `You are a senior due-diligence analyst. Write objective, evidence-based assessments ` +
	`using only the data supplied. When a section says data is not available, say so instead of guessing. ` +
	`Respond with a single JSON object and no other text.`

const promptTemplate = `Perform a comprehensive due diligence analysis for: {{.Company}}
Report date: {{.Date}}

{{range .Sections}}## {{.Title}}
{{if .Available}}{{range .Lines}}- {{.}}
{{end}}{{else}}{{.Placeholder}}
{{end}}
{{end}}## Instructions
Analyse company overview, financial health, market position, risks, growth potential,
competition and regulatory standing. Return JSON with exactly this shape:
{
  "executiveSummary": "string",
  "keyFindings": ["string"],
  "financialAnalysis": {"metrics": {"name": "value"}, "narrative": "string"},
  "marketAnalysis": {"position": "string", "competitors": ["string"],
    "swot": {"strengths": ["string"], "weaknesses": ["string"], "opportunities": ["string"], "threats": ["string"]}},
  "riskAssessment": {"riskRating": "low|medium|high", "financialRisks": ["string"], "marketRisks": ["string"],
    "operationalRisks": ["string"], "regulatoryRisks": ["string"], "esgRisks": ["string"]},
  "recentDevelopments": {"summary": "string", "sentiment": "positive|neutral|negative"}
}
`

var promptTmpl = template.Must(template.New("prompt").Parse(promptTemplate))

type promptSection struct {
	Title       string
	Available   bool
	Placeholder string
	Lines       []string
}

type promptData struct {
	Company  string
	Date     string
	Sections []promptSection
}

// BuildPrompt renders the user prompt for an aggregation. The output only
// depends on agg, so identical contexts give identical prompts.
func BuildPrompt(agg *aggregate.Context) (string, error) {
	data := promptData{
		Company: agg.Company,
		Date:    utils.DateBucket(agg.RequestedAt),
	}
	for _, s := range sections {
		ps := promptSection{Title: s.title}
		lines, err := sectionLines(agg, s.source)
		switch {
		case err != nil:
			ps.Placeholder = "Data not available: " + err.Error() + "."
		case len(lines) == 0:
			ps.Placeholder = "Data not available: the provider returned no usable fields."
		default:
			ps.Available = true
			ps.Lines = lines
		}
		data.Sections = append(data.Sections, ps)
	}

	var sb strings.Builder
	if err := promptTmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return sb.String(), nil
}

// unavailable explains why a provider has no data.
func unavailable(agg *aggregate.Context, source string) error {
	r, ok := agg.Result(source)
	switch {
	case !ok:
		return fmt.Errorf("%s provider not configured", source)
	case r.Status == provider.StatusEmpty:
		return fmt.Errorf("no matching records found by %s provider", source)
	case r.Status == provider.StatusFailure:
		return fmt.Errorf("%s provider failed (%s)", source, r.Kind)
	}
	return fmt.Errorf("%s provider returned an unexpected payload", source)
}

func sectionLines(agg *aggregate.Context, source string) ([]string, error) {
	switch source {
	case SourceMarket:
		o, ok := aggregate.Data[models.CompanyOverview](agg, source)
		if !ok {
			return nil, unavailable(agg, source)
		}
		return marketLines(o), nil
	case SourceNews:
		d, ok := aggregate.Data[models.NewsDigest](agg, source)
		if !ok {
			return nil, unavailable(agg, source)
		}
		return newsLines(d), nil
	case SourceSEC:
		f, ok := aggregate.Data[models.FilingSet](agg, source)
		if !ok {
			return nil, unavailable(agg, source)
		}
		return filingLines(f), nil
	case SourceNetwork:
		p, ok := aggregate.Data[models.NetworkProfile](agg, source)
		if !ok {
			return nil, unavailable(agg, source)
		}
		return networkLines(p), nil
	case SourceFunding:
		f, ok := aggregate.Data[models.FundingProfile](agg, source)
		if !ok {
			return nil, unavailable(agg, source)
		}
		return fundingLines(f), nil
	case SourceAnalyst:
		c, ok := aggregate.Data[models.AnalystCoverage](agg, source)
		if !ok {
			return nil, unavailable(agg, source)
		}
		return analystLines(c), nil
	}
	return nil, unavailable(agg, source)
}

func appendIf(lines []string, cond bool, format string, args ...any) []string {
	if !cond {
		return lines
	}
	return append(lines, fmt.Sprintf(format, args...))
}

func marketLines(o models.CompanyOverview) []string {
	var l []string
	l = appendIf(l, o.Name != "", "Name: %s (%s, %s)", o.Name, o.Symbol, o.Exchange)
	l = appendIf(l, o.Sector != "", "Sector: %s / %s", o.Sector, o.Industry)
	l = appendIf(l, o.Country != "", "Country: %s", o.Country)
	l = appendIf(l, o.MarketCap != 0, "Market capitalization: %s (%s)",
		currency.FormatCurrency(o.MarketCap, o.Currency), currency.FormatCurrency(o.MarketCapUSD, "USD"))
	l = appendIf(l, o.RevenueTTM != 0, "Revenue (TTM): %s", currency.FormatCurrency(o.RevenueTTM, o.Currency))
	l = appendIf(l, o.ProfitMargin != 0, "Profit margin: %s", utils.FormatPct(o.ProfitMargin*100))
	l = appendIf(l, o.OperatingMargin != 0, "Operating margin: %s", utils.FormatPct(o.OperatingMargin*100))
	l = appendIf(l, o.ReturnOnEquity != 0, "Return on equity: %s", utils.FormatPct(o.ReturnOnEquity*100))
	l = appendIf(l, o.PERatio != 0, "P/E ratio: %s", utils.TrimDecimals(o.PERatio))
	l = appendIf(l, o.EPS != 0, "EPS: %s", utils.TrimDecimals(o.EPS))
	l = appendIf(l, o.Beta != 0, "Beta: %s", utils.TrimDecimals(o.Beta))
	l = appendIf(l, o.DebtToEquity != 0, "Debt to equity: %s", utils.TrimDecimals(o.DebtToEquity))
	l = appendIf(l, o.Week52High != 0, "52-week range: %s - %s",
		currency.FormatCurrency(o.Week52Low, o.Currency), currency.FormatCurrency(o.Week52High, o.Currency))
	if q := o.Quote; q != nil && q.Price != 0 {
		l = append(l, fmt.Sprintf("Last price: %s (%s)", currency.FormatCurrency(q.Price, o.Currency), utils.FormatPct(q.ChangePercent)))
	}
	l = appendIf(l, o.Description != "", "Description: %s", o.Description)
	return l
}

func newsLines(d models.NewsDigest) []string {
	var l []string
	l = appendIf(l, d.OverallLabel != "", "Overall sentiment: %s (score %.2f, %d positive, %d negative, %d neutral)",
		d.OverallLabel, d.OverallScore, d.PositiveCount, d.NegativeCount, d.NeutralCount)
	for _, a := range d.Articles {
		line := a.Title
		if a.Source != "" {
			line += " (" + a.Source
			if !a.PublishedAt.IsZero() {
				line += ", " + utils.DateBucket(a.PublishedAt)
			}
			line += ")"
		}
		if a.Sentiment != "" {
			line += " [" + a.Sentiment + "]"
		}
		l = append(l, line)
	}
	return l
}

func filingLines(f models.FilingSet) []string {
	var l []string
	l = appendIf(l, f.CompanyName != "", "Registrant: %s (CIK %s)", f.CompanyName, f.CIK)
	for _, fl := range f.Filings {
		l = append(l, fmt.Sprintf("%s filed %s: %s", fl.FormType, utils.DateBucket(fl.Date), fl.Description))
	}
	return l
}

func networkLines(p models.NetworkProfile) []string {
	var l []string
	l = appendIf(l, p.Industry != "", "Industry: %s", p.Industry)
	l = appendIf(l, p.CompanySize != "", "Company size: %s employees", p.CompanySize)
	l = appendIf(l, p.Employees != 0, "Employees on network: %d", p.Employees)
	l = appendIf(l, p.Headquarters != "", "Headquarters: %s", p.Headquarters)
	l = appendIf(l, p.FoundedYear != 0, "Founded: %d", p.FoundedYear)
	l = appendIf(l, p.Followers != 0, "Followers: %d", p.Followers)
	l = appendIf(l, len(p.Specialities) > 0, "Specialities: %s", strings.Join(p.Specialities, ", "))
	l = appendIf(l, p.Description != "", "Description: %s", p.Description)
	return l
}

func fundingLines(f models.FundingProfile) []string {
	var l []string
	l = appendIf(l, f.Status != "", "Status: %s", f.Status)
	l = appendIf(l, f.FoundedOn != "", "Founded on: %s", f.FoundedOn)
	l = appendIf(l, f.TotalFunding != 0, "Total funding: %s (%s)",
		currency.FormatCurrency(f.TotalFunding, f.TotalFundingCcy), currency.FormatCurrency(f.TotalFundingUSD, "USD"))
	l = appendIf(l, f.LastFundingType != "", "Last funding type: %s", f.LastFundingType)
	l = appendIf(l, f.NumFundingRounds != 0, "Funding rounds: %d", f.NumFundingRounds)
	l = appendIf(l, len(f.Investors) > 0, "Investors: %s", strings.Join(f.Investors, ", "))
	for _, r := range f.Rounds {
		line := fmt.Sprintf("Round %s on %s: %s", r.Type, utils.DateBucket(r.AnnouncedOn), currency.FormatCurrency(r.AmountUSD, "USD"))
		if r.LeadInvestor != "" {
			line += " led by " + r.LeadInvestor
		}
		l = append(l, line)
	}
	return l
}

func analystLines(c models.AnalystCoverage) []string {
	var l []string
	l = appendIf(l, c.Consensus != "", "Consensus: %s (%d buy, %d hold, %d sell)", c.Consensus, c.BuyCount, c.HoldCount, c.SellCount)
	l = appendIf(l, c.TargetPrice != 0, "Target price: %s (%s)",
		currency.FormatCurrency(c.TargetPrice, c.TargetCurrency), currency.FormatCurrency(c.TargetPriceUSD, "USD"))
	l = appendIf(l, c.Beta != 0, "Beta: %s", utils.TrimDecimals(c.Beta))
	l = appendIf(l, c.Volatility != 0, "Volatility: %s", utils.FormatPct(c.Volatility))
	for _, r := range c.Ratings {
		l = append(l, fmt.Sprintf("%s rates %s, target %s", r.Firm, r.Rating, utils.TrimDecimals(r.TargetPrice)))
	}
	return l
}

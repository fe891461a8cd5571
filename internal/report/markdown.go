package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/seenimoa/diligence/pkg/utils"
)

// RenderMarkdown renders a report as a Markdown document.
func RenderMarkdown(r *Report) string {
	if r == nil {
		return ""
	}
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s Due Diligence Report\n\n", r.Company)
	if !r.Metadata.GeneratedAt.IsZero() {
		fmt.Fprintf(&sb, "Generated: %s\n\n", utils.FormatDateTimeUTC(r.Metadata.GeneratedAt))
	}

	sb.WriteString("## Executive Summary\n\n")
	sb.WriteString(r.ExecutiveSummary + "\n\n")
	bullets(&sb, "### Key Findings", r.KeyFindings)
	fmt.Fprintf(&sb, "### Risk Rating: %s\n\n", r.RiskAssessment.RiskRating)

	sb.WriteString("## Financial Analysis\n\n")
	sb.WriteString("### Key Metrics\n\n")
	if len(r.FinancialAnalysis.Metrics) == 0 {
		sb.WriteString("- " + NA + "\n")
	}
	keys := make([]string, 0, len(r.FinancialAnalysis.Metrics))
	for k := range r.FinancialAnalysis.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "- %s: %s\n", k, r.FinancialAnalysis.Metrics[k])
	}
	sb.WriteString("\n")
	if !IsNA(r.FinancialAnalysis.Narrative) {
		sb.WriteString(r.FinancialAnalysis.Narrative + "\n\n")
	}

	sb.WriteString("## Market Analysis\n\n")
	sb.WriteString(r.MarketAnalysis.Position + "\n\n")
	bullets(&sb, "### Competitors", r.MarketAnalysis.Competitors)
	sb.WriteString("### SWOT Analysis\n\n")
	bullets(&sb, "#### Strengths", r.MarketAnalysis.SWOT.Strengths)
	bullets(&sb, "#### Weaknesses", r.MarketAnalysis.SWOT.Weaknesses)
	bullets(&sb, "#### Opportunities", r.MarketAnalysis.SWOT.Opportunities)
	bullets(&sb, "#### Threats", r.MarketAnalysis.SWOT.Threats)

	sb.WriteString("## Risk Assessment\n\n")
	bullets(&sb, "### Financial Risks", r.RiskAssessment.Financial)
	bullets(&sb, "### Operational Risks", r.RiskAssessment.Operational)
	bullets(&sb, "### Market Risks", r.RiskAssessment.Market)
	bullets(&sb, "### Regulatory Risks", r.RiskAssessment.Regulatory)
	bullets(&sb, "### ESG Risks", r.RiskAssessment.ESG)

	sb.WriteString("## Recent Developments\n\n")
	if !IsNA(r.RecentDevelopments.Summary) {
		sb.WriteString(r.RecentDevelopments.Summary + "\n\n")
	}
	news := make([]string, len(r.RecentDevelopments.News))
	for i, n := range r.RecentDevelopments.News {
		news[i] = fmt.Sprintf("%s (%s - %s)", n.Title, n.PublishedAt, n.Source)
	}
	bullets(&sb, "### Recent News", news)
	filings := make([]string, len(r.RecentDevelopments.Filings))
	for i, f := range r.RecentDevelopments.Filings {
		filings[i] = fmt.Sprintf("%s (%s): %s", f.Form, f.Date, f.Description)
	}
	bullets(&sb, "### Recent Filings", filings)

	sb.WriteString("---\n\n")
	fmt.Fprintf(&sb, "Sources: %s\n", joinOrNA(r.Metadata.DataSources))
	for _, name := range r.SortedProviders() {
		st := r.Metadata.ProviderStatus[name]
		line := string(st.Status)
		if st.Kind != "" {
			line += " (" + string(st.Kind) + ")"
		}
		fmt.Fprintf(&sb, "- %s: %s\n", name, line)
	}
	return sb.String()
}

func bullets(sb *strings.Builder, heading string, items []string) {
	sb.WriteString(heading + "\n\n")
	if len(items) == 0 {
		sb.WriteString("- " + NA + "\n\n")
		return
	}
	for _, it := range items {
		sb.WriteString("- " + it + "\n")
	}
	sb.WriteString("\n")
}

func joinOrNA(items []string) string {
	if len(items) == 0 {
		return NA
	}
	return strings.Join(items, ", ")
}

// Package risk rates company risk from financial and market metrics with a
// fixed rule table. Operational and regulatory risk have no quantitative
// inputs and sit at a medium baseline.
package risk

import (
	"fmt"
	"math"
)

// Rating is the overall risk band.
type Rating string

const (
	RatingLow    Rating = "low"
	RatingMedium Rating = "medium"
	RatingHigh   Rating = "high"
)

// baseline score for categories without quantitative inputs.
const baseline = 50

// Inputs are the metrics the rules look at. Nil means unknown; unknown
// metrics add no risk.
type Inputs struct {
	DebtToEquity    *float64
	CurrentRatio    *float64
	ProfitMarginPct *float64
	Beta            *float64
	VolatilityPct   *float64
}

// Assessment is the result of Assess.
type Assessment struct {
	Score       float64  `json:"score"`
	Rating      Rating   `json:"rating"`
	Financial   float64  `json:"financial"`
	Market      float64  `json:"market"`
	Operational float64  `json:"operational"`
	Regulatory  float64  `json:"regulatory"`
	Concerns    []string `json:"concerns"`

	FinancialConcerns []string `json:"financial_concerns"`
	MarketConcerns    []string `json:"market_concerns"`
}

// Float returns a pointer to v, for building Inputs.
func Float(v float64) *float64 { return &v }

// Known returns a pointer to v, or nil when v is zero (the providers'
// "missing" value).
func Known(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

// Assess scores the inputs. The overall score is the mean of the four
// category scores: below 40 is low, below 70 medium, otherwise high.
func Assess(in Inputs) Assessment {
	a := Assessment{
		Operational:       baseline,
		Regulatory:        baseline,
		Concerns:          []string{},
		FinancialConcerns: []string{},
		MarketConcerns:    []string{},
	}

	if v := in.DebtToEquity; v != nil {
		switch {
		case *v > 2:
			a.Financial += 30
			a.FinancialConcerns = append(a.FinancialConcerns, fmt.Sprintf("High debt-to-equity ratio (%.2f)", *v))
		case *v > 1:
			a.Financial += 15
		}
	}
	if v := in.CurrentRatio; v != nil {
		switch {
		case *v < 1:
			a.Financial += 30
			a.FinancialConcerns = append(a.FinancialConcerns, fmt.Sprintf("Low current ratio (%.2f), liquidity concerns", *v))
		case *v < 1.5:
			a.Financial += 15
		}
	}
	if v := in.ProfitMarginPct; v != nil {
		switch {
		case *v < 0:
			a.Financial += 40
			a.FinancialConcerns = append(a.FinancialConcerns, fmt.Sprintf("Negative profit margin (%.1f%%)", *v))
		case *v < 5:
			a.Financial += 20
			a.FinancialConcerns = append(a.FinancialConcerns, fmt.Sprintf("Low profit margin (%.1f%%)", *v))
		case *v < 10:
			a.Financial += 10
		}
	}
	a.Financial = math.Min(a.Financial, 100)

	if v := in.Beta; v != nil {
		switch {
		case *v > 2:
			a.Market += 40
			a.MarketConcerns = append(a.MarketConcerns, fmt.Sprintf("Very high beta (%.2f)", *v))
		case *v > 1.5:
			a.Market += 25
			a.MarketConcerns = append(a.MarketConcerns, fmt.Sprintf("High market volatility, beta %.2f", *v))
		case *v > 1:
			a.Market += 10
		}
	}
	if v := in.VolatilityPct; v != nil {
		switch {
		case math.Abs(*v) > 5:
			a.Market += 30
			a.MarketConcerns = append(a.MarketConcerns, fmt.Sprintf("Large recent price swing (%.1f%%)", math.Abs(*v)))
		case math.Abs(*v) > 3:
			a.Market += 15
		}
	}
	a.Market = math.Min(a.Market, 100)

	a.Score = (a.Financial + a.Market + a.Operational + a.Regulatory) / 4
	a.Rating = RatingFor(a.Score)

	a.Concerns = append(a.Concerns, a.FinancialConcerns...)
	a.Concerns = append(a.Concerns, a.MarketConcerns...)
	return a
}

// RatingFor maps a 0-100 score to a rating band.
func RatingFor(score float64) Rating {
	switch {
	case score < 40:
		return RatingLow
	case score < 70:
		return RatingMedium
	default:
		return RatingHigh
	}
}

// Package models holds the normalized schemas that provider adapters
// produce. Every adapter maps its upstream response into one of these.
package models

import "time"

// --- Market data ---

// CompanyOverview is the normalized financial overview of a listed company.
// Monetary fields are in Currency unless the field name says USD.
type CompanyOverview struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Exchange    string `json:"exchange,omitempty"`
	Currency    string `json:"currency"`
	Country     string `json:"country,omitempty"`
	Sector      string `json:"sector,omitempty"`
	Industry    string `json:"industry,omitempty"`

	MarketCap       float64 `json:"market_cap"`
	MarketCapUSD    float64 `json:"market_cap_usd"`
	PERatio         float64 `json:"pe_ratio"`
	PEGRatio        float64 `json:"peg_ratio"`
	BookValue       float64 `json:"book_value"`
	DividendYield   float64 `json:"dividend_yield"`
	EPS             float64 `json:"eps"`
	RevenueTTM      float64 `json:"revenue_ttm"`
	RevenueTTMUSD   float64 `json:"revenue_ttm_usd"`
	GrossProfitTTM  float64 `json:"gross_profit_ttm"`
	ProfitMargin    float64 `json:"profit_margin"`
	OperatingMargin float64 `json:"operating_margin"`
	ReturnOnEquity  float64 `json:"return_on_equity"`
	ReturnOnAssets  float64 `json:"return_on_assets"`
	Beta            float64 `json:"beta"`
	Week52High      float64 `json:"week_52_high"`
	Week52Low       float64 `json:"week_52_low"`
	AnalystTarget   float64 `json:"analyst_target_price"`
	DebtToEquity    float64 `json:"debt_to_equity"`
	CurrentRatio    float64 `json:"current_ratio"`

	Quote *Quote `json:"quote,omitempty"`
}

// Quote is the latest trading snapshot for a symbol.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Volume        int64     `json:"volume"`
	PreviousClose float64   `json:"previous_close"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	TradingDay    time.Time `json:"trading_day"`
}

// Volatility returns the intraday range as a percentage of the previous close.
func (q *Quote) Volatility() float64 {
	if q == nil || q.PreviousClose == 0 {
		return 0
	}
	return (q.High - q.Low) / q.PreviousClose * 100
}

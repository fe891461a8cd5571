package models

import "time"

// NetworkProfile is a company page from a professional-network provider.
type NetworkProfile struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Website      string   `json:"website,omitempty"`
	Industry     string   `json:"industry,omitempty"`
	CompanySize  string   `json:"company_size,omitempty"`
	Employees    int      `json:"employees,omitempty"`
	Headquarters string   `json:"headquarters,omitempty"`
	FoundedYear  int      `json:"founded_year,omitempty"`
	Followers    int      `json:"followers,omitempty"`
	Specialities []string `json:"specialities,omitempty"`
	ProfileURL   string   `json:"profile_url,omitempty"`
}

// FundingRound is one financing event.
type FundingRound struct {
	Type         string    `json:"type"`
	AnnouncedOn  time.Time `json:"announced_on"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	AmountUSD    float64   `json:"amount_usd"`
	LeadInvestor string    `json:"lead_investor,omitempty"`
}

// FundingProfile is the normalized output of a startup-funding provider.
type FundingProfile struct {
	Name             string         `json:"name"`
	Permalink        string         `json:"permalink"`
	Description      string         `json:"description,omitempty"`
	FoundedOn        string         `json:"founded_on,omitempty"`
	Status           string         `json:"status,omitempty"` // "operating", "ipo", "acquired", "closed"
	TotalFunding     float64        `json:"total_funding"`
	TotalFundingCcy  string         `json:"total_funding_currency"`
	TotalFundingUSD  float64        `json:"total_funding_usd"`
	LastFundingType  string         `json:"last_funding_type,omitempty"`
	NumFundingRounds int            `json:"num_funding_rounds"`
	Investors        []string       `json:"investors,omitempty"`
	Rounds           []FundingRound `json:"rounds,omitempty"`
}

// AnalystRating is one broker recommendation.
type AnalystRating struct {
	Firm        string    `json:"firm"`
	Rating      string    `json:"rating"` // "buy", "hold", "sell"
	TargetPrice float64   `json:"target_price"`
	Date        time.Time `json:"date"`
}

// AnalystCoverage is the normalized output of the analyst-terminal provider.
type AnalystCoverage struct {
	Symbol         string          `json:"symbol"`
	Consensus      string          `json:"consensus"`
	TargetPrice    float64         `json:"target_price"`
	TargetCurrency string          `json:"target_currency"`
	TargetPriceUSD float64         `json:"target_price_usd"`
	Beta           float64         `json:"beta"`
	Volatility     float64         `json:"volatility"`
	BuyCount       int             `json:"buy_count"`
	HoldCount      int             `json:"hold_count"`
	SellCount      int             `json:"sell_count"`
	Ratings        []AnalystRating `json:"ratings"`
}

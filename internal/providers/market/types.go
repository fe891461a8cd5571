package market

// avSearchResponse is the SYMBOL_SEARCH payload. Alpha Vantage reports quota
// exhaustion in Note or Information with a 200 status.
type avSearchResponse struct {
	BestMatches  *[]avMatch `json:"bestMatches"`
	Note         string     `json:"Note"`
	Information  string     `json:"Information"`
	ErrorMessage string     `json:"Error Message"`
}

type avMatch struct {
	Symbol     string `json:"1. symbol"`
	Name       string `json:"2. name"`
	Type       string `json:"3. type"`
	Region     string `json:"4. region"`
	Currency   string `json:"8. currency"`
	MatchScore string `json:"9. matchScore"`
}

// avQuoteResponse is the GLOBAL_QUOTE payload.
type avQuoteResponse struct {
	GlobalQuote map[string]string `json:"Global Quote"`
	Note        string            `json:"Note"`
	Information string            `json:"Information"`
}

// avBalanceSheetResponse is the BALANCE_SHEET payload.
type avBalanceSheetResponse struct {
	Symbol        string           `json:"symbol"`
	AnnualReports []avBalanceSheet `json:"annualReports"`
	Note          string           `json:"Note"`
	Information   string           `json:"Information"`
}

type avBalanceSheet struct {
	FiscalDateEnding        string `json:"fiscalDateEnding"`
	TotalLiabilities        string `json:"totalLiabilities"`
	TotalShareholderEquity  string `json:"totalShareholderEquity"`
	TotalCurrentAssets      string `json:"totalCurrentAssets"`
	TotalCurrentLiabilities string `json:"totalCurrentLiabilities"`
}

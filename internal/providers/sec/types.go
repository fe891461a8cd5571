package sec

// --- CIK / Ticker Mapping ---

// edgarTickerEntry is a row from company_tickers.json, which maps row
// numbers to entries: {"0": {cik_str, ticker, title}, ...}. Rows are
// ordered by market capitalization.
type edgarTickerEntry struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// --- EDGAR Submissions (data.sec.gov/submissions) ---

// edgarSubmissionsResponse is the response from company submissions endpoint.
type edgarSubmissionsResponse struct {
	CIK            string       `json:"cik"`
	EntityType     string       `json:"entityType"`
	SICDescription string       `json:"sicDescription"`
	Name           string       `json:"name"`
	Tickers        []string     `json:"tickers"`
	Filings        edgarFilings `json:"filings"`
}

type edgarFilings struct {
	Recent *edgarFilingSet `json:"recent"`
}

// edgarFilingSet holds parallel arrays, one element per filing.
type edgarFilingSet struct {
	AccessionNumber []string `json:"accessionNumber"`
	FilingDate      []string `json:"filingDate"`
	ReportDate      []string `json:"reportDate"`
	Form            []string `json:"form"`
	PrimaryDocument []string `json:"primaryDocument"`
	Description     []string `json:"primaryDocDescription"`
}

// at returns the i-th element of s or "" when the array is short.
func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

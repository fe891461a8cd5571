package models

import "time"

// --- SEC Filings ---

// CompanyFiling represents an SEC filing.
type CompanyFiling struct {
	Date        time.Time `json:"date"`
	CIK         string    `json:"cik"`
	CompanyName string    `json:"company_name"`
	FormType    string    `json:"form_type"` // "10-K", "10-Q", "8-K", "S-1", etc.
	AccessionNo string    `json:"accession_no"`
	FilingURL   string    `json:"filing_url,omitempty"`
	Description string    `json:"description,omitempty"`
}

// FilingSet is the normalized output of the filings provider.
type FilingSet struct {
	CIK         string          `json:"cik"`
	CompanyName string          `json:"company_name"`
	Ticker      string          `json:"ticker,omitempty"`
	Filings     []CompanyFiling `json:"filings"`
}

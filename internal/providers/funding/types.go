package funding

type autocompleteResponse struct {
	Count    int                  `json:"count"`
	Entities []autocompleteEntity `json:"entities"`
}

type autocompleteEntity struct {
	Identifier       identifier `json:"identifier"`
	ShortDescription string     `json:"short_description"`
}

type identifier struct {
	UUID       string `json:"uuid"`
	Value      string `json:"value"`
	Permalink  string `json:"permalink"`
	EntityType string `json:"entity_def_id"`
}

type money struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
	ValueUSD float64 `json:"value_usd"`
}

type dateValue struct {
	Value     string `json:"value"`
	Precision string `json:"precision"`
}

// entityResponse is the organization entity with the raised_funding_rounds
// card. Properties is a pointer so an absent object is malformed.
type entityResponse struct {
	Properties *orgProperties `json:"properties"`
	Cards      struct {
		RaisedFundingRounds []fundingRound `json:"raised_funding_rounds"`
	} `json:"cards"`
}

type orgProperties struct {
	Identifier          identifier   `json:"identifier"`
	ShortDescription    string       `json:"short_description"`
	FoundedOn           *dateValue   `json:"founded_on"`
	FundingTotal        *money       `json:"funding_total"`
	LastFundingType     string       `json:"last_funding_type"`
	NumFundingRounds    int          `json:"num_funding_rounds"`
	InvestorIdentifiers []identifier `json:"investor_identifiers"`
	OperatingStatus     string       `json:"operating_status"`
	IPOStatus           string       `json:"ipo_status"`
}

type fundingRound struct {
	InvestmentType          string       `json:"investment_type"`
	AnnouncedOn             string       `json:"announced_on"`
	MoneyRaised             *money       `json:"money_raised"`
	LeadInvestorIdentifiers []identifier `json:"lead_investor_identifiers"`
}

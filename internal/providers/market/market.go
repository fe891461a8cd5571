// Package market implements the Alpha Vantage market-data adapter.
//
// A fetch resolves the company name to a ticker with SYMBOL_SEARCH, loads
// the OVERVIEW for that ticker and enriches it, best effort, with the
// latest GLOBAL_QUOTE and BALANCE_SHEET.
// Docs: https://www.alphavantage.co/documentation/
package market

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/seenimoa/diligence/internal/infra"
	"github.com/seenimoa/diligence/internal/provider"
	"github.com/seenimoa/diligence/pkg/models"
	"github.com/seenimoa/diligence/pkg/utils"
)

const providerName = "market"

// Adapter is the market-data provider.
type Adapter struct {
	provider.BaseAdapter
	fx provider.CurrencyConverter
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates the market adapter. An API key is required.
func New(s provider.Settings, deps provider.Deps) (*Adapter, error) {
	base, err := provider.NewBaseAdapter(provider.ProviderInfo{
		Name:        providerName,
		Description: "Alpha Vantage - symbol search, company overview, quotes and balance sheets",
		Website:     "https://www.alphavantage.co",
		Credentials: []provider.ProviderCredential{{
			Name:        "api_key",
			Description: "Alpha Vantage API key",
			Required:    true,
			EnvVar:      "ALPHA_VANTAGE_API_KEY",
		}},
	}, s, deps.Cache, deps.Logger)
	if err != nil {
		return nil, err
	}
	return &Adapter{BaseAdapter: base, fx: deps.FX()}, nil
}

// Fetch returns a *models.CompanyOverview for company.
func (a *Adapter) Fetch(ctx context.Context, company string) provider.Result {
	sl := &slots{limiter: a.Limiter(), prepaid: true}
	return provider.Run(ctx, &a.BaseAdapter, company, func(ctx context.Context) (*models.CompanyOverview, error) {
		return a.fetch(ctx, sl, company)
	})
}

// slots takes one rate-limit admission per upstream call. The first call
// of a fetch uses the admission provider.Run already took.
type slots struct {
	limiter *infra.RateLimiter
	prepaid bool
}

func (s *slots) take(ctx context.Context) error {
	if s.prepaid {
		s.prepaid = false
		return nil
	}
	return s.limiter.WaitForSlot(ctx)
}

func (a *Adapter) get(ctx context.Context, sl *slots, params url.Values, out any) error {
	if err := sl.take(ctx); err != nil {
		return fmt.Errorf("waiting for rate-limit slot: %w", err)
	}
	return infra.FetchJSON(ctx, a.endpoint(params), nil, out)
}

func (a *Adapter) fetch(ctx context.Context, sl *slots, company string) (*models.CompanyOverview, error) {
	match, err := a.search(ctx, sl, company)
	if err != nil {
		return nil, err
	}

	overview, err := a.overview(ctx, sl, match)
	if err != nil {
		return nil, err
	}

	if q, err := a.quote(ctx, sl, overview.Symbol); err == nil {
		overview.Quote = q
	} else {
		a.Logger().Debug().Str("provider", providerName).Str("symbol", overview.Symbol).Err(err).Msg("quote enrichment skipped")
	}
	if err := a.balanceSheet(ctx, sl, overview); err != nil {
		a.Logger().Debug().Str("provider", providerName).Str("symbol", overview.Symbol).Err(err).Msg("balance sheet enrichment skipped")
	}

	ccy := overview.Currency
	if ccy == "" {
		ccy = "USD"
	}
	overview.MarketCapUSD = a.fx.ConvertAmount(ctx, overview.MarketCap, ccy, "USD")
	overview.RevenueTTMUSD = a.fx.ConvertAmount(ctx, overview.RevenueTTM, ccy, "USD")
	return overview, nil
}

func (a *Adapter) endpoint(params url.Values) string {
	params.Set("apikey", a.Settings().APIKey)
	return strings.TrimRight(a.Settings().BaseURL, "/") + "/query?" + params.Encode()
}

// search resolves a company name to its best matching listing.
func (a *Adapter) search(ctx context.Context, sl *slots, company string) (avMatch, error) {
	var resp avSearchResponse
	if err := a.get(ctx, sl, url.Values{"function": {"SYMBOL_SEARCH"}, "keywords": {company}}, &resp); err != nil {
		return avMatch{}, fmt.Errorf("symbol search: %w", err)
	}
	if err := quotaError(resp.Note, resp.Information); err != nil {
		return avMatch{}, err
	}
	if resp.ErrorMessage != "" {
		return avMatch{}, apiError(resp.ErrorMessage)
	}
	if resp.BestMatches == nil {
		return avMatch{}, fmt.Errorf("%w: symbol search without bestMatches", provider.ErrMalformed)
	}
	best, ok := bestMatch(*resp.BestMatches, company)
	if !ok {
		return avMatch{}, fmt.Errorf("%w: no listing matches %q", provider.ErrNoMatch, company)
	}
	return best, nil
}

// bestMatch prefers an exact ticker match, then the highest match score.
func bestMatch(matches []avMatch, query string) (avMatch, bool) {
	if len(matches) == 0 {
		return avMatch{}, false
	}
	q := strings.TrimSpace(query)
	for _, m := range matches {
		if strings.EqualFold(m.Symbol, q) {
			return m, true
		}
	}
	sorted := append([]avMatch(nil), matches...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return utils.ParseFloatOrZero(sorted[i].MatchScore) > utils.ParseFloatOrZero(sorted[j].MatchScore)
	})
	return sorted[0], true
}

func (a *Adapter) overview(ctx context.Context, sl *slots, match avMatch) (*models.CompanyOverview, error) {
	var raw map[string]any
	if err := a.get(ctx, sl, url.Values{"function": {"OVERVIEW"}, "symbol": {match.Symbol}}, &raw); err != nil {
		return nil, fmt.Errorf("overview %s: %w", match.Symbol, err)
	}
	if err := quotaError(str(raw, "Note"), str(raw, "Information")); err != nil {
		return nil, err
	}
	if msg := str(raw, "Error Message"); msg != "" {
		return nil, apiError(msg)
	}
	if len(raw) == 0 || str(raw, "Symbol") == "" {
		return nil, fmt.Errorf("%w: no overview for %s", provider.ErrNoMatch, match.Symbol)
	}

	num := func(k string) float64 { return utils.ParseFloatOrZero(str(raw, k)) }
	o := &models.CompanyOverview{
		Symbol:          str(raw, "Symbol"),
		Name:            str(raw, "Name"),
		Description:     str(raw, "Description"),
		Exchange:        str(raw, "Exchange"),
		Currency:        strings.ToUpper(str(raw, "Currency")),
		Country:         str(raw, "Country"),
		Sector:          str(raw, "Sector"),
		Industry:        str(raw, "Industry"),
		MarketCap:       num("MarketCapitalization"),
		PERatio:         num("PERatio"),
		PEGRatio:        num("PEGRatio"),
		BookValue:       num("BookValue"),
		DividendYield:   num("DividendYield"),
		EPS:             num("EPS"),
		RevenueTTM:      num("RevenueTTM"),
		GrossProfitTTM:  num("GrossProfitTTM"),
		ProfitMargin:    num("ProfitMargin"),
		OperatingMargin: num("OperatingMarginTTM"),
		ReturnOnEquity:  num("ReturnOnEquityTTM"),
		ReturnOnAssets:  num("ReturnOnAssetsTTM"),
		Beta:            num("Beta"),
		Week52High:      num("52WeekHigh"),
		Week52Low:       num("52WeekLow"),
		AnalystTarget:   num("AnalystTargetPrice"),
	}
	if o.Currency == "" {
		o.Currency = strings.ToUpper(match.Currency)
	}
	if o.Name == "" {
		o.Name = match.Name
	}
	return o, nil
}

func (a *Adapter) quote(ctx context.Context, sl *slots, symbol string) (*models.Quote, error) {
	var resp avQuoteResponse
	if err := a.get(ctx, sl, url.Values{"function": {"GLOBAL_QUOTE"}, "symbol": {symbol}}, &resp); err != nil {
		return nil, err
	}
	if err := quotaError(resp.Note, resp.Information); err != nil {
		return nil, err
	}
	q := resp.GlobalQuote
	if len(q) == 0 {
		return nil, fmt.Errorf("%w: empty quote", provider.ErrNoMatch)
	}
	num := func(k string) float64 { return utils.ParseFloatOrZero(q[k]) }
	return &models.Quote{
		Symbol:        q["01. symbol"],
		Open:          num("02. open"),
		High:          num("03. high"),
		Low:           num("04. low"),
		Price:         num("05. price"),
		Volume:        int64(num("06. volume")),
		TradingDay:    utils.ParseProviderDate(q["07. latest trading day"]),
		PreviousClose: num("08. previous close"),
		Change:        num("09. change"),
		ChangePercent: num("10. change percent"),
	}, nil
}

// balanceSheet fills leverage and liquidity ratios from the latest annual report.
func (a *Adapter) balanceSheet(ctx context.Context, sl *slots, o *models.CompanyOverview) error {
	var resp avBalanceSheetResponse
	if err := a.get(ctx, sl, url.Values{"function": {"BALANCE_SHEET"}, "symbol": {o.Symbol}}, &resp); err != nil {
		return err
	}
	if err := quotaError(resp.Note, resp.Information); err != nil {
		return err
	}
	if len(resp.AnnualReports) == 0 {
		return fmt.Errorf("%w: no annual reports", provider.ErrNoMatch)
	}
	latest := resp.AnnualReports[0]
	liabilities := utils.ParseFloatOrZero(latest.TotalLiabilities)
	equity := utils.ParseFloatOrZero(latest.TotalShareholderEquity)
	if equity != 0 {
		o.DebtToEquity = liabilities / equity
	}
	currentLiabilities := utils.ParseFloatOrZero(latest.TotalCurrentLiabilities)
	if currentLiabilities != 0 {
		o.CurrentRatio = utils.ParseFloatOrZero(latest.TotalCurrentAssets) / currentLiabilities
	}
	return nil
}

// quotaError turns Alpha Vantage's throttling notes into ErrRateLimited.
func quotaError(note, information string) error {
	if note != "" {
		return fmt.Errorf("%w: %s", provider.ErrRateLimited, note)
	}
	if information != "" {
		return fmt.Errorf("%w: %s", provider.ErrRateLimited, information)
	}
	return nil
}

func apiError(msg string) error {
	if strings.Contains(strings.ToLower(msg), "apikey") {
		return fmt.Errorf("%w: %s", provider.ErrUnauthorized, msg)
	}
	return fmt.Errorf("alpha vantage: %s", msg)
}

func str(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

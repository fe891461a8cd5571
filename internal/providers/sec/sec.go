// Package sec implements the SEC EDGAR filings adapter.
//
// The company name is resolved to a CIK through the EDGAR ticker file, then
// the recent filings of that CIK are read from the submissions API and
// filtered to the material forms.
//
// No API key required. Must include a User-Agent header per SEC policy.
// Docs: https://www.sec.gov/edgar/sec-api-documentation
// Rate limit: 10 requests/second per user-agent.
package sec

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/seenimoa/diligence/internal/infra"
	"github.com/seenimoa/diligence/internal/provider"
	"github.com/seenimoa/diligence/pkg/models"
	"github.com/seenimoa/diligence/pkg/utils"
)

const (
	providerName = "sec"

	// DefaultTickersURL is the CIK<->ticker mapping published by the SEC.
	DefaultTickersURL = "https://www.sec.gov/files/company_tickers.json"
	// DefaultUserAgent is sent when none is configured.
	DefaultUserAgent = "diligence research contact@example.com"

	archivesURL = "https://www.sec.gov/Archives/edgar/data"

	// MaxFilings is the number of filings kept per company.
	MaxFilings = 5

	tickersTTL = 24 * time.Hour
)

// materialForms is the allow-list of form types worth reporting.
var materialForms = map[string]bool{
	"10-K":    true,
	"10-Q":    true,
	"8-K":     true,
	"20-F":    true,
	"6-K":     true,
	"40-F":    true,
	"S-1":     true,
	"DEF 14A": true,
}

// IsMaterialForm reports whether form is on the allow-list.
func IsMaterialForm(form string) bool { return materialForms[strings.ToUpper(strings.TrimSpace(form))] }

// Options are the EDGAR-specific settings.
type Options struct {
	UserAgent  string
	TickersURL string
}

// Adapter is the SEC EDGAR provider.
type Adapter struct {
	provider.BaseAdapter
	opts Options
	now  func() time.Time

	mu       sync.Mutex
	tickers  []edgarTickerEntry
	loadedAt time.Time
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates the SEC adapter.
func New(s provider.Settings, deps provider.Deps, opts Options) (*Adapter, error) {
	base, err := provider.NewBaseAdapter(provider.ProviderInfo{
		Name:        providerName,
		Description: "SEC EDGAR - recent material filings (10-K, 10-Q, 8-K and foreign equivalents)",
		Website:     "https://www.sec.gov/edgar",
	}, s, deps.Cache, deps.Logger)
	if err != nil {
		return nil, err
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.TickersURL == "" {
		opts.TickersURL = DefaultTickersURL
	}
	return &Adapter{BaseAdapter: base, opts: opts, now: time.Now}, nil
}

// Fetch returns a *models.FilingSet for company.
func (a *Adapter) Fetch(ctx context.Context, company string) provider.Result {
	return provider.Run(ctx, &a.BaseAdapter, company, func(ctx context.Context) (*models.FilingSet, error) {
		return a.fetch(ctx, company)
	})
}

func (a *Adapter) fetch(ctx context.Context, company string) (*models.FilingSet, error) {
	entry, err := a.resolveCIK(ctx, company)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/submissions/CIK%010d.json", strings.TrimRight(a.Settings().BaseURL, "/"), entry.CIK)
	var resp edgarSubmissionsResponse
	if err := infra.FetchJSON(ctx, u, a.headers(), &resp); err != nil {
		return nil, fmt.Errorf("sec submissions: %w", err)
	}
	if resp.Filings.Recent == nil {
		return nil, fmt.Errorf("%w: submissions without recent filings", provider.ErrMalformed)
	}

	filings := materialFilings(entry.CIK, resp.Name, *resp.Filings.Recent)
	if len(filings) == 0 {
		return nil, fmt.Errorf("%w: no material filings for CIK %d", provider.ErrNoMatch, entry.CIK)
	}

	name := resp.Name
	if name == "" {
		name = entry.Title
	}
	return &models.FilingSet{
		CIK:         strconv.FormatInt(entry.CIK, 10),
		CompanyName: name,
		Ticker:      entry.Ticker,
		Filings:     filings,
	}, nil
}

// materialFilings filters the recent set to allow-listed forms and keeps
// the newest MaxFilings.
func materialFilings(cik int64, company string, recent edgarFilingSet) []models.CompanyFiling {
	var out []models.CompanyFiling
	for i, form := range recent.Form {
		if !IsMaterialForm(form) {
			continue
		}
		accNo := at(recent.AccessionNumber, i)
		doc := at(recent.PrimaryDocument, i)
		f := models.CompanyFiling{
			Date:        utils.ParseProviderDate(at(recent.FilingDate, i)),
			CIK:         strconv.FormatInt(cik, 10),
			CompanyName: company,
			FormType:    form,
			AccessionNo: accNo,
			Description: at(recent.Description, i),
		}
		if accNo != "" && doc != "" {
			f.FilingURL = fmt.Sprintf("%s/%d/%s/%s", archivesURL, cik, strings.ReplaceAll(accNo, "-", ""), doc)
		}
		if f.Description == "" {
			f.Description = form
		}
		out = append(out, f)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if len(out) > MaxFilings {
		out = out[:MaxFilings]
	}
	return out
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{
		"User-Agent": a.opts.UserAgent,
		"Accept":     "application/json",
	}
}

// loadTickers returns the ticker file, refreshing it once a day.
func (a *Adapter) loadTickers(ctx context.Context) ([]edgarTickerEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tickers != nil && a.now().Sub(a.loadedAt) < tickersTTL {
		return a.tickers, nil
	}

	var raw map[string]edgarTickerEntry
	if err := infra.FetchJSON(ctx, a.opts.TickersURL, a.headers(), &raw); err != nil {
		return nil, fmt.Errorf("fetch company tickers: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty company tickers file", provider.ErrMalformed)
	}

	// Keep the file's row order so larger companies win ties.
	rows := make([]int, 0, len(raw))
	byRow := make(map[int]edgarTickerEntry, len(raw))
	for k, v := range raw {
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		rows = append(rows, n)
		byRow[n] = v
	}
	sort.Ints(rows)
	entries := make([]edgarTickerEntry, 0, len(rows))
	for _, n := range rows {
		entries = append(entries, byRow[n])
	}

	a.tickers = entries
	a.loadedAt = a.now()
	return entries, nil
}

// resolveCIK matches company against tickers, exact titles, and titles with
// the legal suffix removed, in that order.
func (a *Adapter) resolveCIK(ctx context.Context, company string) (edgarTickerEntry, error) {
	entries, err := a.loadTickers(ctx)
	if err != nil {
		return edgarTickerEntry{}, err
	}
	if e, ok := matchEntry(entries, company); ok {
		return e, nil
	}
	return edgarTickerEntry{}, fmt.Errorf("%w: no EDGAR registrant for %q", provider.ErrNoMatch, company)
}

func matchEntry(entries []edgarTickerEntry, company string) (edgarTickerEntry, bool) {
	q := strings.TrimSpace(company)
	if q == "" {
		return edgarTickerEntry{}, false
	}

	for _, e := range entries {
		if strings.EqualFold(e.Ticker, q) {
			return e, true
		}
	}
	norm := provider.NormalizeCompany(q)
	for _, e := range entries {
		if provider.NormalizeCompany(e.Title) == norm {
			return e, true
		}
	}
	base := baseName(q)
	if base == "" {
		return edgarTickerEntry{}, false
	}
	for _, e := range entries {
		if baseName(e.Title) == base {
			return e, true
		}
	}
	return edgarTickerEntry{}, false
}

var (
	punct       = regexp.MustCompile(`[^a-z0-9 ]+`)
	legalSuffix = regexp.MustCompile(`\s+(inc|incorporated|corp|corporation|co|company|ltd|limited|plc|llc|lp|sa|ag|nv|se|holdings|group)$`)
)

// baseName lower-cases a registrant name and strips punctuation and the
// trailing legal-form words.
func baseName(s string) string {
	s = provider.NormalizeCompany(punct.ReplaceAllString(strings.ToLower(s), " "))
	for {
		trimmed := legalSuffix.ReplaceAllString(s, "")
		if trimmed == s {
			return s
		}
		s = trimmed
	}
}

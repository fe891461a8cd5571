// Package analyst implements the analyst-ratings adapter for a financial
// terminal REST API.
//
// One call returns the consensus, the price target and the individual
// broker ratings of a company. Requests carry a bearer token and the target
// is converted to USD with the injected converter.
package analyst

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/seenimoa/diligence/internal/infra"
	"github.com/seenimoa/diligence/internal/provider"
	"github.com/seenimoa/diligence/pkg/models"
	"github.com/seenimoa/diligence/pkg/utils"
)

const providerName = "analyst"

// Normalized ratings.
const (
	RatingBuy  = "buy"
	RatingHold = "hold"
	RatingSell = "sell"
)

type ratingsResponse struct {
	Symbol      string    `json:"symbol"`
	Consensus   string    `json:"consensus"`
	TargetPrice *price    `json:"target_price"`
	Ratings     *[]rating `json:"ratings"`
	Beta        float64   `json:"beta"`
	Volatility  float64   `json:"volatility"`
}

type price struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

type rating struct {
	Firm   string  `json:"firm"`
	Rating string  `json:"rating"`
	Target float64 `json:"target"`
	Date   string  `json:"date"`
}

// Adapter is the analyst-ratings provider.
type Adapter struct {
	provider.BaseAdapter
	fx provider.CurrencyConverter
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates the analyst adapter. A bearer token is required.
func New(s provider.Settings, deps provider.Deps) (*Adapter, error) {
	base, err := provider.NewBaseAdapter(provider.ProviderInfo{
		Name:        providerName,
		Description: "Financial terminal - analyst consensus, price targets and risk figures",
		Website:     s.BaseURL,
		Credentials: []provider.ProviderCredential{{
			Name:        "api_key",
			Description: "Bearer token for the terminal API",
			Required:    true,
			EnvVar:      "TERMINAL_API_KEY",
		}},
	}, s, deps.Cache, deps.Logger)
	if err != nil {
		return nil, err
	}
	return &Adapter{BaseAdapter: base, fx: deps.FX()}, nil
}

// Fetch returns a *models.AnalystCoverage for company.
func (a *Adapter) Fetch(ctx context.Context, company string) provider.Result {
	return provider.Run(ctx, &a.BaseAdapter, company, func(ctx context.Context) (*models.AnalystCoverage, error) {
		return a.fetch(ctx, company)
	})
}

func (a *Adapter) fetch(ctx context.Context, company string) (*models.AnalystCoverage, error) {
	u := strings.TrimRight(a.Settings().BaseURL, "/") + "/v1/companies/" + url.PathEscape(strings.TrimSpace(company)) + "/ratings"
	var resp ratingsResponse
	if err := infra.FetchJSON(ctx, u, provider.BearerHeaders(a.Settings().APIKey), &resp); err != nil {
		var he *infra.HTTPError
		if errors.As(err, &he) && he.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: no coverage for %q", provider.ErrNoMatch, company)
		}
		return nil, fmt.Errorf("ratings: %w", err)
	}
	if resp.Ratings == nil {
		return nil, fmt.Errorf("%w: response without ratings", provider.ErrMalformed)
	}
	if len(*resp.Ratings) == 0 && resp.Consensus == "" && resp.TargetPrice == nil {
		return nil, fmt.Errorf("%w: no coverage for %q", provider.ErrNoMatch, company)
	}

	c := &models.AnalystCoverage{
		Symbol:     resp.Symbol,
		Beta:       resp.Beta,
		Volatility: resp.Volatility,
	}
	for _, r := range *resp.Ratings {
		norm := NormalizeRating(r.Rating)
		switch norm {
		case RatingBuy:
			c.BuyCount++
		case RatingHold:
			c.HoldCount++
		case RatingSell:
			c.SellCount++
		}
		c.Ratings = append(c.Ratings, models.AnalystRating{
			Firm:        r.Firm,
			Rating:      norm,
			TargetPrice: r.Target,
			Date:        utils.ParseProviderDate(r.Date),
		})
	}
	sort.SliceStable(c.Ratings, func(i, j int) bool { return c.Ratings[i].Date.After(c.Ratings[j].Date) })

	c.Consensus = NormalizeRating(resp.Consensus)
	if c.Consensus == "" {
		c.Consensus = consensus(c.BuyCount, c.HoldCount, c.SellCount)
	}
	if t := resp.TargetPrice; t != nil {
		c.TargetPrice = t.Value
		c.TargetCurrency = strings.ToUpper(t.Currency)
		if c.TargetCurrency == "" {
			c.TargetCurrency = "USD"
		}
		c.TargetPriceUSD = a.fx.ConvertAmount(ctx, t.Value, c.TargetCurrency, "USD")
	}
	return c, nil
}

// NormalizeRating maps broker wording onto buy, hold or sell. Unknown
// wording yields "".
func NormalizeRating(s string) string {
	switch strings.ToLower(strings.NewReplacer("-", " ", "_", " ").Replace(strings.TrimSpace(s))) {
	case "buy", "strong buy", "outperform", "overweight", "accumulate", "add", "market outperform", "sector outperform":
		return RatingBuy
	case "hold", "neutral", "equal weight", "market perform", "sector perform", "peer perform", "in line":
		return RatingHold
	case "sell", "strong sell", "underperform", "underweight", "reduce", "market underperform":
		return RatingSell
	}
	return ""
}

// consensus picks the most common rating; ties resolve towards hold.
func consensus(buy, hold, sell int) string {
	switch {
	case buy == 0 && hold == 0 && sell == 0:
		return ""
	case buy > hold && buy > sell:
		return RatingBuy
	case sell > hold && sell > buy:
		return RatingSell
	}
	return RatingHold
}

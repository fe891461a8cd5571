// Package funding implements the startup-funding adapter against a
// Crunchbase v4 compatible API.
//
// A fetch autocompletes the company name to an organization permalink and
// loads that organization with its funding rounds. Amounts are converted
// to USD with the injected converter.
// Docs: https://data.crunchbase.com/docs/using-the-api
package funding

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

const (
	providerName = "funding"

	entityFields = "short_description,founded_on,funding_total,last_funding_type," +
		"num_funding_rounds,investor_identifiers,operating_status,ipo_status"

	maxRounds = 10
)

// Adapter is the funding provider.
type Adapter struct {
	provider.BaseAdapter
	fx provider.CurrencyConverter
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates the funding adapter. A bearer token is required.
func New(s provider.Settings, deps provider.Deps) (*Adapter, error) {
	base, err := provider.NewBaseAdapter(provider.ProviderInfo{
		Name:        providerName,
		Description: "Crunchbase - funding totals, rounds and investors",
		Website:     "https://www.crunchbase.com",
		Credentials: []provider.ProviderCredential{{
			Name:        "api_key",
			Description: "Bearer token for the funding API",
			Required:    true,
			EnvVar:      "CRUNCHBASE_API_KEY",
		}},
	}, s, deps.Cache, deps.Logger)
	if err != nil {
		return nil, err
	}
	return &Adapter{BaseAdapter: base, fx: deps.FX()}, nil
}

// Fetch returns a *models.FundingProfile for company.
func (a *Adapter) Fetch(ctx context.Context, company string) provider.Result {
	return provider.Run(ctx, &a.BaseAdapter, company, func(ctx context.Context) (*models.FundingProfile, error) {
		return a.fetch(ctx, company)
	})
}

func (a *Adapter) fetch(ctx context.Context, company string) (*models.FundingProfile, error) {
	id, err := a.autocomplete(ctx, company)
	if err != nil {
		return nil, err
	}

	u := a.endpoint("/entities/organizations/"+url.PathEscape(id.Permalink), url.Values{
		"field_ids": {entityFields},
		"card_ids":  {"raised_funding_rounds"},
	})
	var resp entityResponse
	if err := infra.FetchJSON(ctx, u, provider.BearerHeaders(a.Settings().APIKey), &resp); err != nil {
		var he *infra.HTTPError
		if errors.As(err, &he) && he.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: organization %s not found", provider.ErrNoMatch, id.Permalink)
		}
		return nil, fmt.Errorf("organization %s: %w", id.Permalink, err)
	}
	if resp.Properties == nil {
		return nil, fmt.Errorf("%w: organization without properties", provider.ErrMalformed)
	}
	props := resp.Properties

	name := props.Identifier.Value
	if name == "" {
		name = id.Value
	}
	p := &models.FundingProfile{
		Name:             name,
		Permalink:        id.Permalink,
		Description:      props.ShortDescription,
		Status:           status(props.OperatingStatus, props.IPOStatus),
		LastFundingType:  props.LastFundingType,
		NumFundingRounds: props.NumFundingRounds,
		Investors:        identifierValues(props.InvestorIdentifiers),
	}
	if props.FoundedOn != nil {
		p.FoundedOn = props.FoundedOn.Value
	}
	if t := props.FundingTotal; t != nil {
		p.TotalFunding = t.Value
		p.TotalFundingCcy = currencyOrUSD(t.Currency)
		p.TotalFundingUSD = a.toUSD(ctx, t)
	}

	for _, r := range resp.Cards.RaisedFundingRounds {
		round := models.FundingRound{
			Type:        r.InvestmentType,
			AnnouncedOn: utils.ParseProviderDate(r.AnnouncedOn),
		}
		if m := r.MoneyRaised; m != nil {
			round.Amount = m.Value
			round.Currency = currencyOrUSD(m.Currency)
			round.AmountUSD = a.toUSD(ctx, m)
		}
		if leads := identifierValues(r.LeadInvestorIdentifiers); len(leads) > 0 {
			round.LeadInvestor = leads[0]
		}
		p.Rounds = append(p.Rounds, round)
	}
	sort.SliceStable(p.Rounds, func(i, j int) bool {
		return p.Rounds[i].AnnouncedOn.After(p.Rounds[j].AnnouncedOn)
	})
	if len(p.Rounds) > maxRounds {
		p.Rounds = p.Rounds[:maxRounds]
	}
	if p.NumFundingRounds == 0 {
		p.NumFundingRounds = len(resp.Cards.RaisedFundingRounds)
	}
	return p, nil
}

// autocomplete resolves a company name to its first organization match.
func (a *Adapter) autocomplete(ctx context.Context, company string) (identifier, error) {
	u := a.endpoint("/autocompletes", url.Values{
		"query":          {company},
		"collection_ids": {"organizations"},
		"limit":          {"5"},
	})
	var resp autocompleteResponse
	if err := infra.FetchJSON(ctx, u, provider.BearerHeaders(a.Settings().APIKey), &resp); err != nil {
		return identifier{}, fmt.Errorf("autocomplete: %w", err)
	}
	for _, e := range resp.Entities {
		if e.Identifier.Permalink != "" {
			return e.Identifier, nil
		}
	}
	return identifier{}, fmt.Errorf("%w: no organization matches %q", provider.ErrNoMatch, company)
}

func (a *Adapter) endpoint(path string, params url.Values) string {
	return strings.TrimRight(a.Settings().BaseURL, "/") + path + "?" + params.Encode()
}

// toUSD prefers the provider's own USD figure and converts otherwise.
func (a *Adapter) toUSD(ctx context.Context, m *money) float64 {
	if m.ValueUSD > 0 {
		return m.ValueUSD
	}
	return a.fx.ConvertAmount(ctx, m.Value, currencyOrUSD(m.Currency), "USD")
}

func currencyOrUSD(ccy string) string {
	if ccy = strings.ToUpper(strings.TrimSpace(ccy)); ccy != "" {
		return ccy
	}
	return "USD"
}

func identifierValues(ids []identifier) []string {
	var out []string
	for _, id := range ids {
		if id.Value != "" {
			out = append(out, id.Value)
		}
	}
	return out
}

// status collapses Crunchbase operating and IPO status into one word.
func status(operating, ipo string) string {
	switch {
	case strings.EqualFold(ipo, "public"):
		return "ipo"
	case strings.EqualFold(operating, "closed"):
		return "closed"
	case strings.EqualFold(ipo, "delisted"), strings.EqualFold(operating, "acquired"):
		return "acquired"
	case operating == "":
		return ""
	}
	return "operating"
}

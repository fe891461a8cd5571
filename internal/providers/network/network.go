// Package network implements the professional-network company profile
// adapter against a Proxycurl-compatible API.
//
// A fetch resolves the company name to a profile URL, then loads the
// company profile for that URL. Requests carry a bearer token.
// Docs: https://nubela.co/proxycurl/docs#company-api
package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/seenimoa/diligence/internal/infra"
	"github.com/seenimoa/diligence/internal/provider"
	"github.com/seenimoa/diligence/pkg/models"
)

const providerName = "network"

type resolveResponse struct {
	URL *string `json:"url"`
}

type companyResponse struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Website       string   `json:"website"`
	Industry      string   `json:"industry"`
	CompanySize   []*int   `json:"company_size"`
	Employees     *int     `json:"company_size_on_linkedin"`
	HQ            *address `json:"hq"`
	FoundedYear   *int     `json:"founded_year"`
	FollowerCount *int     `json:"follower_count"`
	Specialities  []string `json:"specialities"`
}

type address struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

// Adapter is the professional-network provider.
type Adapter struct {
	provider.BaseAdapter
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates the network adapter. A bearer token is required.
func New(s provider.Settings, deps provider.Deps) (*Adapter, error) {
	base, err := provider.NewBaseAdapter(provider.ProviderInfo{
		Name:        providerName,
		Description: "Professional-network company profiles - industry, size, headquarters, followers",
		Website:     "https://nubela.co/proxycurl",
		Credentials: []provider.ProviderCredential{{
			Name:        "api_key",
			Description: "Bearer token for the profile API",
			Required:    true,
			EnvVar:      "PROXYCURL_API_KEY",
		}},
	}, s, deps.Cache, deps.Logger)
	if err != nil {
		return nil, err
	}
	return &Adapter{BaseAdapter: base}, nil
}

// Fetch returns a *models.NetworkProfile for company.
func (a *Adapter) Fetch(ctx context.Context, company string) provider.Result {
	return provider.Run(ctx, &a.BaseAdapter, company, func(ctx context.Context) (*models.NetworkProfile, error) {
		return a.fetch(ctx, company)
	})
}

func (a *Adapter) fetch(ctx context.Context, company string) (*models.NetworkProfile, error) {
	profileURL, err := a.resolve(ctx, company)
	if err != nil {
		return nil, err
	}

	u := a.endpoint("/linkedin/company", url.Values{"url": {profileURL}})
	var resp companyResponse
	if err := infra.FetchJSON(ctx, u, provider.BearerHeaders(a.Settings().APIKey), &resp); err != nil {
		return nil, notFoundAsNoMatch(fmt.Errorf("company profile: %w", err))
	}
	if resp.Name == "" {
		return nil, fmt.Errorf("%w: profile without name", provider.ErrMalformed)
	}

	p := &models.NetworkProfile{
		Name:         resp.Name,
		Description:  strings.TrimSpace(resp.Description),
		Website:      resp.Website,
		Industry:     resp.Industry,
		CompanySize:  sizeRange(resp.CompanySize),
		Headquarters: resp.HQ.String(),
		Specialities: resp.Specialities,
		ProfileURL:   profileURL,
	}
	if resp.Employees != nil {
		p.Employees = *resp.Employees
	}
	if resp.FoundedYear != nil {
		p.FoundedYear = *resp.FoundedYear
	}
	if resp.FollowerCount != nil {
		p.Followers = *resp.FollowerCount
	}
	return p, nil
}

// resolve looks up the profile URL of a company by name.
func (a *Adapter) resolve(ctx context.Context, company string) (string, error) {
	u := a.endpoint("/linkedin/company/resolve", url.Values{
		"company_name":   {company},
		"enrich_profile": {"skip"},
	})
	var resp resolveResponse
	if err := infra.FetchJSON(ctx, u, provider.BearerHeaders(a.Settings().APIKey), &resp); err != nil {
		return "", notFoundAsNoMatch(fmt.Errorf("resolve company: %w", err))
	}
	if resp.URL == nil || strings.TrimSpace(*resp.URL) == "" {
		return "", fmt.Errorf("%w: no profile for %q", provider.ErrNoMatch, company)
	}
	return *resp.URL, nil
}

func (a *Adapter) endpoint(path string, params url.Values) string {
	return strings.TrimRight(a.Settings().BaseURL, "/") + path + "?" + params.Encode()
}

// notFoundAsNoMatch turns a 404 into ErrNoMatch.
func notFoundAsNoMatch(err error) error {
	var he *infra.HTTPError
	if errors.As(err, &he) && he.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", provider.ErrNoMatch, err)
	}
	return err
}

// sizeRange renders a [min, max] employee range; a nil max is open-ended.
func sizeRange(r []*int) string {
	if len(r) == 0 || r[0] == nil {
		return ""
	}
	lo := strconv.Itoa(*r[0])
	if len(r) < 2 || r[1] == nil {
		return lo + "+"
	}
	return lo + "-" + strconv.Itoa(*r[1])
}

func (a *address) String() string {
	if a == nil {
		return ""
	}
	var parts []string
	for _, s := range []string{a.City, a.State, a.Country} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

package currency

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/seenimoa/diligence/internal/infra"
)

// DefaultExchangeBaseURL serves open exchange rates without a key.
const DefaultExchangeBaseURL = "https://open.er-api.com/v6"

// ExchangeRateClient fetches rates from an exchangerate-api compatible
// endpoint: GET {base}/latest/{FROM} → {"result":"success","rates":{"EUR":0.92}}.
type ExchangeRateClient struct {
	baseURL string
	apiKey  string
}

// NewExchangeRateClient creates a client. When apiKey is set the keyed
// v6 path layout ({base}/{key}/latest/{FROM}) is used.
func NewExchangeRateClient(baseURL, apiKey string) *ExchangeRateClient {
	if baseURL == "" {
		baseURL = DefaultExchangeBaseURL
	}
	return &ExchangeRateClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

type latestResponse struct {
	Result    string             `json:"result"`
	ErrorType string             `json:"error-type"`
	Rates     map[string]float64 `json:"rates"`
}

// Rate implements RateSource.
func (c *ExchangeRateClient) Rate(ctx context.Context, from, to string) (float64, error) {
	endpoint := c.baseURL + "/latest/" + url.PathEscape(from)
	if c.apiKey != "" {
		endpoint = c.baseURL + "/" + url.PathEscape(c.apiKey) + "/latest/" + url.PathEscape(from)
	}

	var resp latestResponse
	if err := infra.FetchJSON(ctx, endpoint, nil, &resp); err != nil {
		return 0, err
	}
	if resp.Result == "error" {
		return 0, fmt.Errorf("exchange api error: %s", resp.ErrorType)
	}
	rate, ok := resp.Rates[to]
	if !ok {
		return 0, ErrNoRate
	}
	return rate, nil
}

// Package currency converts and formats monetary amounts. Exchange rates are
// fetched from a RateSource and cached per ordered currency pair.
package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phuslu/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/seenimoa/diligence/internal/infra"
	"github.com/seenimoa/diligence/pkg/utils"
)

const (
	// DefaultTarget is the currency monetary fields are normalized to.
	DefaultTarget = "USD"

	// RateTTL is how long a fetched rate is reused.
	RateTTL = time.Hour

	// FallbackRate is used when no rate can be obtained; amounts are then
	// treated as already being in the target currency.
	FallbackRate = 1.0
)

// RateSource fetches the rate that converts one unit of from into to.
type RateSource interface {
	Rate(ctx context.Context, from, to string) (float64, error)
}

// RateError reports a failed rate lookup.
type RateError struct {
	From string
	To   string
	Err  error
}

func (e *RateError) Error() string {
	return fmt.Sprintf("exchange rate %s->%s: %v", e.From, e.To, e.Err)
}

func (e *RateError) Unwrap() error { return e.Err }

// ErrNoRate means the source answered but had no rate for the pair.
var ErrNoRate = errors.New("rate not present in response")

type rateEntry struct {
	Rate      float64   `json:"rate"`
	Timestamp time.Time `json:"timestamp"`
}

// Converter converts amounts between currencies. One instance is meant to
// be shared by every report so rate lookups hit the cache.
type Converter struct {
	source RateSource
	cache  *infra.Cache
	group  singleflight.Group
	logger *log.Logger
	now    func() time.Time
}

// NewConverter creates a converter. A nil cache gets a private in-memory one.
func NewConverter(source RateSource, cache *infra.Cache, logger *log.Logger) *Converter {
	if cache == nil {
		cache = infra.NewCache(nil, RateTTL)
	}
	if logger == nil {
		logger = &log.DefaultLogger
	}
	return &Converter{source: source, cache: cache, logger: logger, now: time.Now}
}

func rateKey(from, to string) string { return "fx:" + from + ":" + to }

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// LookupRate returns the rate for from->to, or a *RateError. Concurrent
// lookups of the same pair share one upstream request.
func (c *Converter) LookupRate(ctx context.Context, from, to string) (float64, error) {
	from, to = normalizeCode(from), normalizeCode(to)
	if to == "" {
		to = DefaultTarget
	}
	if from == "" || from == to {
		return 1, nil
	}

	key := rateKey(from, to)
	if e, ok := infra.GetJSON[rateEntry](ctx, c.cache, key); ok && c.now().Sub(e.Timestamp) < RateTTL {
		return e.Rate, nil
	}
	if c.source == nil {
		return 0, &RateError{From: from, To: to, Err: errors.New("no rate source configured")}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		rate, err := c.source.Rate(ctx, from, to)
		if err != nil {
			return 0.0, err
		}
		if rate <= 0 {
			return 0.0, fmt.Errorf("non-positive rate %v", rate)
		}
		infra.SetJSON(ctx, c.cache, key, rateEntry{Rate: rate, Timestamp: c.now()}, RateTTL)
		return rate, nil
	})
	if err != nil {
		return 0, &RateError{From: from, To: to, Err: err}
	}
	return v.(float64), nil
}

// GetExchangeRate returns the rate for from->to, or FallbackRate when the
// lookup fails.
func (c *Converter) GetExchangeRate(ctx context.Context, from, to string) float64 {
	rate, err := c.LookupRate(ctx, from, to)
	if err != nil {
		c.logger.Warn().Err(err).Str("from", from).Str("to", to).Msg("exchange rate unavailable, using 1.0")
		return FallbackRate
	}
	return rate
}

// ConvertAmount converts amount from one currency to another. amount may be
// a number or a string; strings have non-numeric characters stripped first.
// Unparseable amounts convert to 0.
func (c *Converter) ConvertAmount(ctx context.Context, amount any, from, to string) float64 {
	d, ok := toDecimal(amount)
	if !ok {
		return 0
	}
	rate := c.GetExchangeRate(ctx, from, to)
	return d.Mul(decimal.NewFromFloat(rate)).InexactFloat64()
}

func toDecimal(amount any) (decimal.Decimal, bool) {
	switch v := amount.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return v, true
	case float64:
		return decimal.NewFromFloat(v), true
	case float32:
		return decimal.NewFromFloat32(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case int32:
		return decimal.NewFromInt32(v), true
	case json.Number:
		return toDecimal(v.String())
	case string:
		f, ok := utils.ParseNumber(v)
		if !ok {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(f), true
	default:
		return toDecimal(fmt.Sprint(v))
	}
}

var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"CNY": "CN¥",
	"INR": "₹",
	"CAD": "CA$",
	"AUD": "A$",
	"KRW": "₩",
}

// FormatCurrency renders amount with the currency's symbol (or its code when
// no symbol is known), grouped digits and 0-2 fraction digits.
// e.g., FormatCurrency(2850000000000, "USD") → "$2,850,000,000,000"
func FormatCurrency(amount float64, currency string) string {
	code := normalizeCode(currency)
	if code == "" {
		code = DefaultTarget
	}

	d := decimal.NewFromFloat(amount).Round(2)
	negative := d.IsNegative()
	s := d.Abs().StringFixed(2)

	intPart, frac, _ := strings.Cut(s, ".")
	frac = strings.TrimRight(frac, "0")
	out := utils.GroupDigits(intPart, ",", code == "INR")
	if frac != "" {
		out += "." + frac
	}

	if sym, ok := symbols[code]; ok {
		out = sym + out
	} else {
		out = code + " " + out
	}
	if negative {
		return "-" + out
	}
	return out
}

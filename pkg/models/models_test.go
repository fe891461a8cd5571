package models

import "testing"

func TestQuoteVolatility(t *testing.T) {
	q := &Quote{High: 105, Low: 95, PreviousClose: 100}
	if got := q.Volatility(); got != 10 {
		t.Errorf("Volatility() = %v, want 10", got)
	}

	var nilQuote *Quote
	if got := nilQuote.Volatility(); got != 0 {
		t.Errorf("nil quote Volatility() = %v, want 0", got)
	}

	if got := (&Quote{High: 1, Low: 0}).Volatility(); got != 0 {
		t.Errorf("zero previous close Volatility() = %v, want 0", got)
	}
}

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/seenimoa/diligence/internal/infra"
)

// Status is the outcome tag of a Result.
type Status string

const (
	StatusSuccess Status = "success"
	StatusEmpty   Status = "empty"
	StatusFailure Status = "failure"
)

// FailureKind classifies a Failure result.
type FailureKind string

const (
	KindRateLimited   FailureKind = "rate_limited"
	KindTimeout       FailureKind = "timeout"
	KindUnauthorized  FailureKind = "unauthorized"
	KindUpstreamError FailureKind = "upstream_error"
	KindMalformed     FailureKind = "malformed"
)

// Result is the outcome of one provider fetch: Success with normalized data,
// Empty when the provider had nothing for the company, or Failure with a kind.
type Result struct {
	Provider  string        `json:"provider"`
	Status    Status        `json:"status"`
	Kind      FailureKind   `json:"kind,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	Data      any           `json:"data,omitempty"`
	Cached    bool          `json:"cached"`
	FetchedAt time.Time     `json:"fetched_at"`
	Latency   time.Duration `json:"latency"`
}

// Success builds a successful result.
func Success(provider string, data any) Result {
	return Result{Provider: provider, Status: StatusSuccess, Data: data, FetchedAt: time.Now()}
}

// Empty builds a result for a provider that had nothing for the company.
func Empty(provider, detail string) Result {
	return Result{Provider: provider, Status: StatusEmpty, Detail: detail, FetchedAt: time.Now()}
}

// Failure builds a classified failure result.
func Failure(provider string, kind FailureKind, detail string) Result {
	return Result{Provider: provider, Status: StatusFailure, Kind: kind, Detail: detail, FetchedAt: time.Now()}
}

// OK reports whether the result carries data.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// DataAs returns the result data as T. It accepts both T and *T payloads,
// and falls back to a JSON round trip for results restored from storage.
func DataAs[T any](r Result) (T, bool) {
	var zero T
	if r.Status != StatusSuccess || r.Data == nil {
		return zero, false
	}
	switch v := r.Data.(type) {
	case T:
		return v, true
	case *T:
		if v == nil {
			return zero, false
		}
		return *v, true
	}
	raw, err := json.Marshal(r.Data)
	if err != nil {
		return zero, false
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, false
	}
	return out, true
}

// Classify maps an error from a fetch step to a FailureKind.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTimeout
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrMalformed):
		return KindMalformed
	}

	var de *infra.DecodeError
	if errors.As(err, &de) {
		return KindMalformed
	}

	var he *infra.HTTPError
	if errors.As(err, &he) {
		switch he.StatusCode {
		case http.StatusTooManyRequests:
			return KindRateLimited
		case http.StatusUnauthorized, http.StatusForbidden:
			return KindUnauthorized
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return KindTimeout
		}
		return KindUpstreamError
	}

	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return KindTimeout
	}
	return KindUpstreamError
}

package aggregate

import (
	"time"

	"github.com/seenimoa/diligence/internal/provider"
)

// EventType names a progress event.
type EventType string

const (
	EventProviderStarted     EventType = "provider.started"
	EventProviderFinished    EventType = "provider.finished"
	EventAggregationFinished EventType = "aggregation.finished"
)

// Event is a progress notification emitted during an aggregation.
type Event struct {
	Type      EventType            `json:"type"`
	RequestID string               `json:"requestId"`
	Company   string               `json:"company"`
	Provider  string               `json:"provider,omitempty"`
	Status    provider.Status      `json:"status,omitempty"`
	Kind      provider.FailureKind `json:"kind,omitempty"`
	Cached    bool                 `json:"cached,omitempty"`
	Latency   time.Duration        `json:"latency,omitempty"`
	Time      time.Time            `json:"time"`
}

// Observer receives progress events. It must be safe for concurrent use
// and must not block.
type Observer func(Event)

func fanout(observers []Observer) Observer {
	var active []Observer
	for _, o := range observers {
		if o != nil {
			active = append(active, o)
		}
	}
	return func(e Event) {
		for _, o := range active {
			o(e)
		}
	}
}

func finishedEvent(requestID, company string, res provider.Result, now time.Time) Event {
	return Event{
		Type:      EventProviderFinished,
		RequestID: requestID,
		Company:   company,
		Provider:  res.Provider,
		Status:    res.Status,
		Kind:      res.Kind,
		Cached:    res.Cached,
		Latency:   res.Latency,
		Time:      now,
	}
}

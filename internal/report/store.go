package report

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/seenimoa/diligence/internal/provider"
)

// ErrNotFound is returned when no report exists for a key.
var ErrNotFound = errors.New("report not found")

// Store persists reports keyed by (company, dateBucket). Saving a report for
// an existing key replaces it.
type Store interface {
	Save(ctx context.Context, r *Report) error
	Get(ctx context.Context, company, dateBucket string) (*Report, error)
	List(ctx context.Context, company string) ([]Summary, error)
	Close() error
}

// Summary is a history row for a stored report.
type Summary struct {
	ID          string    `json:"id"`
	Company     string    `json:"company"`
	DateBucket  string    `json:"dateBucket"`
	GeneratedAt time.Time `json:"generatedAt"`
	RiskRating  string    `json:"riskRating"`
	Generation  string    `json:"generation"`
	Degraded    bool      `json:"degraded"`
}

// Summarize returns the history row for r.
func (r *Report) Summarize() Summary {
	return Summary{
		ID:          r.ID,
		Company:     r.Company,
		DateBucket:  r.DateBucket,
		GeneratedAt: r.Metadata.GeneratedAt,
		RiskRating:  r.RiskAssessment.RiskRating,
		Generation:  r.Metadata.Generation,
		Degraded:    r.Metadata.Degraded,
	}
}

// SortSummaries orders history rows newest bucket first.
func SortSummaries(rows []Summary) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].DateBucket != rows[j].DateBucket {
			return rows[i].DateBucket > rows[j].DateBucket
		}
		return rows[i].GeneratedAt.After(rows[j].GeneratedAt)
	})
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string]*Report
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reports: make(map[string]*Report)}
}

func (m *MemoryStore) Save(_ context.Context, r *Report) error {
	if r == nil {
		return errors.New("report: nil report")
	}
	c := r.Clone()
	m.mu.Lock()
	m.reports[r.Key()] = c
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, company, dateBucket string) (*Report, error) {
	m.mu.RLock()
	r, ok := m.reports[Key(company, dateBucket)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryStore) List(_ context.Context, company string) ([]Summary, error) {
	want := provider.NormalizeCompany(company)
	m.mu.RLock()
	var rows []Summary
	for _, r := range m.reports {
		if provider.NormalizeCompany(r.Company) == want {
			rows = append(rows, r.Summarize())
		}
	}
	m.mu.RUnlock()
	SortSummaries(rows)
	return rows, nil
}

func (m *MemoryStore) Close() error { return nil }

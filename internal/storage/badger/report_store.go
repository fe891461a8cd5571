package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/seenimoa/diligence/internal/provider"
	"github.com/seenimoa/diligence/internal/report"
)

// reportRecord is the persisted form of a report.
type reportRecord struct {
	Key         string `badgerhold:"key"`
	CompanyKey  string `badgerhold:"index"`
	DateBucket  string
	GeneratedAt time.Time
	Payload     []byte
}

// ReportStore is a report.Store backed by badgerhold.
type ReportStore struct {
	db *DB
}

// NewReportStore wraps db as a report store.
func NewReportStore(db *DB) *ReportStore {
	return &ReportStore{db: db}
}

func (s *ReportStore) Save(_ context.Context, r *report.Report) error {
	if r == nil {
		return errors.New("badger: nil report")
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	rec := reportRecord{
		Key:         r.Key(),
		CompanyKey:  provider.NormalizeCompany(r.Company),
		DateBucket:  r.DateBucket,
		GeneratedAt: r.Metadata.GeneratedAt,
		Payload:     payload,
	}
	if err := s.db.Store().Upsert(rec.Key, &rec); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

func (s *ReportStore) Get(_ context.Context, company, dateBucket string) (*report.Report, error) {
	var rec reportRecord
	err := s.db.Store().Get(report.Key(company, dateBucket), &rec)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, report.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return decode(rec.Payload)
}

func (s *ReportStore) List(_ context.Context, company string) ([]report.Summary, error) {
	var recs []reportRecord
	query := badgerhold.Where("CompanyKey").Eq(provider.NormalizeCompany(company)).Index("CompanyKey")
	if err := s.db.Store().Find(&recs, query); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	rows := make([]report.Summary, 0, len(recs))
	for _, rec := range recs {
		r, err := decode(rec.Payload)
		if err != nil {
			s.db.logger.Warn().Err(err).Str("key", rec.Key).Msg("skipping undecodable report")
			continue
		}
		rows = append(rows, r.Summarize())
	}
	report.SortSummaries(rows)
	return rows, nil
}

// Close is a no-op; the owner of DB closes it.
func (s *ReportStore) Close() error { return nil }

func decode(payload []byte) (*report.Report, error) {
	var r report.Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}

// Package postgres is a server-side report history store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seenimoa/diligence/internal/provider"
	"github.com/seenimoa/diligence/internal/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS diligence_reports (
    key          TEXT PRIMARY KEY,
    company_key  TEXT NOT NULL,
    company      TEXT NOT NULL,
    date_bucket  TEXT NOT NULL,
    request_id   TEXT NOT NULL,
    generated_at TIMESTAMPTZ NOT NULL,
    payload      JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS diligence_reports_company_idx
    ON diligence_reports (company_key, date_bucket DESC);
`

// ReportStore is a report.Store backed by PostgreSQL.
type ReportStore struct {
	pool *pgxpool.Pool
}

var _ report.Store = (*ReportStore)(nil)

// Connect opens a pool for dsn and ensures the schema exists.
func Connect(ctx context.Context, dsn string) (*ReportStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &ReportStore{pool: pool}, nil
}

// Close releases the pool.
func (s *ReportStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *ReportStore) Save(ctx context.Context, r *report.Report) error {
	if r == nil {
		return errors.New("postgres: nil report")
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshalling report: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO diligence_reports (key, company_key, company, date_bucket, request_id, generated_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE SET
			company = EXCLUDED.company,
			request_id = EXCLUDED.request_id,
			generated_at = EXCLUDED.generated_at,
			payload = EXCLUDED.payload`,
		r.Key(), provider.NormalizeCompany(r.Company), r.Company, r.DateBucket, r.ID,
		r.Metadata.GeneratedAt, payload)
	if err != nil {
		return fmt.Errorf("saving report: %w", err)
	}
	return nil
}

func (s *ReportStore) Get(ctx context.Context, company, dateBucket string) (*report.Report, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM diligence_reports WHERE key = $1`,
		report.Key(company, dateBucket)).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, report.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting report: %w", err)
	}
	var r report.Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("unmarshalling report: %w", err)
	}
	return &r, nil
}

func (s *ReportStore) List(ctx context.Context, company string) ([]report.Summary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT payload FROM diligence_reports
		WHERE company_key = $1
		ORDER BY date_bucket DESC`, provider.NormalizeCompany(company))
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	var out []report.Summary
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		var r report.Report
		if err := json.Unmarshal(payload, &r); err != nil {
			continue
		}
		out = append(out, r.Summarize())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reports: %w", err)
	}
	report.SortSummaries(out)
	return out, nil
}

// Package sqlite is an embedded report history store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/seenimoa/diligence/internal/provider"
	"github.com/seenimoa/diligence/internal/report"
	"github.com/seenimoa/diligence/internal/storage/sqlite/migrations"
)

// FileName is the database file created inside the data directory.
const FileName = "reports.db"

// ReportStore is a report.Store backed by a SQLite file.
type ReportStore struct {
	db   *sql.DB
	path string
}

var _ report.Store = (*ReportStore)(nil)

// NewReportStore opens or creates the database in dataDir.
func NewReportStore(dataDir string) (*ReportStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, FileName)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &ReportStore{db: db, path: dbPath}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *ReportStore) Path() string { return s.path }

// Close closes the database connection.
func (s *ReportStore) Close() error { return s.db.Close() }

// Save stores or replaces the report for its (company, dateBucket) key.
func (s *ReportStore) Save(ctx context.Context, r *report.Report) error {
	if r == nil {
		return errors.New("sqlite: nil report")
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshalling report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (key, company_key, company, date_bucket, request_id, generated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			company = excluded.company,
			request_id = excluded.request_id,
			generated_at = excluded.generated_at,
			payload = excluded.payload
	`, r.Key(), provider.NormalizeCompany(r.Company), r.Company, r.DateBucket, r.ID,
		r.Metadata.GeneratedAt.UTC().Format(time.RFC3339Nano), string(payload))
	if err != nil {
		return fmt.Errorf("saving report: %w", err)
	}
	return nil
}

// Get returns the report for company in dateBucket.
func (s *ReportStore) Get(ctx context.Context, company, dateBucket string) (*report.Report, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM reports WHERE key = ?`,
		report.Key(company, dateBucket)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, report.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting report: %w", err)
	}
	var r report.Report
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("unmarshalling report: %w", err)
	}
	return &r, nil
}

// List returns history rows for company, newest first.
func (s *ReportStore) List(ctx context.Context, company string) ([]report.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM reports
		WHERE company_key = ?
		ORDER BY date_bucket DESC
	`, provider.NormalizeCompany(company))
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	var out []report.Summary
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		var r report.Report
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
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

// migrate runs all pending migrations.
func (s *ReportStore) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

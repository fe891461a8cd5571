package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/diligence/internal/report"
)

// These tests need a live database; set DILIGENCE_TEST_POSTGRES_DSN to run them.
func connectTestStore(t *testing.T) *ReportStore {
	t.Helper()
	dsn := os.Getenv("DILIGENCE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DILIGENCE_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestConnectRejectsBadDSN(t *testing.T) {
	_, err := Connect(context.Background(), "://not a dsn")
	assert.Error(t, err)
}

func TestSaveGetList(t *testing.T) {
	store := connectTestStore(t)
	ctx := context.Background()
	company := "Test Co " + uuid.NewString()

	r := &report.Report{ID: "p1", Company: company, DateBucket: "2026-10-18",
		Metadata: report.Metadata{GeneratedAt: time.Now().UTC()}}
	report.Normalize(r)
	require.NoError(t, store.Save(ctx, r))

	r.ID = "p2"
	require.NoError(t, store.Save(ctx, r))

	got, err := store.Get(ctx, company, "2026-10-18")
	require.NoError(t, err)
	assert.Equal(t, "p2", got.ID)

	rows, err := store.List(ctx, company)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = store.Get(ctx, company, "2001-01-01")
	assert.ErrorIs(t, err, report.ErrNotFound)
}

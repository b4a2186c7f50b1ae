package postgres_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/stockmart/auction-engine/internal/store"
)

// newTestDB starts a Postgres container, applies the migration, and returns
// a connected *sqlx.DB. The container is automatically terminated when the
// test ends.
func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	// Locate migration file relative to this source file.
	_, thisFile, _, _ := runtime.Caller(0)
	migrationDir := filepath.Join(filepath.Dir(thisFile), "migrations")

	migrationSQL, err := os.ReadFile(filepath.Join(migrationDir, "001_initial.sql"))
	if err != nil {
		t.Fatalf("reading migration: %v", err)
	}

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("auctions_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tcpostgres.WithInitScripts(), // no bundled init scripts
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		t.Fatalf("connecting to test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Apply migration.
	if _, err := db.ExecContext(ctx, string(migrationSQL)); err != nil {
		t.Fatalf("applying migration: %v", err)
	}

	return db
}

var pgBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testAuctionRow returns a minimal valid scheduled auction row.
func testAuctionRow(id string) *store.Auction {
	return &store.Auction{
		ID:               id,
		ListingID:        "lot-" + id,
		StartingPrice:    1000,
		MinimumIncrement: 100,
		ScheduledStart:   pgBase,
		ScheduledEnd:     pgBase.Add(time.Hour),
		EffectiveEnd:     pgBase.Add(time.Hour),
		State:            "scheduled",
		ReserveMet:       true,
	}
}

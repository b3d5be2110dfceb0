// Package testutil sets up a migrated Postgres database for package tests.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/johndosdos/recipechat/internal/database"
	"github.com/johndosdos/recipechat/sql/schema"
)

const schemaLockKey = 727_001

func ProjectRoot() string {
	_, file, _, _ := runtime.Caller(0)
	root := filepath.Join(filepath.Dir(file), "../../")
	return root
}

// Migrate resets and re-applies the embedded schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if err := schema.Reset(ctx, db); err != nil {
		return err
	}
	return schema.Up(ctx, db)
}

// DbInit connects to TEST_DB_URL, migrates a clean schema and registers a
// cleanup that drops it again. Tests are skipped when no database is
// configured.
func DbInit(t testing.TB) (*pgxpool.Pool, *database.Queries) {
	t.Helper()

	_ = godotenv.Load(filepath.Join(ProjectRoot(), ".env"))

	testURL := os.Getenv("TEST_DB_URL")
	if testURL == "" {
		t.Skip("TEST_DB_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, testURL)
	if err != nil {
		t.Fatalf("could not connect to the postgresql database: %v", err)
	}

	// Packages run in parallel against the same database; hold a session
	// lock until cleanup so only one of them owns the schema at a time.
	lockCtx, cancelLock := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancelLock()
	lockConn, err := pool.Acquire(lockCtx)
	if err != nil {
		pool.Close()
		t.Fatalf("could not acquire lock connection: %v", err)
	}
	if _, err := lockConn.Exec(lockCtx, "SELECT pg_advisory_lock($1)", schemaLockKey); err != nil {
		lockConn.Release()
		pool.Close()
		t.Fatalf("could not take schema lock: %v", err)
	}

	dbForGoose := stdlib.OpenDBFromPool(pool)
	if err := Migrate(ctx, dbForGoose); err != nil {
		_ = dbForGoose.Close()
		lockConn.Release()
		pool.Close()
		t.Fatalf("migrate error = %+v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := schema.Reset(ctx, dbForGoose); err != nil {
			t.Logf("schema.Reset() error = %+v", err)
		}
		if _, err := lockConn.Exec(ctx, "SELECT pg_advisory_unlock($1)", schemaLockKey); err != nil {
			t.Logf("schema unlock error = %+v", err)
		}
		lockConn.Release()
		_ = dbForGoose.Close()
		pool.Close()
	})

	return pool, database.New(pool)
}

// CreateUser inserts an approved user with a throwaway password hash.
func CreateUser(t testing.TB, q *database.Queries, username string) database.User {
	t.Helper()

	user, err := q.CreateUser(context.Background(), database.CreateUserParams{
		Username:       username,
		HashedPassword: "not-a-hash",
		Role:           "user",
		Approved:       true,
	})
	if err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return user
}

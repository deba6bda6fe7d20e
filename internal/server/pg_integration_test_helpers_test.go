package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
)

// connectTestPostgres returns a connection to a throwaway test database with
// the core schema applied, or skips when Postgres is unreachable. An explicit
// TEST_DATABASE_URL wins over the derived <dbname>_test database.
func connectTestPostgres(ctx context.Context, t *testing.T) (*pgx.Conn, bool) {
	t.Helper()

	testDSN, ok := ensureTestDatabase(ctx, t, dbDSNFromEnv())
	if !ok {
		return nil, false
	}
	conn, err := pgx.Connect(ctx, testDSN)
	if err != nil {
		t.Logf("skip postgres: %v", err)
		return nil, false
	}
	if err := applyCoreSchema(ctx, conn); err != nil {
		_ = conn.Close(ctx)
		t.Logf("skip postgres: %v", err)
		return nil, false
	}
	return conn, true
}

func applyCoreSchema(ctx context.Context, conn *pgx.Conn) error {
	path := filepath.Join("db", "migrations", "0001_core_schema.sql")
	for i := 0; i < 8; i++ {
		if _, err := os.Stat(path); err == nil {
			break
		}
		path = filepath.Join("..", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = conn.Exec(ctx, string(b))
	return err
}

func ensureTestDatabase(ctx context.Context, t *testing.T, dsn string) (string, bool) {
	t.Helper()

	if v := os.Getenv("TEST_DATABASE_URL"); v != "" {
		return v, true
	}

	baseURL, err := url.Parse(dsn)
	if err != nil {
		t.Logf("skip postgres: %v", err)
		return "", false
	}

	dbName := strings.TrimPrefix(baseURL.Path, "/")
	if dbName == "" {
		dbName = "postgres"
	}
	testDBName := dbName
	if !strings.HasSuffix(testDBName, "_test") {
		testDBName += "_test"
	}
	if !validDBName(testDBName) {
		t.Logf("skip postgres: invalid test database name %q", testDBName)
		return "", false
	}

	adminURL := *baseURL
	adminURL.Path = "/postgres"

	adminConn, err := pgx.Connect(ctx, adminURL.String())
	if err != nil {
		t.Logf("skip postgres: %v", err)
		return "", false
	}
	defer adminConn.Close(ctx)

	var exists int
	err = adminConn.QueryRow(ctx, `SELECT 1 FROM pg_database WHERE datname = $1`, testDBName).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := adminConn.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", testDBName)); err != nil {
			t.Logf("skip postgres: %v", err)
			return "", false
		}
	} else if err != nil {
		t.Logf("skip postgres: %v", err)
		return "", false
	}

	testURL := *baseURL
	testURL.Path = "/" + testDBName
	return testURL.String(), true
}

func validDBName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return true
}

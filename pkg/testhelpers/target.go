package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
)

// TargetDB describes a seeded database that scans run against. The scanner
// role can read customers and orders but not secrets.
type TargetDB struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

const (
	targetDatabase  = "edda_target"
	scannerUser     = "edda_scanner"
	scannerPassword = "scanner_password"
)

var (
	sharedTarget     *TargetDB
	sharedTargetOnce sync.Once
	sharedTargetErr  error
)

// targetFixture builds three tables: customers, orders (declared FK to
// customers) and secrets (no SELECT for the scanner role).
const targetFixture = `
CREATE TABLE customers (
    id         SERIAL PRIMARY KEY,
    name       TEXT NOT NULL,
    email      TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT '2024-01-01T00:00:00Z'
);

CREATE TABLE orders (
    id          SERIAL PRIMARY KEY,
    customer_id INTEGER NOT NULL REFERENCES customers (id),
    total       NUMERIC(10, 2) NOT NULL,
    status      TEXT NOT NULL
);

CREATE INDEX idx_orders_customer ON orders (customer_id);

CREATE TABLE secrets (
    id    SERIAL PRIMARY KEY,
    token TEXT NOT NULL
);

INSERT INTO customers (name, email)
SELECT 'Customer ' || g, CASE WHEN g % 4 = 0 THEN NULL ELSE 'customer' || g || '@example.com' END
FROM generate_series(1, 40) AS g;

INSERT INTO orders (customer_id, total, status)
SELECT (g % 40) + 1, (g * 7 % 500) + 0.99, CASE WHEN g % 3 = 0 THEN 'shipped' ELSE 'open' END
FROM generate_series(1, 120) AS g;

INSERT INTO secrets (token) SELECT md5(g::text) FROM generate_series(1, 5) AS g;

ANALYZE;
`

// GetTargetDB returns the shared scan target with fixtures loaded.
func GetTargetDB(t *testing.T) *TargetDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	testDB := GetTestDB(t)

	sharedTargetOnce.Do(func() {
		sharedTarget, sharedTargetErr = setupTargetDB(testDB)
	})

	if sharedTargetErr != nil {
		t.Fatalf("Failed to setup target database: %v", sharedTargetErr)
	}

	return sharedTarget
}

func setupTargetDB(testDB *TestDB) (*TargetDB, error) {
	ctx := context.Background()

	if err := testDB.createDatabase(ctx, targetDatabase); err != nil {
		return nil, err
	}

	_, err := testDB.Pool.Exec(ctx, fmt.Sprintf(`
		DO $$
		BEGIN
			IF NOT EXISTS (SELECT FROM pg_roles WHERE rolname = '%s') THEN
				CREATE ROLE %s LOGIN PASSWORD '%s';
			END IF;
		END $$`, scannerUser, scannerUser, scannerPassword))
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner role: %w", err)
	}

	conn, err := pgx.Connect(ctx, testDB.URLFor(superUser, superPassword, targetDatabase))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to target database: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, targetFixture); err != nil {
		return nil, fmt.Errorf("failed to load target fixture: %w", err)
	}

	grants := []string{
		fmt.Sprintf("GRANT CONNECT ON DATABASE %s TO %s", targetDatabase, scannerUser),
		fmt.Sprintf("GRANT USAGE ON SCHEMA public TO %s", scannerUser),
		fmt.Sprintf("GRANT SELECT ON customers, orders TO %s", scannerUser),
	}
	for _, grant := range grants {
		if _, err := conn.Exec(ctx, grant); err != nil {
			return nil, fmt.Errorf("failed to grant scanner privileges: %w", err)
		}
	}

	return &TargetDB{
		Host:     testDB.Host,
		Port:     testDB.Port,
		Database: targetDatabase,
		User:     scannerUser,
		Password: scannerPassword,
	}, nil
}

// AdapterConfig returns the config map the postgres adapter reads.
func (t *TargetDB) AdapterConfig() map[string]any {
	return map[string]any{
		"host":     t.Host,
		"port":     t.Port,
		"user":     t.User,
		"password": t.Password,
		"database": t.Database,
		"schema":   "public",
		"ssl_mode": "disable",
	}
}

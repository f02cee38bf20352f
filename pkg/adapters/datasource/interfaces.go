package datasource

import (
	"context"
)

// ConnectionTester verifies that a target database is reachable with the
// given credentials. Implementations never persist anything.
type ConnectionTester interface {
	// TestConnection connects and runs a trivial read.
	// Failures are returned as classified *apperrors.ScanError values.
	TestConnection(ctx context.Context) error

	// Close releases the adapter's resources. Pools owned by the
	// ConnectionManager are left open.
	Close() error
}

// CatalogReader extracts tables, columns and constraints of one schema.
type CatalogReader interface {
	// ReadCatalog returns the catalog of schema in deterministic order.
	// Tables whose columns cannot be read are returned with ReadErr set
	// instead of failing the whole call.
	ReadCatalog(ctx context.Context, schema string) (*Catalog, error)

	Close() error
}

// Sampler pulls a bounded sample of rows from one table.
type Sampler interface {
	// Sample returns up to req.Limit rows. When ctx expires mid-read the
	// rows read so far are returned with Partial set and a nil error.
	Sample(ctx context.Context, req SampleRequest) (*Sample, error)

	Close() error
}

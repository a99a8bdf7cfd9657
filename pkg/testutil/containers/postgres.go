//go:build integration

// Package containers provides throwaway infrastructure for integration
// tests. Containers are started per suite and terminated through t.Cleanup.
package containers

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// documentsSchema mirrors the production migration for the compliance store.
const documentsSchema = `
CREATE TABLE IF NOT EXISTS electronic_documents (
	id               UUID PRIMARY KEY,
	document_number  TEXT NOT NULL UNIQUE,
	generation_date  TIMESTAMPTZ NOT NULL,
	entry            JSONB NOT NULL,
	employer         JSONB NOT NULL,
	xml_unsigned     TEXT NOT NULL DEFAULT '',
	xml_signed       TEXT NOT NULL DEFAULT '',
	cufe             TEXT NOT NULL DEFAULT '',
	state            TEXT NOT NULL,
	response_code    TEXT NOT NULL DEFAULT '',
	response_message TEXT NOT NULL DEFAULT '',
	tracking_id      TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_electronic_documents_state ON electronic_documents (state);
CREATE INDEX IF NOT EXISTS idx_electronic_documents_cufe ON electronic_documents (cufe);
`

// PostgresContainer wraps a testcontainers PostgreSQL instance with an open
// database/sql handle and the documents schema applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DB        *sql.DB
}

// NewPostgresContainer starts PostgreSQL and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("nomina_test"),
		tcpostgres.WithUsername("nomina"),
		tcpostgres.WithPassword("nomina"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	db.SetConnMaxLifetime(time.Minute)
	t.Cleanup(func() { _ = db.Close() })

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, documentsSchema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	return &PostgresContainer{Container: container, DB: db}
}

// TruncateTables clears the given tables between tests.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if _, err := p.DB.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}

//go:build postgres_integration

package store

import (
	"os"
	"testing"
)

func TestPostgresContract(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer p.Close()
	if err := p.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if _, err := p.db.ExecContext(t.Context(), `TRUNCATE solves`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	runContract(t, p)
}

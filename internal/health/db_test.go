package health

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/lib/pq"
)

func TestPostgres_HealthCheckCanceledContext(t *testing.T) {
	// sql.Open is lazy, so no database needs to be running; the canceled
	// context must fail the probe before any dial happens.
	db, err := sql.Open("postgres", "postgres://localhost:5432/alert311?sslmode=disable")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer db.Close()

	checker := NewPostgres(db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := checker.HealthCheck(ctx); err == nil {
		t.Error("expected probe to fail with a canceled context")
	}
}

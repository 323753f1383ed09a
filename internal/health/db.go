// Package health probes the service's backing stores for the readiness
// endpoint.
package health

import (
	"context"
	"database/sql"
	"time"
)

// probeTimeout bounds each dependency probe so a hung store cannot stall
// the readiness endpoint.
const probeTimeout = 2 * time.Second

// Postgres probes the alert store.
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a checker over an open connection pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// HealthCheck pings the database within the probe timeout.
func (p *Postgres) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return p.db.PingContext(ctx)
}

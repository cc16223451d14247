package pg

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // driver: postgres
)

// Drivers accepted by Open.
const (
	DriverPgx = "pgx"
	DriverPq  = "postgres"
)

// Open connects through database/sql with either driver and checks the
// connection before returning. The pool lives for the whole process.
func Open(ctx context.Context, driver, url string) (*sqlx.DB, error) {
	switch driver {
	case "":
		driver = DriverPgx
	case DriverPgx, DriverPq:
	default:
		return nil, fmt.Errorf("pg: unsupported driver %q", driver)
	}
	db, err := sqlx.Open(driver, url)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return db, nil
}

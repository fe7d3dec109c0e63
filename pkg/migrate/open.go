package migrate

import (
	"context"
	"database/sql"
	"fmt"

	// registers the "postgres" database/sql driver used by the migrate command
	_ "github.com/lib/pq"
)

// OpenPostgres opens a database/sql handle on lib/pq for goose, separate from the gorm pool.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return conn, nil
}

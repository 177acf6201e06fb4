package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
)

// Connection holds the PostGIS connection results are published to.
type Connection struct {
	DB *sql.DB
}

// NewConnection opens and pings a PostgreSQL database. An empty dsn is built
// from the standard PG* environment variables.
func NewConnection(ctx context.Context, dsn string) (*Connection, error) {
	if dsn == "" {
		dsn = envDSN()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	return &Connection{DB: db}, nil
}

// Close closes the database connection
func (c *Connection) Close() error {
	return c.DB.Close()
}

// PostGISVersion reports the PostGIS extension version of the server.
func (c *Connection) PostGISVersion(ctx context.Context) (string, error) {
	var version string
	if err := c.DB.QueryRowContext(ctx, "SELECT PostGIS_Version()").Scan(&version); err != nil {
		return "", fmt.Errorf("postgis not available: %w", err)
	}
	return version, nil
}

func envDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		getEnvOrDefault("PGHOST", "localhost"),
		getEnvOrDefault("PGPORT", "5432"),
		getEnvOrDefault("PGUSER", "postgres"),
		getEnvOrDefault("PGPASSWORD", ""),
		getEnvOrDefault("PGDATABASE", "wells"),
		getEnvOrDefault("PGSSLMODE", "disable"))
}

// getEnvOrDefault returns environment variable or default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

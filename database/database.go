package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"jobrunner/config"
)

func Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to database: %v", err)
	}

	return db, nil
}

// EnsureSchema creates the run-record table if it does not exist. The service
// runs fine without a database; this is only called when one is configured.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS application_runs (
			id UUID PRIMARY KEY,
			job_url TEXT NOT NULL,
			status TEXT NOT NULL,
			platform TEXT,
			elapsed_ms BIGINT NOT NULL DEFAULT 0,
			filled_fields TEXT,
			issues TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

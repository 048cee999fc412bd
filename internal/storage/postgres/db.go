package postgres

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// DatabaseConfig holds the database connection configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// Open opens a connection pool and verifies it with a ping. Callers own the
// returned handle; there is no package-level pool.
func Open(config DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		config.Host,
		config.Port,
		config.Database,
		config.User,
		config.Password,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Successfully connected to PostgreSQL database: %s", config.Database)
	return db, nil
}

// EnsureSchema creates the checkouts table when it does not exist yet.
func EnsureSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS checkouts (
		order_id VARCHAR(255) PRIMARY KEY,
		chat_id VARCHAR(255) NOT NULL,
		state VARCHAR(50) NOT NULL,
		progress_text TEXT,
		error_message TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_checkouts_chat_id ON checkouts(chat_id);
	CREATE INDEX IF NOT EXISTS idx_checkouts_state ON checkouts(state);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create checkouts table: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"
)

// StateReconciling is the row state between submission and a terminal outcome.
const StateReconciling = "reconciling"

// Checkout is one persisted checkout row.
type Checkout struct {
	OrderID      string    `json:"order_id"`
	ChatID       string    `json:"chat_id"`
	State        string    `json:"state"`
	ProgressText string    `json:"progress_text,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Repository is a thin wrapper around *sql.DB intended for dependency injection.
type Repository struct {
	DB *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{DB: db}
}

// InsertCheckout inserts or upserts a checkout row in the reconciling state.
func (r *Repository) InsertCheckout(ctx context.Context, orderID, chatID string) error {
	if r.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	query := `
		INSERT INTO checkouts (order_id, chat_id, state)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_id) DO UPDATE SET
			chat_id = EXCLUDED.chat_id,
			state = EXCLUDED.state,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := r.DB.ExecContext(ctx, query, orderID, chatID, StateReconciling); err != nil {
		return fmt.Errorf("failed to insert checkout: %w", err)
	}
	log.Printf("[DB] Inserted checkout: %s", orderID)
	return nil
}

// UpdateProgress records the latest progress text shown for the order.
func (r *Repository) UpdateProgress(ctx context.Context, orderID, text string) error {
	if r.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	query := `
		UPDATE checkouts
		SET progress_text = $1, updated_at = CURRENT_TIMESTAMP
		WHERE order_id = $2
	`
	if _, err := r.DB.ExecContext(ctx, query, text, orderID); err != nil {
		return fmt.Errorf("failed to update checkout progress: %w", err)
	}
	return nil
}

// MarkOutcome moves the row to a terminal state.
func (r *Repository) MarkOutcome(ctx context.Context, orderID, state, errorMessage string) error {
	if r.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	query := `
		UPDATE checkouts
		SET state = $1, error_message = $2, updated_at = CURRENT_TIMESTAMP
		WHERE order_id = $3
	`
	result, err := r.DB.ExecContext(ctx, query, state, errorMessage, orderID)
	if err != nil {
		return fmt.Errorf("failed to mark checkout outcome: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("checkout not found: %s", orderID)
	}
	log.Printf("[DB] Checkout %s -> %s", orderID, state)
	return nil
}

// GetCheckout fetches one row by order id. Returns sql.ErrNoRows when absent.
func (r *Repository) GetCheckout(ctx context.Context, orderID string) (*Checkout, error) {
	if r.DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	query := `
		SELECT order_id, chat_id, state,
		       COALESCE(progress_text, ''), COALESCE(error_message, ''),
		       created_at, updated_at
		FROM checkouts
		WHERE order_id = $1
	`
	var c Checkout
	err := r.DB.QueryRowContext(ctx, query, orderID).Scan(
		&c.OrderID, &c.ChatID, &c.State, &c.ProgressText, &c.ErrorMessage,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListRecent returns the newest rows for a chat, most recent first.
func (r *Repository) ListRecent(ctx context.Context, chatID string, limit int) ([]Checkout, error) {
	if r.DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT order_id, chat_id, state,
		       COALESCE(progress_text, ''), COALESCE(error_message, ''),
		       created_at, updated_at
		FROM checkouts
		WHERE chat_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.DB.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkouts: %w", err)
	}
	defer rows.Close()

	var out []Checkout
	for rows.Next() {
		var c Checkout
		if err := rows.Scan(&c.OrderID, &c.ChatID, &c.State, &c.ProgressText,
			&c.ErrorMessage, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

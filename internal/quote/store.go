package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradeguard/backend-quotes/internal/common"
)

// ErrDuplicateID reports an insert that collided with an existing quote id.
var ErrDuplicateID = errors.New("quote: duplicate id")

// Store persists quote documents in Postgres. The document column holds the
// submitted JSON verbatim so unknown fields survive a round trip.
type Store struct {
	Pool *pgxpool.Pool
}

// ListItem is one row of the agent-facing quote index.
type ListItem struct {
	ID         string    `json:"id"`
	ClientName string    `json:"clientName"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Create inserts a document under the given id.
func (s *Store) Create(ctx context.Context, id string, document []byte) error {
	const q = `INSERT INTO quotes (id, document) VALUES ($1, $2)`
	if _, err := s.Pool.Exec(ctx, q, id, document); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert quote: %w", err)
	}
	return nil
}

// Get returns the stored document bytes.
func (s *Store) Get(ctx context.Context, id string) ([]byte, error) {
	const q = `SELECT document FROM quotes WHERE id = $1`
	var document []byte
	if err := s.Pool.QueryRow(ctx, q, id).Scan(&document); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound("quote not found")
		}
		return nil, fmt.Errorf("get quote: %w", err)
	}
	return document, nil
}

// List returns recent quotes, newest first, with the total row count.
func (s *Store) List(ctx context.Context, limit, offset int) ([]ListItem, int, error) {
	const countQ = `SELECT count(*) FROM quotes`
	var total int
	if err := s.Pool.QueryRow(ctx, countQ).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count quotes: %w", err)
	}
	const q = `
		SELECT id, coalesce(document->'client'->>'name', ''), created_at
		FROM quotes
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`
	rows, err := s.Pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()
	items := make([]ListItem, 0, limit)
	for rows.Next() {
		var item ListItem
		if err := rows.Scan(&item.ID, &item.ClientName, &item.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan quote row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate quotes: %w", err)
	}
	return items, total, nil
}

package checkout

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Row is one persisted checkout session.
type Row struct {
	ID          string
	QuoteID     string
	Provider    string
	Status      string
	AmountCents int64
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Store persists checkout sessions in Postgres.
type Store struct {
	Pool *pgxpool.Pool
}

// InsertSession records a freshly created provider session.
func (s *Store) InsertSession(ctx context.Context, id, quoteID, provider string, amountCents int64) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO checkout_sessions (id, quote_id, provider, status, amount_cents)
		VALUES ($1, $2, $3, 'open', $4)
		ON CONFLICT (id) DO NOTHING
	`, id, quoteID, provider, amountCents)
	return err
}

// MarkCompleted transitions a session to completed. Unknown session ids are
// not an error: sessions may have been created before this service tracked
// them.
func (s *Store) MarkCompleted(ctx context.Context, sessionID string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE checkout_sessions
		SET status = 'completed', completed_at = now()
		WHERE id = $1
	`, sessionID)
	return err
}

// GetByQuote lists sessions for a quote, newest first.
func (s *Store) GetByQuote(ctx context.Context, quoteID string) ([]Row, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, quote_id, provider, status, amount_cents, created_at, completed_at
		FROM checkout_sessions
		WHERE quote_id = $1
		ORDER BY created_at DESC
	`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.ID, &row.QuoteID, &row.Provider, &row.Status, &row.AmountCents, &row.CreatedAt, &row.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

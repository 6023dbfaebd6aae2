package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGKeyStore persists agent keys in Postgres.
type PGKeyStore struct {
	Pool *pgxpool.Pool
}

// GetAgentKey loads one key row by id.
func (s *PGKeyStore) GetAgentKey(ctx context.Context, id string) (AgentKey, error) {
	const q = `SELECT id, label, key_hash, active, created_at FROM agent_keys WHERE id = $1`
	var key AgentKey
	err := s.Pool.QueryRow(ctx, q, id).Scan(&key.ID, &key.Label, &key.KeyHash, &key.Active, &key.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AgentKey{}, ErrKeyNotFound
		}
		return AgentKey{}, fmt.Errorf("get agent key: %w", err)
	}
	return key, nil
}

// InsertAgentKey stores a freshly minted key hash.
func (s *PGKeyStore) InsertAgentKey(ctx context.Context, id, label, keyHash string) error {
	const q = `INSERT INTO agent_keys (id, label, key_hash) VALUES ($1, $2, $3)`
	if _, err := s.Pool.Exec(ctx, q, id, label, keyHash); err != nil {
		return fmt.Errorf("insert agent key: %w", err)
	}
	return nil
}

// Package auth guards agent-facing endpoints with API keys and public quote
// links with signed share tokens.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
)

const keyPrefix = "tgk"

// AgentKey is one stored API key. Secret material is kept only as an argon2id
// hash; the raw secret is shown once at mint time.
type AgentKey struct {
	ID        string
	Label     string
	KeyHash   string
	Active    bool
	CreatedAt time.Time
}

// KeyStore looks up and persists agent keys.
type KeyStore interface {
	GetAgentKey(ctx context.Context, id string) (AgentKey, error)
	InsertAgentKey(ctx context.Context, id, label, keyHash string) error
}

// ErrKeyNotFound is returned by stores when no key row matches.
var ErrKeyNotFound = errors.New("auth: agent key not found")

// MintedKey is the one-time result of minting a new key.
type MintedKey struct {
	ID  string
	Raw string
}

// MintKey generates a new agent key, stores its hash, and returns the raw
// credential exactly once.
func MintKey(ctx context.Context, store KeyStore, label string) (MintedKey, error) {
	id := uuid.NewString()
	secretBytes := make([]byte, 24)
	if _, err := rand.Read(secretBytes); err != nil {
		return MintedKey{}, fmt.Errorf("auth: generate secret: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)
	hash, err := argon2id.CreateHash(secret, argon2id.DefaultParams)
	if err != nil {
		return MintedKey{}, fmt.Errorf("auth: hash secret: %w", err)
	}
	if err := store.InsertAgentKey(ctx, id, label, hash); err != nil {
		return MintedKey{}, fmt.Errorf("auth: store key: %w", err)
	}
	return MintedKey{ID: id, Raw: strings.Join([]string{keyPrefix, id, secret}, ".")}, nil
}

// VerifyKey checks a raw credential of the form "tgk.<id>.<secret>" against
// the stored hash. It returns the key id on success.
func VerifyKey(ctx context.Context, store KeyStore, raw string) (string, error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 3 || parts[0] != keyPrefix {
		return "", errors.New("auth: malformed api key")
	}
	id, secret := parts[1], parts[2]
	key, err := store.GetAgentKey(ctx, id)
	if err != nil {
		return "", err
	}
	if !key.Active {
		return "", errors.New("auth: agent key revoked")
	}
	match, err := argon2id.ComparePasswordAndHash(secret, key.KeyHash)
	if err != nil {
		return "", fmt.Errorf("auth: compare key: %w", err)
	}
	if !match {
		return "", errors.New("auth: agent key mismatch")
	}
	return key.ID, nil
}

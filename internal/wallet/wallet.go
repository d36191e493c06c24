// Package wallet resolves the signing keys of a user.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// ErrNoWallet is returned when a user has no signing key.
var ErrNoWallet = errors.New("no wallet")

// Provider is an opaque signing capability keyed by user id.
type Provider interface {
	// Wallets returns the user's keys, primary first.
	Wallets(ctx context.Context, userID int64) ([]solana.PrivateKey, error)
}

// Static is an in-memory Provider.
type Static map[int64][]solana.PrivateKey

// Wallets returns the keys stored for userID.
func (s Static) Wallets(_ context.Context, userID int64) ([]solana.PrivateKey, error) {
	keys := s[userID]
	if len(keys) == 0 {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNoWallet)
	}
	return keys, nil
}

// FileKeyring loads keys from a JSON file mapping user id to base58 secret keys:
//
//	{"123456": ["4Nd1m...", "2fX9..."]}
type FileKeyring struct {
	path string

	mu   sync.RWMutex
	keys map[int64][]solana.PrivateKey
}

// OpenFileKeyring reads and validates the keyring at path.
func OpenFileKeyring(path string) (*FileKeyring, error) {
	k := &FileKeyring{path: path}
	if err := k.Reload(); err != nil {
		return nil, err
	}
	return k, nil
}

// Reload re-reads the keyring file. On error the previous keys are kept.
func (k *FileKeyring) Reload() error {
	data, err := os.ReadFile(k.path)
	if err != nil {
		return fmt.Errorf("read keyring: %w", err)
	}

	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse keyring: %w", err)
	}

	keys := make(map[int64][]solana.PrivateKey, len(raw))
	for user, secrets := range raw {
		userID, err := strconv.ParseInt(user, 10, 64)
		if err != nil {
			return fmt.Errorf("keyring user %q: %w", user, err)
		}
		for i, secret := range secrets {
			pk, err := solana.PrivateKeyFromBase58(secret)
			if err != nil {
				// Never include the secret in the error.
				return fmt.Errorf("keyring user %d key %d: invalid base58 secret", userID, i)
			}
			if len(pk) != 64 {
				return fmt.Errorf("keyring user %d key %d: expected 64 byte secret, got %d", userID, i, len(pk))
			}
			keys[userID] = append(keys[userID], pk)
		}
	}

	k.mu.Lock()
	k.keys = keys
	k.mu.Unlock()
	return nil
}

// Wallets returns the keys of userID.
func (k *FileKeyring) Wallets(_ context.Context, userID int64) ([]solana.PrivateKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	keys := k.keys[userID]
	if len(keys) == 0 {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNoWallet)
	}
	out := make([]solana.PrivateKey, len(keys))
	copy(out, keys)
	return out, nil
}

var (
	_ Provider = Static(nil)
	_ Provider = (*FileKeyring)(nil)
)

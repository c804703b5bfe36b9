// Package policy derives the single-signature minting policy bound to the
// issuer's key. Policies are recomputed from the key hash, never persisted;
// a process-level cache avoids re-encoding on every mint.
package policy

import (
	"context"
	"log/slog"
	"sync"

	"certledger/internal/ledger/tx"
	dErrors "certledger/pkg/domain-errors"
)

// Policy is a derived minting policy.
type Policy struct {
	ID      string
	KeyHash tx.KeyHash
	Script  tx.NativeScript
}

// KeySource yields the key hash of the connected signer.
type KeySource interface {
	KeyHash(ctx context.Context) (tx.KeyHash, error)
}

// Manager caches policies per key hash for the life of the process.
type Manager struct {
	mu     sync.RWMutex
	cache  map[tx.KeyHash]Policy
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for derivation events.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates an empty policy manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		cache:  make(map[tx.KeyHash]Policy),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Derive returns the policy for keyHash. Identical key hashes always yield
// identical policies and policy ids.
func (m *Manager) Derive(keyHash tx.KeyHash) (Policy, error) {
	if keyHash.IsZero() {
		return Policy{}, dErrors.New(dErrors.CodeValidation, "key hash is required")
	}

	m.mu.RLock()
	p, ok := m.cache[keyHash]
	m.mu.RUnlock()
	if ok {
		return p, nil
	}

	script := tx.NewPubKeyScript(keyHash)
	id, err := script.PolicyID()
	if err != nil {
		return Policy{}, err
	}
	p = Policy{ID: id, KeyHash: keyHash, Script: script}

	m.mu.Lock()
	m.cache[keyHash] = p
	m.mu.Unlock()

	m.logger.Debug("minting policy derived", "policy_id", id, "key_hash", keyHash.Hex())
	return p, nil
}

// ForSigner derives the policy for the signer's current key. A signer that
// cannot report its key is classified as SignerUnavailable.
func (m *Manager) ForSigner(ctx context.Context, src KeySource) (Policy, error) {
	keyHash, err := src.KeyHash(ctx)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeWallet) {
			return Policy{}, err
		}
		return Policy{}, &dErrors.Error{
			Code:    dErrors.CodeWallet,
			Reason:  dErrors.ReasonSignerUnavailable,
			Message: "signer key unavailable",
			Err:     err,
		}
	}
	return m.Derive(keyHash)
}

// Lookup returns a cached policy by id.
func (m *Manager) Lookup(policyID string) (Policy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.cache {
		if p.ID == policyID {
			return p, true
		}
	}
	return Policy{}, false
}

// Reset clears the cache.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.cache = make(map[tx.KeyHash]Policy)
	m.mu.Unlock()
}

// Len reports the number of cached policies.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache)
}

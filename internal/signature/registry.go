// Package signature implements the signature verifier: cryptographic
// verification of a bundle's embedded signature against a trusted-issuer
// registry.
package signature

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ows4444/pluginforge/internal/trust"
)

// TrustedKey is one entry in the trusted-issuer registry: a public key PEM
// blob plus the trust level it confers and an optional expiry.
type TrustedKey struct {
	PublicKeyPEM string      `json:"publicKey"`
	TrustLevel   trust.Level `json:"-"`
	TrustLevelS  string      `json:"trustLevel"`
	ExpiresAt    *time.Time  `json:"expiresAt,omitempty"`
}

// Registry holds the trusted-issuer public keys, looked up by exact PEM
// equality.
type Registry struct {
	mu   sync.RWMutex
	keys []TrustedKey
}

// NewRegistry parses a JSON array of trusted keys (the TRUSTED_PLUGIN_KEYS
// environment variable's shape).
func NewRegistry(rawJSON string) (*Registry, error) {
	if rawJSON == "" {
		rawJSON = "[]"
	}
	var keys []TrustedKey
	if err := json.Unmarshal([]byte(rawJSON), &keys); err != nil {
		return nil, fmt.Errorf("signature: parse trusted keys: %w", err)
	}
	for i := range keys {
		level, ok := trust.ParseLevel(keys[i].TrustLevelS)
		if !ok {
			return nil, fmt.Errorf("signature: unknown trust level %q for trusted key", keys[i].TrustLevelS)
		}
		keys[i].TrustLevel = level
	}
	return &Registry{keys: keys}, nil
}

// Lookup finds a trusted key by exact PEM equality.
func (r *Registry) Lookup(pem string) (*TrustedKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.keys {
		if k.PublicKeyPEM == pem {
			kk := k
			return &kk, true
		}
	}
	return nil, false
}

// Add registers a trusted key at runtime (used by tests and admin tooling).
func (r *Registry) Add(key TrustedKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}

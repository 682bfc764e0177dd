// Package epoch implements the epoch registry (spec §4.1, component C1):
// the map from protocol tier to its signer key and link sentinel that lets
// the ledger recognize and validate epoch-upgrade blocks.
package epoch

import (
	"fmt"

	"github.com/tolelom/latticenode/core"
	"github.com/tolelom/latticenode/crypto"
)

// entry pairs one tier with its signer key and link sentinel.
type entry struct {
	tier     core.Tier
	signer   crypto.PublicKey
	sentinel core.Hash
}

// Registry maps each epoch tier to a signer public key and a fixed link
// sentinel (spec §4.1). It is built once at node startup from config and
// is otherwise read-only, so it needs no internal locking.
type Registry struct {
	byTier     map[core.Tier]entry
	bySentinel map[core.Hash]core.Tier
}

// NewRegistry builds an empty registry. Call Register for each supported
// tier above Epoch0 (Epoch0 blocks never carry an epoch sentinel).
func NewRegistry() *Registry {
	return &Registry{
		byTier:     make(map[core.Tier]entry),
		bySentinel: make(map[core.Hash]core.Tier),
	}
}

// Register associates tier with signer and sentinel. Registering the same
// tier twice overwrites the previous entry (used only during test setup).
func (r *Registry) Register(tier core.Tier, signer crypto.PublicKey, sentinel core.Hash) {
	r.byTier[tier] = entry{tier: tier, signer: signer, sentinel: sentinel}
	r.bySentinel[sentinel] = tier
}

// EpochOf returns the tier whose link sentinel equals link, if any.
func (r *Registry) EpochOf(link core.Hash) (core.Tier, bool) {
	t, ok := r.bySentinel[link]
	return t, ok
}

// Signer returns the designated signer key for tier.
func (r *Registry) Signer(tier core.Tier) (crypto.PublicKey, error) {
	e, ok := r.byTier[tier]
	if !ok {
		return nil, fmt.Errorf("epoch: no signer registered for %s", tier)
	}
	return e.signer, nil
}

// Sentinel returns the link sentinel for tier.
func (r *Registry) Sentinel(tier core.Tier) (core.Hash, error) {
	e, ok := r.byTier[tier]
	if !ok {
		return core.Hash{}, fmt.Errorf("epoch: no sentinel registered for %s", tier)
	}
	return e.sentinel, nil
}

// IsSequential reports whether moving an account from epoch "from" to
// epoch "to" is a single-step upgrade: to == from+1. Any larger jump is
// rejected by the ledger as BlockPosition (spec §9, scenario S8).
func (r *Registry) IsSequential(from, to core.Tier) bool {
	return to == from+1
}

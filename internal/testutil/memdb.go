// Package testutil provides in-memory test doubles shared across the
// module's test suites. Never import this in production code.
package testutil

import (
	"github.com/tolelom/latticenode/core"
	"github.com/tolelom/latticenode/crypto"
	"github.com/tolelom/latticenode/epoch"
	"github.com/tolelom/latticenode/repweight"
	"github.com/tolelom/latticenode/store"
)

// NewMemStore builds a fresh table-level Store backed by an in-memory KV,
// for use in package tests that need a real store.Store without a
// goleveldb file on disk.
func NewMemStore() *store.Store {
	return store.New(store.NewMemKV())
}

// GenesisEpochRegistry builds a minimal epoch.Registry with just Epoch0
// registered, sufficient for tests that don't exercise epoch upgrades.
func GenesisEpochRegistry(signer crypto.PublicKey) *epoch.Registry {
	r := epoch.NewRegistry()
	r.Register(core.Epoch0, signer, core.ZeroHash)
	return r
}

// NewWeightCache builds an empty rep-weight cache with no bootstrap
// fallback (bootstrapMaxBlocks=0 disables the bootstrap path entirely).
func NewWeightCache() *repweight.Cache {
	return repweight.New(0)
}

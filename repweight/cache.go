// Package repweight implements the representative-weight cache (spec §4.3,
// component C3): an in-memory map from representative account to voting
// weight, updated transactionally by the ledger and backed by a static
// bootstrap snapshot until the chain has grown past a configured height.
package repweight

import (
	"sync"

	"github.com/tolelom/latticenode/core"
)

// Cache holds live representative weights plus an optional bootstrap
// snapshot that serves reads until the ledger has processed enough blocks
// to trust the live figures (spec §4.3).
type Cache struct {
	mu               sync.RWMutex
	weights          map[core.Account]core.Amount
	bootstrap        map[core.Account]core.Amount
	bootstrapMaxBlks uint64
	blockCount       uint64
}

// New creates a cache. bootstrapMaxBlocks is the block_count threshold
// below which Weight() returns the bootstrap snapshot instead of the live
// map; pass 0 to disable bootstrap weights entirely.
func New(bootstrapMaxBlocks uint64) *Cache {
	return &Cache{
		weights:          make(map[core.Account]core.Amount),
		bootstrap:        make(map[core.Account]core.Amount),
		bootstrapMaxBlks: bootstrapMaxBlocks,
	}
}

// LoadBootstrapSnapshot installs a static snapshot of representative
// weights taken from a trusted source (e.g. a prior ledger sync), used in
// place of live weights while the chain is still short.
func (c *Cache) LoadBootstrapSnapshot(snapshot map[core.Account]core.Amount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bootstrap = make(map[core.Account]core.Amount, len(snapshot))
	for acct, w := range snapshot {
		c.bootstrap[acct] = w
	}
}

// SetBlockCount updates the ledger's current block_count, used to decide
// whether bootstrap weights are still in effect.
func (c *Cache) SetBlockCount(n uint64) {
	c.mu.Lock()
	c.blockCount = n
	c.mu.Unlock()
}

// usingBootstrapLocked reports whether reads should prefer the bootstrap
// snapshot. Callers hold c.mu.
func (c *Cache) usingBootstrapLocked() bool {
	return c.bootstrapMaxBlks > 0 && c.blockCount < c.bootstrapMaxBlks
}

// Weight returns the voting weight for rep: the bootstrap figure while the
// chain is short, the live figure otherwise.
func (c *Cache) Weight(rep core.Account) core.Amount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.usingBootstrapLocked() {
		if w, ok := c.bootstrap[rep]; ok {
			return w
		}
		return core.ZeroAmount()
	}
	if w, ok := c.weights[rep]; ok {
		return w
	}
	return core.ZeroAmount()
}

// Add increases rep's live weight by delta. Call within the same ledger
// transaction that wrote the causing block.
func (c *Cache) Add(rep core.Account, delta core.Amount) {
	if rep.IsZero() || delta.IsZero() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.weights[rep] = c.weights[rep].Add(delta)
}

// Sub decreases rep's live weight by delta.
func (c *Cache) Sub(rep core.Account, delta core.Amount) {
	if rep.IsZero() || delta.IsZero() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.weights[rep] = c.weights[rep].Sub(delta)
}

// Move atomically decreases oldRep and increases newRep by amount, the
// "dual update" the ledger performs on a send/receive/change that shifts
// an account's representative or balance (spec §4.3).
func (c *Cache) Move(oldRep, newRep core.Account, amount core.Amount) {
	if amount.IsZero() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !oldRep.IsZero() {
		c.weights[oldRep] = c.weights[oldRep].Sub(amount)
	}
	if !newRep.IsZero() {
		c.weights[newRep] = c.weights[newRep].Add(amount)
	}
}

// Total returns the sum of all live representative weights, used as the
// denominator basis for online-weight trending.
func (c *Cache) Total() core.Amount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := core.ZeroAmount()
	for _, w := range c.weights {
		total = total.Add(w)
	}
	return total
}

// Snapshot returns a copy of the live weight map, for persistence or
// diagnostics.
func (c *Cache) Snapshot() map[core.Account]core.Amount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[core.Account]core.Amount, len(c.weights))
	for acct, w := range c.weights {
		out[acct] = w
	}
	return out
}

package vote

import (
	"sync"

	"github.com/tolelom/latticenode/core"
)

// maxInactiveCacheSize bounds the cache; oldest-by-arrival entries are
// evicted first (spec §4.5: "bounded FIFO eviction by arrival").
const maxInactiveCacheSize = 16_384

// Status is the derived state of one cached hash's vote tally.
type Status struct {
	Tally            core.Amount
	Confirmed        bool
	ElectionStarted  bool
	BootstrapStarted bool
}

// VoterEntry is one voter's cached vote on an inactive hash: the account
// that voted, its voting weight at cast time, and the vote's timestamp.
type VoterEntry struct {
	Voter     core.Account
	Weight    core.Amount
	Timestamp uint64
}

type inactiveEntry struct {
	hash   core.Hash
	voters map[core.Account]VoterEntry
	status Status
}

// Thresholds bundles the tunables used to derive Status from a tally
// (spec §4.5, §6.4).
type Thresholds struct {
	QuorumDelta            func() core.Amount
	MinVoterCount          int
	HintedWeightFraction   func() core.Amount // tally threshold for election_started
	BootstrapTallyThreshold core.Amount
}

// InactiveCache buffers votes for hashes the ledger does not yet carry an
// election for (spec §4.5).
type InactiveCache struct {
	mu         sync.Mutex
	thresholds Thresholds
	byHash     map[core.Hash]*inactiveEntry
	order      []core.Hash

	// OnElectionStarted/OnBootstrapStarted fire once per hash, the instant
	// Status crosses the respective threshold (spec §4.5 "transition to
	// ... triggers").
	OnElectionStarted  func(hash core.Hash)
	OnBootstrapStarted func(hash core.Hash)
}

// NewInactiveCache builds an empty cache using t to derive status.
func NewInactiveCache(t Thresholds) *InactiveCache {
	return &InactiveCache{thresholds: t, byHash: make(map[core.Hash]*inactiveEntry)}
}

// Add records that voter (with voting weight) voted for hash at
// timestamp, recomputing and returning the hash's updated status.
func (c *InactiveCache) Add(hash core.Hash, voter core.Account, weight core.Amount, timestamp uint64) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.byHash[hash]
	if !ok {
		e = &inactiveEntry{hash: hash, voters: make(map[core.Account]VoterEntry)}
		c.byHash[hash] = e
		c.order = append(c.order, hash)
		c.evictLocked()
	}
	if prior, exists := e.voters[voter]; !exists || timestamp > prior.Timestamp {
		e.voters[voter] = VoterEntry{Voter: voter, Weight: weight, Timestamp: timestamp}
	}

	wasStarted := e.status.ElectionStarted
	wasBootstrap := e.status.BootstrapStarted
	e.status = c.computeStatusLocked(e)

	if !wasStarted && e.status.ElectionStarted && c.OnElectionStarted != nil {
		c.OnElectionStarted(hash)
	}
	if !wasBootstrap && e.status.BootstrapStarted && c.OnBootstrapStarted != nil {
		c.OnBootstrapStarted(hash)
	}
	return e.status
}

func (c *InactiveCache) computeStatusLocked(e *inactiveEntry) Status {
	tally := core.ZeroAmount()
	for _, v := range e.voters {
		tally = tally.Add(v.Weight)
	}
	delta := c.thresholds.QuorumDelta()
	hinted := c.thresholds.HintedWeightFraction()
	return Status{
		Tally:            tally,
		Confirmed:        tally.GreaterOrEqual(delta),
		ElectionStarted:  len(e.voters) >= c.thresholds.MinVoterCount && tally.GreaterOrEqual(hinted),
		BootstrapStarted: tally.GreaterOrEqual(c.thresholds.BootstrapTallyThreshold),
	}
}

// Status returns the current status for hash, if cached.
func (c *InactiveCache) Status(hash core.Hash) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byHash[hash]
	if !ok {
		return Status{}, false
	}
	return e.status, true
}

// Voters returns the voters cached for hash along with each voter's cached
// timestamp, for replay into a freshly created election (spec §4.7 insert:
// "any cached inactive votes are replayed into the election").
func (c *InactiveCache) Voters(hash core.Hash) []VoterEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byHash[hash]
	if !ok {
		return nil
	}
	out := make([]VoterEntry, 0, len(e.voters))
	for _, v := range e.voters {
		out = append(out, v)
	}
	return out
}

// Remove drops a hash, called once its election has been created.
func (c *InactiveCache) Remove(hash core.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byHash, hash)
	for i, h := range c.order {
		if h == hash {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *InactiveCache) evictLocked() {
	for len(c.order) > maxInactiveCacheSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.byHash, oldest)
	}
}

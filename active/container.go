// Package active implements the active-elections container (spec §4.7,
// component C7): the indexed collection of in-flight elections, the
// recently-confirmed/recently-cemented FIFOs, and the scheduling loop
// that drives each election's transition_time.
package active

import (
	"sync"
	"time"

	"github.com/tolelom/latticenode/core"
	"github.com/tolelom/latticenode/election"
	"github.com/tolelom/latticenode/ledger"
	"github.com/tolelom/latticenode/repweight"
	"github.com/tolelom/latticenode/vote"
)

// confirmedRoot is one entry of the recently_confirmed FIFO.
type confirmedRoot struct {
	root   core.Hash
	winner core.Hash
}

// Config bundles the tunables that shape the container (spec §6.4).
type Config struct {
	ActiveElectionsSize    int
	ConfirmationHistSize   int
	RecentlyConfirmedSize  int
	NormalTTL              time.Duration
	OptimisticTTL          time.Duration
	QuorumDelta            func() core.Amount
	EnableVoting           bool
	OwnRepresentative      core.Account
}

// CementCallback is invoked once per confirmed election, after it has
// been recorded in recently_cemented (spec §4.7 "block-cemented callback").
type CementCallback func(status election.Status, winner *core.Block)

// Container is the single process-wide collection of active elections.
type Container struct {
	mu sync.Mutex

	cfg     Config
	weights *repweight.Cache

	byRoot      map[core.Hash]*election.Election
	byCandidate map[core.Hash]*election.Election
	order       []core.Hash // root insertion order

	recentlyConfirmed []confirmedRoot
	recentlyCemented  []election.Status
	cemented          map[core.Hash]bool // roots whose cement callback already fired

	onCement CementCallback
}

// New builds an empty container.
func New(cfg Config, weights *repweight.Cache, onCement CementCallback) *Container {
	return &Container{
		cfg:         cfg,
		weights:     weights,
		byRoot:      make(map[core.Hash]*election.Election),
		byCandidate: make(map[core.Hash]*election.Election),
		cemented:    make(map[core.Hash]bool),
		onCement:    onCement,
	}
}

// Insert creates a new election for block's root, unless one already
// exists or the root was just confirmed (spec §4.7 insert).
func (c *Container) Insert(blk *core.Block, behavior election.Behavior, inactive *vote.InactiveCache) (inserted bool, el *election.Election) {
	c.mu.Lock()
	defer c.mu.Unlock()

	root := blk.RootHash()
	if _, exists := c.byRoot[root]; exists {
		return false, c.byRoot[root]
	}
	if c.wasRecentlyConfirmedLocked(root, blk.Hash()) {
		return false, nil
	}

	ttl := c.cfg.NormalTTL
	if behavior == election.OptimisticBehavior {
		ttl = c.cfg.OptimisticTTL
	}
	el = election.New(blk, behavior, c.weights, c.cfg.QuorumDelta, ttl, nil)
	if c.cfg.EnableVoting {
		el.EnableVoting(c.cfg.OwnRepresentative)
	}

	c.byRoot[root] = el
	c.byCandidate[blk.Hash()] = el
	c.order = append(c.order, root)

	if inactive != nil {
		for _, voter := range inactive.Voters(blk.Hash()) {
			el.Vote(voter.Voter, voter.Timestamp, blk.Hash())
		}
		inactive.Remove(blk.Hash())
	}

	if len(c.order) > c.cfg.ActiveElectionsSize && c.cfg.ActiveElectionsSize > 0 {
		c.eraseOldestLocked()
	}
	return true, el
}

// Publish routes a competing block to the election already holding its
// root, if any (spec §4.7 publish).
func (c *Container) Publish(blk *core.Block) (conflict bool, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.byRoot[blk.RootHash()]
	if !ok {
		return false, false
	}
	conflict = el.Publish(blk)
	c.byCandidate[blk.Hash()] = el
	return conflict, true
}

// VoteForHash implements vote.ElectionRouter, routing a vote to the
// election currently holding a candidate block with that hash.
func (c *Container) VoteForHash(voter core.Account, timestamp uint64, hash core.Hash) (vote.Code, bool) {
	c.mu.Lock()
	el, ok := c.byCandidate[hash]
	c.mu.Unlock()
	if !ok {
		return vote.Indeterminate, false
	}
	processed, replay := el.Vote(voter, timestamp, hash)
	switch {
	case replay:
		return vote.Replay, true
	case processed:
		return vote.Vote, true
	default:
		return vote.Indeterminate, true
	}
}

// RecentlyConfirmed implements vote.ElectionRouter.
func (c *Container) RecentlyConfirmed(hash core.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rc := range c.recentlyConfirmed {
		if rc.winner == hash {
			return true
		}
	}
	return false
}

func (c *Container) wasRecentlyConfirmedLocked(root, candidate core.Hash) bool {
	for _, rc := range c.recentlyConfirmed {
		if rc.root == root && rc.winner == candidate {
			return true
		}
	}
	return false
}

// Erase removes an election and all its candidate blocks from the
// indexes. Unconfirmed elections are dropped from the publish
// deduplication filter entirely; confirmed winners are retained via
// recently_confirmed (spec §4.7 erase).
func (c *Container) Erase(root core.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eraseLocked(root)
}

func (c *Container) eraseLocked(root core.Hash) {
	el, ok := c.byRoot[root]
	if !ok {
		return
	}
	delete(c.byRoot, root)
	delete(c.cemented, root)
	for h, e := range c.byCandidate {
		if e == el {
			delete(c.byCandidate, h)
		}
	}
	for i, r := range c.order {
		if r == root {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// eraseOldestLocked drops the longest-resident election once capacity is
// exceeded (spec §4.7 erase_oldest).
func (c *Container) eraseOldestLocked() {
	if len(c.order) == 0 {
		return
	}
	c.eraseLocked(c.order[0])
}

// ListActive returns up to max elections, ordered by insertion.
func (c *Container) ListActive(max int) []*election.Election {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.order)
	if max > 0 && max < n {
		n = max
	}
	out := make([]*election.Election, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, c.byRoot[c.order[i]])
	}
	return out
}

// Vacancy reports how many more elections the container can admit.
func (c *Container) Vacancy() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.ActiveElectionsSize <= 0 {
		return 1 << 30
	}
	return c.cfg.ActiveElectionsSize - len(c.order)
}

// Tick runs one scheduling-loop iteration: transition every active
// election, remove the ones that finished, and record cementation
// (spec §4.7 scheduling loop).
func (c *Container) Tick(sol election.Solicitor) {
	for _, el := range c.ListActive(0) {
		remove := el.TransitionTime(sol)
		if el.State() == election.Confirmed {
			root := el.Root
			c.mu.Lock()
			alreadyCemented := c.cemented[root]
			if !alreadyCemented {
				c.cemented[root] = true
			}
			c.mu.Unlock()
			if !alreadyCemented {
				status := el.Status()
				c.mu.Lock()
				c.recentlyConfirmed = append(c.recentlyConfirmed, confirmedRoot{root: root, winner: status.Winner})
				if c.cfg.RecentlyConfirmedSize > 0 {
					for len(c.recentlyConfirmed) > c.cfg.RecentlyConfirmedSize {
						c.recentlyConfirmed = c.recentlyConfirmed[1:]
					}
				}
				c.recentlyCemented = append(c.recentlyCemented, status)
				if c.cfg.ConfirmationHistSize > 0 {
					for len(c.recentlyCemented) > c.cfg.ConfirmationHistSize {
						c.recentlyCemented = c.recentlyCemented[1:]
					}
				}
				c.mu.Unlock()
				if c.onCement != nil {
					c.onCement(status, el.Winner())
				}
			}
		}
		if remove {
			c.Erase(el.Root)
		}
	}
}

// RecentlyCemented returns a snapshot of the confirmation history.
func (c *Container) RecentlyCemented() []election.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]election.Status, len(c.recentlyCemented))
	copy(out, c.recentlyCemented)
	return out
}

// ActivateNext is the confirmation-height cemented callback's follow-up
// (spec §4.7 "activate (a) the cemented account's next unconfirmed block
// and (b) the destination account for send blocks"). For the given
// account it starts a normal election for the block right after the
// confirmation-height frontier; callers invoke it once per account.
func (c *Container) ActivateNext(l *ledger.Processor, account core.Account, inactive *vote.InactiveCache) {
	info, err := l.AccountInfo(account)
	if err != nil {
		return
	}
	confHeight, err := l.BlockConfirmed(info.Head)
	if err == nil && confHeight {
		return
	}
	nextHash, err := l.ConfirmationSuccessor(account)
	if err != nil || nextHash.IsZero() {
		return
	}
	head, err := l.GetBlock(nextHash)
	if err != nil {
		return
	}
	c.Insert(head, election.NormalBehavior, inactive)
}

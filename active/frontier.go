package active

import (
	"sort"
	"sync"

	"github.com/tolelom/latticenode/core"
	"github.com/tolelom/latticenode/election"
	"github.com/tolelom/latticenode/ledger"
	"github.com/tolelom/latticenode/vote"
)

// FrontierScheduler periodically starts optimistic elections for the
// accounts with the most uncemented blocks, and retries expired
// optimistic elections pessimistically one block at a time (spec §4.7
// frontier-confirmation loop).
type FrontierScheduler struct {
	mu sync.Mutex

	ledger    *ledger.Processor
	container *Container
	inactive  *vote.InactiveCache

	// MaxOptimisticCapped caps how many optimistic elections one pass
	// inserts: unlimited below the bootstrap barrier, this many (50 by
	// default, 0 for no cap) above it. The cementedCount/bootstrapMaxBlocks
	// comparison is supplied by the caller via Prioritize's
	// belowBootstrapBarrier argument since FrontierScheduler has no
	// direct view of the rep-weight cache's bootstrap state.
	MaxOptimisticCapped int

	expiredOptimistic map[core.Account]core.Hash // accounts awaiting a pessimistic retry; the value is unused (always the zero hash)
}

// NewFrontierScheduler builds a scheduler over l, inserting elections
// into container.
func NewFrontierScheduler(l *ledger.Processor, container *Container, inactive *vote.InactiveCache) *FrontierScheduler {
	return &FrontierScheduler{
		ledger:              l,
		container:           container,
		inactive:            inactive,
		MaxOptimisticCapped: 50,
		expiredOptimistic:   make(map[core.Account]core.Hash),
	}
}

// Prioritize ranks candidates by uncemented count (descending) and
// inserts optimistic elections for their heads, up to the cap.
func (f *FrontierScheduler) Prioritize(candidates []core.Account, belowBootstrapBarrier bool) int {
	type ranked struct {
		account    core.Account
		uncemented uint64
	}
	var list []ranked
	for _, acct := range candidates {
		info, err := f.ledger.AccountInfo(acct)
		if err != nil || info == nil {
			continue
		}
		confHeight, err := f.ledger.ConfirmationHeight(acct)
		if err != nil {
			continue
		}
		uncemented := info.BlockCount - confHeight
		if uncemented == 0 {
			continue
		}
		list = append(list, ranked{account: acct, uncemented: uncemented})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].uncemented > list[j].uncemented })

	limit := len(list)
	if !belowBootstrapBarrier && f.MaxOptimisticCapped > 0 && f.MaxOptimisticCapped < limit {
		limit = f.MaxOptimisticCapped
	}

	started := 0
	for i := 0; i < limit; i++ {
		info, err := f.ledger.AccountInfo(list[i].account)
		if err != nil || info == nil {
			continue
		}
		head, err := f.ledger.GetBlock(info.Head)
		if err != nil {
			continue
		}
		if inserted, _ := f.container.Insert(head, election.OptimisticBehavior, f.inactive); inserted {
			started++
		}
	}
	return started
}

// MarkExpiredOptimistic records that account's optimistic election timed
// out without confirming, so RetryExpired can resume pessimistically
// starting at the successor of its confirmation height.
func (f *FrontierScheduler) MarkExpiredOptimistic(account core.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expiredOptimistic[account] = core.ZeroHash
}

// RetryExpired revisits accounts whose optimistic election expired,
// advancing one confirmed block at a time once dependents are confirmed
// (spec §4.7: "for each expired account, start at confirmation-height's
// successor only if dependents_confirmed, advancing one block per
// cementation").
func (f *FrontierScheduler) RetryExpired() {
	f.mu.Lock()
	accounts := make([]core.Account, 0, len(f.expiredOptimistic))
	for a := range f.expiredOptimistic {
		accounts = append(accounts, a)
	}
	f.mu.Unlock()

	for _, acct := range accounts {
		info, err := f.ledger.AccountInfo(acct)
		if err != nil || info == nil {
			continue
		}
		confHeight, err := f.ledger.ConfirmationHeight(acct)
		if err != nil {
			continue
		}
		if confHeight >= info.BlockCount {
			f.mu.Lock()
			delete(f.expiredOptimistic, acct)
			f.mu.Unlock()
			continue
		}
		successor, err := f.ledger.ConfirmationSuccessor(acct)
		if err != nil || successor.IsZero() {
			continue
		}
		next, err := f.ledger.GetBlock(successor)
		if err != nil {
			continue
		}
		ok, err := f.ledger.DependentsConfirmed(next)
		if err != nil || !ok {
			continue
		}
		// The account stays marked until its confirmation height reaches
		// the head, so each later call inserts the next block.
		f.container.Insert(next, election.NormalBehavior, f.inactive)
	}
}

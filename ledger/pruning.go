package ledger

import "github.com/tolelom/latticenode/core"

// PruningAction walks the previous chain from hash, deleting block bodies
// and recording each as pruned. Every write goes straight to the store:
// batchSize only paces an internal counter, and no separate commit is
// issued per batch. It never prunes the latest block of an account, and
// it preserves pending
// lookups through pruned sources because pending entries always carry
// source_account independently of the block body (spec §4.4).
func (p *Processor) PruningAction(hash core.Hash, batchSize int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pruned := 0
	cur := hash
	sinceCommit := 0
	for !cur.IsZero() {
		// Check IsPruned before GetBlock: once a block is pruned its body
		// (and so its Previous) is gone, so the walk stops there rather
		// than fail the lookup. Re-running over an overlapping range thus
		// returns without error; blocks older than that hash which an
		// interrupted earlier run did not reach are left unpruned.
		already, err := p.store.IsPruned(cur)
		if err != nil {
			return pruned, err
		}
		if already {
			break
		}
		blk, err := p.store.GetBlock(cur)
		if err != nil {
			return pruned, err
		}
		info, err := p.store.GetAccount(blk.Sideband.Account)
		if err != nil {
			return pruned, err
		}
		if info.Head == cur {
			// Never prune the latest block of an account (spec §4.4).
			break
		}
		if err := p.store.PutPruned(cur); err != nil {
			return pruned, err
		}
		if err := p.store.DeleteBlock(cur); err != nil {
			return pruned, err
		}
		pruned++
		sinceCommit++
		cur = blk.Previous
		if sinceCommit >= batchSize {
			sinceCommit = 0
		}
	}
	return pruned, nil
}

// BalanceSafe is Balance, but returns an error instead of a stale result
// when the block has been pruned out from under the query (spec §4.4:
// "balance/account queries through pruned blocks return error").
func (p *Processor) BalanceSafe(hash core.Hash) (core.Amount, error) {
	pruned, err := p.store.IsPruned(hash)
	if err != nil {
		return core.Amount{}, err
	}
	if pruned {
		return core.Amount{}, core.ErrNotFound
	}
	return p.Balance(hash)
}

// AmountSafe is Amount, but returns an error when hash or its predecessor
// has been pruned.
func (p *Processor) AmountSafe(hash core.Hash) (core.Amount, error) {
	pruned, err := p.store.IsPruned(hash)
	if err != nil {
		return core.Amount{}, err
	}
	if pruned {
		return core.Amount{}, core.ErrNotFound
	}
	return p.Amount(hash)
}

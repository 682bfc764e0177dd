package ledger

import "github.com/tolelom/latticenode/core"

// Balance returns the resulting balance of the account owning hash.
func (p *Processor) Balance(hash core.Hash) (core.Amount, error) {
	blk, err := p.store.GetBlock(hash)
	if err != nil {
		return core.Amount{}, err
	}
	return blk.Sideband.Balance, nil
}

// Amount returns the value transferred by hash: for a send, the decrease
// in balance; for a receive/open, the increase. Change/epoch blocks
// transfer nothing.
func (p *Processor) Amount(hash core.Hash) (core.Amount, error) {
	blk, err := p.store.GetBlock(hash)
	if err != nil {
		return core.Amount{}, err
	}
	prev := core.ZeroAmount()
	if !blk.Previous.IsZero() {
		predBlk, err := p.store.GetBlock(blk.Previous)
		if err != nil {
			return core.Amount{}, err
		}
		prev = predBlk.Sideband.Balance
	}
	switch {
	case blk.Sideband.Details.IsSend:
		return prev.Sub(blk.Sideband.Balance), nil
	case blk.Sideband.Details.IsReceive:
		return blk.Sideband.Balance.Sub(prev), nil
	default:
		return core.ZeroAmount(), nil
	}
}

// Account returns the account owning hash.
func (p *Processor) Account(hash core.Hash) (core.Account, error) {
	blk, err := p.store.GetBlock(hash)
	if err != nil {
		return core.ZeroAccount, err
	}
	return blk.Sideband.Account, nil
}

// Latest returns the current head hash of account, or the zero hash if
// the account has never been opened.
func (p *Processor) Latest(account core.Account) (core.Hash, error) {
	info, err := p.loadAccountOptional(account)
	if err != nil {
		return core.ZeroHash, err
	}
	if info == nil {
		return core.ZeroHash, nil
	}
	return info.Head, nil
}

// Pending returns the pending entry credited to account for hash, or
// core.ErrNotFound if none exists (already received or never sent).
func (p *Processor) Pending(account core.Account, hash core.Hash) (*core.PendingEntry, error) {
	return p.store.GetPending(core.PendingKey{Account: account, Hash: hash})
}

// GetBlock retrieves a stored block with its sideband attached.
func (p *Processor) GetBlock(hash core.Hash) (*core.Block, error) {
	return p.store.GetBlock(hash)
}

// AccountInfo returns the full account record, or nil if unopened.
func (p *Processor) AccountInfo(account core.Account) (*core.AccountInfo, error) {
	return p.loadAccountOptional(account)
}

// BlockConfirmed reports whether hash is at or below its account's
// recorded confirmation height.
func (p *Processor) BlockConfirmed(hash core.Hash) (bool, error) {
	blk, err := p.store.GetBlock(hash)
	if err != nil {
		return false, err
	}
	confInfo, err := p.store.GetConfirmationHeight(blk.Sideband.Account)
	if err != nil {
		return false, err
	}
	return blk.Sideband.Height <= confInfo.Height, nil
}

// ConfirmationHeight returns account's last confirmed block height, or 0
// if it has never had a confirmed block.
func (p *Processor) ConfirmationHeight(account core.Account) (uint64, error) {
	info, err := p.store.GetConfirmationHeight(account)
	if err != nil {
		return 0, err
	}
	return info.Height, nil
}

// ConfirmationSuccessor returns the hash of the block immediately after
// account's confirmed frontier, or the zero hash if nothing uncemented
// follows it yet (spec §4.7: "start at confirmation-height's successor").
func (p *Processor) ConfirmationSuccessor(account core.Account) (core.Hash, error) {
	confInfo, err := p.store.GetConfirmationHeight(account)
	if err != nil {
		return core.ZeroHash, err
	}
	if confInfo.Frontier.IsZero() {
		open, err := p.loadAccountOptional(account)
		if err != nil || open == nil {
			return core.ZeroHash, err
		}
		return open.OpenBlock, nil
	}
	frontierBlk, err := p.store.GetBlock(confInfo.Frontier)
	if err != nil {
		return core.ZeroHash, err
	}
	return frontierBlk.Sideband.Successor, nil
}

// DependentsConfirmed reports whether every block blk depends on (its
// previous, and for a receive the send it consumes) is confirmed. Active
// elections use this to decide whether a pessimistic retry may start at
// this block (spec §6, frontier-confirmation loop).
func (p *Processor) DependentsConfirmed(blk *core.Block) (bool, error) {
	if !blk.Previous.IsZero() {
		ok, err := p.BlockConfirmed(blk.Previous)
		if err != nil || !ok {
			return false, err
		}
	}
	if blk.Sideband.Details.IsReceive {
		source := blk.Source
		if blk.Type == core.State {
			source = blk.Link
		}
		ok, err := p.BlockConfirmed(source)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// FindReceiveBlockBySendHash is the exported query helper (spec §4.4).
func (p *Processor) FindReceiveBlockBySendHash(dest core.Account, sendHash core.Hash) (*core.Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.findReceiveBlockBySendHash(dest, sendHash)
}

// ConfirmBlock advances account's confirmation height to hash, called by
// the election/active layer once quorum confirms a block (spec §6).
func (p *Processor) ConfirmBlock(hash core.Hash) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	blk, err := p.store.GetBlock(hash)
	if err != nil {
		return err
	}
	return p.store.PutConfirmationHeight(blk.Sideband.Account, &core.ConfirmationHeightInfo{
		Height:   blk.Sideband.Height,
		Frontier: hash,
	})
}

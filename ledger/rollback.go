package ledger

import (
	"fmt"

	"github.com/tolelom/latticenode/core"
)

// Rollback unwinds account chain(s) from their current head down to and
// including hash, refusing to cross confirmation height (spec §4.4). A
// send that has already been received is undone by first recursively
// rolling back the receiving block.
func (p *Processor) Rollback(hash core.Hash) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rollbackTo(hash)
}

func (p *Processor) rollbackTo(hash core.Hash) error {
	target, err := p.store.GetBlock(hash)
	if err != nil {
		return err
	}
	account := target.Sideband.Account

	confInfo, err := p.store.GetConfirmationHeight(account)
	if err != nil {
		return err
	}
	if target.Sideband.Height <= confInfo.Height {
		return core.ErrConfirmationHeight
	}

	for {
		info, err := p.store.GetAccount(account)
		if err != nil {
			return err
		}
		head := info.Head
		headBlk, err := p.store.GetBlock(head)
		if err != nil {
			return err
		}
		if err := p.rollbackOne(headBlk); err != nil {
			return err
		}
		if head == hash {
			return nil
		}
	}
}

// rollbackOne undoes a single block, which must currently be its
// account's head.
func (p *Processor) rollbackOne(blk *core.Block) error {
	account := blk.Sideband.Account
	info, err := p.store.GetAccount(account)
	if err != nil {
		return err
	}
	if info.Head != blk.Hash() {
		return &core.ErrInvariant{Name: "rollback_not_head", Detail: blk.Hash().String()}
	}

	if blk.Sideband.Details.IsSend {
		if err := p.undoSend(blk); err != nil {
			return err
		}
	}
	if blk.Sideband.Details.IsReceive {
		if err := p.undoReceive(blk); err != nil {
			return err
		}
	}

	prevHash := blk.Previous
	prevBalance := core.ZeroAmount()
	prevRep := core.ZeroAccount
	prevEpoch := core.Epoch0
	var prevOpenBlock core.Hash
	if !prevHash.IsZero() {
		prevBlk, err := p.store.GetBlock(prevHash)
		if err != nil {
			return err
		}
		prevBalance = prevBlk.Sideband.Balance
		prevRep = prevBlk.Sideband.Representative
		prevEpoch = prevBlk.Sideband.Details.Epoch
		prevOpenBlock = info.OpenBlock
		if err := p.store.ClearSuccessor(prevHash); err != nil {
			return err
		}
	}

	if blk.Type != core.State {
		if err := p.store.DeleteFrontier(blk.Hash()); err != nil {
			return err
		}
		if !prevHash.IsZero() {
			if err := p.store.PutFrontier(prevHash, account); err != nil {
				return err
			}
		}
	}

	p.weights.Sub(blk.Sideband.Representative, blk.Sideband.Balance)
	if !prevHash.IsZero() {
		p.weights.Add(prevRep, prevBalance)
	}

	if err := p.store.DeleteBlock(blk.Hash()); err != nil {
		return err
	}

	if prevHash.IsZero() {
		return p.store.DeleteAccount(account)
	}
	newInfo := &core.AccountInfo{
		Head:           prevHash,
		Representative: prevRep,
		OpenBlock:      prevOpenBlock,
		Balance:        prevBalance,
		ModifiedTS:     blk.Sideband.Timestamp,
		BlockCount:     blk.Sideband.Height - 1,
		Epoch:          prevEpoch,
	}
	return p.store.PutAccount(account, newInfo)
}

// undoSend removes the pending entry a send created. If it has already
// been received, the receiving block is rolled back first so the pending
// entry exists again before being removed here.
func (p *Processor) undoSend(blk *core.Block) error {
	dest, key, err := p.sendPendingKey(blk)
	if err != nil {
		return err
	}
	_, err = p.store.GetPending(key)
	if err != nil {
		if err != core.ErrNotFound {
			return err
		}
		recv, err := p.findReceiveBlockBySendHash(dest, blk.Hash())
		if err != nil {
			return err
		}
		if recv == nil {
			return &core.ErrInvariant{Name: "send_pending_missing", Detail: blk.Hash().String()}
		}
		if err := p.rollbackTo(recv.Hash()); err != nil {
			return err
		}
	}
	return p.store.DeletePending(key)
}

// undoReceive restores the pending entry a receive consumed.
func (p *Processor) undoReceive(blk *core.Block) error {
	sourceHash := blk.Source
	if blk.Type == core.State {
		sourceHash = blk.Link
	}
	sendBlk, err := p.store.GetBlock(sourceHash)
	if err != nil {
		return err
	}
	amount := sendBlk.Sideband.Balance
	// amount credited is resolved from the delta recorded when the send was
	// applied: prior balance minus send's resulting balance. Predecessor
	// lookup mirrors the one performed when the send itself was processed.
	if !sendBlk.Previous.IsZero() {
		predBlk, err := p.store.GetBlock(sendBlk.Previous)
		if err != nil {
			return err
		}
		amount = predBlk.Sideband.Balance.Sub(sendBlk.Sideband.Balance)
	}
	return p.store.PutPending(core.PendingKey{Account: blk.Sideband.Account, Hash: sourceHash}, &core.PendingEntry{
		Amount:        amount,
		SourceAccount: sendBlk.Sideband.Account,
		Epoch:         blk.Sideband.SourceEpoch,
	})
}

func (p *Processor) sendPendingKey(blk *core.Block) (core.Account, core.PendingKey, error) {
	var dest core.Account
	switch blk.Type {
	case core.State:
		dest = core.Account(blk.Link)
	case core.Send:
		dest = blk.Destination
	default:
		return dest, core.PendingKey{}, fmt.Errorf("ledger: %s is not a send variant", blk.Type)
	}
	return dest, core.PendingKey{Account: dest, Hash: blk.Hash()}, nil
}

// findReceiveBlockBySendHash walks dest's chain looking for the block that
// consumed sendHash (spec §4.4 query helper).
func (p *Processor) findReceiveBlockBySendHash(dest core.Account, sendHash core.Hash) (*core.Block, error) {
	info, err := p.loadAccountOptional(dest)
	if err != nil || info == nil {
		return nil, err
	}
	cur := info.Head
	for !cur.IsZero() {
		blk, err := p.store.GetBlock(cur)
		if err != nil {
			return nil, err
		}
		var src core.Hash
		switch blk.Type {
		case core.State:
			src = blk.Link
		case core.Receive, core.Open:
			src = blk.Source
		}
		if src == sendHash {
			return blk, nil
		}
		cur = blk.Previous
	}
	return nil, nil
}

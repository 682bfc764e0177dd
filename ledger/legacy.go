package ledger

import "github.com/tolelom/latticenode/core"

// legacyDetails returns the block details (and so, via ThresholdFor, the
// work threshold) for legacy variants, which carry no
// epoch/is_send/is_receive classification of their own — they
// are always Epoch0 and classified by variant instead of by balance delta.
func legacyDetails(isSend, isReceive bool) core.BlockDetails {
	return core.BlockDetails{Epoch: core.Epoch0, IsSend: isSend, IsReceive: isReceive}
}

// accountOfChain resolves the account a legacy chain belongs to by
// following previous to its stored sideband, which every processed block
// carries regardless of variant.
func (p *Processor) accountOfChain(previous core.Hash) (core.Account, *core.Block, error) {
	prevBlk, err := p.store.GetBlock(previous)
	if err != nil {
		return core.ZeroAccount, nil, err
	}
	return prevBlk.Sideband.Account, prevBlk, nil
}

// processLegacySend appends a send to an existing chain: balance
// decreases, destination receives a new pending entry.
func (p *Processor) processLegacySend(blk *core.Block) (core.ProcessResult, error) {
	if blk.Previous.IsZero() {
		return core.GapPrevious, nil
	}
	exists, err := p.store.BlockExists(blk.Previous)
	if err != nil {
		return 0, err
	}
	if !exists {
		return core.GapPrevious, nil
	}
	account, prevBlk, err := p.accountOfChain(blk.Previous)
	if err != nil {
		return 0, err
	}
	if prevBlk.Type == core.State {
		return core.BlockPosition, nil
	}
	info, err := p.loadAccountOptional(account)
	if err != nil {
		return 0, err
	}
	if info == nil || info.Head != blk.Previous {
		return core.Fork, nil
	}
	if !blk.Balance.LessThan(info.Balance) {
		return core.NegativeSpend, nil
	}
	if err := blk.VerifySignature(account.PublicKey()); err != nil {
		return core.BadSignature, nil
	}
	if res, err := p.verifyWork(blk, legacyDetails(true, false)); err != nil || res != core.Progress {
		return res, err
	}
	if blk.Destination.IsZero() {
		return core.OpenedBurnAccount, nil
	}

	amount := info.Balance.Sub(blk.Balance)
	if err := p.applyLegacy(blk, account, info, blk.Balance, info.Representative, true, false); err != nil {
		return 0, err
	}
	if err := p.store.PutPending(core.PendingKey{Account: blk.Destination, Hash: blk.Hash()}, &core.PendingEntry{
		Amount:        amount,
		SourceAccount: account,
		Epoch:         core.Epoch0,
	}); err != nil {
		return 0, err
	}
	return core.Progress, nil
}

// processLegacyReceive appends a receive to an existing chain, consuming
// the pending entry created by Source.
func (p *Processor) processLegacyReceive(blk *core.Block) (core.ProcessResult, error) {
	if blk.Previous.IsZero() {
		return core.GapPrevious, nil
	}
	exists, err := p.store.BlockExists(blk.Previous)
	if err != nil {
		return 0, err
	}
	if !exists {
		return core.GapPrevious, nil
	}
	account, prevBlk, err := p.accountOfChain(blk.Previous)
	if err != nil {
		return 0, err
	}
	if prevBlk.Type == core.State {
		return core.BlockPosition, nil
	}
	info, err := p.loadAccountOptional(account)
	if err != nil {
		return 0, err
	}
	if info == nil || info.Head != blk.Previous {
		return core.Fork, nil
	}
	if err := blk.VerifySignature(account.PublicKey()); err != nil {
		return core.BadSignature, nil
	}
	if res, err := p.verifyWork(blk, legacyDetails(false, true)); err != nil || res != core.Progress {
		return res, err
	}

	key := core.PendingKey{Account: account, Hash: blk.Source}
	entry, err := p.lookupPending(key)
	if err != nil {
		return 0, err
	}
	if entry == nil || entry.Epoch != core.Epoch0 {
		return core.Unreceivable, nil
	}

	newBalance := info.Balance.Add(entry.Amount)
	if err := p.applyLegacy(blk, account, info, newBalance, info.Representative, false, true); err != nil {
		return 0, err
	}
	if err := p.store.DeletePending(key); err != nil {
		return 0, err
	}
	return core.Progress, nil
}

// processLegacyOpen creates the first block of a new legacy chain.
func (p *Processor) processLegacyOpen(blk *core.Block) (core.ProcessResult, error) {
	if blk.Account.IsZero() {
		return core.OpenedBurnAccount, nil
	}
	info, err := p.loadAccountOptional(blk.Account)
	if err != nil {
		return 0, err
	}
	if info != nil {
		return core.Fork, nil
	}
	if err := blk.VerifySignature(blk.Account.PublicKey()); err != nil {
		return core.BadSignature, nil
	}
	if res, err := p.verifyWork(blk, legacyDetails(false, true)); err != nil || res != core.Progress {
		return res, err
	}

	key := core.PendingKey{Account: blk.Account, Hash: blk.Source}
	entry, err := p.lookupPending(key)
	if err != nil {
		return 0, err
	}
	if entry == nil || entry.Epoch != core.Epoch0 {
		return core.Unreceivable, nil
	}

	if err := p.applyLegacy(blk, blk.Account, nil, entry.Amount, blk.Representative, false, true); err != nil {
		return 0, err
	}
	if err := p.store.DeletePending(key); err != nil {
		return 0, err
	}
	return core.Progress, nil
}

// processLegacyChange appends a representative-change block; balance is
// unchanged.
func (p *Processor) processLegacyChange(blk *core.Block) (core.ProcessResult, error) {
	if blk.Previous.IsZero() {
		return core.GapPrevious, nil
	}
	exists, err := p.store.BlockExists(blk.Previous)
	if err != nil {
		return 0, err
	}
	if !exists {
		return core.GapPrevious, nil
	}
	account, prevBlk, err := p.accountOfChain(blk.Previous)
	if err != nil {
		return 0, err
	}
	if prevBlk.Type == core.State {
		return core.BlockPosition, nil
	}
	info, err := p.loadAccountOptional(account)
	if err != nil {
		return 0, err
	}
	if info == nil || info.Head != blk.Previous {
		return core.Fork, nil
	}
	if err := blk.VerifySignature(account.PublicKey()); err != nil {
		return core.BadSignature, nil
	}
	if res, err := p.verifyWork(blk, legacyDetails(false, false)); err != nil || res != core.Progress {
		return res, err
	}

	if err := p.applyLegacy(blk, account, info, info.Balance, blk.Representative, false, false); err != nil {
		return 0, err
	}
	return core.Progress, nil
}

// applyLegacy is the legacy-variant counterpart of applyState: it builds
// the sideband, persists the block, updates account/frontier/rep-weight
// state. isSend/isReceive classify the sideband details the same way a
// state block would.
func (p *Processor) applyLegacy(blk *core.Block, account core.Account, existing *core.AccountInfo, resultBalance core.Amount, newRep core.Account, isSend, isReceive bool) error {
	height := uint64(1)
	var openBlock core.Hash
	var prevRep core.Account
	var prevBalance core.Amount = core.ZeroAmount()
	if existing != nil {
		height = existing.BlockCount + 1
		openBlock = existing.OpenBlock
		prevRep = existing.Representative
		prevBalance = existing.Balance
		if err := p.store.DeleteFrontier(existing.Head); err != nil {
			return err
		}
	} else {
		openBlock = blk.Hash()
	}

	now := p.clock.Now().Unix()
	blk.Sideband = core.Sideband{
		Account:        account,
		Balance:        resultBalance,
		Representative: newRep,
		Height:         height,
		Timestamp:      now,
		SourceEpoch:    core.Epoch0,
		Details:        legacyDetails(isSend, isReceive),
	}

	if err := p.store.PutBlock(blk); err != nil {
		return err
	}
	if existing != nil {
		if err := p.store.SetSuccessor(existing.Head, blk.Hash()); err != nil {
			return err
		}
	}
	if err := p.store.PutFrontier(blk.Hash(), account); err != nil {
		return err
	}

	info := &core.AccountInfo{
		Head:           blk.Hash(),
		Representative: newRep,
		OpenBlock:      openBlock,
		Balance:        resultBalance,
		ModifiedTS:     now,
		BlockCount:     height,
		Epoch:          core.Epoch0,
	}
	if err := p.store.PutAccount(account, info); err != nil {
		return err
	}

	if existing != nil {
		p.weights.Sub(prevRep, prevBalance)
	}
	p.weights.Add(newRep, resultBalance)
	return nil
}

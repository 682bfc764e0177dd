// Package ledger implements the ledger processor (spec §4.4, component
// C4): per-variant block validation, sideband assignment, rollback,
// pruning and the account/balance query helpers every other component
// reads through.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tolelom/latticenode/core"
	"github.com/tolelom/latticenode/epoch"
	"github.com/tolelom/latticenode/repweight"
	"github.com/tolelom/latticenode/store"
	"github.com/tolelom/latticenode/workproof"
)

// Clock abstracts wall time so tests can control sideband timestamps.
type Clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Processor validates and applies blocks to the store, keeping the
// representative-weight cache and pending/frontier indexes consistent in
// the same logical transaction (spec §4.4). A single mutex serializes
// writers the way the teacher's mempool serializes pool mutation — the
// ledger has no concept of concurrent writers.
type Processor struct {
	mu        sync.Mutex
	store     *store.Store
	weights   *repweight.Cache
	epochs    *epoch.Registry
	work      workproof.Validator
	unchecked *core.Unchecked
	clock     Clock
}

// New builds a Processor over the given store, rep-weight cache, epoch
// registry and work validator.
func New(s *store.Store, weights *repweight.Cache, epochs *epoch.Registry, work workproof.Validator) *Processor {
	return &Processor{
		store:     s,
		weights:   weights,
		epochs:    epochs,
		work:      work,
		unchecked: core.NewUnchecked(),
		clock:     realClock{},
	}
}

// SetClock overrides the wall clock used for sideband timestamps (tests only).
func (p *Processor) SetClock(c Clock) { p.clock = c }

// Unchecked exposes the gap-retry buffer so callers (gossip, bootstrap)
// can release and retry blocks once their dependency arrives.
func (p *Processor) Unchecked() *core.Unchecked { return p.unchecked }

// Process validates blk, assigns its sideband, and persists it along with
// every index update (spec §4.4). On success blk.Sideband is populated in
// place. Non-Progress results never mutate the store.
func (p *Processor) Process(blk *core.Block) (core.ProcessResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	exists, err := p.store.BlockExists(blk.Hash())
	if err != nil {
		return 0, fmt.Errorf("ledger: block lookup: %w", err)
	}
	if exists {
		return core.Old, nil
	}

	switch blk.Type {
	case core.State:
		return p.processState(blk)
	case core.Send:
		return p.processLegacySend(blk)
	case core.Receive:
		return p.processLegacyReceive(blk)
	case core.Open:
		return p.processLegacyOpen(blk)
	case core.Change:
		return p.processLegacyChange(blk)
	default:
		return 0, fmt.Errorf("ledger: unknown block type %d", blk.Type)
	}
}

// InstallGenesis applies the one block allowed to open an account with a
// nonzero balance and no pending entry: the genesis block (spec §4.4
// genesis invariant, "exactly one account, the genesis account, is opened
// with no preceding send"). Process itself cannot accept this block — an
// unopened account with a zero Link always gap_sources there, by design,
// so an ordinary peer can never mint a balance out of nothing. This entry
// point is for trusted, local bootstrap only (cmd/node, once, from config)
// and is not reachable from gossip.
func (p *Processor) InstallGenesis(blk *core.Block) (core.ProcessResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	exists, err := p.store.BlockExists(blk.Hash())
	if err != nil {
		return 0, fmt.Errorf("ledger: block lookup: %w", err)
	}
	if exists {
		return core.Old, nil
	}
	if blk.Type != core.State || !blk.Previous.IsZero() || !blk.Link.IsZero() {
		return 0, fmt.Errorf("ledger: genesis block must be an unopened state block with no link")
	}
	existing, err := p.loadAccountOptional(blk.Account)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return core.Fork, nil
	}

	if res, err := p.verifyStateSignature(blk, false, 0); err != nil || res != core.Progress {
		return res, err
	}
	details := core.BlockDetails{Epoch: core.Epoch0}
	if res, err := p.verifyWork(blk, details); err != nil || res != core.Progress {
		return res, err
	}

	if err := p.applyState(blk, nil, false, false, core.Epoch0, core.Epoch0, core.ZeroAmount(), core.ZeroAccount, core.PendingKey{}, core.ZeroAmount()); err != nil {
		return 0, err
	}
	return core.Progress, nil
}

// verifyStateSignature resolves the signer — the block's own account,
// except a state-epoch block, which is signed by the epoch registry's
// designated key for the target tier — and checks it (spec §4.4 rule 3).
func (p *Processor) verifyStateSignature(blk *core.Block, isEpoch bool, tier core.Tier) (core.ProcessResult, error) {
	if isEpoch {
		signer, err := p.epochs.Signer(tier)
		if err != nil {
			return core.BadSignature, nil
		}
		if err := blk.VerifySignature(signer); err != nil {
			return core.BadSignature, nil
		}
		return core.Progress, nil
	}
	if err := blk.VerifySignature(blk.Account.PublicKey()); err != nil {
		return core.BadSignature, nil
	}
	return core.Progress, nil
}

func (p *Processor) verifyWork(blk *core.Block, details core.BlockDetails) (core.ProcessResult, error) {
	threshold := ThresholdFor(details)
	if !p.work.Validate(blk.WorkSubject(), blk.Work, threshold) {
		return core.InsufficientWork, nil
	}
	return core.Progress, nil
}

// --- state block ---

func (p *Processor) processState(blk *core.Block) (core.ProcessResult, error) {
	existing, err := p.loadAccountOptional(blk.Account)
	if err != nil {
		return 0, err
	}

	prevBalance := core.ZeroAmount()
	prevRep := core.ZeroAccount
	prevEpoch := core.Epoch0
	if existing != nil {
		prevBalance = existing.Balance
		prevRep = existing.Representative
		prevEpoch = existing.Epoch
	}

	if tier, isEpochLink := p.epochs.EpochOf(blk.Link); isEpochLink && !blk.Link.IsZero() && blk.Balance.Cmp(prevBalance) == 0 {
		return p.processStateEpoch(blk, existing, prevRep, prevEpoch, tier)
	}

	if existing != nil {
		if blk.Previous != existing.Head {
			return core.Fork, nil
		}
	} else {
		if !blk.Previous.IsZero() {
			return core.GapPrevious, nil
		}
		if blk.Link.IsZero() {
			return core.GapSource, nil
		}
	}

	isSend := blk.Balance.LessThan(prevBalance)
	isReceive := !isSend && !blk.Link.IsZero()

	if res, err := p.verifyStateSignature(blk, false, 0); err != nil || res != core.Progress {
		return res, err
	}
	details := core.BlockDetails{Epoch: prevEpoch, IsSend: isSend, IsReceive: isReceive}
	if res, err := p.verifyWork(blk, details); err != nil || res != core.Progress {
		return res, err
	}

	sourceEpoch := prevEpoch
	var pendingKey core.PendingKey
	var amountDelta core.Amount

	switch {
	case isReceive:
		pendingKey = core.PendingKey{Account: blk.Account, Hash: blk.Link}
		entry, err := p.lookupPending(pendingKey)
		if err != nil {
			return 0, err
		}
		if entry == nil {
			return core.Unreceivable, nil
		}
		expected := prevBalance.Add(entry.Amount)
		if expected.Cmp(blk.Balance) != 0 {
			return core.BalanceMismatch, nil
		}
		sourceEpoch = entry.Epoch
		amountDelta = entry.Amount
	case isSend:
		if core.Account(blk.Link).IsZero() {
			return core.OpenedBurnAccount, nil
		}
		amountDelta = prevBalance.Sub(blk.Balance)
	}

	resultEpoch := prevEpoch.Max(sourceEpoch)

	if err := p.applyState(blk, existing, isSend, isReceive, resultEpoch, sourceEpoch, prevBalance, prevRep, pendingKey, amountDelta); err != nil {
		return 0, err
	}
	return core.Progress, nil
}

func (p *Processor) processStateEpoch(blk *core.Block, existing *core.AccountInfo, prevRep core.Account, prevEpoch core.Tier, tier core.Tier) (core.ProcessResult, error) {
	if existing != nil {
		if blk.Previous != existing.Head {
			return core.Fork, nil
		}
		if blk.Representative != prevRep {
			return core.RepresentativeMismatch, nil
		}
		if !p.epochs.IsSequential(prevEpoch, tier) {
			return core.BlockPosition, nil
		}
	} else {
		if !blk.Previous.IsZero() {
			return core.GapPrevious, nil
		}
		anyPending, err := p.hasAnyPending(blk.Account)
		if err != nil {
			return 0, err
		}
		if !anyPending {
			return core.GapEpochOpenPending, nil
		}
	}

	if res, err := p.verifyStateSignature(blk, true, tier); err != nil || res != core.Progress {
		return res, err
	}
	details := core.BlockDetails{Epoch: tier, IsEpoch: true}
	if res, err := p.verifyWork(blk, details); err != nil || res != core.Progress {
		return res, err
	}

	if err := p.applyState(blk, existing, false, false, tier, prevEpoch, blk.Balance, blk.Representative, core.PendingKey{}, core.ZeroAmount()); err != nil {
		return 0, err
	}
	return core.Progress, nil
}

// applyState writes blk and every derived index update common to both the
// ordinary and epoch state paths. prevBalance/prevRep describe the
// account before this block; amountDelta is the pending amount created
// (send) or consumed (receive), ignored for change-only and epoch blocks.
// sourceEpoch is the epoch of the consumed pending entry (receives only);
// it is distinct from resultEpoch, the account's tier after this block.
func (p *Processor) applyState(blk *core.Block, existing *core.AccountInfo, isSend, isReceive bool, resultEpoch, sourceEpoch core.Tier, prevBalance core.Amount, prevRep core.Account, pendingKey core.PendingKey, amountDelta core.Amount) error {
	height := uint64(1)
	var prevHeadHash, openBlock core.Hash
	if existing != nil {
		height = existing.BlockCount + 1
		prevHeadHash = existing.Head
		openBlock = existing.OpenBlock
	} else {
		openBlock = blk.Hash()
	}

	now := p.clock.Now().Unix()
	blk.Sideband = core.Sideband{
		Account:        blk.Account,
		Balance:        blk.Balance,
		Representative: blk.Representative,
		Height:         height,
		Timestamp:      now,
		SourceEpoch:    sourceEpoch,
		Details: core.BlockDetails{
			Epoch:     resultEpoch,
			IsSend:    isSend,
			IsReceive: isReceive,
		},
	}

	if err := p.store.PutBlock(blk); err != nil {
		return err
	}
	if !prevHeadHash.IsZero() {
		if err := p.store.SetSuccessor(prevHeadHash, blk.Hash()); err != nil {
			return err
		}
	}

	switch {
	case isSend:
		dest := core.Account(blk.Link)
		if err := p.store.PutPending(core.PendingKey{Account: dest, Hash: blk.Hash()}, &core.PendingEntry{
			Amount:        amountDelta,
			SourceAccount: blk.Account,
			Epoch:         resultEpoch,
		}); err != nil {
			return err
		}
	case isReceive:
		if err := p.store.DeletePending(pendingKey); err != nil {
			return err
		}
	}

	info := &core.AccountInfo{
		Head:           blk.Hash(),
		Representative: blk.Representative,
		OpenBlock:      openBlock,
		Balance:        blk.Balance,
		ModifiedTS:     now,
		BlockCount:     height,
		Epoch:          resultEpoch,
	}
	if err := p.store.PutAccount(blk.Account, info); err != nil {
		return err
	}

	// Rep-weight bookkeeping: the account's prior balance no longer counts
	// toward the old representative, and its new balance now counts toward
	// the new one (spec §4.3 "atomic dual-update").
	if existing != nil {
		p.weights.Sub(prevRep, prevBalance)
	}
	p.weights.Add(blk.Representative, blk.Balance)

	return nil
}

func (p *Processor) loadAccountOptional(a core.Account) (*core.AccountInfo, error) {
	info, err := p.store.GetAccount(a)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (p *Processor) lookupPending(k core.PendingKey) (*core.PendingEntry, error) {
	e, err := p.store.GetPending(k)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (p *Processor) hasAnyPending(a core.Account) (bool, error) {
	found := false
	err := p.store.PendingForAccount(a, func(core.PendingKey, *core.PendingEntry) bool {
		found = true
		return false
	})
	return found, err
}

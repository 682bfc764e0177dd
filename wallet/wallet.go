package wallet

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tolelom/latticenode/core"
	"github.com/tolelom/latticenode/crypto"
	"github.com/tolelom/latticenode/ledger"
	"github.com/tolelom/latticenode/workproof"
)

// ErrInsufficientBalance is returned by Send when amount exceeds the
// account's current balance.
var ErrInsufficientBalance = errors.New("wallet: insufficient balance")

// ErrBelowReceiveMinimum is returned by Receive when the pending amount
// is below the configured receive_minimum (spec §4.8, §6.4).
var ErrBelowReceiveMinimum = errors.New("wallet: amount below receive_minimum")

// ErrPendingNotFound is returned by Receive when no matching pending
// entry is credited to the destination account.
var ErrPendingNotFound = errors.New("wallet: no pending entry for that send")

// Wallet builds and submits signed state blocks for the accounts held in
// a Store (spec §4.8 send/receive/change). Send is idempotent when an id
// is supplied: id -> block_hash is remembered so retries return the same
// block instead of double-spending. Receive and Change take no id.
type Wallet struct {
	mu sync.Mutex

	store    *Store
	password string // held only to persist new key material; store's secrets live decrypted in memory regardless

	ledger *ledger.Processor
	work   workproof.Generator

	receiveMinimum core.Amount

	sendActionIDs map[string]core.Hash
}

// New builds a Wallet over an already-unlocked Store.
func New(store *Store, password string, l *ledger.Processor, work workproof.Generator, receiveMinimum core.Amount) *Wallet {
	return &Wallet{
		store:          store,
		password:       password,
		ledger:         l,
		work:           work,
		receiveMinimum: receiveMinimum,
		sendActionIDs:  make(map[string]core.Hash),
	}
}

// Accounts lists every account this wallet's keystore holds.
func (w *Wallet) Accounts() []core.Account {
	return w.store.Accounts()
}

// Send builds, signs and submits a state-send block debiting amount from
// "from" to "to" (spec §4.8 send).
func (w *Wallet) Send(from, to core.Account, amount core.Amount, id string) (core.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if id != "" {
		if h, ok := w.sendActionIDs[id]; ok {
			return h, nil
		}
	}

	priv, err := w.store.PrivateKey(from)
	if err != nil {
		return core.Hash{}, err
	}
	info, err := w.ledger.AccountInfo(from)
	if err != nil {
		return core.Hash{}, fmt.Errorf("wallet: load account %s: %w", from, err)
	}
	if info == nil {
		return core.Hash{}, fmt.Errorf("wallet: account %s is not open", from)
	}
	if info.Balance.LessThan(amount) {
		return core.Hash{}, ErrInsufficientBalance
	}
	newBalance := info.Balance.Sub(amount)

	blk := &core.Block{
		Type:           core.State,
		Account:        from,
		Previous:       info.Head,
		Representative: info.Representative,
		Balance:        newBalance,
		Link:           core.Hash(to),
	}
	details := core.BlockDetails{Epoch: info.Epoch, IsSend: true}
	if err := w.signAndSolve(blk, priv, details); err != nil {
		return core.Hash{}, err
	}

	if _, err := w.ledger.Process(blk); err != nil {
		return core.Hash{}, err
	}
	hash := blk.Hash()
	if id != "" {
		w.sendActionIDs[id] = hash
	}
	return hash, nil
}

// Receive builds a state-receive block (opening the account if it is new)
// for a pending send, provided the send is confirmed and amount is at
// least receive_minimum (spec §4.8 receive).
func (w *Wallet) Receive(account core.Account, sendHash core.Hash, representative core.Account, amount core.Amount) (core.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if amount.LessThan(w.receiveMinimum) {
		return core.Hash{}, ErrBelowReceiveMinimum
	}
	if _, err := w.ledger.Pending(account, sendHash); err != nil {
		return core.Hash{}, ErrPendingNotFound
	}
	confirmed, err := w.ledger.BlockConfirmed(sendHash)
	if err != nil {
		return core.Hash{}, err
	}
	if !confirmed {
		return core.Hash{}, fmt.Errorf("wallet: send %s is not yet confirmed", sendHash)
	}

	priv, err := w.store.PrivateKey(account)
	if err != nil {
		return core.Hash{}, err
	}
	info, err := w.ledger.AccountInfo(account)
	if err != nil {
		return core.Hash{}, err
	}

	blk := &core.Block{Type: core.State, Account: account, Link: sendHash}
	if info == nil {
		blk.Previous = core.ZeroHash
		blk.Representative = representative
		blk.Balance = amount
	} else {
		blk.Previous = info.Head
		blk.Representative = info.Representative
		blk.Balance = info.Balance.Add(amount)
	}
	details := core.BlockDetails{Epoch: core.Epoch0, IsReceive: true}
	if info != nil {
		details.Epoch = info.Epoch
	}
	if err := w.signAndSolve(blk, priv, details); err != nil {
		return core.Hash{}, err
	}
	if _, err := w.ledger.Process(blk); err != nil {
		return core.Hash{}, err
	}
	return blk.Hash(), nil
}

// Change builds a state block that only updates the representative,
// leaving the balance unchanged (spec §4.8 change).
func (w *Wallet) Change(account, newRep core.Account) (core.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	priv, err := w.store.PrivateKey(account)
	if err != nil {
		return core.Hash{}, err
	}
	info, err := w.ledger.AccountInfo(account)
	if err != nil {
		return core.Hash{}, err
	}
	if info == nil {
		return core.Hash{}, fmt.Errorf("wallet: account %s is not open", account)
	}

	blk := &core.Block{
		Type:           core.State,
		Account:        account,
		Previous:       info.Head,
		Representative: newRep,
		Balance:        info.Balance,
		Link:           core.ZeroHash,
	}
	details := core.BlockDetails{Epoch: info.Epoch}
	if err := w.signAndSolve(blk, priv, details); err != nil {
		return core.Hash{}, err
	}
	if _, err := w.ledger.Process(blk); err != nil {
		return core.Hash{}, err
	}
	return blk.Hash(), nil
}

// signAndSolve computes work over blk's subject at the difficulty
// details requires, attaches it, and signs blk (spec §4.8: "if cached
// work is stale ... regenerate synchronously" — this wallet has no work
// cache, so every block solves work fresh).
func (w *Wallet) signAndSolve(blk *core.Block, priv crypto.PrivateKey, details core.BlockDetails) error {
	threshold := ledger.ThresholdFor(details)
	work, err := w.work.Generate(blk.WorkSubject(), threshold)
	if err != nil {
		return fmt.Errorf("wallet: generate work: %w", err)
	}
	blk.Work = work
	blk.Sign(priv)
	return nil
}

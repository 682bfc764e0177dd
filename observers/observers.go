// Package observers is a non-blocking pub/sub broker for node-wide
// callbacks, grounded on the teacher's events.Emitter and retargeted from
// game events to the block-lattice callbacks of spec §6.5.
package observers

import (
	"log"
	"sync"

	"github.com/tolelom/latticenode/core"
	"github.com/tolelom/latticenode/election"
)

// BlockEvent is delivered once per processed block (spec §6.5
// observers.blocks: status, votes_with_weight, account, amount,
// is_state_send, is_state_epoch).
type BlockEvent struct {
	Block          *core.Block
	Result         core.ProcessResult
	VotesWithWeight core.Amount
	Account        core.Account
	Amount         core.Amount
	IsStateSend    bool
	IsStateEpoch   bool
}

// BalanceEvent is delivered whenever an account's confirmed balance
// changes (spec §6.5 observers.account_balance).
type BalanceEvent struct {
	Account core.Account
	Balance core.Amount
	Pending core.Amount
}

// ActiveStoppedEvent is delivered when an election for hash is removed
// from the active-elections container, confirmed or not (spec §6.5
// observers.active_stopped).
type ActiveStoppedEvent struct {
	Hash   core.Hash
	Status election.Status
}

type blockHandler func(BlockEvent)
type balanceHandler func(BalanceEvent)
type activeStoppedHandler func(ActiveStoppedEvent)

// Observers is the process-wide callback broker. Every Fire* call runs
// its handlers synchronously but panic-isolated, so a misbehaving
// subscriber cannot block or crash the ledger-writer or the
// confirmation-height processor (spec §6.5: "must be non-blocking").
type Observers struct {
	mu             sync.RWMutex
	blockHandlers  []blockHandler
	balanceHandlers []balanceHandler
	activeStopped  []activeStoppedHandler
}

// New builds an Observers broker with no subscribers.
func New() *Observers {
	return &Observers{}
}

// OnBlock registers h to run for every processed block.
func (o *Observers) OnBlock(h func(BlockEvent)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.blockHandlers = append(o.blockHandlers, h)
}

// OnAccountBalance registers h to run whenever a confirmed balance changes.
func (o *Observers) OnAccountBalance(h func(BalanceEvent)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.balanceHandlers = append(o.balanceHandlers, h)
}

// OnActiveStopped registers h to run whenever an election is removed.
func (o *Observers) OnActiveStopped(h func(ActiveStoppedEvent)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.activeStopped = append(o.activeStopped, h)
}

// FireBlock notifies every block subscriber.
func (o *Observers) FireBlock(ev BlockEvent) {
	o.mu.RLock()
	handlers := append([]blockHandler(nil), o.blockHandlers...)
	o.mu.RUnlock()
	for _, h := range handlers {
		runGuarded("block", func() { h(ev) })
	}
}

// FireAccountBalance notifies every balance subscriber.
func (o *Observers) FireAccountBalance(ev BalanceEvent) {
	o.mu.RLock()
	handlers := append([]balanceHandler(nil), o.balanceHandlers...)
	o.mu.RUnlock()
	for _, h := range handlers {
		runGuarded("account_balance", func() { h(ev) })
	}
}

// FireActiveStopped notifies every active_stopped subscriber.
func (o *Observers) FireActiveStopped(ev ActiveStoppedEvent) {
	o.mu.RLock()
	handlers := append([]activeStoppedHandler(nil), o.activeStopped...)
	o.mu.RUnlock()
	for _, h := range handlers {
		runGuarded("active_stopped", func() { h(ev) })
	}
}

func runGuarded(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[observers] handler panicked for %s: %v", name, r)
		}
	}()
	fn()
}

// Package election implements the election state machine (spec §4.6,
// component C6): one instance per qualified root, holding candidate
// blocks sharing that root, per-voter last-vote state, a running tally,
// and the passive→broadcasting→confirmed/expired lifecycle. The first tick
// moves a passive election straight to broadcasting (casting the local
// vote on the way, if enabled); the Active state is defined but never
// entered.
package election

import (
	"bytes"
	"math"
	"math/big"
	"sort"
	"time"

	"github.com/tolelom/latticenode/core"
	"github.com/tolelom/latticenode/repweight"
)

// VoteCooldown is the interval after which a representative's next vote
// is accepted even when its timestamp is not newer (spec §9 Open Question 1:
// "a single constant should be chosen and documented" — 20s matches the
// value observed in the source's own tests).
const VoteCooldown = 20 * time.Second

// MaxCandidateBlocks bounds how many competing blocks one election tracks
// (spec §4.6, MAX_BLOCKS = 10).
const MaxCandidateBlocks = 10

// ConfirmGracePeriod is how long a confirmed election lingers before
// removal, to absorb late votes (spec §4.6).
const ConfirmGracePeriod = 5 * time.Second

// State is a position in the election lifecycle.
type State uint8

const (
	Passive State = iota
	Active
	Broadcasting
	Confirmed
	ExpiredConfirmed
	ExpiredUnconfirmed
)

func (s State) String() string {
	switch s {
	case Passive:
		return "passive"
	case Active:
		return "active"
	case Broadcasting:
		return "broadcasting"
	case Confirmed:
		return "confirmed"
	case ExpiredConfirmed:
		return "expired_confirmed"
	case ExpiredUnconfirmed:
		return "expired_unconfirmed"
	default:
		return "unknown"
	}
}

// Behavior distinguishes a normal election from an optimistic one started
// speculatively by the frontier-confirmation loop (spec §4.7).
type Behavior uint8

const (
	NormalBehavior Behavior = iota
	OptimisticBehavior
)

// Clock abstracts wall time so tests can drive transition_time without sleeping.
type Clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Solicitor requests votes from representatives and rebroadcasts the
// current winner; the active-elections container supplies a concrete
// implementation backed by gossip (spec §4.6).
type Solicitor interface {
	RequestVotes(root core.Hash, reps []core.Account)
	Broadcast(block *core.Block)
}

type lastVote struct {
	hash      core.Hash
	timestamp uint64
	wallTime  time.Time
}

// Status is a read-only snapshot of an election's outcome, exposed to
// observers and to recently_cemented (spec §4.6, §4.7).
type Status struct {
	Winner     core.Hash
	Tally      core.Amount
	FinalTally core.Amount
	VoterCount int
	ReqCount   int
	Type       core.BlockDetails
	State      State
}

// Election tracks the competing candidate blocks for one qualified root
// and resolves them via representative vote.
type Election struct {
	Root     core.Hash
	Behavior Behavior

	candidates map[core.Hash]*core.Block
	order      []core.Hash

	lastVotes  map[core.Account]lastVote
	finalVotes map[core.Account]core.Hash

	winner core.Hash
	state  State

	createdAt   time.Time
	confirmedAt time.Time
	reqCount    int

	weights     *repweight.Cache
	clock       Clock
	ttl         time.Duration
	quorumDelta func() core.Amount
	enableVoting bool
	ownRep       core.Account

	onConfirm func(winner *core.Block)
}

// New creates a passive election for the first candidate block. ttl is
// the time-to-live before an unconfirmed broadcasting election expires
// (normal ≈ 5 min, optimistic ≈ 1 min per spec §4.6).
func New(first *core.Block, behavior Behavior, weights *repweight.Cache, quorumDelta func() core.Amount, ttl time.Duration, onConfirm func(winner *core.Block)) *Election {
	e := &Election{
		Root:        first.RootHash(),
		Behavior:    behavior,
		candidates:  map[core.Hash]*core.Block{first.Hash(): first},
		order:       []core.Hash{first.Hash()},
		lastVotes:   make(map[core.Account]lastVote),
		finalVotes:  make(map[core.Account]core.Hash),
		winner:      first.Hash(),
		state:       Passive,
		createdAt:   time.Now(),
		weights:     weights,
		clock:       realClock{},
		ttl:         ttl,
		quorumDelta: quorumDelta,
		onConfirm:   onConfirm,
	}
	return e
}

// SetClock overrides the wall clock (tests only) and restarts the TTL
// from the new clock's current time.
func (e *Election) SetClock(c Clock) {
	e.clock = c
	e.createdAt = c.Now()
}

// EnableVoting arms the election to cast its own local vote (as ownRep)
// on the tick that moves it out of passive.
func (e *Election) EnableVoting(rep core.Account) {
	e.enableVoting = true
	e.ownRep = rep
}

// Vote applies a voter's ballot for hash cast at timestamp, per the
// acceptance predicate in spec §4.6.
func (e *Election) Vote(voter core.Account, timestamp uint64, hash core.Hash) (processed, replay bool) {
	weight := e.weights.Weight(voter)
	if weight.IsZero() {
		return false, true
	}

	prior, exists := e.lastVotes[voter]
	final := timestamp == math.MaxUint64
	accept := !exists
	if exists {
		switch {
		case timestamp > prior.timestamp:
			accept = true
		case timestamp == prior.timestamp && e.tallyFor(hash)+weightFloat(weight) > e.tallyFor(prior.hash):
			accept = true
		case e.clock.Now().Sub(prior.wallTime) >= VoteCooldown:
			accept = true
		}
	}
	if !accept {
		return false, true
	}

	e.lastVotes[voter] = lastVote{hash: hash, timestamp: timestamp, wallTime: e.clock.Now()}
	if final {
		e.finalVotes[voter] = hash
	}
	e.recomputeWinner()
	return true, false
}

// tallyFor is an approximate (float) tally used by the same-timestamp
// upgrade rule and by Publish's weakest-candidate eviction.
func (e *Election) tallyFor(hash core.Hash) float64 {
	total := 0.0
	for voter, lv := range e.lastVotes {
		if lv.hash == hash {
			total += weightFloat(e.weights.Weight(voter))
		}
	}
	return total
}

// weightFloat converts a representative's weight to a float64 for the
// same-timestamp vote-upgrade comparison and candidate eviction; every
// quorum/confirmation decision uses exact core.Amount arithmetic.
func weightFloat(a core.Amount) float64 {
	f := new(big.Float).SetInt(a.Big())
	out, _ := f.Float64()
	return out
}

// recomputeWinner sums weights grouped by voted hash and elects the
// highest tally, breaking ties by hash ordering (spec §4.6).
func (e *Election) recomputeWinner() {
	tallies := make(map[core.Hash]core.Amount)
	for voter, lv := range e.lastVotes {
		w := e.weights.Weight(voter)
		tallies[lv.hash] = tallies[lv.hash].Add(w)
	}
	var best core.Hash
	var bestTally core.Amount = core.ZeroAmount()
	first := true
	hashes := make([]core.Hash, 0, len(tallies))
	for h := range tallies {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return bytes.Compare(hashes[i][:], hashes[j][:]) < 0 })
	for _, h := range hashes {
		t := tallies[h]
		if first || t.Cmp(bestTally) > 0 {
			best, bestTally, first = h, t, false
		}
	}
	if !first {
		e.winner = best
	}
}

// Tally returns the weight accumulated for the current winner.
func (e *Election) Tally() core.Amount {
	total := core.ZeroAmount()
	for voter, lv := range e.lastVotes {
		if lv.hash == e.winner {
			total = total.Add(e.weights.Weight(voter))
		}
	}
	return total
}

// FinalTally returns the weight of final votes for the current winner.
func (e *Election) FinalTally() core.Amount {
	total := core.ZeroAmount()
	for voter, hash := range e.finalVotes {
		if hash == e.winner {
			total = total.Add(e.weights.Weight(voter))
		}
	}
	return total
}

// Winner returns the current winning candidate block, if known.
func (e *Election) Winner() *core.Block { return e.candidates[e.winner] }

// State returns the election's current lifecycle state.
func (e *Election) State() State { return e.state }

// Publish adds a candidate block sharing this election's root. It returns
// whether the election now has more than one candidate (a live fork).
func (e *Election) Publish(blk *core.Block) bool {
	h := blk.Hash()
	if _, exists := e.candidates[h]; exists {
		return len(e.candidates) > 1
	}
	if len(e.candidates) >= MaxCandidateBlocks {
		weakest, weakestWeight := e.weakestCandidate()
		incomingWeight := e.tallyFor(h)
		if incomingWeight <= weakestWeight {
			return len(e.candidates) > 1
		}
		delete(e.candidates, weakest)
		e.removeFromOrder(weakest)
	}
	e.candidates[h] = blk
	e.order = append(e.order, h)
	return len(e.candidates) > 1
}

func (e *Election) weakestCandidate() (core.Hash, float64) {
	var weakest core.Hash
	weakestWeight := math.MaxFloat64
	first := true
	for _, h := range e.order {
		w := e.tallyFor(h)
		if first || w < weakestWeight {
			weakest, weakestWeight, first = h, w, false
		}
	}
	return weakest, weakestWeight
}

func (e *Election) removeFromOrder(h core.Hash) {
	for i, o := range e.order {
		if o == h {
			e.order = append(e.order[:i], e.order[i+1:]...)
			return
		}
	}
}

// TransitionTime advances the state machine one tick, soliciting votes or
// rebroadcasting as needed. It returns true when the election should be
// removed from its container.
func (e *Election) TransitionTime(sol Solicitor) bool {
	now := e.clock.Now()
	switch e.state {
	case Passive:
		if e.enableVoting && !e.ownRep.IsZero() {
			e.Vote(e.ownRep, uint64(now.UnixMilli()), e.winner)
		}
		e.state = Broadcasting
		if sol != nil {
			if w := e.Winner(); w != nil {
				sol.Broadcast(w)
			}
		}
		return false
	case Broadcasting:
		delta := e.quorumDelta()
		if e.Tally().GreaterOrEqual(delta) || e.FinalTally().GreaterOrEqual(delta) {
			e.confirm(now)
			return false
		}
		if now.Sub(e.createdAt) > e.ttl {
			e.state = ExpiredUnconfirmed
			return true
		}
		if sol != nil {
			e.reqCount++
			sol.RequestVotes(e.Root, nil)
		}
		return false
	case Confirmed:
		if now.Sub(e.confirmedAt) > ConfirmGracePeriod {
			return true
		}
		return false
	case ExpiredConfirmed, ExpiredUnconfirmed:
		return true
	default:
		return true
	}
}

func (e *Election) confirm(now time.Time) {
	e.state = Confirmed
	e.confirmedAt = now
	if e.onConfirm != nil {
		if w := e.Winner(); w != nil {
			e.onConfirm(w)
		}
	}
}

// ForceConfirm immediately cements the current winner (test-only path,
// spec §4.6).
func (e *Election) ForceConfirm() {
	e.confirm(e.clock.Now())
}

// Status returns a read-only snapshot for observers.
func (e *Election) Status() Status {
	var details core.BlockDetails
	if w := e.Winner(); w != nil {
		details = w.Sideband.Details
	}
	return Status{
		Winner:     e.winner,
		Tally:      e.Tally(),
		FinalTally: e.FinalTally(),
		VoterCount: len(e.lastVotes),
		ReqCount:   e.reqCount,
		Type:       details,
		State:      e.state,
	}
}

// CandidateCount returns how many competing blocks this election holds.
func (e *Election) CandidateCount() int { return len(e.candidates) }

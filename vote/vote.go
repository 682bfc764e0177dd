// Package vote implements the vote processor and inactive-votes cache
// (spec §4.5, component C5): signature validation, routing of votes to
// active elections, and buffering of votes for blocks the ledger does not
// yet know about.
package vote

import (
	"math"

	"github.com/tolelom/latticenode/core"
	"github.com/tolelom/latticenode/repweight"
)

// Code is the outcome of processing one vote.
type Code uint8

const (
	Invalid Code = iota
	Vote
	Replay
	Indeterminate
)

func (c Code) String() string {
	switch c {
	case Invalid:
		return "invalid"
	case Vote:
		return "vote"
	case Replay:
		return "replay"
	case Indeterminate:
		return "indeterminate"
	default:
		return "unknown"
	}
}

// ElectionRouter is implemented by the active-elections container: it
// knows how to find (if any) the election currently holding a candidate
// block with the given hash (spec §4.5).
type ElectionRouter interface {
	VoteForHash(voter core.Account, timestamp uint64, hash core.Hash) (Code, bool)
	RecentlyConfirmed(hash core.Hash) bool
}

// Processor validates incoming votes and routes them to elections,
// falling back to the inactive-votes cache when no election exists yet.
type Processor struct {
	router    ElectionRouter
	weights   *repweight.Cache
	inactive  *InactiveCache
	principalMinWeight core.Amount
}

// NewProcessor builds a vote Processor. principalMinWeight is the
// minimum representative weight required for a vote to be cached while
// inactive (spec §4.5: "only votes from representatives above a
// minimum-principal-weight threshold are cached").
func NewProcessor(router ElectionRouter, weights *repweight.Cache, inactive *InactiveCache, principalMinWeight core.Amount) *Processor {
	return &Processor{router: router, weights: weights, inactive: inactive, principalMinWeight: principalMinWeight}
}

// Process validates v and, for each hash it carries, routes it to an
// active election or the inactive cache. It returns the code for the
// first hash processed (the common case is a single-hash vote).
func (p *Processor) Process(v *core.Vote) Code {
	if err := v.VerifySignature(); err != nil {
		return Invalid
	}
	weight := p.weights.Weight(v.Voter)
	if weight.IsZero() {
		return Invalid
	}

	result := Vote
	for i, h := range v.Hashes {
		code := p.processHash(v, weight, h)
		if i == 0 {
			result = code
		}
	}
	return result
}

func (p *Processor) processHash(v *core.Vote, weight core.Amount, hash core.Hash) Code {
	if code, handled := p.router.VoteForHash(v.Voter, v.Timestamp, hash); handled {
		return code
	}
	if p.router.RecentlyConfirmed(hash) {
		return Replay
	}
	if weight.GreaterOrEqual(p.principalMinWeight) {
		p.inactive.Add(hash, v.Voter, weight, v.Timestamp)
	}
	return Vote
}

// IsFinalTimestamp reports whether ts marks a final vote.
func IsFinalTimestamp(ts uint64) bool { return ts == math.MaxUint64 }

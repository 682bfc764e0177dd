package vote

import (
	"testing"

	"github.com/tolelom/latticenode/core"
	"github.com/tolelom/latticenode/crypto"
	"github.com/tolelom/latticenode/repweight"
)

type fakeRouter struct {
	handled   bool
	code      Code
	confirmed map[core.Hash]bool
}

func (r *fakeRouter) VoteForHash(core.Account, uint64, core.Hash) (Code, bool) {
	return r.code, r.handled
}

func (r *fakeRouter) RecentlyConfirmed(hash core.Hash) bool {
	return r.confirmed[hash]
}

func signedVote(t *testing.T, hashes ...core.Hash) (*core.Vote, crypto.PublicKey) {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	v := &core.Vote{Timestamp: 1, Hashes: hashes}
	v.Sign(priv, pub)
	return v, pub
}

func TestProcessorRejectsBadSignature(t *testing.T) {
	v, _ := signedVote(t, core.Hash{1})
	v.Signature[0] ^= 0xff

	weights := repweight.New(0)
	inactive := NewInactiveCache(Thresholds{
		QuorumDelta:          func() core.Amount { return core.NewAmount(1000) },
		HintedWeightFraction: func() core.Amount { return core.NewAmount(100) },
		MinVoterCount:        1,
	})
	p := NewProcessor(&fakeRouter{}, weights, inactive, core.NewAmount(0))

	if code := p.Process(v); code != Invalid {
		t.Errorf("Process with a tampered signature: got %s want invalid", code)
	}
}

func TestProcessorRejectsZeroWeightVoter(t *testing.T) {
	v, _ := signedVote(t, core.Hash{1})

	weights := repweight.New(0) // voter has no registered weight
	inactive := NewInactiveCache(Thresholds{
		QuorumDelta:          func() core.Amount { return core.NewAmount(1000) },
		HintedWeightFraction: func() core.Amount { return core.NewAmount(100) },
		MinVoterCount:        1,
	})
	p := NewProcessor(&fakeRouter{}, weights, inactive, core.NewAmount(0))

	if code := p.Process(v); code != Invalid {
		t.Errorf("Process from a zero-weight representative: got %s want invalid", code)
	}
}

func TestProcessorRoutesToActiveElectionWhenHandled(t *testing.T) {
	v, pub := signedVote(t, core.Hash{1})

	weights := repweight.New(0)
	weights.Add(core.AccountFromPublicKey(pub), core.NewAmount(500))
	inactive := NewInactiveCache(Thresholds{
		QuorumDelta:          func() core.Amount { return core.NewAmount(1000) },
		HintedWeightFraction: func() core.Amount { return core.NewAmount(100) },
		MinVoterCount:        1,
	})
	router := &fakeRouter{handled: true, code: Vote}
	p := NewProcessor(router, weights, inactive, core.NewAmount(0))

	if code := p.Process(v); code != Vote {
		t.Errorf("Process: got %s want vote", code)
	}
	if _, ok := inactive.Status(core.Hash{1}); ok {
		t.Error("a vote handled by an active election should not land in the inactive cache")
	}
}

func TestProcessorReportsReplayForRecentlyConfirmedUnhandledHash(t *testing.T) {
	v, pub := signedVote(t, core.Hash{1})

	weights := repweight.New(0)
	weights.Add(core.AccountFromPublicKey(pub), core.NewAmount(500))
	inactive := NewInactiveCache(Thresholds{
		QuorumDelta:          func() core.Amount { return core.NewAmount(1000) },
		HintedWeightFraction: func() core.Amount { return core.NewAmount(100) },
		MinVoterCount:        1,
	})
	router := &fakeRouter{handled: false, confirmed: map[core.Hash]bool{{1}: true}}
	p := NewProcessor(router, weights, inactive, core.NewAmount(0))

	if code := p.Process(v); code != Replay {
		t.Errorf("Process for a recently-confirmed hash: got %s want replay", code)
	}
}

func TestProcessorCachesHighWeightVoteWhenNoElectionExists(t *testing.T) {
	v, pub := signedVote(t, core.Hash{1})

	weights := repweight.New(0)
	weights.Add(core.AccountFromPublicKey(pub), core.NewAmount(500))
	inactive := NewInactiveCache(Thresholds{
		QuorumDelta:          func() core.Amount { return core.NewAmount(1000) },
		HintedWeightFraction: func() core.Amount { return core.NewAmount(100) },
		MinVoterCount:        1,
	})
	router := &fakeRouter{}
	p := NewProcessor(router, weights, inactive, core.NewAmount(400))

	if code := p.Process(v); code != Vote {
		t.Errorf("Process: got %s want vote", code)
	}
	status, ok := inactive.Status(core.Hash{1})
	if !ok {
		t.Fatal("a vote above principalMinWeight should be cached while no election exists")
	}
	if status.Tally.Cmp(core.NewAmount(500)) != 0 {
		t.Errorf("cached tally: got %s want 500", status.Tally)
	}
}

func TestProcessorIgnoresLowWeightVoteBelowPrincipalThreshold(t *testing.T) {
	v, pub := signedVote(t, core.Hash{1})

	weights := repweight.New(0)
	weights.Add(core.AccountFromPublicKey(pub), core.NewAmount(10))
	inactive := NewInactiveCache(Thresholds{
		QuorumDelta:          func() core.Amount { return core.NewAmount(1000) },
		HintedWeightFraction: func() core.Amount { return core.NewAmount(100) },
		MinVoterCount:        1,
	})
	p := NewProcessor(&fakeRouter{}, weights, inactive, core.NewAmount(400))

	p.Process(v)
	if _, ok := inactive.Status(core.Hash{1}); ok {
		t.Error("a vote below principalMinWeight should not be cached")
	}
}

func TestIsFinalTimestamp(t *testing.T) {
	if IsFinalTimestamp(12345) {
		t.Error("an ordinary timestamp should not be reported final")
	}
	if !IsFinalTimestamp(^uint64(0)) {
		t.Error("math.MaxUint64 should be reported as the final-vote sentinel")
	}
}

package active

import (
	"testing"
	"time"

	"github.com/tolelom/latticenode/core"
	"github.com/tolelom/latticenode/election"
	"github.com/tolelom/latticenode/repweight"
	"github.com/tolelom/latticenode/vote"
)

type noopSolicitor struct{}

func (noopSolicitor) Broadcast(*core.Block)                        {}
func (noopSolicitor) RequestVotes(core.Hash, []core.Account)       {}

func testBlock(acct core.Account, balance uint64) *core.Block {
	return &core.Block{
		Type:           core.State,
		Account:        acct,
		Previous:       core.ZeroHash,
		Representative: acct,
		Balance:        core.NewAmount(balance),
		Link:           core.ZeroHash,
	}
}

func testConfig() Config {
	return Config{
		ActiveElectionsSize:   2,
		ConfirmationHistSize:  10,
		RecentlyConfirmedSize: 10,
		NormalTTL:             time.Minute,
		OptimisticTTL:         time.Minute,
		QuorumDelta:           func() core.Amount { return core.NewAmount(500) },
	}
}

func TestContainerInsertAndPublish(t *testing.T) {
	weights := repweight.New(0)
	c := New(testConfig(), weights, nil)

	acct := core.Account{1}
	first := testBlock(acct, 100)
	inserted, el := c.Insert(first, election.NormalBehavior, nil)
	if !inserted || el == nil {
		t.Fatal("first insert for a fresh root should succeed")
	}

	if inserted2, _ := c.Insert(first, election.NormalBehavior, nil); inserted2 {
		t.Error("inserting a block for an already-active root should not create a second election")
	}

	second := testBlock(acct, 101) // same root, different candidate
	conflict, found := c.Publish(second)
	if !found {
		t.Fatal("Publish should find the election for this root")
	}
	if !conflict {
		t.Error("publishing a second distinct candidate should report a conflict")
	}
}

func TestContainerPublishWithNoMatchingRootReportsNotFound(t *testing.T) {
	weights := repweight.New(0)
	c := New(testConfig(), weights, nil)
	_, found := c.Publish(testBlock(core.Account{7}, 1))
	if found {
		t.Error("Publish against an unknown root should report found=false")
	}
}

func TestContainerVoteForHashRoutesToElection(t *testing.T) {
	weights := repweight.New(0)
	rep := core.Account{9}
	weights.Add(rep, core.NewAmount(1000))
	c := New(testConfig(), weights, nil)

	acct := core.Account{1}
	blk := testBlock(acct, 100)
	c.Insert(blk, election.NormalBehavior, nil)

	code, ok := c.VoteForHash(rep, 1, blk.Hash())
	if !ok {
		t.Fatal("vote for a known candidate hash should be routed")
	}
	if code != vote.Vote {
		t.Errorf("VoteForHash: got %v want vote.Vote", code)
	}

	if _, ok := c.VoteForHash(rep, 1, core.Hash{0xff}); ok {
		t.Error("vote for an unknown candidate hash should report ok=false")
	}
}

func TestContainerEraseOldestOnCapacity(t *testing.T) {
	weights := repweight.New(0)
	cfg := testConfig()
	cfg.ActiveElectionsSize = 2
	c := New(cfg, weights, nil)

	first := testBlock(core.Account{1}, 1)
	second := testBlock(core.Account{2}, 1)
	third := testBlock(core.Account{3}, 1)
	c.Insert(first, election.NormalBehavior, nil)
	c.Insert(second, election.NormalBehavior, nil)
	c.Insert(third, election.NormalBehavior, nil) // should evict `first`

	if len(c.ListActive(0)) != 2 {
		t.Fatalf("ListActive: got %d want 2 after capacity eviction", len(c.ListActive(0)))
	}
	if _, found := c.Publish(first); found {
		t.Error("the oldest election should have been evicted once capacity was exceeded")
	}
}

func TestContainerTickConfirmsAndRecordsCementation(t *testing.T) {
	weights := repweight.New(0)
	rep := core.Account{9}
	weights.Add(rep, core.NewAmount(1000))
	cfg := testConfig()

	var cemented []core.Hash
	c := New(cfg, weights, func(status election.Status, winner *core.Block) {
		cemented = append(cemented, winner.Hash())
	})

	acct := core.Account{1}
	blk := testBlock(acct, 100)
	c.Insert(blk, election.NormalBehavior, nil)

	sol := noopSolicitor{}
	c.Tick(sol) // passive -> broadcasting

	els := c.ListActive(0)
	if len(els) != 1 {
		t.Fatalf("expected one active election, got %d", len(els))
	}
	if processed, _ := els[0].Vote(rep, 1, blk.Hash()); !processed {
		t.Fatal("vote should be accepted")
	}

	c.Tick(sol) // broadcasting -> confirmed
	if len(cemented) != 1 || cemented[0] != blk.Hash() {
		t.Fatalf("onCement should fire once with the winning block, got %v", cemented)
	}
	if !c.RecentlyConfirmed(blk.Hash()) {
		t.Error("a confirmed winner should be tracked in recently_confirmed")
	}
	if len(c.RecentlyCemented()) != 1 {
		t.Errorf("RecentlyCemented: got %d entries want 1", len(c.RecentlyCemented()))
	}
}

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

// TestContainerTickFiresCementationOnlyOnceDuringGracePeriod is a
// regression test: a confirmed election stays in election.Confirmed for
// the whole ConfirmGracePeriod, so Tick must record cementation exactly
// once across every tick of that window, not once per tick.
func TestContainerTickFiresCementationOnlyOnceDuringGracePeriod(t *testing.T) {
	weights := repweight.New(0)
	rep := core.Account{9}
	weights.Add(rep, core.NewAmount(1000))
	cfg := testConfig()

	var cemented []core.Hash
	c := New(cfg, weights, func(status election.Status, winner *core.Block) {
		cemented = append(cemented, winner.Hash())
	})

	acct := core.Account{1}
	blk := testBlock(acct, 100)
	_, el := c.Insert(blk, election.NormalBehavior, nil)

	clock := &fakeClock{now: time.Unix(1000, 0)}
	el.SetClock(clock)

	sol := noopSolicitor{}
	c.Tick(sol) // passive -> broadcasting

	if processed, _ := el.Vote(rep, 1, blk.Hash()); !processed {
		t.Fatal("vote should be accepted")
	}
	c.Tick(sol) // broadcasting -> confirmed, cementedAt = clock.now

	if len(cemented) != 1 {
		t.Fatalf("after confirming: got %d cement callbacks want 1", len(cemented))
	}
	if got := len(c.RecentlyCemented()); got != 1 {
		t.Fatalf("after confirming: RecentlyCemented has %d entries want 1", got)
	}

	// Tick repeatedly while still inside the grace period: the election
	// stays Confirmed the whole time, so neither the callback nor the
	// recently_cemented FIFO should grow.
	for i := 0; i < 4; i++ {
		clock.now = clock.now.Add(time.Second)
		c.Tick(sol)
	}
	if len(cemented) != 1 {
		t.Fatalf("mid-grace-period ticks: got %d cement callbacks want 1 (duplicate firing)", len(cemented))
	}
	if got := len(c.RecentlyCemented()); got != 1 {
		t.Fatalf("mid-grace-period ticks: RecentlyCemented has %d entries want 1 (duplicate firing)", got)
	}

	// Advance past the grace period: the election is finally erased.
	clock.now = clock.now.Add(election.ConfirmGracePeriod + time.Second)
	c.Tick(sol)
	if len(c.ListActive(0)) != 0 {
		t.Fatal("the election should be erased once its grace period elapses")
	}
	if len(cemented) != 1 {
		t.Fatalf("after erasure: got %d cement callbacks want 1", len(cemented))
	}
}

package ledger

import (
	"testing"

	"github.com/tolelom/latticenode/core"
)

func TestPruningActionDeletesBodiesButKeepsHead(t *testing.T) {
	p := newTestProcessor(t)
	priv, acct := mustKeyPair(t)
	genesisBlk := openAccount(t, p, priv, acct, core.NewAmount(1000))

	var blocks []*core.Block
	prev := genesisBlk.Hash()
	for i := 0; i < 3; i++ {
		blk := &core.Block{
			Type:           core.State,
			Account:        acct,
			Previous:       prev,
			Representative: acct,
			Balance:        core.NewAmount(1000),
			Link:           core.ZeroHash,
		}
		blk.Sign(priv)
		if res, err := p.Process(blk); err != nil || res != core.Progress {
			t.Fatalf("change %d: res=%s err=%v", i, res, err)
		}
		blocks = append(blocks, blk)
		prev = blk.Hash()
	}
	head := blocks[len(blocks)-1]

	// Start the walk one block before head: PruningAction refuses to
	// prune whatever hash it is given if that hash is the current head.
	pruned, err := p.PruningAction(head.Previous, 10)
	if err != nil {
		t.Fatalf("PruningAction: %v", err)
	}
	// genesis plus the first two changes are pruned; head stays.
	if pruned != 3 {
		t.Fatalf("pruned count: got %d want 3", pruned)
	}

	if ok, err := p.store.IsPruned(head.Hash()); err != nil || ok {
		t.Errorf("the current head must never be pruned: IsPruned=%v err=%v", ok, err)
	}
	if ok, err := p.store.IsPruned(genesisBlk.Hash()); err != nil || !ok {
		t.Errorf("genesis block should be pruned: IsPruned=%v err=%v", ok, err)
	}

	if _, err := p.BalanceSafe(genesisBlk.Hash()); err != core.ErrNotFound {
		t.Errorf("BalanceSafe on a pruned block: got err=%v want ErrNotFound", err)
	}
	if _, err := p.AmountSafe(genesisBlk.Hash()); err != core.ErrNotFound {
		t.Errorf("AmountSafe on a pruned block: got err=%v want ErrNotFound", err)
	}

	// The head itself was never pruned, so queries through it still work.
	if _, err := p.BalanceSafe(head.Hash()); err != nil {
		t.Errorf("BalanceSafe on the live head: unexpected err=%v", err)
	}

	info, err := p.AccountInfo(acct)
	if err != nil {
		t.Fatalf("AccountInfo: %v", err)
	}
	if info.Head != head.Hash() {
		t.Errorf("pruning must not move the account head: got %v want %v", info.Head, head.Hash())
	}
}

func TestPruningActionRespectsSmallBatchSize(t *testing.T) {
	p := newTestProcessor(t)
	priv, acct := mustKeyPair(t)
	genesisBlk := openAccount(t, p, priv, acct, core.NewAmount(1000))

	var blocks []*core.Block
	prev := genesisBlk.Hash()
	for i := 0; i < 3; i++ {
		blk := &core.Block{
			Type:           core.State,
			Account:        acct,
			Previous:       prev,
			Representative: acct,
			Balance:        core.NewAmount(1000),
			Link:           core.ZeroHash,
		}
		blk.Sign(priv)
		if res, err := p.Process(blk); err != nil || res != core.Progress {
			t.Fatalf("change %d: res=%s err=%v", i, res, err)
		}
		blocks = append(blocks, blk)
		prev = blk.Hash()
	}
	head := blocks[len(blocks)-1]

	// batchSize=1 only changes the commit-counter cadence, not what gets
	// walked: the whole eligible range (everything but head) still prunes.
	pruned, err := p.PruningAction(head.Previous, 1)
	if err != nil {
		t.Fatalf("PruningAction: %v", err)
	}
	if pruned != 3 {
		t.Fatalf("pruned count with batchSize=1: got %d want 3", pruned)
	}
}

func TestPruningActionIsSafeToRerun(t *testing.T) {
	p := newTestProcessor(t)
	priv, acct := mustKeyPair(t)
	genesisBlk := openAccount(t, p, priv, acct, core.NewAmount(1000))

	changeBlk := &core.Block{
		Type:           core.State,
		Account:        acct,
		Previous:       genesisBlk.Hash(),
		Representative: acct,
		Balance:        core.NewAmount(1000),
		Link:           core.ZeroHash,
	}
	changeBlk.Sign(priv)
	if res, err := p.Process(changeBlk); err != nil || res != core.Progress {
		t.Fatalf("change: res=%s err=%v", res, err)
	}

	first, err := p.PruningAction(changeBlk.Previous, 10)
	if err != nil {
		t.Fatalf("first PruningAction: %v", err)
	}
	if first != 1 {
		t.Fatalf("first PruningAction count: got %d want 1", first)
	}

	// Re-running over the same range (e.g. after a crash mid-prune) must
	// be a no-op, not an error, even though the genesis block's body is
	// now gone (spec §4.4 pruning safety).
	second, err := p.PruningAction(changeBlk.Previous, 10)
	if err != nil {
		t.Fatalf("second PruningAction: %v", err)
	}
	if second != 0 {
		t.Errorf("re-pruning an already-pruned chain should prune nothing more: got %d want 0", second)
	}
}

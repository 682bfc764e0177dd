package store

import (
	"testing"

	"github.com/tolelom/latticenode/core"
)

func testBlock(acct core.Account, prev core.Hash, height uint64) *core.Block {
	blk := &core.Block{
		Type: core.State, Account: acct, Previous: prev,
		Representative: acct, Balance: core.NewAmount(100),
	}
	blk.Sideband = core.Sideband{Account: acct, Height: height, Balance: blk.Balance}
	return blk
}

func TestVersionDefaultsToZeroOnFreshStore(t *testing.T) {
	s := New(NewMemKV())
	v, err := s.Version()
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v != 0 {
		t.Errorf("Version on a fresh store: got %d want 0", v)
	}
}

func TestSetVersionRoundTrip(t *testing.T) {
	s := New(NewMemKV())
	if err := s.SetVersion(CurrentVersion); err != nil {
		t.Fatalf("SetVersion: %v", err)
	}
	v, err := s.Version()
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v != CurrentVersion {
		t.Errorf("Version: got %d want %d", v, CurrentVersion)
	}
}

func TestPutGetBlockPreservesSideband(t *testing.T) {
	s := New(NewMemKV())
	acct := core.Account{1, 2, 3}
	blk := testBlock(acct, core.ZeroHash, 1)

	if err := s.PutBlock(blk); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	got, err := s.GetBlock(blk.Hash())
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if got.Sideband.Height != 1 || got.Sideband.Account != acct {
		t.Errorf("Sideband not preserved: got %+v", got.Sideband)
	}
	if got.Balance.Cmp(blk.Balance) != 0 {
		t.Errorf("Balance: got %s want %s", got.Balance, blk.Balance)
	}
}

func TestBlockExistsAndDeleteBlock(t *testing.T) {
	s := New(NewMemKV())
	blk := testBlock(core.Account{9}, core.ZeroHash, 1)
	if err := s.PutBlock(blk); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}

	exists, err := s.BlockExists(blk.Hash())
	if err != nil || !exists {
		t.Fatalf("BlockExists after Put: got (%v, %v) want (true, nil)", exists, err)
	}

	if err := s.DeleteBlock(blk.Hash()); err != nil {
		t.Fatalf("DeleteBlock: %v", err)
	}
	exists, err = s.BlockExists(blk.Hash())
	if err != nil || exists {
		t.Fatalf("BlockExists after Delete: got (%v, %v) want (false, nil)", exists, err)
	}
}

func TestSetSuccessorAndClearSuccessor(t *testing.T) {
	s := New(NewMemKV())
	acct := core.Account{4}
	open := testBlock(acct, core.ZeroHash, 1)
	if err := s.PutBlock(open); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	nextHash := core.Hash{0xaa}

	if err := s.SetSuccessor(open.Hash(), nextHash); err != nil {
		t.Fatalf("SetSuccessor: %v", err)
	}
	got, err := s.GetBlock(open.Hash())
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if got.Sideband.Successor != nextHash {
		t.Errorf("Successor after SetSuccessor: got %x want %x", got.Sideband.Successor, nextHash)
	}

	if err := s.ClearSuccessor(open.Hash()); err != nil {
		t.Fatalf("ClearSuccessor: %v", err)
	}
	got, err = s.GetBlock(open.Hash())
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if !got.Sideband.Successor.IsZero() {
		t.Errorf("Successor after ClearSuccessor: got %x want zero", got.Sideband.Successor)
	}
}

func TestPutGetDeleteAccount(t *testing.T) {
	s := New(NewMemKV())
	acct := core.Account{5}
	info := &core.AccountInfo{Head: core.Hash{1}, Balance: core.NewAmount(42), BlockCount: 1}

	if err := s.PutAccount(acct, info); err != nil {
		t.Fatalf("PutAccount: %v", err)
	}
	got, err := s.GetAccount(acct)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.Balance.Cmp(info.Balance) != 0 || got.Head != info.Head {
		t.Errorf("GetAccount: got %+v want %+v", got, info)
	}

	if err := s.DeleteAccount(acct); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if exists, err := s.AccountExists(acct); err != nil || exists {
		t.Fatalf("AccountExists after Delete: got (%v, %v) want (false, nil)", exists, err)
	}
}

func TestCountAccounts(t *testing.T) {
	s := New(NewMemKV())
	for i := byte(0); i < 3; i++ {
		acct := core.Account{i}
		if err := s.PutAccount(acct, &core.AccountInfo{}); err != nil {
			t.Fatalf("PutAccount: %v", err)
		}
	}
	n, err := s.CountAccounts()
	if err != nil {
		t.Fatalf("CountAccounts: %v", err)
	}
	if n != 3 {
		t.Errorf("CountAccounts: got %d want 3", n)
	}
}

func TestPendingForAccountIteratesInHashOrder(t *testing.T) {
	s := New(NewMemKV())
	acct := core.Account{1}
	hashes := []core.Hash{{3}, {1}, {2}}
	for _, h := range hashes {
		key := core.PendingKey{Account: acct, Hash: h}
		if err := s.PutPending(key, &core.PendingEntry{Amount: core.NewAmount(10)}); err != nil {
			t.Fatalf("PutPending: %v", err)
		}
	}

	var seen []core.Hash
	err := s.PendingForAccount(acct, func(k core.PendingKey, _ *core.PendingEntry) bool {
		seen = append(seen, k.Hash)
		return true
	})
	if err != nil {
		t.Fatalf("PendingForAccount: %v", err)
	}
	want := []core.Hash{{1}, {2}, {3}}
	if len(seen) != len(want) {
		t.Fatalf("PendingForAccount: got %d entries want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("PendingForAccount order[%d]: got %x want %x", i, seen[i], want[i])
		}
	}
}

func TestPendingForAccountStopsWhenCallbackReturnsFalse(t *testing.T) {
	s := New(NewMemKV())
	acct := core.Account{1}
	for _, h := range []core.Hash{{1}, {2}, {3}} {
		key := core.PendingKey{Account: acct, Hash: h}
		if err := s.PutPending(key, &core.PendingEntry{}); err != nil {
			t.Fatalf("PutPending: %v", err)
		}
	}

	count := 0
	err := s.PendingForAccount(acct, func(core.PendingKey, *core.PendingEntry) bool {
		count++
		return count < 2
	})
	if err != nil {
		t.Fatalf("PendingForAccount: %v", err)
	}
	if count != 2 {
		t.Errorf("callback invocations: got %d want 2 (should stop early)", count)
	}
}

func TestDeletePending(t *testing.T) {
	s := New(NewMemKV())
	key := core.PendingKey{Account: core.Account{1}, Hash: core.Hash{1}}
	if err := s.PutPending(key, &core.PendingEntry{Amount: core.NewAmount(5)}); err != nil {
		t.Fatalf("PutPending: %v", err)
	}
	if err := s.DeletePending(key); err != nil {
		t.Fatalf("DeletePending: %v", err)
	}
	if _, err := s.GetPending(key); err != core.ErrNotFound {
		t.Errorf("GetPending after Delete: got err=%v want ErrNotFound", err)
	}
}

func TestGetConfirmationHeightDefaultsToZeroValue(t *testing.T) {
	s := New(NewMemKV())
	info, err := s.GetConfirmationHeight(core.Account{1})
	if err != nil {
		t.Fatalf("GetConfirmationHeight: %v", err)
	}
	if info.Height != 0 || !info.Frontier.IsZero() {
		t.Errorf("GetConfirmationHeight for an unconfirmed account: got %+v want zero value", info)
	}
}

func TestPutGetConfirmationHeight(t *testing.T) {
	s := New(NewMemKV())
	acct := core.Account{2}
	want := &core.ConfirmationHeightInfo{Height: 7, Frontier: core.Hash{0x11}}
	if err := s.PutConfirmationHeight(acct, want); err != nil {
		t.Fatalf("PutConfirmationHeight: %v", err)
	}
	got, err := s.GetConfirmationHeight(acct)
	if err != nil {
		t.Fatalf("GetConfirmationHeight: %v", err)
	}
	if got.Height != want.Height || got.Frontier != want.Frontier {
		t.Errorf("GetConfirmationHeight: got %+v want %+v", got, want)
	}
}

func TestFrontierRoundTripAndDelete(t *testing.T) {
	s := New(NewMemKV())
	head := core.Hash{1}
	acct := core.Account{2}

	if err := s.PutFrontier(head, acct); err != nil {
		t.Fatalf("PutFrontier: %v", err)
	}
	got, err := s.GetFrontier(head)
	if err != nil {
		t.Fatalf("GetFrontier: %v", err)
	}
	if got != acct {
		t.Errorf("GetFrontier: got %x want %x", got, acct)
	}

	if err := s.DeleteFrontier(head); err != nil {
		t.Fatalf("DeleteFrontier: %v", err)
	}
	if _, err := s.GetFrontier(head); err != core.ErrNotFound {
		t.Errorf("GetFrontier after Delete: got err=%v want ErrNotFound", err)
	}
}

func TestPrunedRoundTrip(t *testing.T) {
	s := New(NewMemKV())
	h := core.Hash{3}

	pruned, err := s.IsPruned(h)
	if err != nil {
		t.Fatalf("IsPruned: %v", err)
	}
	if pruned {
		t.Fatal("a never-pruned hash should report false")
	}

	if err := s.PutPruned(h); err != nil {
		t.Fatalf("PutPruned: %v", err)
	}
	pruned, err = s.IsPruned(h)
	if err != nil {
		t.Fatalf("IsPruned: %v", err)
	}
	if !pruned {
		t.Error("IsPruned after PutPruned should report true")
	}
}

func TestOnlineWeightSamplesOrderedByTimestamp(t *testing.T) {
	s := New(NewMemKV())
	if err := s.PutOnlineWeightSample(300, core.NewAmount(3)); err != nil {
		t.Fatalf("PutOnlineWeightSample: %v", err)
	}
	if err := s.PutOnlineWeightSample(100, core.NewAmount(1)); err != nil {
		t.Fatalf("PutOnlineWeightSample: %v", err)
	}
	if err := s.PutOnlineWeightSample(200, core.NewAmount(2)); err != nil {
		t.Fatalf("PutOnlineWeightSample: %v", err)
	}

	samples, err := s.OnlineWeightSamplesWithTimestamps()
	if err != nil {
		t.Fatalf("OnlineWeightSamplesWithTimestamps: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("samples: got %d want 3", len(samples))
	}
	for i, want := range []int64{100, 200, 300} {
		if samples[i].Timestamp != want {
			t.Errorf("samples[%d].Timestamp: got %d want %d", i, samples[i].Timestamp, want)
		}
	}
}

func TestDeleteOnlineWeightSample(t *testing.T) {
	s := New(NewMemKV())
	if err := s.PutOnlineWeightSample(100, core.NewAmount(1)); err != nil {
		t.Fatalf("PutOnlineWeightSample: %v", err)
	}
	if err := s.DeleteOnlineWeightSample(100); err != nil {
		t.Fatalf("DeleteOnlineWeightSample: %v", err)
	}
	samples, err := s.OnlineWeightSamples()
	if err != nil {
		t.Fatalf("OnlineWeightSamples: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("samples after delete: got %d want 0", len(samples))
	}
}

func TestPeersAddAndDelete(t *testing.T) {
	s := New(NewMemKV())
	if err := s.PutPeer("10.0.0.1:7075"); err != nil {
		t.Fatalf("PutPeer: %v", err)
	}
	if err := s.PutPeer("10.0.0.2:7075"); err != nil {
		t.Fatalf("PutPeer: %v", err)
	}

	peers, err := s.Peers()
	if err != nil {
		t.Fatalf("Peers: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("Peers: got %d want 2", len(peers))
	}

	if err := s.DeletePeer("10.0.0.1:7075"); err != nil {
		t.Fatalf("DeletePeer: %v", err)
	}
	peers, err = s.Peers()
	if err != nil {
		t.Fatalf("Peers: %v", err)
	}
	if len(peers) != 1 || peers[0] != "10.0.0.2:7075" {
		t.Errorf("Peers after delete: got %v", peers)
	}
}

func TestFinalVoteRoundTrip(t *testing.T) {
	s := New(NewMemKV())
	root := core.Hash{1}

	if _, ok, err := s.GetFinalVote(root); err != nil || ok {
		t.Fatalf("GetFinalVote before any vote: got (ok=%v, err=%v) want (false, nil)", ok, err)
	}

	hash := core.Hash{2}
	if err := s.PutFinalVote(root, hash); err != nil {
		t.Fatalf("PutFinalVote: %v", err)
	}
	got, ok, err := s.GetFinalVote(root)
	if err != nil {
		t.Fatalf("GetFinalVote: %v", err)
	}
	if !ok || got != hash {
		t.Errorf("GetFinalVote: got (%x, %v) want (%x, true)", got, ok, hash)
	}
}

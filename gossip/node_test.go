package gossip

import (
	"testing"
	"time"

	"github.com/tolelom/latticenode/core"
	"github.com/tolelom/latticenode/crypto"
)

func mustStartNode(t *testing.T, id string) *Node {
	t.Helper()
	n := NewNode(id, "127.0.0.1:0", nil, NewExclusion())
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(n.Stop)
	return n
}

func testSignedBlock(t *testing.T) *core.Block {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	acct := core.AccountFromPublicKey(pub)
	blk := &core.Block{
		Type: core.State, Account: acct, Previous: core.ZeroHash,
		Representative: acct, Balance: core.NewAmount(1000), Link: core.ZeroHash,
	}
	blk.Sign(priv)
	return blk
}

func TestNodeBroadcastDeliversBlockToPeer(t *testing.T) {
	server := mustStartNode(t, "server")
	client := mustStartNode(t, "client")

	received := make(chan *core.Block, 1)
	server.OnBlock = func(peer *Peer, blk *core.Block) { received <- blk }

	if err := client.AddPeer("server", server.listener.Addr().String()); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}

	blk := testSignedBlock(t)
	client.Broadcast(blk)

	select {
	case got := <-received:
		if got.Hash() != blk.Hash() {
			t.Errorf("received block hash mismatch: got %s want %s", got.Hash(), blk.Hash())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast block to arrive")
	}
}

func TestNodeBroadcastVoteDeliversToPeer(t *testing.T) {
	server := mustStartNode(t, "server")
	client := mustStartNode(t, "client")

	received := make(chan *core.Vote, 1)
	server.OnVote = func(peer *Peer, v *core.Vote) { received <- v }

	if err := client.AddPeer("server", server.listener.Addr().String()); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}

	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	v := &core.Vote{
		Timestamp: 1,
		Hashes:    []core.Hash{{0xaa}},
	}
	v.Sign(priv, pub)
	client.BroadcastVote(v)

	select {
	case got := <-received:
		if got.Voter != v.Voter || len(got.Hashes) != 1 || got.Hashes[0] != v.Hashes[0] {
			t.Error("received vote does not match the broadcast vote")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast vote to arrive")
	}
}

func TestNodeRequestVotesDeliversConfirmReq(t *testing.T) {
	server := mustStartNode(t, "server")
	client := mustStartNode(t, "client")

	received := make(chan Message, 1)
	server.Handle(MsgConfirmReq, func(peer *Peer, msg Message) { received <- msg })

	if err := client.AddPeer("server", server.listener.Addr().String()); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}

	root := core.Hash{0x01, 0x02}
	client.RequestVotes(root, nil)

	select {
	case msg := <-received:
		if msg.Type != MsgConfirmReq {
			t.Errorf("got message type %s want %s", msg.Type, MsgConfirmReq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for confirm_req to arrive")
	}
}

func TestNodeRejectsExcludedPeer(t *testing.T) {
	excl := NewExclusion()
	addr := "127.0.0.1:1" // never dialed; only IsExcluded matters
	for i := 0; i < exclusionScoreThreshold; i++ {
		excl.RecordFailure(addr)
	}
	client := NewNode("client", "127.0.0.1:0", nil, excl)
	if err := client.AddPeer("server", addr); err == nil {
		t.Error("AddPeer should refuse an excluded address")
	}
}

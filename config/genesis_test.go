package config

import (
	"encoding/hex"
	"testing"

	"github.com/tolelom/latticenode/core"
	"github.com/tolelom/latticenode/crypto"
	"github.com/tolelom/latticenode/epoch"
	"github.com/tolelom/latticenode/ledger"
	"github.com/tolelom/latticenode/repweight"
	"github.com/tolelom/latticenode/store"
)

type acceptAllWork struct{}

func (acceptAllWork) Validate(core.Hash, core.Work, uint64) bool { return true }

func newTestLedger(t *testing.T) *ledger.Processor {
	t.Helper()
	st := store.New(store.NewMemKV())
	weights := repweight.New(0)
	registry := epoch.NewRegistry()
	registry.Register(core.Epoch0, nil, core.ZeroHash)
	return ledger.New(st, weights, registry, acceptAllWork{})
}

func genesisConfigFor(t *testing.T, priv crypto.PrivateKey, pub crypto.PublicKey, balance string) GenesisConfig {
	t.Helper()
	acct := core.AccountFromPublicKey(pub)
	blk := &core.Block{
		Type: core.State, Account: acct, Previous: core.ZeroHash,
		Representative: acct, Link: core.ZeroHash,
	}
	bal, err := ParseAmount(balance)
	if err != nil {
		t.Fatalf("ParseAmount: %v", err)
	}
	blk.Balance = bal
	blk.Sign(priv)
	return GenesisConfig{
		Account:   pub.Hex(),
		Balance:   balance,
		Signature: hex.EncodeToString(blk.Signature[:]),
	}
}

func TestBuildGenesisBlockDefaultsRepresentativeToAccount(t *testing.T) {
	_, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	g := GenesisConfig{Account: pub.Hex(), Balance: "1000"}
	blk, err := BuildGenesisBlock(g)
	if err != nil {
		t.Fatalf("BuildGenesisBlock: %v", err)
	}
	if blk.Representative != blk.Account {
		t.Error("representative should default to the genesis account")
	}
	if blk.Balance.Cmp(core.NewAmount(1000)) != 0 {
		t.Errorf("Balance: got %s want 1000", blk.Balance)
	}
}

func TestBuildGenesisBlockRejectsMalformedAccount(t *testing.T) {
	g := GenesisConfig{Account: "not-hex", Balance: "1000"}
	if _, err := BuildGenesisBlock(g); err == nil {
		t.Error("expected an error for a malformed genesis.account")
	}
}

func TestInstallGenesisOpensTheGenesisAccount(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	g := genesisConfigFor(t, priv, pub, "1000000")
	l := newTestLedger(t)

	blk, err := InstallGenesis(l, g)
	if err != nil {
		t.Fatalf("InstallGenesis: %v", err)
	}

	acct := core.AccountFromPublicKey(pub)
	info, err := l.AccountInfo(acct)
	if err != nil {
		t.Fatalf("AccountInfo: %v", err)
	}
	if info == nil {
		t.Fatal("genesis account should be open after InstallGenesis")
	}
	if info.Head != blk.Hash() {
		t.Error("genesis account's head should be the installed genesis block")
	}
	if info.Balance.Cmp(core.NewAmount(1000000)) != 0 {
		t.Errorf("Balance: got %s want 1000000", info.Balance)
	}
}

func TestInstallGenesisIsIdempotentAcrossRestarts(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	g := genesisConfigFor(t, priv, pub, "42")
	l := newTestLedger(t)

	if _, err := InstallGenesis(l, g); err != nil {
		t.Fatalf("first InstallGenesis: %v", err)
	}
	// a second node startup against the same store should not error out.
	if _, err := InstallGenesis(l, g); err != nil {
		t.Fatalf("second InstallGenesis (idempotent replay): %v", err)
	}
}

func TestInstallGenesisRejectsBadSignature(t *testing.T) {
	_, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	otherPriv, otherPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	g := genesisConfigFor(t, otherPriv, otherPub, "42")
	g.Account = pub.Hex() // claims a different account than the one actually signed

	l := newTestLedger(t)
	if _, err := InstallGenesis(l, g); err == nil {
		t.Error("InstallGenesis should reject a genesis block signed by the wrong key")
	}
}

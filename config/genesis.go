package config

import (
	"encoding/hex"
	"fmt"

	"github.com/tolelom/latticenode/core"
	"github.com/tolelom/latticenode/ledger"
)

// BuildGenesisBlock constructs the signed state block that opens the
// genesis account with the entire raw-unit supply (spec §4.4 genesis
// invariant: "exactly one account, the genesis account, is opened with no
// preceding send"). It is a first state block (Previous is the zero hash)
// rather than a legacy Open block, matching how every other account in
// this ledger opens.
func BuildGenesisBlock(g GenesisConfig) (*core.Block, error) {
	account, err := core.AccountFromHex(g.Account)
	if err != nil {
		return nil, fmt.Errorf("config: genesis.account: %w", err)
	}
	rep := account
	if g.Representative != "" {
		rep, err = core.AccountFromHex(g.Representative)
		if err != nil {
			return nil, fmt.Errorf("config: genesis.representative: %w", err)
		}
	}
	balance, err := ParseAmount(g.Balance)
	if err != nil {
		return nil, fmt.Errorf("config: genesis.balance: %w", err)
	}
	sig, err := hexSignature(g.Signature)
	if err != nil {
		return nil, fmt.Errorf("config: genesis.signature: %w", err)
	}

	blk := &core.Block{
		Type:           core.State,
		Account:        account,
		Previous:       core.ZeroHash,
		Representative: rep,
		Balance:        balance,
		Link:           core.ZeroHash,
		Signature:      sig,
		Work:           core.Work(g.Work),
	}
	return blk, nil
}

// InstallGenesis processes the genesis block into an otherwise-empty
// ledger, so the genesis account exists before the node accepts any other
// block. It is a no-op if the genesis block has already been processed on
// a prior run (the ledger reports core.Old).
func InstallGenesis(l *ledger.Processor, g GenesisConfig) (*core.Block, error) {
	blk, err := BuildGenesisBlock(g)
	if err != nil {
		return nil, err
	}
	result, err := l.InstallGenesis(blk)
	if err != nil {
		return nil, fmt.Errorf("config: install genesis: %w", err)
	}
	if result != core.Progress && result != core.Old {
		return nil, fmt.Errorf("config: install genesis: ledger rejected genesis block: %s", result)
	}
	return blk, nil
}

func hexSignature(s string) (core.Signature, error) {
	var sig core.Signature
	if s == "" {
		return sig, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return sig, err
	}
	if len(raw) != len(sig) {
		return sig, fmt.Errorf("signature must be %d bytes, got %d", len(sig), len(raw))
	}
	copy(sig[:], raw)
	return sig, nil
}

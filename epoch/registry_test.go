package epoch

import (
	"testing"

	"github.com/tolelom/latticenode/core"
	"github.com/tolelom/latticenode/crypto"
)

func TestRegistryEpochOfAndSigner(t *testing.T) {
	_, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	sentinel := core.Hash{1, 2, 3}

	r := NewRegistry()
	r.Register(core.Epoch1, pub, sentinel)

	tier, ok := r.EpochOf(sentinel)
	if !ok || tier != core.Epoch1 {
		t.Fatalf("EpochOf: got (%v, %v) want (epoch_1, true)", tier, ok)
	}

	signer, err := r.Signer(core.Epoch1)
	if err != nil {
		t.Fatalf("Signer: %v", err)
	}
	if signer.Hex() != pub.Hex() {
		t.Error("Signer should return the registered key")
	}

	if _, ok := r.EpochOf(core.Hash{9, 9, 9}); ok {
		t.Error("an unregistered sentinel should not resolve to a tier")
	}
}

func TestRegistrySignerUnregisteredTierErrors(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Signer(core.Epoch2); err == nil {
		t.Error("expected an error for an unregistered tier")
	}
	if _, err := r.Sentinel(core.Epoch2); err == nil {
		t.Error("expected an error for an unregistered tier's sentinel")
	}
}

func TestIsSequentialOnlyAllowsSingleStepUpgrade(t *testing.T) {
	r := NewRegistry()
	if !r.IsSequential(core.Epoch0, core.Epoch1) {
		t.Error("epoch_0 -> epoch_1 is a valid single-step upgrade")
	}
	if r.IsSequential(core.Epoch0, core.Epoch2) {
		t.Error("epoch_0 -> epoch_2 skips epoch_1 and should be rejected")
	}
	if r.IsSequential(core.Epoch1, core.Epoch1) {
		t.Error("a no-op transition is not a sequential upgrade")
	}
}

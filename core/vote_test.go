package core

import (
	"math"
	"testing"

	"github.com/tolelom/latticenode/crypto"
)

func TestVoteSignVerifyRoundtrip(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	v := &Vote{Timestamp: 12345, Hashes: []Hash{{1, 2, 3}, {4, 5, 6}}}
	v.Sign(priv, pub)
	if err := v.VerifySignature(); err != nil {
		t.Errorf("valid vote should verify: %v", err)
	}

	v.Hashes[0][0] ^= 0xff
	if err := v.VerifySignature(); err == nil {
		t.Error("tampered vote should fail to verify")
	}
}

func TestVoteEncodeDecodeRoundtrip(t *testing.T) {
	priv, pub, _ := crypto.GenerateKeyPair()
	v := &Vote{Timestamp: 999, Hashes: []Hash{{7}, {8}, {9}}}
	v.Sign(priv, pub)

	wire, err := v.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := DecodeVote(wire)
	if err != nil {
		t.Fatalf("DecodeVote: %v", err)
	}
	if decoded.Voter != v.Voter || decoded.Timestamp != v.Timestamp {
		t.Error("decoded vote fields mismatch")
	}
	if len(decoded.Hashes) != len(v.Hashes) {
		t.Fatalf("hash count mismatch: got %d want %d", len(decoded.Hashes), len(v.Hashes))
	}
	for i := range v.Hashes {
		if decoded.Hashes[i] != v.Hashes[i] {
			t.Errorf("hash %d mismatch", i)
		}
	}
}

func TestVoteIsFinal(t *testing.T) {
	final := &Vote{Timestamp: math.MaxUint64}
	if !final.IsFinal() {
		t.Error("MaxUint64 timestamp should be final")
	}
	if final.WallTimeMS() != 0 {
		t.Error("a final vote should report zero wall time")
	}
	notFinal := &Vote{Timestamp: 1000}
	if notFinal.IsFinal() {
		t.Error("an ordinary timestamp should not be final")
	}
}

func TestDecodeVoteRejectsTruncatedHashCount(t *testing.T) {
	priv, pub, _ := crypto.GenerateKeyPair()
	v := &Vote{Timestamp: 1, Hashes: []Hash{{1}, {2}}}
	v.Sign(priv, pub)
	wire, _ := v.Encode()
	if _, err := DecodeVote(wire[:len(wire)-1]); err == nil {
		t.Error("truncated vote wire should fail to decode")
	}
}

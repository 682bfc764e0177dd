package core

import (
	"math/big"
	"testing"
)

func TestAmountArithmetic(t *testing.T) {
	a := NewAmount(100)
	b := NewAmount(40)
	if got := a.Sub(b).String(); got != "60" {
		t.Errorf("Sub: got %s want 60", got)
	}
	if got := a.Add(b).String(); got != "140" {
		t.Errorf("Add: got %s want 140", got)
	}
	if !b.LessThan(a) {
		t.Error("LessThan: 40 should be less than 100")
	}
	if !a.GreaterOrEqual(a) {
		t.Error("GreaterOrEqual: a should be >= itself")
	}
	if !ZeroAmount().IsZero() {
		t.Error("ZeroAmount should be zero")
	}
}

func TestAmountBytes16Roundtrip(t *testing.T) {
	n, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	a := AmountFromBig(n)
	b16 := a.Bytes16()
	back := AmountFromBytes16(b16)
	if back.Cmp(a) != 0 {
		t.Errorf("roundtrip mismatch: got %s want %s", back, a)
	}
}

func TestAmountJSONRoundtrip(t *testing.T) {
	a := NewAmount(9001)
	data, err := a.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	var back Amount
	if err := back.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if back.Cmp(a) != 0 {
		t.Errorf("roundtrip mismatch: got %s want %s", back, a)
	}
}

func TestHashFromHexRejectsWrongLength(t *testing.T) {
	if _, err := HashFromHex("ab"); err == nil {
		t.Error("expected error for short hex")
	}
	full := make([]byte, HashSize*2)
	for i := range full {
		full[i] = '0'
	}
	if _, err := HashFromHex(string(full)); err != nil {
		t.Errorf("valid-length hex should parse: %v", err)
	}
}

func TestWorkBytesRoundtrip(t *testing.T) {
	w := Work(0x0102030405060708)
	back := WorkFromBytes(w.Bytes())
	if back != w {
		t.Errorf("roundtrip mismatch: got %x want %x", back, w)
	}
}

func TestAccountFromHexRejectsWrongLength(t *testing.T) {
	if _, err := AccountFromHex("deadbeef"); err == nil {
		t.Error("expected error for short account hex")
	}
}

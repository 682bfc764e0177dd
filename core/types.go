// Package core holds the block-lattice data model shared by the ledger,
// vote, election and wallet packages: block variants and their sideband,
// account/pending/confirmation-height records, and the process-result
// vocabulary the ledger returns.
package core

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/tolelom/latticenode/crypto"
)

// HashSize is the width in bytes of a block hash.
const HashSize = crypto.HashSize

// Hash identifies a block by the BLAKE2b-256 digest of its hashables.
type Hash [HashSize]byte

// ZeroHash is the canonical "no predecessor" / "no link" sentinel.
var ZeroHash Hash

// IsZero reports whether h is the all-zero sentinel.
func (h Hash) IsZero() bool { return h == ZeroHash }

// String returns the lowercase hex encoding of h.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// HashFromHex parses a 64-char hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Account is an ed25519 public key identifying one block-lattice chain.
type Account [32]byte

// ZeroAccount is the canonical "no representative / unopened" sentinel.
// It also identifies the burn account: sends to ZeroAccount can never be
// received (§4.4, OpenedBurnAccount).
var ZeroAccount Account

func (a Account) IsZero() bool { return a == ZeroAccount }
func (a Account) String() string { return hex.EncodeToString(a[:]) }

// AccountFromHex parses a 64-char hex ed25519 public key into an Account.
func AccountFromHex(s string) (Account, error) {
	var a Account
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("invalid account hex: %w", err)
	}
	if len(b) != len(a) {
		return a, fmt.Errorf("account must be %d bytes, got %d", len(a), len(b))
	}
	copy(a[:], b)
	return a, nil
}

// AccountFromPublicKey converts a crypto.PublicKey to an Account.
func AccountFromPublicKey(pub crypto.PublicKey) Account {
	var a Account
	copy(a[:], pub)
	return a
}

// PublicKey returns a back into a crypto.PublicKey for signature checks.
func (a Account) PublicKey() crypto.PublicKey {
	return crypto.PublicKey(append([]byte(nil), a[:]...))
}

// Signature is a raw 64-byte ed25519 signature.
type Signature [64]byte

// Work is an 8-byte proof-of-work nonce, big-endian on the wire (§6.1).
type Work uint64

func (w Work) Bytes() [8]byte {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[7-i] = byte(w >> (8 * i))
	}
	return b
}

func WorkFromBytes(b [8]byte) Work {
	var w Work
	for i := 0; i < 8; i++ {
		w = (w << 8) | Work(b[i])
	}
	return w
}

// Amount is a non-negative 128-bit balance/value, stored as a big.Int.
type Amount struct{ v *big.Int }

// ZeroAmount returns the zero amount.
func ZeroAmount() Amount { return Amount{v: new(big.Int)} }

// NewAmount wraps n (n must be >= 0).
func NewAmount(n uint64) Amount { return Amount{v: new(big.Int).SetUint64(n)} }

// AmountFromBig wraps an existing big.Int, copying it defensively.
func AmountFromBig(n *big.Int) Amount {
	if n == nil {
		return ZeroAmount()
	}
	return Amount{v: new(big.Int).Set(n)}
}

// AmountFromBytes16 decodes a 16-byte big-endian amount (§6.1 balance field).
func AmountFromBytes16(b [16]byte) Amount {
	return Amount{v: new(big.Int).SetBytes(b[:])}
}

// Bytes16 encodes the amount as a 16-byte big-endian value. Panics if the
// amount does not fit (ledger invariants guarantee it always does).
func (a Amount) Bytes16() [16]byte {
	var out [16]byte
	if a.v == nil {
		return out
	}
	b := a.v.Bytes()
	if len(b) > 16 {
		panic("core: amount overflows 128 bits")
	}
	copy(out[16-len(b):], b)
	return out
}

func (a Amount) Big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.v)
}

func (a Amount) String() string {
	if a.v == nil {
		return "0"
	}
	return a.v.String()
}

func (a Amount) IsZero() bool { return a.v == nil || a.v.Sign() == 0 }
func (a Amount) Sign() int {
	if a.v == nil {
		return 0
	}
	return a.v.Sign()
}

func (a Amount) Cmp(b Amount) int { return a.Big().Cmp(b.Big()) }

func (a Amount) Add(b Amount) Amount { return Amount{v: new(big.Int).Add(a.Big(), b.Big())} }
func (a Amount) Sub(b Amount) Amount { return Amount{v: new(big.Int).Sub(a.Big(), b.Big())} }

// LessThan reports whether a < b.
func (a Amount) LessThan(b Amount) bool { return a.Cmp(b) < 0 }

// GreaterOrEqual reports whether a >= b.
func (a Amount) GreaterOrEqual(b Amount) bool { return a.Cmp(b) >= 0 }

// MarshalJSON/UnmarshalJSON let Amount round-trip through the store and RPC
// layers as a decimal string, avoiding float64 precision loss on 128-bit
// values.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" {
		s = "0"
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid amount %q", s)
	}
	a.v = n
	return nil
}

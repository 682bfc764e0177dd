package core

import (
	"fmt"

	"github.com/tolelom/latticenode/crypto"
)

// BlockType names one of the five block variants (spec §3).
type BlockType uint8

const (
	Send BlockType = iota
	Receive
	Open
	Change
	State
)

func (t BlockType) String() string {
	switch t {
	case Send:
		return "send"
	case Receive:
		return "receive"
	case Open:
		return "open"
	case Change:
		return "change"
	case State:
		return "state"
	default:
		return "unknown"
	}
}

// BlockDetails is the classification computed at insertion time and stored
// in the sideband; it is never trusted from the wire.
type BlockDetails struct {
	Epoch     Tier
	IsSend    bool
	IsReceive bool
	IsEpoch   bool
}

// Sideband is per-block metadata computed at insertion and persisted
// alongside the block body. It is local-only and never transmitted.
type Sideband struct {
	Account        Account
	Successor      Hash // zero until a child block is processed
	Balance        Amount
	Representative Account // the account's representative as of this block
	Height         uint64
	Timestamp      int64
	Details        BlockDetails
	SourceEpoch    Tier
}

// Block is a tagged union over the five wire variants. Only the fields
// relevant to Type are meaningful; validation code switches on Type the
// way a visitor would over a proper sum type (spec §9).
type Block struct {
	Type BlockType

	// Legacy send/receive/open/change fields.
	Previous       Hash    // send, receive, change; zero for the first block of a chain
	Destination    Account // send
	Source         Hash    // receive, open: hash of the send block being received
	Representative Account // open, change, state
	Account        Account // open, state: the account this block belongs to

	// State-universal fields (also reused as "resulting balance" for send).
	Balance Amount
	Link    Hash // state: destination account (as Hash), source hash, or epoch sentinel

	Signature Signature
	Work      Work

	Sideband Sideband

	hash *Hash
}

// Hashables returns the bytes that are hashed to produce the block hash,
// laid out per spec §6.1 (minus signature and work, which are never part
// of the hash).
func (b *Block) Hashables() []byte {
	switch b.Type {
	case Send:
		buf := make([]byte, 0, 32+32+16)
		buf = append(buf, b.Previous[:]...)
		buf = append(buf, b.Destination[:]...)
		bal := b.Balance.Bytes16()
		buf = append(buf, bal[:]...)
		return buf
	case Receive:
		buf := make([]byte, 0, 64)
		buf = append(buf, b.Previous[:]...)
		buf = append(buf, b.Source[:]...)
		return buf
	case Open:
		buf := make([]byte, 0, 96)
		buf = append(buf, b.Source[:]...)
		buf = append(buf, b.Representative[:]...)
		buf = append(buf, b.Account[:]...)
		return buf
	case Change:
		buf := make([]byte, 0, 64)
		buf = append(buf, b.Previous[:]...)
		buf = append(buf, b.Representative[:]...)
		return buf
	case State:
		buf := make([]byte, 0, 32*5+16)
		buf = append(buf, b.Account[:]...)
		buf = append(buf, b.Previous[:]...)
		buf = append(buf, b.Representative[:]...)
		bal := b.Balance.Bytes16()
		buf = append(buf, bal[:]...)
		buf = append(buf, b.Link[:]...)
		return buf
	default:
		panic(fmt.Sprintf("core: unknown block type %d", b.Type))
	}
}

// Hash returns the (cached) BLAKE2b-256 hash of the block's hashables.
func (b *Block) Hash() Hash {
	if b.hash != nil {
		return *b.hash
	}
	h := Hash(crypto.Hash(b.Hashables()))
	b.hash = &h
	return h
}

// InvalidateHash clears the cached hash after in-place field mutation
// (used only by tests constructing malformed blocks).
func (b *Block) InvalidateHash() { b.hash = nil }

// WorkSubject returns the hash that the work nonce must be computed against:
// Account for an unopened chain's first state block or an Open block,
// Previous otherwise (spec §6.1).
func (b *Block) WorkSubject() Hash {
	switch b.Type {
	case Open:
		return Hash(b.Account)
	case State:
		if b.Previous.IsZero() {
			return Hash(b.Account)
		}
		return b.Previous
	default:
		return b.Previous
	}
}

// Sign signs the block hash with priv and sets Signature.
func (b *Block) Sign(priv crypto.PrivateKey) {
	h := b.Hash()
	b.Signature = Signature(crypto.SignRaw(priv, h[:]))
}

// VerifySignature checks Signature against h's hash using signer.
func (b *Block) VerifySignature(signer crypto.PublicKey) error {
	h := b.Hash()
	return crypto.VerifyRaw(signer, h[:], [64]byte(b.Signature))
}

// SignerAccount returns the account whose key must have signed this block:
// the block's own account for every variant except a state-epoch block,
// which is signed by the epoch registry's signer (spec §4.4 rule 3). The
// epoch case is resolved by the caller (ledger), which has the registry.
func (b *Block) SignerAccount() Account {
	switch b.Type {
	case Open, State:
		return b.Account
	default:
		// Legacy send/receive/change: account is implied by the chain this
		// block extends, which the ledger resolves via Previous → account lookup.
		return ZeroAccount
	}
}

// RootHash returns the qualified root used to key elections (spec GLOSSARY:
// "(previous_hash, account_if_open)"). For a non-open block this is simply
// Previous; for the first block of a chain it is the account encoded as a
// hash so it never collides with a real previous hash.
func (b *Block) RootHash() Hash {
	if !b.Previous.IsZero() {
		return b.Previous
	}
	var h Hash
	copy(h[:], b.Account[:])
	return h
}

// Clone returns a deep copy, used by rollback to snapshot blocks before
// mutating successor/sideband state.
func (b *Block) Clone() *Block {
	cp := *b
	if b.hash != nil {
		h := *b.hash
		cp.hash = &h
	}
	return &cp
}

// --- wire encode/decode, fixed per-variant layout (spec §6.1) ---

func putHash(buf []byte, off int, h Hash) int  { copy(buf[off:], h[:]); return off + len(h) }
func putAcct(buf []byte, off int, a Account) int { copy(buf[off:], a[:]); return off + len(a) }

// Encode serializes the block per its variant's fixed wire layout.
func (b *Block) Encode() []byte {
	switch b.Type {
	case Send:
		buf := make([]byte, 32+32+16+64+8)
		off := 0
		off = putHash(buf, off, b.Previous)
		off = putAcct(buf, off, b.Destination)
		bal := b.Balance.Bytes16()
		off += copy(buf[off:], bal[:])
		off += copy(buf[off:], b.Signature[:])
		wb := b.Work.Bytes()
		copy(buf[off:], wb[:])
		return buf
	case Receive:
		buf := make([]byte, 32+32+64+8)
		off := 0
		off = putHash(buf, off, b.Previous)
		off = putHash(buf, off, b.Source)
		off += copy(buf[off:], b.Signature[:])
		wb := b.Work.Bytes()
		copy(buf[off:], wb[:])
		return buf
	case Open:
		buf := make([]byte, 32+32+32+64+8)
		off := 0
		off = putHash(buf, off, b.Source)
		off = putAcct(buf, off, b.Representative)
		off = putAcct(buf, off, b.Account)
		off += copy(buf[off:], b.Signature[:])
		wb := b.Work.Bytes()
		copy(buf[off:], wb[:])
		return buf
	case Change:
		buf := make([]byte, 32+32+64+8)
		off := 0
		off = putHash(buf, off, b.Previous)
		off = putAcct(buf, off, b.Representative)
		off += copy(buf[off:], b.Signature[:])
		wb := b.Work.Bytes()
		copy(buf[off:], wb[:])
		return buf
	case State:
		buf := make([]byte, 32+32+32+16+32+64+8)
		off := 0
		off = putAcct(buf, off, b.Account)
		off = putHash(buf, off, b.Previous)
		off = putAcct(buf, off, b.Representative)
		bal := b.Balance.Bytes16()
		off += copy(buf[off:], bal[:])
		off = putHash(buf, off, b.Link)
		off += copy(buf[off:], b.Signature[:])
		wb := b.Work.Bytes()
		copy(buf[off:], wb[:])
		return buf
	default:
		panic(fmt.Sprintf("core: unknown block type %d", b.Type))
	}
}

// DecodeBlock parses data as typ per its fixed wire layout.
func DecodeBlock(typ BlockType, data []byte) (*Block, error) {
	readHash := func(off int) Hash { var h Hash; copy(h[:], data[off:off+32]); return h }
	readAcct := func(off int) Account { var a Account; copy(a[:], data[off:off+32]); return a }
	readSig := func(off int) Signature { var s Signature; copy(s[:], data[off:off+64]); return s }
	readWork := func(off int) Work {
		var wb [8]byte
		copy(wb[:], data[off:off+8])
		return WorkFromBytes(wb)
	}

	b := &Block{Type: typ}
	switch typ {
	case Send:
		const want = 32 + 32 + 16 + 64 + 8
		if len(data) != want {
			return nil, fmt.Errorf("core: send block wants %d bytes, got %d", want, len(data))
		}
		b.Previous = readHash(0)
		b.Destination = readAcct(32)
		var bal [16]byte
		copy(bal[:], data[64:80])
		b.Balance = AmountFromBytes16(bal)
		b.Signature = readSig(80)
		b.Work = readWork(144)
	case Receive:
		const want = 32 + 32 + 64 + 8
		if len(data) != want {
			return nil, fmt.Errorf("core: receive block wants %d bytes, got %d", want, len(data))
		}
		b.Previous = readHash(0)
		b.Source = readHash(32)
		b.Signature = readSig(64)
		b.Work = readWork(128)
	case Open:
		const want = 32 + 32 + 32 + 64 + 8
		if len(data) != want {
			return nil, fmt.Errorf("core: open block wants %d bytes, got %d", want, len(data))
		}
		b.Source = readHash(0)
		b.Representative = readAcct(32)
		b.Account = readAcct(64)
		b.Signature = readSig(96)
		b.Work = readWork(160)
	case Change:
		const want = 32 + 32 + 64 + 8
		if len(data) != want {
			return nil, fmt.Errorf("core: change block wants %d bytes, got %d", want, len(data))
		}
		b.Previous = readHash(0)
		b.Representative = readAcct(32)
		b.Signature = readSig(64)
		b.Work = readWork(128)
	case State:
		const want = 32 + 32 + 32 + 16 + 32 + 64 + 8
		if len(data) != want {
			return nil, fmt.Errorf("core: state block wants %d bytes, got %d", want, len(data))
		}
		b.Account = readAcct(0)
		b.Previous = readHash(32)
		b.Representative = readAcct(64)
		var bal [16]byte
		copy(bal[:], data[96:112])
		b.Balance = AmountFromBytes16(bal)
		b.Link = readHash(112)
		b.Signature = readSig(144)
		b.Work = readWork(208)
	default:
		return nil, fmt.Errorf("core: unknown block type %d", typ)
	}
	return b, nil
}

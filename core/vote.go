package core

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tolelom/latticenode/crypto"
)

// durationMask isolates the low 4 bits of the wire timestamp, which pack a
// duration code (vote rebroadcast interval) alongside the millisecond wall
// timestamp in the remaining 60 bits, mirroring how the block-lattice wire
// vote packs both into a single u64 (spec §4: "timestamp_u64, duration_code").
const durationMask = 0xf

// Vote is a representative's ballot for one or more qualified roots,
// carrying one candidate hash per root it is voting on (spec §4).
type Vote struct {
	Voter     Account
	Timestamp uint64 // raw wire value: high bits = ms wall time, low 4 bits = duration code
	Hashes    []Hash
	Signature Signature
}

// IsFinal reports whether this is a final vote: timestamp == duration ==
// math.MaxUint64, which overrides any non-final vote from the same
// representative (spec §4, §6.2).
func (v *Vote) IsFinal() bool { return v.Timestamp == math.MaxUint64 }

// WallTimeMS returns the millisecond timestamp component, or 0 for a final
// vote (which carries no meaningful wall time).
func (v *Vote) WallTimeMS() uint64 {
	if v.IsFinal() {
		return 0
	}
	return v.Timestamp &^ durationMask
}

// DurationCode returns the low 4-bit rebroadcast-duration code.
func (v *Vote) DurationCode() uint8 {
	return uint8(v.Timestamp & durationMask)
}

// Hashables returns the bytes signed by the voter: the timestamp followed
// by each candidate hash in order (spec §6.2 field order minus account and
// signature, which are never part of the signed payload).
func (v *Vote) Hashables() []byte {
	buf := make([]byte, 8, 8+len(v.Hashes)*HashSize)
	binary.BigEndian.PutUint64(buf, v.Timestamp)
	for _, h := range v.Hashes {
		buf = append(buf, h[:]...)
	}
	return buf
}

// Sign signs the vote with priv and sets Voter/Signature.
func (v *Vote) Sign(priv crypto.PrivateKey, pub crypto.PublicKey) {
	v.Voter = AccountFromPublicKey(pub)
	v.Signature = Signature(crypto.SignRaw(priv, v.Hashables()))
}

// VerifySignature checks Signature against the voter's claimed public key.
func (v *Vote) VerifySignature() error {
	return crypto.VerifyRaw(v.Voter.PublicKey(), v.Hashables(), [64]byte(v.Signature))
}

// MaxHashesPerVote bounds the hash_count wire field to a single byte.
const MaxHashesPerVote = 255

// Encode serializes the vote per spec §6.2:
// account[32] || signature[64] || timestamp[8] || hash_count[1] || hash_count × hash[32].
func (v *Vote) Encode() ([]byte, error) {
	if len(v.Hashes) > MaxHashesPerVote {
		return nil, fmt.Errorf("core: vote carries %d hashes, max %d", len(v.Hashes), MaxHashesPerVote)
	}
	buf := make([]byte, 0, 32+64+8+1+len(v.Hashes)*HashSize)
	buf = append(buf, v.Voter[:]...)
	buf = append(buf, v.Signature[:]...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], v.Timestamp)
	buf = append(buf, ts[:]...)
	buf = append(buf, byte(len(v.Hashes)))
	for _, h := range v.Hashes {
		buf = append(buf, h[:]...)
	}
	return buf, nil
}

// DecodeVote parses data per the §6.2 wire layout.
func DecodeVote(data []byte) (*Vote, error) {
	const header = 32 + 64 + 8 + 1
	if len(data) < header {
		return nil, fmt.Errorf("core: vote too short: %d bytes", len(data))
	}
	v := &Vote{}
	copy(v.Voter[:], data[0:32])
	copy(v.Signature[:], data[32:96])
	v.Timestamp = binary.BigEndian.Uint64(data[96:104])
	count := int(data[104])
	want := header + count*HashSize
	if len(data) != want {
		return nil, fmt.Errorf("core: vote declares %d hashes, wants %d bytes, got %d", count, want, len(data))
	}
	v.Hashes = make([]Hash, count)
	off := header
	for i := 0; i < count; i++ {
		copy(v.Hashes[i][:], data[off:off+HashSize])
		off += HashSize
	}
	return v, nil
}

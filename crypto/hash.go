package crypto

import "golang.org/x/crypto/blake2b"

// HashSize is the length in bytes of a block/vote hash.
const HashSize = 32

// Hash returns the BLAKE2b-256 digest of the concatenation of data.
// Block and vote hashables are hashed with BLAKE2b rather than SHA-256,
// matching the wire contract in spec §6.1/§6.2.
func Hash(data ...[]byte) [HashSize]byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		// New256 only errors on an oversized key, which we never pass.
		panic("crypto: blake2b.New256: " + err.Error())
	}
	for _, d := range data {
		h.Write(d)
	}
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HashBytes returns the BLAKE2b-256 digest of the concatenation of data as a slice.
func HashBytes(data ...[]byte) []byte {
	out := Hash(data...)
	return out[:]
}

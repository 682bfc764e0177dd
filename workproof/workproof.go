// Package workproof names the external proof-of-work collaborator (spec
// §1 Non-goals: "the work-proof generator (PoW puzzle)" is out of scope).
// The ledger only needs to validate a supplied nonce against a difficulty
// threshold behind the Validator interface. Generation sits behind the
// Generator interface; CPUGenerator (cpu.go) is a plain brute-force
// default implementation of it.
package workproof

import (
	"encoding/binary"

	"github.com/tolelom/latticenode/core"
	"github.com/tolelom/latticenode/crypto"
)

// Validator checks whether work meets threshold for subject (spec §4.4
// rule 4: "work nonce meets the per-variant difficulty threshold").
type Validator interface {
	Validate(subject core.Hash, work core.Work, threshold uint64) bool
}

// Generator searches for a work value meeting threshold for subject. Real
// implementations run this on a GPU/CPU worker pool external to the
// ledger; Generate may block for an arbitrary duration.
type Generator interface {
	Generate(subject core.Hash, threshold uint64) (core.Work, error)
}

// Blake2Validator computes the work value the way the wire protocol does:
// hash(work_be ‖ subject) interpreted as a big-endian u64 must be ≥
// threshold. This mirrors the block-lattice PoW scheme without committing
// to any particular search strategy for Generate.
type Blake2Validator struct{}

func (Blake2Validator) Validate(subject core.Hash, work core.Work, threshold uint64) bool {
	wb := work.Bytes()
	digest := crypto.Hash(wb[:], subject[:])
	// The top 8 bytes of the digest, read big-endian, are compared against
	// the threshold the same way the reference node's work_value does.
	return binary.BigEndian.Uint64(digest[:8]) >= threshold
}

package ledger

import "github.com/tolelom/latticenode/core"

// Difficulty thresholds per block class (spec §4.4 rule 4, §6.4). Receive
// and epoch blocks share the higher threshold; send and change blocks
// use the lower DifficultySend.
const (
	DifficultySend    uint64 = 0xffffffc000000000
	DifficultyReceive uint64 = 0xfffffff800000000
	DifficultyEpoch   uint64 = 0xfffffff800000000
)

// ThresholdFor returns the work difficulty required for a block whose
// details were computed as d.
func ThresholdFor(d core.BlockDetails) uint64 {
	switch {
	case d.IsEpoch:
		return DifficultyEpoch
	case d.IsReceive && !d.IsSend:
		return DifficultyReceive
	default:
		return DifficultySend
	}
}

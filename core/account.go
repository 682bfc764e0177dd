package core

// AccountInfo is the latest-state record the ledger maintains per account
// (spec §3): the head of its chain, its current representative and
// balance, and enough bookkeeping to validate the next block without
// replaying the whole chain.
type AccountInfo struct {
	Head           Hash
	Representative Account
	OpenBlock      Hash
	Balance        Amount
	ModifiedTS     int64
	BlockCount     uint64
	Epoch          Tier
}

// PendingKey identifies a pending (unreceived) send by the receiving
// account and the hash of the send block that credits it (spec §3).
type PendingKey struct {
	Account Account
	Hash    Hash
}

// PendingEntry is the value stored under a PendingKey: the amount sent and
// the account the funds came from, plus the epoch of the source block so a
// later receive can compute max(prev_epoch, source_epoch) (§4.4).
type PendingEntry struct {
	Amount        Amount
	SourceAccount Account
	Epoch         Tier
}

// ConfirmationHeightInfo records the highest confirmed block height and
// its hash for an account (spec §3); rollback must never cross this
// boundary (§4.4, ErrConfirmationHeight).
type ConfirmationHeightInfo struct {
	Height uint64
	Frontier Hash
}

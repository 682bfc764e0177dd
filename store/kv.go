// Package store is the ledger's persistence layer (spec §4.2, component
// C2): a generic key-value backend (LevelDB or in-memory) plus the
// table-level Store abstraction the ledger, vote and wallet packages use
// to read and write blocks, accounts, pending entries, confirmation
// heights, frontiers, pruned hashes, online-weight samples, peers and
// final votes.
package store

// Batch is an atomic write buffer. All operations apply together via
// Write(), or are discarded together on error, so a crash mid-commit
// never leaves a table half-updated.
type Batch interface {
	Set(key, value []byte)
	Delete(key []byte)
	Write() error
	Reset()
}

// KV is the generic key-value store interface every table is built on.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	NewIterator(prefix []byte) Iterator
	NewBatch() Batch
	Close() error
}

// Iterator walks key-value pairs matching a prefix in key order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/tolelom/latticenode/core"
)

// CurrentVersion is this node's store schema version (spec §6.3). Opening a
// store written by a newer version is refused.
const CurrentVersion = 1

var (
	prefixBlocks      = []byte("b:")
	prefixAccounts    = []byte("a:")
	prefixPending     = []byte("p:")
	prefixConfHeight  = []byte("c:")
	prefixFrontier    = []byte("f:")
	prefixPruned      = []byte("x:")
	prefixOnlineWeight = []byte("w:")
	prefixPeers       = []byte("n:")
	prefixFinalVotes  = []byte("v:")
	keyVersion        = []byte("version")
)

// Store is the table-level persistence surface the ledger, vote and
// wallet packages use (spec §4.2). It wraps a KV with per-table
// encode/decode and key layout; the sideband travels with its block and
// is reconstructed on read.
type Store struct {
	kv KV
}

// New wraps kv as a Store.
func New(kv KV) *Store {
	return &Store{kv: kv}
}

// Close releases the underlying KV backend.
func (s *Store) Close() error { return s.kv.Close() }

// --- version ---

// Version returns the store's schema version, or 0 if unset (a brand new
// store).
func (s *Store) Version() (int, error) {
	data, err := s.kv.Get(keyVersion)
	if err == core.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(data) != 4 {
		return 0, core.ErrCorrupt
	}
	return int(binary.BigEndian.Uint32(data)), nil
}

// SetVersion persists v. Callers must refuse to proceed when Version()
// returns greater than CurrentVersion (spec §6.3).
func (s *Store) SetVersion(v int) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return s.kv.Set(keyVersion, b[:])
}

// --- blocks (sideband travels with the block) ---

type blockRecord struct {
	Type     core.BlockType
	Wire     []byte
	Sideband core.Sideband
}

func blockKey(h core.Hash) []byte {
	key := make([]byte, 0, len(prefixBlocks)+core.HashSize)
	key = append(key, prefixBlocks...)
	return append(key, h[:]...)
}

// PutBlock stores blk, including its sideband, keyed by hash.
func (s *Store) PutBlock(blk *core.Block) error {
	rec := blockRecord{Type: blk.Type, Wire: blk.Encode(), Sideband: blk.Sideband}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal block: %w", err)
	}
	return s.kv.Set(blockKey(blk.Hash()), data)
}

// GetBlock retrieves and reconstructs the block (with sideband) for hash.
func (s *Store) GetBlock(hash core.Hash) (*core.Block, error) {
	data, err := s.kv.Get(blockKey(hash))
	if err != nil {
		return nil, err
	}
	var rec blockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, core.ErrCorrupt
	}
	blk, err := core.DecodeBlock(rec.Type, rec.Wire)
	if err != nil {
		return nil, core.ErrCorrupt
	}
	blk.Sideband = rec.Sideband
	return blk, nil
}

// BlockExists reports whether hash is present.
func (s *Store) BlockExists(hash core.Hash) (bool, error) {
	_, err := s.kv.Get(blockKey(hash))
	if err == core.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteBlock removes hash (used by rollback and pruning).
func (s *Store) DeleteBlock(hash core.Hash) error {
	return s.kv.Delete(blockKey(hash))
}

// ClearSuccessor nulls the successor pointer on the predecessor of hash's
// chain, undoing what PutBlock's sideband recorded (spec §4.2,
// "block.successor_clear nulls the successor pointer on rollback").
func (s *Store) ClearSuccessor(predecessor core.Hash) error {
	if predecessor.IsZero() {
		return nil
	}
	blk, err := s.GetBlock(predecessor)
	if err != nil {
		return err
	}
	blk.Sideband.Successor = core.ZeroHash
	return s.PutBlock(blk)
}

// SetSuccessor records that successor follows predecessor.
func (s *Store) SetSuccessor(predecessor, successor core.Hash) error {
	if predecessor.IsZero() {
		return nil
	}
	blk, err := s.GetBlock(predecessor)
	if err != nil {
		return err
	}
	blk.Sideband.Successor = successor
	return s.PutBlock(blk)
}

// --- accounts ---

func accountKey(a core.Account) []byte {
	key := make([]byte, 0, len(prefixAccounts)+32)
	key = append(key, prefixAccounts...)
	return append(key, a[:]...)
}

func (s *Store) PutAccount(a core.Account, info *core.AccountInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return s.kv.Set(accountKey(a), data)
}

func (s *Store) GetAccount(a core.Account) (*core.AccountInfo, error) {
	data, err := s.kv.Get(accountKey(a))
	if err != nil {
		return nil, err
	}
	var info core.AccountInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, core.ErrCorrupt
	}
	return &info, nil
}

func (s *Store) DeleteAccount(a core.Account) error {
	return s.kv.Delete(accountKey(a))
}

func (s *Store) AccountExists(a core.Account) (bool, error) {
	_, err := s.kv.Get(accountKey(a))
	if err == core.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CountAccounts returns the number of known accounts.
func (s *Store) CountAccounts() (int, error) {
	it := s.kv.NewIterator(prefixAccounts)
	defer it.Release()
	n := 0
	for it.Next() {
		n++
	}
	return n, it.Error()
}

// --- pending (ordered by account then hash, per spec §4.2) ---

func pendingKeyBytes(k core.PendingKey) []byte {
	key := make([]byte, 0, len(prefixPending)+64)
	key = append(key, prefixPending...)
	key = append(key, k.Account[:]...)
	return append(key, k.Hash[:]...)
}

func (s *Store) PutPending(k core.PendingKey, e *core.PendingEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.kv.Set(pendingKeyBytes(k), data)
}

func (s *Store) GetPending(k core.PendingKey) (*core.PendingEntry, error) {
	data, err := s.kv.Get(pendingKeyBytes(k))
	if err != nil {
		return nil, err
	}
	var e core.PendingEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, core.ErrCorrupt
	}
	return &e, nil
}

func (s *Store) DeletePending(k core.PendingKey) error {
	return s.kv.Delete(pendingKeyBytes(k))
}

// PendingForAccount iterates every pending entry credited to account, in
// hash order, calling fn until it returns false or entries are exhausted.
func (s *Store) PendingForAccount(account core.Account, fn func(core.PendingKey, *core.PendingEntry) bool) error {
	prefix := make([]byte, 0, len(prefixPending)+32)
	prefix = append(prefix, prefixPending...)
	prefix = append(prefix, account[:]...)
	it := s.kv.NewIterator(prefix)
	defer it.Release()
	for it.Next() {
		var hash core.Hash
		copy(hash[:], it.Key()[len(prefix):])
		var e core.PendingEntry
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			return core.ErrCorrupt
		}
		if !fn(core.PendingKey{Account: account, Hash: hash}, &e) {
			break
		}
	}
	return it.Error()
}

// --- confirmation height ---

func confHeightKey(a core.Account) []byte {
	key := make([]byte, 0, len(prefixConfHeight)+32)
	key = append(key, prefixConfHeight...)
	return append(key, a[:]...)
}

func (s *Store) PutConfirmationHeight(a core.Account, info *core.ConfirmationHeightInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return s.kv.Set(confHeightKey(a), data)
}

func (s *Store) GetConfirmationHeight(a core.Account) (*core.ConfirmationHeightInfo, error) {
	data, err := s.kv.Get(confHeightKey(a))
	if err == core.ErrNotFound {
		return &core.ConfirmationHeightInfo{}, nil
	}
	if err != nil {
		return nil, err
	}
	var info core.ConfirmationHeightInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, core.ErrCorrupt
	}
	return &info, nil
}

// --- frontier (legacy hash->account index) ---

func frontierKey(h core.Hash) []byte {
	key := make([]byte, 0, len(prefixFrontier)+core.HashSize)
	key = append(key, prefixFrontier...)
	return append(key, h[:]...)
}

func (s *Store) PutFrontier(head core.Hash, account core.Account) error {
	return s.kv.Set(frontierKey(head), account[:])
}

func (s *Store) GetFrontier(head core.Hash) (core.Account, error) {
	var a core.Account
	data, err := s.kv.Get(frontierKey(head))
	if err != nil {
		return a, err
	}
	copy(a[:], data)
	return a, nil
}

func (s *Store) DeleteFrontier(head core.Hash) error {
	return s.kv.Delete(frontierKey(head))
}

// --- pruned ---

func prunedKey(h core.Hash) []byte {
	key := make([]byte, 0, len(prefixPruned)+core.HashSize)
	key = append(key, prefixPruned...)
	return append(key, h[:]...)
}

func (s *Store) PutPruned(h core.Hash) error {
	return s.kv.Set(prunedKey(h), []byte{1})
}

func (s *Store) IsPruned(h core.Hash) (bool, error) {
	_, err := s.kv.Get(prunedKey(h))
	if err == core.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// --- online weight (ordered by sample timestamp) ---

func onlineWeightKey(ts int64) []byte {
	key := make([]byte, 0, len(prefixOnlineWeight)+8)
	key = append(key, prefixOnlineWeight...)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(ts))
	return append(key, b[:]...)
}

func (s *Store) PutOnlineWeightSample(ts int64, weight core.Amount) error {
	data, err := json.Marshal(weight)
	if err != nil {
		return err
	}
	return s.kv.Set(onlineWeightKey(ts), data)
}

// OnlineWeightSamples returns every sample in timestamp order, oldest first.
func (s *Store) OnlineWeightSamples() ([]core.Amount, error) {
	samples, err := s.OnlineWeightSamplesWithTimestamps()
	if err != nil {
		return nil, err
	}
	out := make([]core.Amount, len(samples))
	for i, sm := range samples {
		out[i] = sm.Weight
	}
	return out, nil
}

// OnlineWeightSample pairs one trend sample with the timestamp it was
// recorded at.
type OnlineWeightSample struct {
	Timestamp int64
	Weight    core.Amount
}

// OnlineWeightSamplesWithTimestamps returns every sample in timestamp
// order, oldest first, including the sample's key timestamp so callers
// can prune the oldest entries once a window fills (spec §6.4
// online_weight_minimum).
func (s *Store) OnlineWeightSamplesWithTimestamps() ([]OnlineWeightSample, error) {
	it := s.kv.NewIterator(prefixOnlineWeight)
	defer it.Release()
	var out []OnlineWeightSample
	for it.Next() {
		var a core.Amount
		if err := json.Unmarshal(it.Value(), &a); err != nil {
			return nil, core.ErrCorrupt
		}
		key := it.Key()
		if len(key) != len(prefixOnlineWeight)+8 {
			return nil, core.ErrCorrupt
		}
		ts := int64(binary.BigEndian.Uint64(key[len(prefixOnlineWeight):]))
		out = append(out, OnlineWeightSample{Timestamp: ts, Weight: a})
	}
	return out, it.Error()
}

func (s *Store) DeleteOnlineWeightSample(ts int64) error {
	return s.kv.Delete(onlineWeightKey(ts))
}

// --- peers ---

func peerKey(addr string) []byte {
	return append(append([]byte{}, prefixPeers...), []byte(addr)...)
}

func (s *Store) PutPeer(addr string) error {
	return s.kv.Set(peerKey(addr), []byte{1})
}

func (s *Store) DeletePeer(addr string) error {
	return s.kv.Delete(peerKey(addr))
}

func (s *Store) Peers() ([]string, error) {
	it := s.kv.NewIterator(prefixPeers)
	defer it.Release()
	var out []string
	for it.Next() {
		out = append(out, string(it.Key()[len(prefixPeers):]))
	}
	return out, it.Error()
}

// --- final votes ---

func finalVoteKey(root core.Hash) []byte {
	key := make([]byte, 0, len(prefixFinalVotes)+core.HashSize)
	key = append(key, prefixFinalVotes...)
	return append(key, root[:]...)
}

// PutFinalVote records that this node has cast a final vote for hash on
// qualified root; a node must never cast two different final votes for
// the same root (spec §4.5 invariant).
func (s *Store) PutFinalVote(root core.Hash, hash core.Hash) error {
	return s.kv.Set(finalVoteKey(root), hash[:])
}

func (s *Store) GetFinalVote(root core.Hash) (core.Hash, bool, error) {
	var h core.Hash
	data, err := s.kv.Get(finalVoteKey(root))
	if err == core.ErrNotFound {
		return h, false, nil
	}
	if err != nil {
		return h, false, err
	}
	copy(h[:], data)
	return h, true, nil
}

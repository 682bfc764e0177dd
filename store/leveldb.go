package store

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/tolelom/latticenode/core"
)

// LevelKV implements KV on top of LevelDB.
type LevelKV struct {
	db *leveldb.DB
}

// NewLevelKV opens (or creates) a LevelDB database at path.
func NewLevelKV(path string) (*LevelKV, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w", path, err)
	}
	return &LevelKV{db: db}, nil
}

func (l *LevelKV) Get(key []byte) ([]byte, error) {
	val, err := l.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, core.ErrNotFound
	}
	return val, err
}

func (l *LevelKV) Set(key, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *LevelKV) Delete(key []byte) error {
	return l.db.Delete(key, nil)
}

func (l *LevelKV) NewIterator(prefix []byte) Iterator {
	return l.db.NewIterator(util.BytesPrefix(prefix), nil)
}

func (l *LevelKV) NewBatch() Batch {
	return &levelBatch{db: l.db, batch: new(leveldb.Batch)}
}

func (l *LevelKV) Close() error {
	return l.db.Close()
}

type levelBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (b *levelBatch) Set(key, value []byte) { b.batch.Put(key, value) }
func (b *levelBatch) Delete(key []byte)      { b.batch.Delete(key) }
func (b *levelBatch) Reset()                 { b.batch.Reset() }
func (b *levelBatch) Write() error           { return b.db.Write(b.batch, nil) }

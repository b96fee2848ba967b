// Package iavl provides a durable CommitKVStore backed by a versioned
// iavl tree persisted through goleveldb. Every Commit writes a new tree
// version to disk, so a crash between commits always recovers to the
// last fully written state.
package iavl

import (
	"github.com/tendermint/iavl"
	dbm "github.com/tendermint/tendermint/libs/db"

	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/store"
)

// number of historic versions kept in memory for queries
const defaultCacheSize = 10000

// CommitStore manages a iavl committed state.
type CommitStore struct {
	tree *iavl.MutableTree
}

var _ store.CommitKVStore = (*CommitStore)(nil)

// NewCommitStore creates a new store with disk backing in the given
// directory. The name is used for the leveldb database file.
func NewCommitStore(dir, name string) *CommitStore {
	db := dbm.NewDB(name, dbm.GoLevelDBBackend, dir)
	tree := iavl.NewMutableTree(db, defaultCacheSize)
	return &CommitStore{tree: tree}
}

// MockCommitStore returns a commit store that never touches the disk.
// It is useful for tests.
func MockCommitStore() *CommitStore {
	db := dbm.NewMemDB()
	tree := iavl.NewMutableTree(db, defaultCacheSize)
	return &CommitStore{tree: tree}
}

// Get returns the value at the last committed state.
func (s *CommitStore) Get(key []byte) ([]byte, error) {
	_, value := s.tree.Get(key)
	return value, nil
}

// Commit the current working tree as the next version on disk.
func (s *CommitStore) Commit() (store.CommitID, error) {
	hash, version, err := s.tree.SaveVersion()
	if err != nil {
		return store.CommitID{}, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return store.CommitID{
		Version: version,
		Hash:    hash,
	}, nil
}

// LoadLatestVersion loads the latest persisted version. If there was a
// crash during the last commit, it is guaranteed to return a stable
// state, even if older.
func (s *CommitStore) LoadLatestVersion() error {
	if _, err := s.tree.Load(); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// LatestVersion returns info on the latest version saved to disk.
func (s *CommitStore) LatestVersion() (store.CommitID, error) {
	return store.CommitID{
		Version: s.tree.Version(),
		Hash:    s.tree.Hash(),
	}, nil
}

// CacheWrap returns a scratch-pad over the working tree. Writes are
// buffered in a btree overlay and applied to the tree in one Write call.
func (s *CommitStore) CacheWrap() store.KVCacheWrap {
	reader := treeReader{tree: s.tree}
	batch := store.NewNonAtomicBatch(treeWriter{tree: s.tree})
	return store.NewBTreeCacheWrap(reader, batch, nil)
}

// treeReader adapts the working tree to the ReadOnlyKVStore interface.
type treeReader struct {
	tree *iavl.MutableTree
}

var _ store.ReadOnlyKVStore = treeReader{}

func (r treeReader) Get(key []byte) ([]byte, error) {
	_, value := r.tree.Get(key)
	return value, nil
}

func (r treeReader) Has(key []byte) (bool, error) {
	return r.tree.Has(key), nil
}

func (r treeReader) Iterator(start, end []byte) (store.Iterator, error) {
	var models []store.Model
	r.tree.IterateRange(start, end, true, func(key, value []byte) bool {
		models = append(models, store.Model{Key: key, Value: value})
		return false
	})
	return store.NewSliceIterator(models), nil
}

func (r treeReader) ReverseIterator(start, end []byte) (store.Iterator, error) {
	var models []store.Model
	r.tree.IterateRange(start, end, false, func(key, value []byte) bool {
		models = append(models, store.Model{Key: key, Value: value})
		return false
	})
	return store.NewSliceIterator(models), nil
}

// treeWriter applies writes directly to the working tree.
type treeWriter struct {
	tree *iavl.MutableTree
}

var _ store.SetDeleter = treeWriter{}

func (w treeWriter) Set(key, value []byte) error {
	w.tree.Set(key, value)
	return nil
}

func (w treeWriter) Delete(key []byte) error {
	w.tree.Remove(key)
	return nil
}

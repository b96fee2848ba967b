package custody

// This file defines the public interfaces for interacting with stores.
// KVStore and Iterator are the basic objects used by all persistence code.

// ReadOnlyKVStore is a simple interface to read data.
type ReadOnlyKVStore interface {
	// Get returns nil iff key doesn't exist. Panics on nil key.
	Get(key []byte) ([]byte, error)

	// Has checks if a key exists. Panics on nil key.
	Has(key []byte) (bool, error)

	// Iterator over a domain of keys in ascending order. End is exclusive.
	// Start must be less than end, or the Iterator is invalid.
	// CONTRACT: No writes may happen within a domain while an iterator
	// exists over it.
	Iterator(start, end []byte) (Iterator, error)

	// ReverseIterator over a domain of keys in descending order. End is
	// exclusive. Start must be greater than end, or the Iterator is
	// invalid.
	// CONTRACT: No writes may happen within a domain while an iterator
	// exists over it.
	ReverseIterator(start, end []byte) (Iterator, error)
}

// SetDeleter is a minimal interface for writing.
type SetDeleter interface {
	Set(key, value []byte) error // CONTRACT: key, value readonly []byte
	Delete(key []byte) error     // CONTRACT: key readonly []byte
}

// KVStore is a simple interface to get/set data.
type KVStore interface {
	ReadOnlyKVStore
	SetDeleter

	// NewBatch returns a batch that can write multiple ops atomically.
	NewBatch() Batch
}

// Batch groups writes to be committed in one shot.
type Batch interface {
	SetDeleter
	Write() error
}

// Iterator allows sequential access to a range of keys. Depending on the
// backend the data may be preloaded or loaded on demand.
//
//   var iter Iterator = ...
//   defer iter.Release()
//
//   for {
//     key, value, err := iter.Next()
//     if errors.ErrIteratorDone.Is(err) {
//       break
//     } else if err != nil {
//       return err
//     }
//     // ...
//   }
type Iterator interface {
	// Next returns the next key/value pair, or ErrIteratorDone when the
	// range is exhausted.
	Next() (key, value []byte, err error)

	// Release frees the resources of the iterator. It can be called many
	// times.
	Release()
}

// CacheableKVStore is a KVStore that supports CacheWrapping.
//
// CacheWrap() should not return a Committer, since Commit() on cache-wraps
// makes no sense.
type CacheableKVStore interface {
	KVStore
	CacheWrap() KVCacheWrap
}

// KVCacheWrap is a scratch-pad of uncommitted writes that can be observed
// by all reads through it.
//
// At the end, call Write to flush to the underlying store, or Discard to
// drop everything.
type KVCacheWrap interface {
	// CacheableKVStore allows using a cache recursively.
	CacheableKVStore

	// Write syncs with the underlying store.
	Write() error

	// Discard invalidates this CacheWrap and releases all data.
	Discard()
}

// CommitKVStore is a store that can persist state to disk, load it on
// start up, and keep version history.
type CommitKVStore interface {
	// Get returns the value at the last committed state. Returns nil iff
	// the key doesn't exist. Panics on nil key.
	Get(key []byte) ([]byte, error)

	// CacheWrap returns a scratch-pad to perform a group of writes that
	// is flushed atomically.
	CacheWrap() KVCacheWrap

	// Commit persists the next version to disk and returns its info.
	Commit() (CommitID, error)

	// LoadLatestVersion loads the latest persisted version. If there was
	// a crash during the last commit it is guaranteed to return a stable
	// state, even if older.
	LoadLatestVersion() error

	// LatestVersion returns info on the latest version saved to disk.
	LatestVersion() (CommitID, error)
}

// CommitID contains the store version number and its hash.
type CommitID struct {
	Version int64
	Hash    []byte
}

// Persistent objects can be serialized to and deserialized from bytes.
// This is implemented by every model kept in a store.
type Persistent interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// Model groups a matching key and value pair as stored in the database.
type Model struct {
	Key   []byte
	Value []byte
}

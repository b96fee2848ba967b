package store

import (
	"bytes"
	"sort"

	"github.com/google/btree"

	"github.com/mintward/custody/errors"
)

// DefaultFreeListSize is the size we hold for free nodes in the btree.
const DefaultFreeListSize = btree.DefaultFreeListSize

// BTreeCacheable adds a btree-based CacheWrap strategy to a KVStore.
type BTreeCacheable struct {
	KVStore
}

var _ CacheableKVStore = BTreeCacheable{}

// CacheWrap returns a BTreeCacheWrap that can be later written to this
// store, or rolled back.
func (b BTreeCacheable) CacheWrap() KVCacheWrap {
	return NewBTreeCacheWrap(b.KVStore, b.NewBatch(), nil)
}

// MemStore returns a cacheable in-memory store. Writes are kept in the
// btree overlay only, there is no persistence.
func MemStore() CacheableKVStore {
	e := emptyKVStore{}
	return NewBTreeCacheWrap(e, NewNonAtomicBatch(e), nil)
}

// BTreeCacheWrap places a btree overlay over a read-only KVStore. All
// writes go into the overlay and the batch until Write is called.
type BTreeCacheWrap struct {
	bt    *btree.BTree
	free  *btree.FreeList
	back  ReadOnlyKVStore
	batch Batch
}

var _ KVCacheWrap = BTreeCacheWrap{}

// NewBTreeCacheWrap initializes a BTree to cache around this KVStore.
// ReadOnlyKVStore is used to emphasize that all writes must go through
// the Batch.
//
// free may be nil, or set to an existing list to reuse it for memory
// savings.
func NewBTreeCacheWrap(kv ReadOnlyKVStore, batch Batch, free *btree.FreeList) BTreeCacheWrap {
	if free == nil {
		free = btree.NewFreeList(DefaultFreeListSize)
	}
	return BTreeCacheWrap{
		bt:    btree.NewWithFreeList(2, free),
		free:  free,
		back:  kv,
		batch: batch,
	}
}

// CacheWrap layers another BTree on top of this one. Don't change horses
// in mid-stream.
//
// Uses NonAtomicBatch as it is only backed by another in-memory batch.
func (b BTreeCacheWrap) CacheWrap() KVCacheWrap {
	return NewBTreeCacheWrap(b, b.NewBatch(), b.free)
}

// NewBatch returns a non-atomic batch that eventually may write to our
// cachewrap.
func (b BTreeCacheWrap) NewBatch() Batch {
	return NewNonAtomicBatch(b)
}

// Write syncs with the underlying store and then cleans up.
func (b BTreeCacheWrap) Write() error {
	err := b.batch.Write()
	b.Discard()
	return err
}

// Discard invalidates this CacheWrap and releases all data.
func (b BTreeCacheWrap) Discard() {
	for stop := false; !stop; {
		rem := b.bt.DeleteMin()
		stop = (rem == nil)
	}
}

// Set writes to the BTree and to the batch.
func (b BTreeCacheWrap) Set(key, value []byte) error {
	b.bt.ReplaceOrInsert(newSetItem(key, value))
	return b.batch.Set(key, value)
}

// Delete deletes from the BTree and the batch.
func (b BTreeCacheWrap) Delete(key []byte) error {
	b.bt.ReplaceOrInsert(newDeletedItem(key))
	return b.batch.Delete(key)
}

// Get reads from the btree if the key was written here, else from the
// backing store.
func (b BTreeCacheWrap) Get(key []byte) ([]byte, error) {
	res := b.bt.Get(bkey{key})
	if res != nil {
		switch t := res.(type) {
		case setItem:
			return t.value, nil
		case deletedItem:
			return nil, nil
		default:
			return nil, errors.Wrapf(errors.ErrDatabase, "unknown item in btree: %#v", res)
		}
	}
	return b.back.Get(key)
}

// Has reads from the btree if the key was written here, else from the
// backing store.
func (b BTreeCacheWrap) Has(key []byte) (bool, error) {
	res := b.bt.Get(bkey{key})
	if res != nil {
		switch res.(type) {
		case setItem:
			return true, nil
		case deletedItem:
			return false, nil
		default:
			return false, errors.Wrapf(errors.ErrDatabase, "unknown item in btree: %#v", res)
		}
	}
	return b.back.Has(key)
}

// Iterator over a domain of keys in ascending order. Combines results
// from the btree overlay and the backing store.
func (b BTreeCacheWrap) Iterator(start, end []byte) (Iterator, error) {
	parent, err := b.back.Iterator(start, end)
	if err != nil {
		return nil, err
	}
	return b.merge(parent, start, end, false)
}

// ReverseIterator over a domain of keys in descending order. Combines
// results from the btree overlay and the backing store.
func (b BTreeCacheWrap) ReverseIterator(start, end []byte) (Iterator, error) {
	parent, err := b.back.ReverseIterator(start, end)
	if err != nil {
		return nil, err
	}
	return b.merge(parent, start, end, true)
}

// merge materializes the combined view of the overlay and the parent
// iterator. Overlay writes shadow parent values, overlay deletes remove
// them.
func (b BTreeCacheWrap) merge(parent Iterator, start, end []byte, reverse bool) (Iterator, error) {
	defer parent.Release()

	combined := make(map[string][]byte)
	var keys [][]byte
	for {
		key, value, err := parent.Next()
		if errors.ErrIteratorDone.Is(err) {
			break
		} else if err != nil {
			return nil, err
		}
		if _, ok := combined[string(key)]; !ok {
			keys = append(keys, key)
		}
		combined[string(key)] = value
	}

	walk := func(item btree.Item) bool {
		switch t := item.(type) {
		case setItem:
			if _, ok := combined[string(t.key)]; !ok {
				keys = append(keys, t.key)
			}
			combined[string(t.key)] = t.value
		case deletedItem:
			delete(combined, string(t.key))
		}
		return true
	}
	switch {
	case start == nil && end == nil:
		b.bt.Ascend(walk)
	case start == nil:
		b.bt.AscendLessThan(bkey{end}, walk)
	case end == nil:
		b.bt.AscendGreaterOrEqual(bkey{start}, walk)
	default:
		b.bt.AscendRange(bkey{start}, bkey{end}, walk)
	}

	models := make([]Model, 0, len(combined))
	for _, key := range keys {
		value, ok := combined[string(key)]
		if !ok {
			continue
		}
		models = append(models, Model{Key: key, Value: value})
	}
	if reverse {
		sort.Slice(models, func(i, j int) bool {
			return bytes.Compare(models[i].Key, models[j].Key) > 0
		})
	} else {
		sort.Slice(models, func(i, j int) bool {
			return bytes.Compare(models[i].Key, models[j].Key) < 0
		})
	}
	return NewSliceIterator(models), nil
}

// emptyKVStore never holds any data, used as the base layer of MemStore.
type emptyKVStore struct{}

var _ KVStore = emptyKVStore{}

func (e emptyKVStore) Get(key []byte) ([]byte, error) { return nil, nil }

func (e emptyKVStore) Has(key []byte) (bool, error) { return false, nil }

func (e emptyKVStore) Set(key, value []byte) error { return nil }

func (e emptyKVStore) Delete(key []byte) error { return nil }

func (e emptyKVStore) Iterator(start, end []byte) (Iterator, error) {
	return NewSliceIterator(nil), nil
}

func (e emptyKVStore) ReverseIterator(start, end []byte) (Iterator, error) {
	return NewSliceIterator(nil), nil
}

func (e emptyKVStore) NewBatch() Batch {
	return NewNonAtomicBatch(e)
}

// Items stored in the btree must implement keyer so we can compare them.
type keyer interface {
	Key() []byte
}

// bkey implements keyer and btree.Item and may be used for queries or
// embedded in data to store.
type bkey struct {
	key []byte
}

var _ keyer = bkey{}
var _ btree.Item = bkey{}

func (k bkey) Key() []byte {
	return k.key
}

// Less returns true iff the second argument is greater than the first.
//
// Panics if the item to compare doesn't implement keyer.
func (k bkey) Less(item btree.Item) bool {
	cmp := item.(keyer).Key()
	return bytes.Compare(k.key, cmp) < 0
}

type deletedItem struct {
	bkey
}

func newDeletedItem(key []byte) deletedItem {
	return deletedItem{bkey{key}}
}

type setItem struct {
	bkey
	value []byte
}

func newSetItem(key, value []byte) setItem {
	return setItem{bkey{key}, value}
}

/*
Package orm provides an easy to use db wrapper.

It breaks the state space into prefixed sections called Buckets. Each
bucket contains only one type of object and has a primary index by key.
Listing within a bucket is done by prefix iteration.
*/
package orm

import (
	"fmt"
	"regexp"

	"github.com/mintward/custody"
	"github.com/mintward/custody/errors"
)

var isBucketName = regexp.MustCompile(`^[a-z_]{3,10}$`).MatchString

// Bucket is a generic holder that stores data of one type under a common
// key prefix.
//
// This is a generic building block that should generally be embedded in a
// type-safe wrapper to ensure all data is the same type.
type Bucket struct {
	name   string
	prefix []byte
	proto  Cloneable
}

// NewBucket creates a bucket to store data.
func NewBucket(name string, proto Cloneable) Bucket {
	if !isBucketName(name) {
		panic(fmt.Sprintf("illegal bucket: %s", name))
	}

	return Bucket{
		name:   name,
		prefix: append([]byte(name), ':'),
		proto:  proto,
	}
}

// Name returns the name of the bucket.
func (b Bucket) Name() string {
	return b.name
}

// DBKey is the full key we store in the db, including the prefix. We copy
// into a new array rather than use append, as we don't want consecutive
// calls to overwrite the same byte array.
func (b Bucket) DBKey(key []byte) []byte {
	l := len(b.prefix)
	out := make([]byte, l+len(key))
	copy(out, b.prefix)
	copy(out[l:], key)
	return out
}

// Get one element.
func (b Bucket) Get(db custody.ReadOnlyKVStore, key []byte) (Object, error) {
	dbkey := b.DBKey(key)
	bz, err := db.Get(dbkey)
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, nil
	}
	return b.Parse(key, bz)
}

// Parse takes a key and value data and reconstructs the data this bucket
// would return. Used internally as part of Get, exposed mainly as a test
// helper.
func (b Bucket) Parse(key, value []byte) (Object, error) {
	obj := b.proto.Clone()
	if err := obj.Value().Unmarshal(value); err != nil {
		return nil, errors.Wrapf(errors.ErrType, "%s: cannot parse", b.name)
	}
	obj.SetKey(key)
	return obj, nil
}

// Save will write a model, it must be of the same type as proto.
func (b Bucket) Save(db custody.KVStore, model Object) error {
	if err := model.Validate(); err != nil {
		return errors.Wrap(err, "invalid model")
	}

	bz, err := model.Value().Marshal()
	if err != nil {
		return err
	}
	return db.Set(b.DBKey(model.Key()), bz)
}

// Delete will remove the value at a key.
func (b Bucket) Delete(db custody.KVStore, key []byte) error {
	dbkey := b.DBKey(key)
	return db.Delete(dbkey)
}

// Sequence returns a Sequence by name scoped to this bucket.
func (b Bucket) Sequence(name string) Sequence {
	return NewSequence(b.name, name)
}

// Iterate walks through all objects of this bucket in ascending key
// order, calling fn for each. Returning an error from fn aborts the walk
// and propagates the error.
func (b Bucket) Iterate(db custody.ReadOnlyKVStore, fn func(Object) error) error {
	return b.iterate(db, fn, false)
}

// IterateReverse walks through all objects of this bucket in descending
// key order.
func (b Bucket) IterateReverse(db custody.ReadOnlyKVStore, fn func(Object) error) error {
	return b.iterate(db, fn, true)
}

func (b Bucket) iterate(db custody.ReadOnlyKVStore, fn func(Object) error, reverse bool) error {
	start, end := prefixRange(b.prefix)
	var iter custody.Iterator
	var err error
	if reverse {
		iter, err = db.ReverseIterator(start, end)
	} else {
		iter, err = db.Iterator(start, end)
	}
	if err != nil {
		return err
	}
	defer iter.Release()

	for {
		key, value, err := iter.Next()
		if errors.ErrIteratorDone.Is(err) {
			return nil
		} else if err != nil {
			return err
		}
		obj, err := b.Parse(key[len(b.prefix):], value)
		if err != nil {
			return err
		}
		if err := fn(obj); err != nil {
			return err
		}
	}
}

// prefixRange turns a prefix into [start, end) range boundaries for
// iterating over all keys with that prefix.
//
//   In case of prefix   -> start = prefix, end = prefix + 1
//                          (where +1 is computed on the last byte that
//                          is not 0xff)
//   In case of nothing  -> start = nil, end = nil (full range)
func prefixRange(prefix []byte) ([]byte, []byte) {
	if len(prefix) == 0 {
		return nil, nil
	}
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return prefix, end[:i+1]
		}
	}
	// Every byte is 0xff, there is no upper boundary.
	return prefix, nil
}

package orm

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/mintward/custody/custodytest/assert"
	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/store"
)

// counter is a minimal model used to exercise the bucket machinery.
type counter struct {
	Count int64 `json:"count"`
}

var _ CloneableData = (*counter)(nil)

func (c *counter) Validate() error {
	if c.Count < 0 {
		return errors.Field("Count", errors.ErrAmount, "negative count")
	}
	return nil
}

func (c *counter) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

func (c *counter) Unmarshal(raw []byte) error {
	return json.Unmarshal(raw, c)
}

func (c *counter) Copy() CloneableData {
	return &counter{Count: c.Count}
}

func newCounterBucket(name string) Bucket {
	return NewBucket(name, NewSimpleObj(nil, &counter{}))
}

func TestBucketName(t *testing.T) {
	cases := map[string]struct {
		name      string
		wantPanic bool
	}{
		"all good":      {name: "counters"},
		"underscore ok": {name: "my_data"},
		"too short":     {name: "ab", wantPanic: true},
		"too long":      {name: "waytoolongname", wantPanic: true},
		"upper case":    {name: "Counters", wantPanic: true},
		"digits":        {name: "count3rs", wantPanic: true},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			if tc.wantPanic {
				assert.Panics(t, func() { NewBucket(tc.name, NewSimpleObj(nil, &counter{})) })
				return
			}
			b := NewBucket(tc.name, NewSimpleObj(nil, &counter{}))
			assert.Equal(t, tc.name, b.Name())
		})
	}
}

func TestBucketSaveGetDelete(t *testing.T) {
	db := store.MemStore()
	b := newCounterBucket("counters")

	key := []byte("alice")

	// Nothing stored yet.
	obj, err := b.Get(db, key)
	assert.Nil(t, err)
	if obj != nil {
		t.Fatalf("want no object, got %v", obj)
	}

	if err := b.Save(db, NewSimpleObj(key, &counter{Count: 55})); err != nil {
		t.Fatalf("cannot save: %+v", err)
	}

	obj, err = b.Get(db, key)
	assert.Nil(t, err)
	if obj == nil {
		t.Fatal("want an object, got nil")
	}
	assert.Equal(t, key, obj.Key())
	assert.Equal(t, int64(55), obj.Value().(*counter).Count)

	assert.Nil(t, b.Delete(db, key))
	obj, err = b.Get(db, key)
	assert.Nil(t, err)
	if obj != nil {
		t.Fatalf("want the object gone, got %v", obj)
	}
}

func TestBucketSaveInvalidModel(t *testing.T) {
	db := store.MemStore()
	b := newCounterBucket("counters")

	err := b.Save(db, NewSimpleObj([]byte("bob"), &counter{Count: -1}))
	assert.IsErr(t, errors.ErrAmount, err)

	err = b.Save(db, NewSimpleObj(nil, &counter{Count: 1}))
	assert.IsErr(t, errors.ErrEmpty, err)
}

func TestBucketKeysAreIsolated(t *testing.T) {
	db := store.MemStore()
	first := newCounterBucket("first")
	second := newCounterBucket("second")

	key := []byte("shared")
	assert.Nil(t, first.Save(db, NewSimpleObj(key, &counter{Count: 1})))
	assert.Nil(t, second.Save(db, NewSimpleObj(key, &counter{Count: 2})))

	obj, err := first.Get(db, key)
	assert.Nil(t, err)
	assert.Equal(t, int64(1), obj.Value().(*counter).Count)

	obj, err = second.Get(db, key)
	assert.Nil(t, err)
	assert.Equal(t, int64(2), obj.Value().(*counter).Count)
}

func TestBucketIterate(t *testing.T) {
	db := store.MemStore()
	b := newCounterBucket("counters")

	for i, key := range []string{"bbb", "aaa", "ccc"} {
		obj := NewSimpleObj([]byte(key), &counter{Count: int64(i + 1)})
		assert.Nil(t, b.Save(db, obj))
	}
	// An object of another bucket must not leak into the iteration.
	other := newCounterBucket("others")
	assert.Nil(t, other.Save(db, NewSimpleObj([]byte("zzz"), &counter{Count: 99})))

	var keys []string
	err := b.Iterate(db, func(obj Object) error {
		keys = append(keys, string(obj.Key()))
		return nil
	})
	assert.Nil(t, err)
	assert.Equal(t, []string{"aaa", "bbb", "ccc"}, keys)

	keys = keys[:0]
	err = b.IterateReverse(db, func(obj Object) error {
		keys = append(keys, string(obj.Key()))
		return nil
	})
	assert.Nil(t, err)
	assert.Equal(t, []string{"ccc", "bbb", "aaa"}, keys)
}

func TestBucketIterateAborts(t *testing.T) {
	db := store.MemStore()
	b := newCounterBucket("counters")
	for _, key := range []string{"aaa", "bbb", "ccc"} {
		assert.Nil(t, b.Save(db, NewSimpleObj([]byte(key), &counter{Count: 1})))
	}

	var visited int
	err := b.Iterate(db, func(Object) error {
		visited++
		return errors.ErrState.New("enough")
	})
	assert.IsErr(t, errors.ErrState, err)
	assert.Equal(t, 1, visited)
}

func TestSequence(t *testing.T) {
	db := store.MemStore()
	b := newCounterBucket("counters")
	seq := b.Sequence("id")

	for i := int64(1); i <= 3; i++ {
		n, err := seq.NextInt(db)
		assert.Nil(t, err)
		assert.Equal(t, i, n)
	}

	latest, raw, err := seq.Latest(db)
	assert.Nil(t, err)
	assert.Equal(t, int64(3), latest)
	assert.Equal(t, EncodeSequence(3), raw)

	// A sequence of the same name on another bucket is independent.
	otherSeq := newCounterBucket("others").Sequence("id")
	n, err := otherSeq.NextInt(db)
	assert.Nil(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSequenceKeysSortLikeValues(t *testing.T) {
	db := store.MemStore()
	seq := NewSequence("counters", "id")

	prev, err := seq.NextVal(db)
	assert.Nil(t, err)
	for i := 0; i < 300; i++ {
		next, err := seq.NextVal(db)
		assert.Nil(t, err)
		if bytes.Compare(prev, next) >= 0 {
			t.Fatalf("sequence keys must be strictly increasing: %x >= %x", prev, next)
		}
		prev = next
	}
}

func TestEncodeDecodeSequence(t *testing.T) {
	assert.Equal(t, int64(0), DecodeSequence(nil))
	for _, val := range []int64{0, 1, 255, 256, 1 << 40} {
		assert.Equal(t, val, DecodeSequence(EncodeSequence(val)))
	}
	assert.Equal(t, 8, len(EncodeSequence(1)))
}

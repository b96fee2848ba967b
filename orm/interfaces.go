package orm

import (
	"github.com/mintward/custody"
)

// Validater is implemented by anything that can sanity check itself. This
// check should be cheap and not mutate state.
type Validater interface {
	Validate() error
}

// Object is what is stored in a bucket. Key is joined with the bucket
// prefix to build the full database key, Value is the data stored.
type Object interface {
	Keyed
	Cloneable
	// Validate returns an error if the object is not in a valid state to
	// save to the db (eg. field missing, out of range, ...).
	Validater
	Value() custody.Persistent
}

// Reader defines an interface that allows reading objects from the db.
type Reader interface {
	Get(db custody.ReadOnlyKVStore, key []byte) (Object, error)
}

// Keyed is anything that can identify itself.
type Keyed interface {
	Key() []byte
	SetKey([]byte)
}

// Cloneable will create a new object that can be loaded into.
type Cloneable interface {
	Clone() Object
}

// CloneableData is an intelligent Value that can be embedded in a simple
// object to handle much of the details. Every model kept in a bucket
// implements it.
type CloneableData interface {
	Validater
	custody.Persistent
	Copy() CloneableData
}

package executor

import (
	"encoding/json"

	"github.com/mintward/custody"
	"github.com/mintward/custody/coin"
	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/orm"
)

// Record is the immutable receipt of a successfully executed operation.
// It is created exactly once, only on a definitive network success.
type Record struct {
	// TxID is the network transaction identifier.
	TxID string `json:"tx_id"`
	// Kind of the executed operation, mint or burn.
	Kind string `json:"kind"`
	// Amount of token supply moved.
	Amount coin.Coin `json:"amount"`
	// FromParty the payment spent from.
	FromParty string `json:"from_party"`
	// ToParty the payment delivered to.
	ToParty string `json:"to_party"`
	// LinkedOperationID references the operation this receipt belongs
	// to. At most one receipt exists per operation.
	LinkedOperationID int64 `json:"linked_operation_id"`
	// Ledger the network included the transaction in, when reported.
	Ledger    int64            `json:"ledger,omitempty"`
	CreatedAt custody.UnixTime `json:"created_at"`
}

var _ orm.CloneableData = (*Record)(nil)

func (r *Record) Validate() error {
	var err error
	if r.TxID == "" {
		err = errors.AppendField(err, "TxID", errors.ErrEmpty)
	}
	if r.Kind == "" {
		err = errors.AppendField(err, "Kind", errors.ErrEmpty)
	}
	if !r.Amount.IsPositive() {
		err = errors.AppendField(err, "Amount", errors.ErrAmount)
	}
	err = errors.AppendField(err, "Amount", r.Amount.Validate())
	if r.LinkedOperationID <= 0 {
		err = errors.AppendField(err, "LinkedOperationID", errors.ErrEmpty)
	}
	err = errors.AppendField(err, "CreatedAt", r.CreatedAt.Validate())
	return err
}

func (r *Record) Copy() orm.CloneableData {
	cpy := *r
	return &cpy
}

func (r *Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

func (r *Record) Unmarshal(raw []byte) error {
	return json.Unmarshal(raw, r)
}

// RecordBucket stores receipts keyed by the linked operation ID, which
// makes the one receipt per operation rule a plain key collision check.
type RecordBucket struct {
	orm.Bucket
}

func NewRecordBucket() RecordBucket {
	return RecordBucket{
		Bucket: orm.NewBucket("txrecord", orm.NewSimpleObj(nil, &Record{})),
	}
}

func recordKey(opID int64) []byte {
	return orm.EncodeSequence(opID)
}

// Create persists the receipt. It fails with ErrDuplicate if a receipt
// for the linked operation already exists.
func (b RecordBucket) Create(db custody.KVStore, rec *Record) error {
	key := recordKey(rec.LinkedOperationID)
	existing, err := b.Get(db, key)
	if err != nil {
		return err
	}
	if existing != nil {
		return errors.Wrapf(errors.ErrDuplicate, "receipt for operation %d", rec.LinkedOperationID)
	}
	return b.Save(db, orm.NewSimpleObj(key, rec))
}

// GetByOperation loads the receipt of an executed operation.
func (b RecordBucket) GetByOperation(db custody.ReadOnlyKVStore, opID int64) (*Record, error) {
	obj, err := b.Get(db, recordKey(opID))
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "receipt for operation %d", opID)
	}
	rec, ok := obj.Value().(*Record)
	if !ok {
		return nil, errors.Wrapf(errors.ErrType, "receipt for operation %d", opID)
	}
	return rec, nil
}

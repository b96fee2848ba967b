package operation

import (
	"github.com/mintward/custody"
	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/orm"
)

const bucketName = "operations"

// Bucket stores operations keyed by an 8 byte big endian sequence ID, so
// iteration order is creation order.
type Bucket struct {
	orm.Bucket
	idSeq orm.Sequence
}

func NewBucket() Bucket {
	b := orm.NewBucket(bucketName, orm.NewSimpleObj(nil, &Operation{}))
	return Bucket{
		Bucket: b,
		idSeq:  b.Sequence("id"),
	}
}

func operationKey(id int64) []byte {
	return orm.EncodeSequence(id)
}

// Create assigns the next sequence ID to the operation and persists it.
// The operation must be in pending status with no approvals yet.
func (b Bucket) Create(db custody.KVStore, op *Operation) (*Operation, error) {
	if op.Status != StatusPending {
		return nil, errors.Wrapf(errors.ErrState, "create in status %s", op.Status)
	}
	if len(op.Approvals) != 0 {
		return nil, errors.Wrap(errors.ErrState, "create with approvals")
	}
	id, err := b.idSeq.NextInt(db)
	if err != nil {
		return nil, errors.Wrap(err, "id sequence")
	}
	op.ID = id
	obj := orm.NewSimpleObj(operationKey(id), op)
	if err := b.Save(db, obj); err != nil {
		return nil, err
	}
	return op, nil
}

// GetOperation loads an operation by ID.
func (b Bucket) GetOperation(db custody.ReadOnlyKVStore, id int64) (*Operation, error) {
	obj, err := b.Get(db, operationKey(id))
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "operation %d", id)
	}
	op, ok := obj.Value().(*Operation)
	if !ok {
		return nil, errors.Wrapf(errors.ErrType, "operation %d", id)
	}
	return op, nil
}

// Update loads the operation, applies the mutation and persists the
// result. Terminal operations are immutable and any status change must
// be a legal lifecycle step.
func (b Bucket) Update(db custody.KVStore, id int64, mutate func(*Operation) error) (*Operation, error) {
	op, err := b.GetOperation(db, id)
	if err != nil {
		return nil, err
	}
	if op.Status.IsTerminal() {
		return nil, errors.Wrapf(errors.ErrImmutable, "operation %d is %s", id, op.Status)
	}
	before := op.Status
	if err := mutate(op); err != nil {
		return nil, err
	}
	if op.ID != id {
		return nil, errors.Wrap(errors.ErrImmutable, "operation ID")
	}
	if op.Status != before && !before.CanTransitionTo(op.Status) {
		return nil, errors.Wrapf(errors.ErrState, "transition %s to %s", before, op.Status)
	}
	obj := orm.NewSimpleObj(operationKey(id), op)
	if err := b.Save(db, obj); err != nil {
		return nil, err
	}
	return op, nil
}

// Transition moves the operation to the given status. The guard runs
// against the freshly loaded state before the move and can refuse it.
func (b Bucket) Transition(db custody.KVStore, id int64, next Status, guard func(*Operation) error) (*Operation, error) {
	return b.Update(db, id, func(op *Operation) error {
		if guard != nil {
			if err := guard(op); err != nil {
				return err
			}
		}
		if !op.Status.CanTransitionTo(next) {
			return errors.Wrapf(errors.ErrState, "transition %s to %s", op.Status, next)
		}
		op.Status = next
		return nil
	})
}

// errStopIteration aborts a walk early without signaling a failure.
var errStopIteration = errors.Wrap(errors.ErrState, "stop iteration")

// ListPending returns all operations still collecting approvals, in
// creation order.
func (b Bucket) ListPending(db custody.ReadOnlyKVStore) ([]*Operation, error) {
	var res []*Operation
	err := b.Iterate(db, func(obj orm.Object) error {
		op, ok := obj.Value().(*Operation)
		if !ok {
			return errors.Wrap(errors.ErrType, "operation bucket")
		}
		if op.Status == StatusPending {
			res = append(res, op)
		}
		return nil
	})
	return res, err
}

// ListRecent returns up to limit operations, newest first. A limit of
// zero or less returns everything.
func (b Bucket) ListRecent(db custody.ReadOnlyKVStore, limit int) ([]*Operation, error) {
	var res []*Operation
	err := b.IterateReverse(db, func(obj orm.Object) error {
		op, ok := obj.Value().(*Operation)
		if !ok {
			return errors.Wrap(errors.ErrType, "operation bucket")
		}
		res = append(res, op)
		if limit > 0 && len(res) >= limit {
			return errStopIteration
		}
		return nil
	})
	if err == errStopIteration {
		err = nil
	}
	return res, err
}

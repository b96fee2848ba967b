// Package audit keeps an append-only trail of every approval and state
// transition. The trail is for inspection only and never drives control
// flow.
package audit

import (
	"encoding/binary"
	"encoding/json"

	"github.com/mintward/custody"
	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/orm"
)

// Event types recorded on the trail.
const (
	EventRequested           = "requested"
	EventApproved            = "approved"
	EventQuorum              = "quorum_reached"
	EventExecuted            = "executed"
	EventRejected            = "rejected"
	EventExpired             = "expired"
	EventSignFailed          = "sign_failed"
	EventSubmitFailed        = "submit_failed"
	EventSubmitIndeterminate = "submit_indeterminate"
)

// Event is one recorded occurrence on an operation.
type Event struct {
	OperationID int64  `json:"operation_id"`
	Seq         int64  `json:"seq"`
	Type        string `json:"type"`
	// Actor is the signer or caller behind the event, if any.
	Actor string `json:"actor,omitempty"`
	// Detail carries free form context, like a rejection reason or an
	// error message.
	Detail     string           `json:"detail,omitempty"`
	RecordedAt custody.UnixTime `json:"recorded_at"`
}

var _ orm.CloneableData = (*Event)(nil)

func (e *Event) Validate() error {
	var err error
	if e.OperationID <= 0 {
		err = errors.AppendField(err, "OperationID", errors.ErrEmpty)
	}
	if e.Seq <= 0 {
		err = errors.AppendField(err, "Seq", errors.ErrEmpty)
	}
	if e.Type == "" {
		err = errors.AppendField(err, "Type", errors.ErrEmpty)
	}
	err = errors.AppendField(err, "RecordedAt", e.RecordedAt.Validate())
	return err
}

func (e *Event) Copy() orm.CloneableData {
	cpy := *e
	return &cpy
}

func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func (e *Event) Unmarshal(raw []byte) error {
	return json.Unmarshal(raw, e)
}

// Trail stores events keyed by operation ID and a trail wide sequence,
// so a prefix scan on the operation ID returns its events in recording
// order.
type Trail struct {
	bucket orm.Bucket
	seq    orm.Sequence
}

func NewTrail() Trail {
	b := orm.NewBucket("audit", orm.NewSimpleObj(nil, &Event{}))
	return Trail{
		bucket: b,
		seq:    b.Sequence("seq"),
	}
}

// eventKey is 8 bytes of operation ID followed by 8 bytes of sequence,
// both big endian.
func eventKey(opID, seq int64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key, uint64(opID))
	binary.BigEndian.PutUint64(key[8:], uint64(seq))
	return key
}

// Record appends an event to the trail.
func (t Trail) Record(db custody.KVStore, opID int64, typ, actor, detail string, now custody.UnixTime) (*Event, error) {
	seq, err := t.seq.NextInt(db)
	if err != nil {
		return nil, errors.Wrap(err, "audit sequence")
	}
	event := &Event{
		OperationID: opID,
		Seq:         seq,
		Type:        typ,
		Actor:       actor,
		Detail:      detail,
		RecordedAt:  now,
	}
	obj := orm.NewSimpleObj(eventKey(opID, seq), event)
	if err := t.bucket.Save(db, obj); err != nil {
		return nil, err
	}
	return event, nil
}

// ListByOperation returns all events of one operation, oldest first.
func (t Trail) ListByOperation(db custody.ReadOnlyKVStore, opID int64) ([]*Event, error) {
	prefix := t.bucket.DBKey(eventKey(opID, 0)[:8])
	start, end := keyRange(prefix)
	iter, err := db.Iterator(start, end)
	if err != nil {
		return nil, err
	}
	defer iter.Release()

	var res []*Event
	for {
		key, value, err := iter.Next()
		if errors.ErrIteratorDone.Is(err) {
			return res, nil
		} else if err != nil {
			return nil, err
		}
		obj, err := t.bucket.Parse(key[len(prefix)-8:], value)
		if err != nil {
			return nil, err
		}
		event, ok := obj.Value().(*Event)
		if !ok {
			return nil, errors.Wrap(errors.ErrType, "audit bucket")
		}
		res = append(res, event)
	}
}

func keyRange(prefix []byte) ([]byte, []byte) {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return prefix, end[:i+1]
		}
	}
	return prefix, nil
}

package collateral

import (
	"encoding/json"

	"github.com/mintward/custody"
	"github.com/mintward/custody/coin"
	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/orm"
)

// Direction of a collateral movement.
type Direction uint8

const (
	DirectionInvalid Direction = iota
	DirectionDeposit
	DirectionWithdrawal
)

func (d Direction) String() string {
	switch d {
	case DirectionDeposit:
		return "deposit"
	case DirectionWithdrawal:
		return "withdrawal"
	default:
		return "invalid"
	}
}

func (d Direction) Validate() error {
	if d != DirectionDeposit && d != DirectionWithdrawal {
		return errors.Wrapf(errors.ErrInput, "direction %d", d)
	}
	return nil
}

func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Direction) UnmarshalJSON(raw []byte) error {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return err
	}
	switch name {
	case "deposit":
		*d = DirectionDeposit
	case "withdrawal":
		*d = DirectionWithdrawal
	default:
		return errors.Wrapf(errors.ErrInput, "direction %q", name)
	}
	return nil
}

// Entry is one fiat collateral movement. Entries are immutable once
// written. A mistake is corrected by a new compensating entry, never by
// an edit.
type Entry struct {
	ID        int64     `json:"id"`
	Direction Direction `json:"direction"`
	Amount    coin.Coin `json:"amount"`
	Reference string    `json:"reference"`
	// BankReference links the entry to the fiat side, if known.
	BankReference string           `json:"bank_reference,omitempty"`
	CreatedAt     custody.UnixTime `json:"created_at"`
}

var _ orm.CloneableData = (*Entry)(nil)

func (e *Entry) Validate() error {
	var err error
	err = errors.AppendField(err, "Direction", e.Direction.Validate())
	if !e.Amount.IsPositive() {
		err = errors.AppendField(err, "Amount", errors.ErrAmount)
	}
	err = errors.AppendField(err, "Amount", e.Amount.Validate())
	if e.Reference == "" {
		err = errors.AppendField(err, "Reference", errors.ErrEmpty)
	}
	err = errors.AppendField(err, "CreatedAt", e.CreatedAt.Validate())
	return err
}

func (e *Entry) Copy() orm.CloneableData {
	cpy := *e
	return &cpy
}

func (e *Entry) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func (e *Entry) Unmarshal(raw []byte) error {
	return json.Unmarshal(raw, e)
}

package collateral

import (
	"encoding/json"

	"github.com/mintward/custody"
	"github.com/mintward/custody/coin"
	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/orm"
)

// supplyRecord tracks how much token supply has been issued against the
// collateral and how much backing is reserved by mints that are still in
// flight. A single record lives under a fixed key.
type supplyRecord struct {
	Issued   coin.Coin `json:"issued"`
	Reserved coin.Coin `json:"reserved"`
}

var _ orm.CloneableData = (*supplyRecord)(nil)

func (s *supplyRecord) Validate() error {
	err := errors.AppendField(nil, "Issued", s.Issued.Validate())
	if !s.Issued.IsNonNegative() {
		err = errors.AppendField(err, "Issued", errors.ErrAmount)
	}
	err = errors.Append(err, errors.AppendField(nil, "Reserved", s.Reserved.Validate()))
	if !s.Reserved.IsNonNegative() {
		err = errors.AppendField(err, "Reserved", errors.ErrAmount)
	}
	return err
}

func (s *supplyRecord) Copy() orm.CloneableData {
	cpy := *s
	return &cpy
}

func (s *supplyRecord) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

func (s *supplyRecord) Unmarshal(raw []byte) error {
	return json.Unmarshal(raw, s)
}

var supplyBucket = orm.NewBucket("supply", orm.NewSimpleObj(nil, &supplyRecord{}))

var supplyKey = []byte("issued")

// supply loads the current issued and reserved amounts. An empty store
// means nothing was issued or reserved yet.
func (l Ledger) supply(db custody.ReadOnlyKVStore) (issued, reserved coin.Coin, err error) {
	obj, err := supplyBucket.Get(db, supplyKey)
	if err != nil {
		return coin.Coin{}, coin.Coin{}, err
	}
	if obj == nil {
		zero := coin.NewCoin(0, 0, l.ticker)
		return zero, zero, nil
	}
	rec, ok := obj.Value().(*supplyRecord)
	if !ok {
		return coin.Coin{}, coin.Coin{}, errors.Wrap(errors.ErrType, "supply record")
	}
	return rec.Issued, rec.Reserved, nil
}

func (l Ledger) setSupply(db custody.KVStore, issued, reserved coin.Coin) error {
	rec := &supplyRecord{Issued: issued, Reserved: reserved}
	return supplyBucket.Save(db, orm.NewSimpleObj(supplyKey, rec))
}

// IssuedSupply returns the total token supply issued so far.
func (l Ledger) IssuedSupply(db custody.ReadOnlyKVStore) (coin.Coin, error) {
	issued, _, err := l.supply(db)
	return issued, err
}

// ReservedSupply returns the backing claimed by mints that are still in
// flight, from request until a terminal transition.
func (l Ledger) ReservedSupply(db custody.ReadOnlyKVStore) (coin.Coin, error) {
	_, reserved, err := l.supply(db)
	return reserved, err
}

// Reserve claims backing for a mint being requested. It fails when the
// amount, on top of the issued supply and every other live reservation,
// exceeds the collateral balance. Two mints that each fit the collateral
// alone cannot both hold a reservation it only covers once.
func (l Ledger) Reserve(db custody.KVStore, amount coin.Coin) error {
	issued, reserved, err := l.supply(db)
	if err != nil {
		return err
	}
	next, err := reserved.Add(amount)
	if err != nil {
		return err
	}
	claimed, err := issued.Add(next)
	if err != nil {
		return err
	}
	balance, err := l.Balance(db)
	if err != nil {
		return err
	}
	if !balance.IsGTE(claimed) {
		return errors.Wrapf(errors.ErrInvariant, "mint of %s claims %s above collateral %s", amount, claimed, balance)
	}
	return l.setSupply(db, issued, next)
}

// Release returns a reservation after the mint ended without issuing,
// by rejection, expiry or a definitive submission failure.
func (l Ledger) Release(db custody.KVStore, amount coin.Coin) error {
	issued, reserved, err := l.supply(db)
	if err != nil {
		return err
	}
	next, err := reserved.Subtract(amount)
	if err != nil {
		return err
	}
	if !next.IsNonNegative() {
		return errors.Wrapf(errors.ErrInvariant, "releasing %s below zero reserved %s", amount, reserved)
	}
	return l.setSupply(db, issued, next)
}

// MarkIssued converts a reservation into issued supply after the mint
// executed on the network.
func (l Ledger) MarkIssued(db custody.KVStore, amount coin.Coin) (coin.Coin, error) {
	issued, reserved, err := l.supply(db)
	if err != nil {
		return coin.Coin{}, err
	}
	nextReserved, err := reserved.Subtract(amount)
	if err != nil {
		return coin.Coin{}, err
	}
	if !nextReserved.IsNonNegative() {
		return coin.Coin{}, errors.Wrapf(errors.ErrInvariant, "issuing %s without a matching reservation, reserved %s", amount, reserved)
	}
	nextIssued, err := issued.Add(amount)
	if err != nil {
		return coin.Coin{}, err
	}
	if err := l.setSupply(db, nextIssued, nextReserved); err != nil {
		return coin.Coin{}, err
	}
	return nextIssued, nil
}

// SubtractIssued shrinks the issued supply after a burn was executed.
func (l Ledger) SubtractIssued(db custody.KVStore, amount coin.Coin) (coin.Coin, error) {
	issued, reserved, err := l.supply(db)
	if err != nil {
		return coin.Coin{}, err
	}
	next, err := issued.Subtract(amount)
	if err != nil {
		return coin.Coin{}, err
	}
	if !next.IsNonNegative() {
		return coin.Coin{}, errors.Wrapf(errors.ErrInvariant, "burn below zero supply, issued %s", issued)
	}
	if err := l.setSupply(db, next, reserved); err != nil {
		return coin.Coin{}, err
	}
	return next, nil
}

// CheckMintAllowed refuses a mint that would push the issued supply,
// together with every reservation already held, above the collateral
// backing it. This is the read-only counterpart of Reserve.
func (l Ledger) CheckMintAllowed(db custody.ReadOnlyKVStore, amount coin.Coin) error {
	issued, reserved, err := l.supply(db)
	if err != nil {
		return err
	}
	claimed, err := issued.Add(reserved)
	if err != nil {
		return err
	}
	after, err := claimed.Add(amount)
	if err != nil {
		return err
	}
	balance, err := l.Balance(db)
	if err != nil {
		return err
	}
	if !balance.IsGTE(after) {
		return errors.Wrapf(errors.ErrInvariant, "mint of %s pushes claimed supply to %s above collateral %s", amount, after, balance)
	}
	return nil
}

package collateral

import (
	"github.com/mintward/custody"
	"github.com/mintward/custody/coin"
	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/orm"
)

// Ledger is the append-only record of fiat collateral movements. The
// backing balance is always recomputed from the entries, it is never
// cached as mutable state.
type Ledger struct {
	bucket orm.Bucket
	idSeq  orm.Sequence
	ticker string
}

// NewLedger returns a ledger storing movements of the given currency.
func NewLedger(ticker string) Ledger {
	b := orm.NewBucket("colentry", orm.NewSimpleObj(nil, &Entry{}))
	return Ledger{
		bucket: b,
		idSeq:  b.Sequence("id"),
		ticker: ticker,
	}
}

func entryKey(id int64) []byte {
	return orm.EncodeSequence(id)
}

// RecordDeposit appends a deposit entry.
func (l Ledger) RecordDeposit(db custody.KVStore, amount coin.Coin, reference, bankRef string, now custody.UnixTime) (*Entry, error) {
	return l.record(db, DirectionDeposit, amount, reference, bankRef, now)
}

// RecordWithdrawal appends a withdrawal entry. It refuses a withdrawal
// that would leave less collateral than the issued supply plus the
// backing reserved by mints still in flight.
func (l Ledger) RecordWithdrawal(db custody.KVStore, amount coin.Coin, reference, bankRef string, now custody.UnixTime) (*Entry, error) {
	balance, err := l.Balance(db)
	if err != nil {
		return nil, err
	}
	remaining, err := balance.Subtract(amount)
	if err != nil {
		return nil, err
	}
	if !remaining.IsNonNegative() {
		return nil, errors.Wrapf(errors.ErrAmount, "withdrawal exceeds balance %s", balance)
	}
	issued, reserved, err := l.supply(db)
	if err != nil {
		return nil, err
	}
	claimed, err := issued.Add(reserved)
	if err != nil {
		return nil, err
	}
	if !remaining.IsGTE(claimed) {
		return nil, errors.Wrapf(errors.ErrInvariant, "withdrawal leaves %s backing %s claimed", remaining, claimed)
	}
	return l.record(db, DirectionWithdrawal, amount, reference, bankRef, now)
}

func (l Ledger) record(db custody.KVStore, dir Direction, amount coin.Coin, reference, bankRef string, now custody.UnixTime) (*Entry, error) {
	if amount.Ticker != l.ticker {
		return nil, errors.Wrapf(errors.ErrCurrency, "%s, ledger holds %s", amount.Ticker, l.ticker)
	}
	id, err := l.idSeq.NextInt(db)
	if err != nil {
		return nil, errors.Wrap(err, "id sequence")
	}
	entry := &Entry{
		ID:            id,
		Direction:     dir,
		Amount:        amount,
		Reference:     reference,
		BankReference: bankRef,
		CreatedAt:     now,
	}
	obj := orm.NewSimpleObj(entryKey(id), entry)
	if err := l.bucket.Save(db, obj); err != nil {
		return nil, err
	}
	return entry, nil
}

// Balance sums all entries into the current backing balance. Callers
// must hold a consistent read snapshot while this walks the entries.
func (l Ledger) Balance(db custody.ReadOnlyKVStore) (coin.Coin, error) {
	total := coin.NewCoin(0, 0, l.ticker)
	err := l.bucket.Iterate(db, func(obj orm.Object) error {
		entry, ok := obj.Value().(*Entry)
		if !ok {
			return errors.Wrap(errors.ErrType, "collateral bucket")
		}
		amount := entry.Amount
		if entry.Direction == DirectionWithdrawal {
			amount = amount.Negative()
		}
		sum, err := total.Add(amount)
		if err != nil {
			return err
		}
		total = sum
		return nil
	})
	return total, err
}

// Entries returns every movement in insertion order.
func (l Ledger) Entries(db custody.ReadOnlyKVStore) ([]*Entry, error) {
	var res []*Entry
	err := l.bucket.Iterate(db, func(obj orm.Object) error {
		entry, ok := obj.Value().(*Entry)
		if !ok {
			return errors.Wrap(errors.ErrType, "collateral bucket")
		}
		res = append(res, entry)
		return nil
	})
	return res, err
}

// GetEntry loads a single entry by ID.
func (l Ledger) GetEntry(db custody.ReadOnlyKVStore, id int64) (*Entry, error) {
	obj, err := l.bucket.Get(db, entryKey(id))
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "collateral entry %d", id)
	}
	entry, ok := obj.Value().(*Entry)
	if !ok {
		return nil, errors.Wrapf(errors.ErrType, "collateral entry %d", id)
	}
	return entry, nil
}

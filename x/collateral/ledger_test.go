package collateral

import (
	"testing"

	"github.com/mintward/custody/coin"
	"github.com/mintward/custody/custodytest/assert"
	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/store"
)

func usd(whole int64) coin.Coin {
	return coin.NewCoin(whole, 0, "USDX")
}

func TestBalanceFromEntries(t *testing.T) {
	db := store.MemStore()
	l := NewLedger("USDX")

	_, err := l.RecordDeposit(db, usd(1000), "dep-1", "bank-1", 1000)
	assert.Nil(t, err)
	_, err = l.RecordDeposit(db, usd(500), "dep-2", "", 1001)
	assert.Nil(t, err)
	_, err = l.RecordWithdrawal(db, usd(300), "wd-1", "bank-2", 1002)
	assert.Nil(t, err)

	balance, err := l.Balance(db)
	assert.Nil(t, err)
	assert.Equal(t, usd(1200), balance)

	entries, err := l.Entries(db)
	assert.Nil(t, err)
	assert.Equal(t, 3, len(entries))
	assert.Equal(t, DirectionDeposit, entries[0].Direction)
	assert.Equal(t, DirectionWithdrawal, entries[2].Direction)
}

func TestRecordRejectsWrongCurrency(t *testing.T) {
	db := store.MemStore()
	l := NewLedger("USDX")
	_, err := l.RecordDeposit(db, coin.NewCoin(10, 0, "EUR"), "dep-1", "", 1000)
	if !errors.ErrCurrency.Is(err) {
		t.Fatalf("want ErrCurrency, got %+v", err)
	}
}

func TestWithdrawalGuards(t *testing.T) {
	db := store.MemStore()
	l := NewLedger("USDX")

	_, err := l.RecordDeposit(db, usd(100), "dep-1", "", 1000)
	assert.Nil(t, err)

	// More than the balance.
	_, err = l.RecordWithdrawal(db, usd(150), "wd-1", "", 1001)
	if !errors.ErrAmount.Is(err) {
		t.Fatalf("want ErrAmount, got %+v", err)
	}

	// Down to the issued supply, but not below.
	assert.Nil(t, l.Reserve(db, usd(60)))
	_, err = l.MarkIssued(db, usd(60))
	assert.Nil(t, err)
	_, err = l.RecordWithdrawal(db, usd(50), "wd-2", "", 1002)
	if !errors.ErrInvariant.Is(err) {
		t.Fatalf("want ErrInvariant, got %+v", err)
	}
	_, err = l.RecordWithdrawal(db, usd(40), "wd-3", "", 1003)
	assert.Nil(t, err)

	balance, err := l.Balance(db)
	assert.Nil(t, err)
	assert.Equal(t, usd(60), balance)
}

func TestIssuedSupplyBookkeeping(t *testing.T) {
	db := store.MemStore()
	l := NewLedger("USDX")

	issued, err := l.IssuedSupply(db)
	assert.Nil(t, err)
	assert.Equal(t, usd(0), issued)

	_, err = l.RecordDeposit(db, usd(1000), "dep-1", "", 1000)
	assert.Nil(t, err)

	assert.Nil(t, l.Reserve(db, usd(400)))
	reserved, err := l.ReservedSupply(db)
	assert.Nil(t, err)
	assert.Equal(t, usd(400), reserved)

	issued, err = l.MarkIssued(db, usd(400))
	assert.Nil(t, err)
	assert.Equal(t, usd(400), issued)
	reserved, err = l.ReservedSupply(db)
	assert.Nil(t, err)
	assert.Equal(t, usd(0), reserved)

	issued, err = l.SubtractIssued(db, usd(150))
	assert.Nil(t, err)
	assert.Equal(t, usd(250), issued)

	// Burning below zero supply is corrupt state, refuse it.
	if _, err := l.SubtractIssued(db, usd(300)); !errors.ErrInvariant.Is(err) {
		t.Fatalf("want ErrInvariant, got %+v", err)
	}
}

func TestCheckMintAllowed(t *testing.T) {
	db := store.MemStore()
	l := NewLedger("USDX")

	_, err := l.RecordDeposit(db, usd(500), "dep-1", "", 1000)
	assert.Nil(t, err)
	assert.Nil(t, l.Reserve(db, usd(300)))
	_, err = l.MarkIssued(db, usd(300))
	assert.Nil(t, err)

	assert.Nil(t, l.CheckMintAllowed(db, usd(200)))
	if err := l.CheckMintAllowed(db, usd(201)); !errors.ErrInvariant.Is(err) {
		t.Fatalf("want ErrInvariant, got %+v", err)
	}

	// Live reservations count against the headroom as well.
	assert.Nil(t, l.Reserve(db, usd(150)))
	assert.Nil(t, l.CheckMintAllowed(db, usd(50)))
	if err := l.CheckMintAllowed(db, usd(51)); !errors.ErrInvariant.Is(err) {
		t.Fatalf("want ErrInvariant, got %+v", err)
	}
}

func TestReservationLifecycle(t *testing.T) {
	db := store.MemStore()
	l := NewLedger("USDX")

	_, err := l.RecordDeposit(db, usd(100), "dep-1", "", 1000)
	assert.Nil(t, err)

	// Two mints that each fit the collateral alone cannot both claim it.
	assert.Nil(t, l.Reserve(db, usd(100)))
	if err := l.Reserve(db, usd(100)); !errors.ErrInvariant.Is(err) {
		t.Fatalf("want ErrInvariant, got %+v", err)
	}

	// The reserved backing cannot be withdrawn while the mint lives.
	if _, err := l.RecordWithdrawal(db, usd(1), "wd-1", "", 1001); !errors.ErrInvariant.Is(err) {
		t.Fatalf("want ErrInvariant, got %+v", err)
	}

	// Releasing frees the backing again.
	assert.Nil(t, l.Release(db, usd(100)))
	_, err = l.RecordWithdrawal(db, usd(100), "wd-2", "", 1002)
	assert.Nil(t, err)

	// Bookkeeping below zero is corrupt state, refuse it.
	if err := l.Release(db, usd(1)); !errors.ErrInvariant.Is(err) {
		t.Fatalf("want ErrInvariant, got %+v", err)
	}
	if _, err := l.MarkIssued(db, usd(1)); !errors.ErrInvariant.Is(err) {
		t.Fatalf("want ErrInvariant, got %+v", err)
	}
}

func TestEntryValidate(t *testing.T) {
	cases := map[string]struct {
		entry   Entry
		wantErr *errors.Error
	}{
		"valid": {
			entry: Entry{
				ID: 1, Direction: DirectionDeposit, Amount: usd(10),
				Reference: "ref", CreatedAt: 1000,
			},
			wantErr: nil,
		},
		"bad direction": {
			entry: Entry{
				ID: 1, Direction: DirectionInvalid, Amount: usd(10),
				Reference: "ref", CreatedAt: 1000,
			},
			wantErr: errors.ErrInput,
		},
		"zero amount": {
			entry: Entry{
				ID: 1, Direction: DirectionDeposit, Amount: usd(0),
				Reference: "ref", CreatedAt: 1000,
			},
			wantErr: errors.ErrAmount,
		},
		"missing reference": {
			entry: Entry{
				ID: 1, Direction: DirectionDeposit, Amount: usd(10),
				CreatedAt: 1000,
			},
			wantErr: errors.ErrEmpty,
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			if err := tc.entry.Validate(); !tc.wantErr.Is(err) {
				t.Fatalf("unexpected validation error: %+v", err)
			}
		})
	}
}

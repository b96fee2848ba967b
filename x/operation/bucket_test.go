package operation

import (
	"testing"

	"github.com/mintward/custody/coin"
	"github.com/mintward/custody/custodytest/assert"
	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/ledgernet"
	"github.com/mintward/custody/store"
)

func newPending(ref string) *Operation {
	return &Operation{
		Kind:           Mint{Quantity: coin.NewCoin(10, 0, "USDX"), Destination: "acc-dest"},
		Reference:      ref,
		RequiredWeight: 2,
		Status:         StatusPending,
		Unsigned: &ledgernet.UnsignedPayload{
			Raw:    []byte("raw"),
			Digest: []byte("digest"),
			Source: "acc-custody",
			Fee:    coin.NewCoin(0, 400, "XLM"),
		},
		CreatedAt: 1000,
		ExpiresAt: 2000,
	}
}

func TestBucketCreateAssignsSequentialIDs(t *testing.T) {
	db := store.MemStore()
	b := NewBucket()

	first, err := b.Create(db, newPending("ref-1"))
	assert.Nil(t, err)
	second, err := b.Create(db, newPending("ref-2"))
	assert.Nil(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)

	loaded, err := b.GetOperation(db, 1)
	assert.Nil(t, err)
	assert.Equal(t, "ref-1", loaded.Reference)
}

func TestBucketCreateGuards(t *testing.T) {
	db := store.MemStore()
	b := NewBucket()

	op := newPending("ref-1")
	op.Status = StatusApproved
	if _, err := b.Create(db, op); !errors.ErrState.Is(err) {
		t.Fatalf("want ErrState, got %+v", err)
	}

	op = newPending("ref-2")
	op.Approvals = []Approval{{Account: "signer-1", Weight: 1, Signature: []byte("sig")}}
	if _, err := b.Create(db, op); !errors.ErrState.Is(err) {
		t.Fatalf("want ErrState, got %+v", err)
	}
}

func TestBucketGetMissing(t *testing.T) {
	db := store.MemStore()
	b := NewBucket()
	if _, err := b.GetOperation(db, 123); !errors.ErrNotFound.Is(err) {
		t.Fatalf("want ErrNotFound, got %+v", err)
	}
}

func TestBucketUpdateRejectsIllegalTransition(t *testing.T) {
	db := store.MemStore()
	b := NewBucket()
	op, err := b.Create(db, newPending("ref-1"))
	assert.Nil(t, err)

	// Pending cannot jump straight to executed.
	_, err = b.Update(db, op.ID, func(op *Operation) error {
		op.Status = StatusExecuted
		return nil
	})
	if !errors.ErrState.Is(err) {
		t.Fatalf("want ErrState, got %+v", err)
	}

	// The failed mutation must not have been stored.
	loaded, err := b.GetOperation(db, op.ID)
	assert.Nil(t, err)
	assert.Equal(t, StatusPending, loaded.Status)
}

func TestBucketTerminalIsImmutable(t *testing.T) {
	db := store.MemStore()
	b := NewBucket()
	op, err := b.Create(db, newPending("ref-1"))
	assert.Nil(t, err)

	_, err = b.Transition(db, op.ID, StatusRejected, nil)
	assert.Nil(t, err)

	_, err = b.Update(db, op.ID, func(op *Operation) error {
		op.Note = "tamper"
		return nil
	})
	if !errors.ErrImmutable.Is(err) {
		t.Fatalf("want ErrImmutable, got %+v", err)
	}
}

func TestBucketUpdateProtectsID(t *testing.T) {
	db := store.MemStore()
	b := NewBucket()
	op, err := b.Create(db, newPending("ref-1"))
	assert.Nil(t, err)

	_, err = b.Update(db, op.ID, func(op *Operation) error {
		op.ID = 99
		return nil
	})
	if !errors.ErrImmutable.Is(err) {
		t.Fatalf("want ErrImmutable, got %+v", err)
	}
}

func TestBucketListing(t *testing.T) {
	db := store.MemStore()
	b := NewBucket()

	for i, ref := range []string{"ref-1", "ref-2", "ref-3"} {
		op, err := b.Create(db, newPending(ref))
		assert.Nil(t, err)
		// Reject the middle one so pending filtering is visible.
		if i == 1 {
			_, err = b.Transition(db, op.ID, StatusRejected, nil)
			assert.Nil(t, err)
		}
	}

	pending, err := b.ListPending(db)
	assert.Nil(t, err)
	assert.Equal(t, 2, len(pending))
	assert.Equal(t, "ref-1", pending[0].Reference)
	assert.Equal(t, "ref-3", pending[1].Reference)

	recent, err := b.ListRecent(db, 2)
	assert.Nil(t, err)
	assert.Equal(t, 2, len(recent))
	assert.Equal(t, "ref-3", recent[0].Reference)
	assert.Equal(t, "ref-2", recent[1].Reference)
}

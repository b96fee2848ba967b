package quorum

import (
	"testing"

	"github.com/mintward/custody"
	"github.com/mintward/custody/coin"
	"github.com/mintward/custody/custodytest"
	"github.com/mintward/custody/custodytest/assert"
	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/ledgernet"
	"github.com/mintward/custody/store"
	"github.com/mintward/custody/x/audit"
	"github.com/mintward/custody/x/operation"
	"github.com/mintward/custody/x/signers"
)

type fixture struct {
	db       custody.CacheableKVStore
	coord    *Coordinator
	ops      operation.Bucket
	trail    audit.Trail
	registry *signers.Registry
	op       *operation.Operation
}

func newFixture(t *testing.T, threshold signers.Weight, weights ...signers.Weight) *fixture {
	t.Helper()
	db := store.MemStore()
	ops := operation.NewBucket()
	trail := audit.NewTrail()
	registry := custodytest.Registry(weights...)
	coord, err := NewCoordinator(registry, ops, trail)
	assert.Nil(t, err)

	op := &operation.Operation{
		Kind:           operation.Mint{Quantity: coin.NewCoin(10, 0, "USDX"), Destination: "acc-dest"},
		Reference:      "ref-1",
		RequiredWeight: threshold,
		Status:         operation.StatusPending,
		Unsigned: &ledgernet.UnsignedPayload{
			Raw: []byte("raw"), Digest: []byte("digest"), Source: "acc-custody",
			Fee: coin.NewCoin(0, 400, "XLM"),
		},
		CreatedAt: 1000,
		ExpiresAt: 5000,
	}
	op, err = ops.Create(db, op)
	assert.Nil(t, err)

	return &fixture{db: db, coord: coord, ops: ops, trail: trail, registry: registry, op: op}
}

// approve runs both phases with the fake signatory.
func (f *fixture) approve(t *testing.T, account string, now custody.UnixTime) (*operation.Operation, bool, error) {
	t.Helper()
	op, member, err := f.coord.BeginApproval(f.db, f.op.ID, signers.MemberID(account), now)
	if err != nil {
		return nil, false, err
	}
	sig, err := member.Signatory.Sign(op.Unsigned)
	assert.Nil(t, err)
	return f.coord.RecordApproval(f.db, f.op.ID, member, sig, now)
}

func TestQuorumScenario(t *testing.T) {
	// Quorum of two, three signers of weight one each.
	f := newFixture(t, 2, 1, 1, 1)

	op, reached, err := f.approve(t, "signer-1", 1100)
	assert.Nil(t, err)
	assert.Equal(t, false, reached)
	assert.Equal(t, operation.StatusPending, op.Status)
	assert.Equal(t, signers.Weight(1), op.CurrentWeight())

	op, reached, err = f.approve(t, "signer-2", 1200)
	assert.Nil(t, err)
	assert.Equal(t, true, reached)
	assert.Equal(t, operation.StatusApproved, op.Status)
	assert.Equal(t, signers.Weight(2), op.CurrentWeight())

	// The third signer is too late, the operation left pending state.
	if _, _, err := f.approve(t, "signer-3", 1300); !errors.ErrState.Is(err) {
		t.Fatalf("want ErrState, got %+v", err)
	}

	events, err := f.trail.ListByOperation(f.db, f.op.ID)
	assert.Nil(t, err)
	assert.Equal(t, 3, len(events))
	assert.Equal(t, audit.EventApproved, events[0].Type)
	assert.Equal(t, audit.EventApproved, events[1].Type)
	assert.Equal(t, audit.EventQuorum, events[2].Type)
}

func TestDuplicateApprovalRejected(t *testing.T) {
	f := newFixture(t, 3, 1, 1, 1)

	_, _, err := f.approve(t, "signer-1", 1100)
	assert.Nil(t, err)

	_, _, err = f.approve(t, "signer-1", 1200)
	if !errors.ErrDuplicate.Is(err) {
		t.Fatalf("want ErrDuplicate, got %+v", err)
	}

	op, err := f.ops.GetOperation(f.db, f.op.ID)
	assert.Nil(t, err)
	assert.Equal(t, 1, len(op.Approvals))
}

func TestUnknownSignerRejected(t *testing.T) {
	f := newFixture(t, 2, 1, 1)
	_, _, err := f.coord.BeginApproval(f.db, f.op.ID, signers.MemberID("stranger"), 1100)
	if !errors.ErrUnauthorized.Is(err) {
		t.Fatalf("want ErrUnauthorized, got %+v", err)
	}
}

func TestApprovalWeightCapturedFromRegistry(t *testing.T) {
	f := newFixture(t, 3, 2, 1)

	op, reached, err := f.approve(t, "signer-1", 1100)
	assert.Nil(t, err)
	assert.Equal(t, false, reached)
	assert.Equal(t, signers.Weight(2), op.CurrentWeight())

	op, reached, err = f.approve(t, "signer-2", 1200)
	assert.Nil(t, err)
	assert.Equal(t, true, reached)
	assert.Equal(t, signers.Weight(3), op.CurrentWeight())
}

func TestExpiredOperationRefusesApprovals(t *testing.T) {
	f := newFixture(t, 2, 1, 1)
	// The deadline is 5000.
	if _, _, err := f.approve(t, "signer-1", 6000); !errors.ErrExpired.Is(err) {
		t.Fatalf("want ErrExpired, got %+v", err)
	}
}

func TestReject(t *testing.T) {
	f := newFixture(t, 2, 1, 1)

	op, err := f.coord.Reject(f.db, f.op.ID, "ops-team", "fat finger", 1100)
	assert.Nil(t, err)
	assert.Equal(t, operation.StatusRejected, op.Status)
	assert.Equal(t, "fat finger", op.Note)

	// Terminal, a second reject must fail.
	if _, err := f.coord.Reject(f.db, f.op.ID, "ops-team", "again", 1200); !errors.ErrImmutable.Is(err) {
		t.Fatalf("want ErrImmutable, got %+v", err)
	}
}

func TestExpirePending(t *testing.T) {
	f := newFixture(t, 2, 1, 1)
	// A second operation with a later deadline stays.
	op2 := &operation.Operation{
		Kind:           operation.Mint{Quantity: coin.NewCoin(5, 0, "USDX"), Destination: "acc-dest"},
		Reference:      "ref-2",
		RequiredWeight: 2,
		Status:         operation.StatusPending,
		Unsigned: &ledgernet.UnsignedPayload{
			Raw: []byte("raw"), Digest: []byte("digest"), Source: "acc-custody",
			Fee: coin.NewCoin(0, 400, "XLM"),
		},
		CreatedAt: 1000,
		ExpiresAt: 9000,
	}
	op2, err := f.ops.Create(f.db, op2)
	assert.Nil(t, err)

	expired, err := f.coord.ExpirePending(f.db, 6000)
	assert.Nil(t, err)
	assert.Equal(t, []int64{f.op.ID}, expired)

	swept, err := f.ops.GetOperation(f.db, f.op.ID)
	assert.Nil(t, err)
	assert.Equal(t, operation.StatusRejected, swept.Status)
	assert.Equal(t, "expired", swept.Note)

	kept, err := f.ops.GetOperation(f.db, op2.ID)
	assert.Nil(t, err)
	assert.Equal(t, operation.StatusPending, kept.Status)
}

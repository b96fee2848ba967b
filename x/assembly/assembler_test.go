package assembly

import (
	"context"
	"testing"

	"github.com/mintward/custody/coin"
	"github.com/mintward/custody/custodytest"
	"github.com/mintward/custody/custodytest/assert"
	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/ledgernet"
	"github.com/mintward/custody/x/signers"
)

func testAssembler(t *testing.T, weights ...signers.Weight) (*Assembler, *signers.Registry) {
	t.Helper()
	registry := custodytest.Registry(weights...)
	asm, err := NewAssembler(&custodytest.Client{}, registry, coin.NewCoin(0, 100, "XLM"))
	assert.Nil(t, err)
	return asm, registry
}

func TestFeeSurcharge(t *testing.T) {
	// Three signers plus the envelope slot pay four times the base fee.
	asm, _ := testAssembler(t, 1, 1, 1)
	fee, err := asm.Fee()
	assert.Nil(t, err)
	assert.Equal(t, coin.NewCoin(0, 400, "XLM"), fee)
}

func TestPrepareUnsignedCarriesFee(t *testing.T) {
	asm, _ := testAssembler(t, 1, 1)
	spec := ledgernet.PaymentSpec{
		Source:      "acc-custody",
		Destination: "acc-dest",
		Amount:      coin.NewCoin(100, 0, "USDX"),
		Memo:        "ref-1",
	}
	payload, err := asm.PrepareUnsigned(context.Background(), spec)
	assert.Nil(t, err)
	assert.Equal(t, coin.NewCoin(0, 300, "XLM"), payload.Fee)
	assert.Equal(t, "acc-custody", payload.Source)
	if len(payload.Digest) == 0 {
		t.Fatal("missing digest")
	}
}

func TestPrepareUnsignedValidatesSpec(t *testing.T) {
	asm, _ := testAssembler(t, 1)
	spec := ledgernet.PaymentSpec{
		Destination: "acc-dest",
		Amount:      coin.NewCoin(100, 0, "USDX"),
	}
	if _, err := asm.PrepareUnsigned(context.Background(), spec); !errors.ErrEmpty.Is(err) {
		t.Fatalf("want ErrEmpty, got %+v", err)
	}
}

func TestCollectAndAssembleRoundTrip(t *testing.T) {
	asm, registry := testAssembler(t, 1, 1, 1)
	spec := ledgernet.PaymentSpec{
		Source:      "acc-custody",
		Destination: "acc-dest",
		Amount:      coin.NewCoin(100, 0, "USDX"),
		Memo:        "ref-1",
	}
	payload, err := asm.PrepareUnsigned(context.Background(), spec)
	assert.Nil(t, err)

	var partials []ledgernet.PartialSignature
	for i := range registry.Members() {
		member := &registry.Members()[i]
		sig, err := asm.CollectPartialSignature(member, payload)
		assert.Nil(t, err)
		partials = append(partials, sig)
	}

	final, err := asm.AssembleFinal(payload, partials)
	assert.Nil(t, err)
	assert.Equal(t, len(partials), len(final.Signatures))
	assert.Equal(t, payload, final.Unsigned)
}

func TestCollectWrapsSigningFailure(t *testing.T) {
	asm, _ := testAssembler(t, 1)
	broken := custodytest.NewSignatory("signer-x")
	broken.Err = errors.ErrState.New("hsm offline")
	member := signers.NewMember(broken, 1)

	payload := &ledgernet.UnsignedPayload{
		Raw: []byte("raw"), Digest: []byte("digest"), Source: "acc-custody",
	}
	if _, err := asm.CollectPartialSignature(&member, payload); !errors.ErrSigning.Is(err) {
		t.Fatalf("want ErrSigning, got %+v", err)
	}
}

func TestAssembleFinalCanonicalizes(t *testing.T) {
	asm, _ := testAssembler(t, 1)
	payload := &ledgernet.UnsignedPayload{
		Raw: []byte("raw"), Digest: []byte("digest"), Source: "acc-custody",
	}
	partials := []ledgernet.PartialSignature{
		{Account: "charlie", Signature: []byte("c")},
		{Account: "alice", Signature: []byte("a")},
		{Account: "bob", Signature: []byte("b")},
		// A duplicate is dropped, not doubled.
		{Account: "alice", Signature: []byte("a2")},
	}

	final, err := asm.AssembleFinal(payload, partials)
	assert.Nil(t, err)
	assert.Equal(t, 3, len(final.Signatures))
	assert.Equal(t, "alice", final.Signatures[0].Account)
	assert.Equal(t, "bob", final.Signatures[1].Account)
	assert.Equal(t, "charlie", final.Signatures[2].Account)
	// First write wins for a duplicated account.
	assert.Equal(t, []byte("c"), []byte(final.Signatures[2].Signature))
	assert.Equal(t, []byte("a"), []byte(final.Signatures[0].Signature))
}

func TestAssembleFinalRequiresSignatures(t *testing.T) {
	asm, _ := testAssembler(t, 1)
	payload := &ledgernet.UnsignedPayload{
		Raw: []byte("raw"), Digest: []byte("digest"), Source: "acc-custody",
	}
	if _, err := asm.AssembleFinal(payload, nil); !errors.ErrEmpty.Is(err) {
		t.Fatalf("want ErrEmpty, got %+v", err)
	}
}

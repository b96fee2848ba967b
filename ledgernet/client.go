/*
Package ledgernet defines the boundary to the distributed ledger network
that the custody engine issues transactions on.

The engine never signs or broadcasts on its own. It asks a Client to
prepare an unsigned transaction skeleton (filling in network specific
sequence and fee fields), distributes the signing digest to the
co-signers, and finally hands the assembled multi-signed payload back to
the Client for submission.

Submission has three distinguishable outcomes and the difference matters
a lot: a definitive success, a definitive rejection (errors.ErrSubmission)
and an indeterminate transport failure (errors.ErrIndeterminate) where the
network may or may not have accepted the transaction. Callers must never
collapse the last case into one of the first two.
*/
package ledgernet

import (
	"context"

	"github.com/mintward/custody/coin"
	"github.com/mintward/custody/errors"
)

// PaymentSpec describes the single payment a custody transaction
// executes. Minting pays from the issuing account to the destination,
// burning pays from the redemption source back to the issuing account.
type PaymentSpec struct {
	// Source account the payment spends from.
	Source string
	// Destination account the payment delivers to.
	Destination string
	// Amount of the token moved.
	Amount coin.Coin
	// Memo carries the operation reference for reconciliation. Networks
	// may truncate it.
	Memo string
}

// Validate ensures the payment description can be turned into a
// transaction.
func (s PaymentSpec) Validate() error {
	var err error
	if s.Source == "" {
		err = errors.AppendField(err, "Source", errors.ErrEmpty)
	}
	if s.Destination == "" {
		err = errors.AppendField(err, "Destination", errors.ErrEmpty)
	}
	if !s.Amount.IsPositive() {
		err = errors.AppendField(err, "Amount", errors.ErrAmount)
	}
	return err
}

// UnsignedPayload is the network specific transaction skeleton. It is
// produced exactly once per operation and never regenerated, because
// regenerating it after signatures were collected would invalidate them.
type UnsignedPayload struct {
	// Raw is the serialized network transaction without any signature.
	Raw []byte `json:"raw"`
	// Digest is the canonical signing digest of Raw. All partial
	// signatures are produced over this value.
	Digest []byte `json:"digest"`
	// Source is the multi-signature custody account the transaction
	// spends from.
	Source string `json:"source"`
	// Fee is the total fee the transaction pays, including the
	// multi-signature surcharge.
	Fee coin.Coin `json:"fee"`
}

// Validate returns an error if the payload is incomplete.
func (p *UnsignedPayload) Validate() error {
	if p == nil {
		return errors.Wrap(errors.ErrEmpty, "payload")
	}
	var err error
	if len(p.Raw) == 0 {
		err = errors.AppendField(err, "Raw", errors.ErrEmpty)
	}
	if len(p.Digest) == 0 {
		err = errors.AppendField(err, "Digest", errors.ErrEmpty)
	}
	if p.Source == "" {
		err = errors.AppendField(err, "Source", errors.ErrEmpty)
	}
	return err
}

// PartialSignature is one co-signer's signature over an unsigned
// payload digest, together with the signer's public key material.
type PartialSignature struct {
	// Account is the network account identifier of the signer. The
	// final signature set is canonicalized by this value.
	Account string `json:"account"`
	// PubKey is the raw public key of the signer.
	PubKey []byte `json:"pub_key"`
	// Signature is the opaque signature blob.
	Signature []byte `json:"signature"`
}

// FinalPayload is the multi-signed transaction, an unsigned payload plus
// the canonically ordered signature set. The single-signer key field of
// the network envelope stays empty, a multi-signed transaction is
// syntactically distinct from a singly-signed one.
type FinalPayload struct {
	Unsigned   *UnsignedPayload   `json:"unsigned"`
	Signatures []PartialSignature `json:"signatures"`
}

// SubmitResult reports a definitive successful submission.
type SubmitResult struct {
	// TxID is the network transaction identifier.
	TxID string
	// Ledger is the network ledger/block the transaction was included
	// in, when the network reports one.
	Ledger int64
}

// Client talks to the ledger network.
//
// Implementations must be safe for concurrent use.
type Client interface {
	// Prepare builds the unsigned transaction skeleton for the given
	// payment, filling in network specific sequence fields and using
	// the provided total fee.
	Prepare(ctx context.Context, spec PaymentSpec, fee coin.Coin) (*UnsignedPayload, error)

	// SubmitMultiSigned broadcasts the multi-signed payload. A non-nil
	// error wraps either errors.ErrSubmission when the network
	// definitively rejected the transaction, or errors.ErrIndeterminate
	// when no definitive answer was obtained.
	SubmitMultiSigned(ctx context.Context, final *FinalPayload) (*SubmitResult, error)
}

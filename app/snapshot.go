package app

import (
	"github.com/mintward/custody"
	"github.com/mintward/custody/coin"
	"github.com/mintward/custody/x/operation"
	"github.com/mintward/custody/x/signers"
)

// ApprovalSnapshot is the caller visible view of one recorded approval.
// Signature material stays internal.
type ApprovalSnapshot struct {
	SignerID string           `json:"signer_id"`
	Account  string           `json:"account"`
	Weight   signers.Weight   `json:"weight"`
	SignedAt custody.UnixTime `json:"signed_at"`
}

// OperationSnapshot is the caller visible view of an operation. It is a
// value copy, holding it gives no access to engine state.
type OperationSnapshot struct {
	ID             int64              `json:"id"`
	Kind           string             `json:"kind"`
	Amount         coin.Coin          `json:"amount"`
	Destination    string             `json:"destination,omitempty"`
	Source         string             `json:"source,omitempty"`
	Reference      string             `json:"reference"`
	RequiredWeight signers.Weight     `json:"required_weight"`
	CurrentWeight  signers.Weight     `json:"current_weight"`
	Approvals      []ApprovalSnapshot `json:"approvals,omitempty"`
	Status         string             `json:"status"`
	Fee            coin.Coin          `json:"fee"`
	ResultTxID     string             `json:"result_tx_id,omitempty"`
	Note           string             `json:"note,omitempty"`
	CreatedAt      custody.UnixTime   `json:"created_at"`
	ExpiresAt      custody.UnixTime   `json:"expires_at"`
}

func snapshotOf(op *operation.Operation) *OperationSnapshot {
	snap := &OperationSnapshot{
		ID:             op.ID,
		Kind:           op.Kind.Type(),
		Amount:         op.Kind.Amount(),
		Reference:      op.Reference,
		RequiredWeight: op.RequiredWeight,
		CurrentWeight:  op.CurrentWeight(),
		Status:         op.Status.String(),
		ResultTxID:     op.ResultTxID,
		Note:           op.Note,
		CreatedAt:      op.CreatedAt,
		ExpiresAt:      op.ExpiresAt,
	}
	switch kind := op.Kind.(type) {
	case operation.Mint:
		snap.Destination = kind.Destination
	case operation.Burn:
		snap.Source = kind.Source
	}
	if op.Unsigned != nil {
		snap.Fee = op.Unsigned.Fee
	}
	for _, a := range op.Approvals {
		snap.Approvals = append(snap.Approvals, ApprovalSnapshot{
			SignerID: a.SignerID.String(),
			Account:  a.Account,
			Weight:   a.Weight,
			SignedAt: a.SignedAt,
		})
	}
	return snap
}

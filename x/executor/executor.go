/*
Package executor performs the terminal step of an approved custody
operation: it assembles the multi-signed payload, submits it to the
ledger network and translates the outcome into the final state
transition plus an immutable transaction receipt.

Submission outcomes are deliberately kept three-valued. A definitive
success executes the operation, a definitive network rejection ends it
as rejected without retry, and an indeterminate transport failure leaves
the operation approved and flagged for human reconciliation. Collapsing
the indeterminate case into either of the others risks a double spend.
*/
package executor

import (
	"context"

	"github.com/mintward/custody"
	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/ledgernet"
	"github.com/mintward/custody/x/assembly"
	"github.com/mintward/custody/x/audit"
	"github.com/mintward/custody/x/collateral"
	"github.com/mintward/custody/x/operation"
)

type Executor struct {
	client    ledgernet.Client
	assembler *assembly.Assembler
	ops       operation.Bucket
	records   RecordBucket
	ledger    collateral.Ledger
	trail     audit.Trail
	// issuing is the custody account minting pays from and burning
	// returns supply to.
	issuing string
}

func NewExecutor(client ledgernet.Client, asm *assembly.Assembler, ops operation.Bucket, records RecordBucket, ledger collateral.Ledger, trail audit.Trail, issuingAccount string) (*Executor, error) {
	if client == nil {
		return nil, errors.Wrap(errors.ErrEmpty, "client")
	}
	if asm == nil {
		return nil, errors.Wrap(errors.ErrEmpty, "assembler")
	}
	if issuingAccount == "" {
		return nil, errors.Wrap(errors.ErrEmpty, "issuing account")
	}
	return &Executor{
		client:    client,
		assembler: asm,
		ops:       ops,
		records:   records,
		ledger:    ledger,
		trail:     trail,
		issuing:   issuingAccount,
	}, nil
}

// Submit assembles the final payload and broadcasts it. It performs no
// store writes, so it can run outside the store lock. The returned error
// wraps ErrSubmission on a definitive rejection and ErrIndeterminate
// when no definitive answer was obtained.
func (e *Executor) Submit(ctx context.Context, op *operation.Operation) (*ledgernet.SubmitResult, error) {
	if op.Status != operation.StatusApproved {
		return nil, errors.Wrapf(errors.ErrState, "operation %d is %s, not approved", op.ID, op.Status)
	}
	final, err := e.assembler.AssembleFinal(op.Unsigned, op.Partials())
	if err != nil {
		return nil, err
	}
	return e.client.SubmitMultiSigned(ctx, final)
}

// FinalizeSuccess moves the operation to executed, records the network
// transaction ID, creates the receipt and adjusts the issued supply.
func (e *Executor) FinalizeSuccess(db custody.KVStore, opID int64, res *ledgernet.SubmitResult, now custody.UnixTime) (*operation.Operation, error) {
	if res == nil || res.TxID == "" {
		return nil, errors.Wrap(errors.ErrEmpty, "submit result")
	}
	op, err := e.ops.Update(db, opID, func(op *operation.Operation) error {
		if op.Status != operation.StatusApproved {
			return errors.Wrapf(errors.ErrState, "operation %d is %s, not approved", op.ID, op.Status)
		}
		op.Status = operation.StatusExecuted
		op.ResultTxID = res.TxID
		return nil
	})
	if err != nil {
		return nil, err
	}

	from, to := e.parties(op)
	rec := &Record{
		TxID:              res.TxID,
		Kind:              op.Kind.Type(),
		Amount:            op.Kind.Amount(),
		FromParty:         from,
		ToParty:           to,
		LinkedOperationID: op.ID,
		Ledger:            res.Ledger,
		CreatedAt:         now,
	}
	if err := e.records.Create(db, rec); err != nil {
		return nil, err
	}

	switch op.Kind.(type) {
	case operation.Mint:
		// The mint has held a backing reservation since it was
		// requested, convert it into issued supply now.
		if _, err := e.ledger.MarkIssued(db, op.Kind.Amount()); err != nil {
			return nil, err
		}
	case operation.Burn:
		if _, err := e.ledger.SubtractIssued(db, op.Kind.Amount()); err != nil {
			return nil, err
		}
	}

	if _, err := e.trail.Record(db, op.ID, audit.EventExecuted, "", res.TxID, now); err != nil {
		return nil, err
	}
	return op, nil
}

// FinalizeFailure moves the operation to rejected after a definitive
// network refusal. The operation is not re-queued. The prepared payload
// carries stale sequence and fee fields by now, so a retry requires a
// brand new operation.
func (e *Executor) FinalizeFailure(db custody.KVStore, opID int64, cause error, now custody.UnixTime) (*operation.Operation, error) {
	detail := "submission failed"
	if cause != nil {
		detail = cause.Error()
	}
	op, err := e.ops.Update(db, opID, func(op *operation.Operation) error {
		if op.Status != operation.StatusApproved {
			return errors.Wrapf(errors.ErrState, "operation %d is %s, not approved", op.ID, op.Status)
		}
		op.Status = operation.StatusRejected
		op.Note = detail
		return nil
	})
	if err != nil {
		return nil, err
	}
	// A failed mint never issues, return its backing reservation.
	if _, ok := op.Kind.(operation.Mint); ok {
		if err := e.ledger.Release(db, op.Kind.Amount()); err != nil {
			return nil, err
		}
	}
	if _, err := e.trail.Record(db, op.ID, audit.EventSubmitFailed, "", detail, now); err != nil {
		return nil, err
	}
	return op, nil
}

// FinalizeIndeterminate records an indeterminate submission on the audit
// trail and flags the operation without any status change. The operation
// stays approved and a human must check the network before any resubmit.
func (e *Executor) FinalizeIndeterminate(db custody.KVStore, opID int64, cause error, now custody.UnixTime) (*operation.Operation, error) {
	detail := "indeterminate submission"
	if cause != nil {
		detail = cause.Error()
	}
	op, err := e.ops.Update(db, opID, func(op *operation.Operation) error {
		if op.Status != operation.StatusApproved {
			return errors.Wrapf(errors.ErrState, "operation %d is %s, not approved", op.ID, op.Status)
		}
		op.Note = detail
		return nil
	})
	if err != nil {
		return nil, err
	}
	if _, err := e.trail.Record(db, op.ID, audit.EventSubmitIndeterminate, "", detail, now); err != nil {
		return nil, err
	}
	return op, nil
}

func (e *Executor) parties(op *operation.Operation) (from, to string) {
	switch kind := op.Kind.(type) {
	case operation.Mint:
		return e.issuing, kind.Destination
	case operation.Burn:
		return kind.Source, e.issuing
	default:
		return "", ""
	}
}

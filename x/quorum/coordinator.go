/*
Package quorum orchestrates signature collection on pending operations.

The coordinator splits an approval into a read phase and a write phase.
The read phase validates the request and can be followed by slow signing
I/O without holding any store lock. The write phase re-validates against
fresh state and appends the approval atomically, so two racing approvals
from the same signer cannot both land and two approvals pushing the
weight over the threshold yield exactly one quorum flip.
*/
package quorum

import (
	"github.com/mintward/custody"
	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/ledgernet"
	"github.com/mintward/custody/x/audit"
	"github.com/mintward/custody/x/operation"
	"github.com/mintward/custody/x/signers"
)

type Coordinator struct {
	registry *signers.Registry
	ops      operation.Bucket
	trail    audit.Trail
}

func NewCoordinator(registry *signers.Registry, ops operation.Bucket, trail audit.Trail) (*Coordinator, error) {
	if registry == nil {
		return nil, errors.Wrap(errors.ErrEmpty, "registry")
	}
	return &Coordinator{
		registry: registry,
		ops:      ops,
		trail:    trail,
	}, nil
}

func (c *Coordinator) guardApprovable(op *operation.Operation, signerID custody.Address, now custody.UnixTime) error {
	if op.Status != operation.StatusPending {
		return errors.Wrapf(errors.ErrState, "operation %d is %s", op.ID, op.Status)
	}
	if !op.ExpiresAt.IsZero() && now >= op.ExpiresAt {
		return errors.Wrapf(errors.ErrExpired, "operation %d expired at %s", op.ID, op.ExpiresAt)
	}
	if op.HasApproved(signerID) {
		return errors.Wrapf(errors.ErrDuplicate, "signer %s already approved operation %d", signerID, op.ID)
	}
	return nil
}

// BeginApproval validates that the signer may approve the operation and
// returns the member whose signature should be collected. Nothing is
// written, so the state may still change before RecordApproval runs.
func (c *Coordinator) BeginApproval(db custody.ReadOnlyKVStore, opID int64, signerID custody.Address, now custody.UnixTime) (*operation.Operation, *signers.Member, error) {
	member, err := c.registry.Member(signerID)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "unknown signer")
	}
	op, err := c.ops.GetOperation(db, opID)
	if err != nil {
		return nil, nil, err
	}
	if err := c.guardApprovable(op, signerID, now); err != nil {
		return nil, nil, err
	}
	return op, member, nil
}

// RecordApproval appends the collected signature to the operation and
// flips it to approved once the quorum threshold is reached. The caller
// must hold the store write lock. The returned flag reports whether this
// call reached the quorum, and exactly one racing call can see it true.
func (c *Coordinator) RecordApproval(db custody.KVStore, opID int64, member *signers.Member, sig ledgernet.PartialSignature, now custody.UnixTime) (*operation.Operation, bool, error) {
	quorumReached := false
	op, err := c.ops.Update(db, opID, func(op *operation.Operation) error {
		if err := c.guardApprovable(op, member.ID, now); err != nil {
			return err
		}
		op.Approvals = append(op.Approvals, operation.Approval{
			SignerID:  member.ID,
			Account:   sig.Account,
			Weight:    member.Weight,
			PubKey:    sig.PubKey,
			Signature: sig.Signature,
			SignedAt:  now,
		})
		if op.CurrentWeight() >= op.RequiredWeight {
			op.Status = operation.StatusApproved
			quorumReached = true
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if _, err := c.trail.Record(db, op.ID, audit.EventApproved, sig.Account, "", now); err != nil {
		return nil, false, err
	}
	if quorumReached {
		if _, err := c.trail.Record(db, op.ID, audit.EventQuorum, sig.Account, "", now); err != nil {
			return nil, false, err
		}
	}
	return op, quorumReached, nil
}

// Reject administratively ends an operation that has not executed yet.
// It is guarded the same way as an approval, a terminal operation cannot
// be rejected again.
func (c *Coordinator) Reject(db custody.KVStore, opID int64, actor, reason string, now custody.UnixTime) (*operation.Operation, error) {
	if reason == "" {
		reason = "rejected"
	}
	op, err := c.ops.Update(db, opID, func(op *operation.Operation) error {
		op.Status = operation.StatusRejected
		op.Note = reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	if _, err := c.trail.Record(db, op.ID, audit.EventRejected, actor, reason, now); err != nil {
		return nil, err
	}
	return op, nil
}

// ExpirePending sweeps all pending operations whose deadline has passed
// into rejected and returns their IDs.
func (c *Coordinator) ExpirePending(db custody.KVStore, now custody.UnixTime) ([]int64, error) {
	pending, err := c.ops.ListPending(db)
	if err != nil {
		return nil, err
	}
	var expired []int64
	for _, op := range pending {
		if op.ExpiresAt.IsZero() || now < op.ExpiresAt {
			continue
		}
		if _, err := c.ops.Update(db, op.ID, func(op *operation.Operation) error {
			if op.Status != operation.StatusPending {
				return errors.Wrapf(errors.ErrState, "operation %d is %s", op.ID, op.Status)
			}
			op.Status = operation.StatusRejected
			op.Note = "expired"
			return nil
		}); err != nil {
			return expired, err
		}
		if _, err := c.trail.Record(db, op.ID, audit.EventExpired, "", "", now); err != nil {
			return expired, err
		}
		expired = append(expired, op.ID)
	}
	return expired, nil
}

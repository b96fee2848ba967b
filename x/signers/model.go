package signers

import (
	"github.com/mintward/custody"
	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/ledgernet"
)

const (
	// Maximum value a weight can be set to. Kept deliberately small,
	// the signer set is a handful of humans or HSMs, not a crowd.
	maxWeightValue = 255

	// To avoid burning CPU, this is the maximum number of members
	// allowed to be part of a single signer set.
	maxMembersAllowed = 100
)

// Weight represents the strength of a signature.
type Weight int32

func (w Weight) Validate() error {
	if w < 1 {
		return errors.Wrap(errors.ErrState,
			"weight must be greater than 0")
	}
	if w > maxWeightValue {
		return errors.Wrapf(errors.ErrOverflow,
			"weight is %d and must not be greater than %d", w, maxWeightValue)
	}
	return nil
}

// Signatory is the opaque signing capability of a co-signer. Signing may
// reach out to an external signing service or hardware and can fail with
// an errors.ErrSigning wrapped cause.
type Signatory interface {
	// Account returns the ledger network account identifier of this
	// signer.
	Account() string

	// Sign produces a partial signature over the payload digest.
	Sign(payload *ledgernet.UnsignedPayload) (ledgernet.PartialSignature, error)
}

// Member is one authorized co-signer: an identity, its voting weight and
// its signing capability. The set of members is configured out of band
// and does not change at runtime.
type Member struct {
	// ID is derived from the signer public key material, see MemberID.
	ID custody.Address
	// Weight this member contributes towards the quorum.
	Weight Weight
	// Signatory produces this member's partial signatures.
	Signatory Signatory
}

// MemberID derives the engine identity of a signer from its network
// account identifier.
func MemberID(account string) custody.Address {
	return custody.NewAddress([]byte(account))
}

// NewMember builds a member around a signing capability.
func NewMember(sig Signatory, weight Weight) Member {
	return Member{
		ID:        MemberID(sig.Account()),
		Weight:    weight,
		Signatory: sig,
	}
}

// Validate ensures the member is complete.
func (m Member) Validate() error {
	var err error
	err = errors.AppendField(err, "ID", m.ID.Validate())
	err = errors.AppendField(err, "Weight", m.Weight.Validate())
	if m.Signatory == nil {
		err = errors.AppendField(err, "Signatory", errors.ErrEmpty)
	}
	return err
}

package signers

import (
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"

	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/ledgernet"
)

// StellarSignatory signs custody payloads with a locally held Stellar
// keypair. Production co-signers would typically sit behind a remote
// signing service, this implementation covers single-host deployments
// and tests.
type StellarSignatory struct {
	kp *keypair.Full
}

var _ Signatory = (*StellarSignatory)(nil)

// NewStellarSignatory creates a signatory from a Stellar secret seed.
func NewStellarSignatory(seed string) (*StellarSignatory, error) {
	kp, err := keypair.Parse(seed)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, "cannot parse seed")
	}
	full, ok := kp.(*keypair.Full)
	if !ok {
		return nil, errors.Wrap(errors.ErrInput, "seed provides no signing capability")
	}
	return &StellarSignatory{kp: full}, nil
}

// GenerateStellarSignatory creates a signatory with a random keypair.
// Useful for tests and local setups.
func GenerateStellarSignatory() (*StellarSignatory, error) {
	kp, err := keypair.Random()
	if err != nil {
		return nil, errors.Wrap(errors.ErrState, "cannot generate keypair")
	}
	return &StellarSignatory{kp: kp}, nil
}

// Account returns the Stellar account identifier of this signer.
func (s *StellarSignatory) Account() string {
	return s.kp.Address()
}

// Seed exposes the secret seed, needed when funding the signer account
// out of band. Handle with care.
func (s *StellarSignatory) Seed() string {
	return s.kp.Seed()
}

// Sign produces a partial signature over the payload digest.
func (s *StellarSignatory) Sign(payload *ledgernet.UnsignedPayload) (ledgernet.PartialSignature, error) {
	if err := payload.Validate(); err != nil {
		return ledgernet.PartialSignature{}, errors.Wrap(err, "payload")
	}

	sig, err := s.kp.Sign(payload.Digest)
	if err != nil {
		return ledgernet.PartialSignature{}, errors.Wrap(errors.ErrSigning, err.Error())
	}

	pub, err := strkey.Decode(strkey.VersionByteAccountID, s.kp.Address())
	if err != nil {
		return ledgernet.PartialSignature{}, errors.Wrap(errors.ErrSigning, "cannot decode public key")
	}

	return ledgernet.PartialSignature{
		Account:   s.kp.Address(),
		PubKey:    pub,
		Signature: sig,
	}, nil
}

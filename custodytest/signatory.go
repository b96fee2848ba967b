package custodytest

import (
	"crypto/sha256"
	"fmt"

	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/ledgernet"
	"github.com/mintward/custody/x/signers"
)

// Signatory is a fake signing capability producing deterministic
// signatures derived from the account name and the payload digest.
type Signatory struct {
	account string
	// Err, when set, fails every Sign call.
	Err error
}

var _ signers.Signatory = (*Signatory)(nil)

func NewSignatory(account string) *Signatory {
	return &Signatory{account: account}
}

func (s *Signatory) Account() string {
	return s.account
}

func (s *Signatory) Sign(payload *ledgernet.UnsignedPayload) (ledgernet.PartialSignature, error) {
	if s.Err != nil {
		return ledgernet.PartialSignature{}, errors.Wrap(errors.ErrSigning, s.Err.Error())
	}
	pub := sha256.Sum256([]byte("pub/" + s.account))
	sig := sha256.Sum256(append([]byte("sig/"+s.account+"/"), payload.Digest...))
	return ledgernet.PartialSignature{
		Account:   s.account,
		PubKey:    pub[:],
		Signature: sig[:],
	}, nil
}

// Members builds one member per weight, with accounts signer-1,
// signer-2 and so on.
func Members(weights ...signers.Weight) []signers.Member {
	res := make([]signers.Member, len(weights))
	for i, w := range weights {
		res[i] = signers.NewMember(NewSignatory(accountName(i)), w)
	}
	return res
}

// Registry builds a registry of equal members, panicking on invalid
// input. Tests only.
func Registry(weights ...signers.Weight) *signers.Registry {
	r, err := signers.NewRegistry(Members(weights...))
	if err != nil {
		panic(err)
	}
	return r
}

func accountName(i int) string {
	return fmt.Sprintf("signer-%d", i+1)
}

/*
Package assembly builds the unsigned transaction skeleton for a custody
operation, collects partial signatures from co-signers and combines them
into the final multi-signed payload.
*/
package assembly

import (
	"context"
	"sort"

	"github.com/mintward/custody/coin"
	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/ledgernet"
	"github.com/mintward/custody/x/signers"
)

// Assembler is a stateless transformer. All durable state lives with the
// operation that owns the payloads.
type Assembler struct {
	client   ledgernet.Client
	registry *signers.Registry
	baseFee  coin.Coin
}

func NewAssembler(client ledgernet.Client, registry *signers.Registry, baseFee coin.Coin) (*Assembler, error) {
	if client == nil {
		return nil, errors.Wrap(errors.ErrEmpty, "client")
	}
	if registry == nil {
		return nil, errors.Wrap(errors.ErrEmpty, "registry")
	}
	if !baseFee.IsPositive() {
		return nil, errors.Wrap(errors.ErrAmount, "base fee")
	}
	return &Assembler{
		client:   client,
		registry: registry,
		baseFee:  baseFee,
	}, nil
}

// Fee returns the total fee a multi-signed custody transaction pays. The
// network charges the base fee once per attached signature, and the
// envelope reserves one extra slot for the master key, so the surcharge
// is (signer count + 1) times the base fee.
func (a *Assembler) Fee() (coin.Coin, error) {
	fee, err := a.baseFee.Multiply(int64(a.registry.Count()) + 1)
	if err != nil {
		return coin.Coin{}, errors.Wrap(err, "fee")
	}
	return fee, nil
}

// PrepareUnsigned builds the unsigned transaction skeleton for the given
// payment. This is called exactly once per operation, at creation.
func (a *Assembler) PrepareUnsigned(ctx context.Context, spec ledgernet.PaymentSpec) (*ledgernet.UnsignedPayload, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	fee, err := a.Fee()
	if err != nil {
		return nil, err
	}
	payload, err := a.client.Prepare(ctx, spec, fee)
	if err != nil {
		return nil, errors.Wrap(err, "prepare")
	}
	if err := payload.Validate(); err != nil {
		return nil, errors.Wrap(err, "prepared payload")
	}
	return payload, nil
}

// CollectPartialSignature asks one member to sign the payload digest.
// Signing may involve network I/O and must not be called while holding
// store locks.
func (a *Assembler) CollectPartialSignature(member *signers.Member, payload *ledgernet.UnsignedPayload) (ledgernet.PartialSignature, error) {
	if err := payload.Validate(); err != nil {
		return ledgernet.PartialSignature{}, err
	}
	sig, err := member.Signatory.Sign(payload)
	if err != nil {
		if errors.ErrSigning.Is(err) {
			return ledgernet.PartialSignature{}, err
		}
		return ledgernet.PartialSignature{}, errors.Wrap(errors.ErrSigning, err.Error())
	}
	if len(sig.Signature) == 0 {
		return ledgernet.PartialSignature{}, errors.Wrap(errors.ErrSigning, "empty signature")
	}
	if sig.Account == "" {
		sig.Account = member.Signatory.Account()
	}
	return sig, nil
}

// AssembleFinal combines the collected partial signatures into the
// multi-signed payload. The signature set is deduplicated by account and
// sorted by account, so the result is canonical regardless of approval
// order.
func (a *Assembler) AssembleFinal(unsigned *ledgernet.UnsignedPayload, partials []ledgernet.PartialSignature) (*ledgernet.FinalPayload, error) {
	if err := unsigned.Validate(); err != nil {
		return nil, err
	}
	if len(partials) == 0 {
		return nil, errors.Wrap(errors.ErrEmpty, "no signatures")
	}

	seen := make(map[string]struct{}, len(partials))
	sigs := make([]ledgernet.PartialSignature, 0, len(partials))
	for _, p := range partials {
		if p.Account == "" {
			return nil, errors.Wrap(errors.ErrEmpty, "signature account")
		}
		if len(p.Signature) == 0 {
			return nil, errors.Wrapf(errors.ErrEmpty, "signature of %s", p.Account)
		}
		if _, ok := seen[p.Account]; ok {
			continue
		}
		seen[p.Account] = struct{}{}
		sigs = append(sigs, p)
	}
	sort.Slice(sigs, func(i, j int) bool {
		return sigs[i].Account < sigs[j].Account
	})

	return &ledgernet.FinalPayload{
		Unsigned:   unsigned,
		Signatures: sigs,
	}, nil
}

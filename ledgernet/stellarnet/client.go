/*
Package stellarnet implements the ledgernet.Client interface on top of
the Stellar network through a horizon server.

The issued token is a credit asset. Minting and burning are plain
payments of that asset, multi-signed by the custody co-signers. The
transaction envelope is built with an empty single-signer key and only
the collected decorated signatures attached, so a multi-signed custody
transaction is syntactically distinct from a regular one.
*/
package stellarnet

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/http"

	"github.com/stellar/go/clients/horizon"
	"github.com/stellar/go/network"
	"github.com/stellar/go/xdr"

	"github.com/mintward/custody/coin"
	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/ledgernet"
)

// Stellar amounts carry 7 decimal digits.
const stellarFracUnit = 10000000

// Memo text is capped by the protocol.
const maxMemoLen = 28

// Client talks to a horizon server.
type Client struct {
	horizon     *horizon.Client
	networkID   [32]byte
	assetCode   string
	assetIssuer string
}

var _ ledgernet.Client = (*Client)(nil)

// NewClient connects to the given horizon server. The network
// passphrase selects which Stellar network signatures are valid on. The
// asset code and issuer identify the issued token.
func NewClient(horizonURL, passphrase, assetCode, assetIssuer string) (*Client, error) {
	if horizonURL == "" {
		return nil, errors.Wrap(errors.ErrEmpty, "horizon url")
	}
	if passphrase == "" {
		return nil, errors.Wrap(errors.ErrEmpty, "network passphrase")
	}
	if assetCode == "" || assetIssuer == "" {
		return nil, errors.Wrap(errors.ErrEmpty, "asset")
	}
	return &Client{
		horizon: &horizon.Client{
			URL:  horizonURL,
			HTTP: http.DefaultClient,
		},
		networkID:   network.ID(passphrase),
		assetCode:   assetCode,
		assetIssuer: assetIssuer,
	}, nil
}

// Prepare builds the unsigned payment transaction. The sequence number
// is fetched fresh from horizon, so a payload prepared now goes stale as
// soon as the source account submits anything else.
func (c *Client) Prepare(ctx context.Context, spec ledgernet.PaymentSpec, fee coin.Coin) (*ledgernet.UnsignedPayload, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrIndeterminate, err.Error())
	}

	var source xdr.AccountId
	if err := source.SetAddress(spec.Source); err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "source account: %s", err)
	}
	var destination xdr.AccountId
	if err := destination.SetAddress(spec.Destination); err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "destination account: %s", err)
	}
	var issuer xdr.AccountId
	if err := issuer.SetAddress(c.assetIssuer); err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "asset issuer: %s", err)
	}
	var asset xdr.Asset
	if err := asset.SetCredit(c.assetCode, issuer); err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "asset: %s", err)
	}

	amount, err := toStellarAmount(spec.Amount)
	if err != nil {
		return nil, err
	}
	feeAmount, err := toStellarAmount(fee)
	if err != nil {
		return nil, errors.Wrap(err, "fee")
	}

	seq, err := c.horizon.SequenceForAccount(spec.Source)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrIndeterminate, "sequence for %s: %s", spec.Source, err)
	}

	body, err := xdr.NewOperationBody(xdr.OperationTypePayment, xdr.PaymentOp{
		Destination: destination,
		Asset:       asset,
		Amount:      amount,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}

	memoText := spec.Memo
	if len(memoText) > maxMemoLen {
		memoText = memoText[:maxMemoLen]
	}
	memo, err := xdr.NewMemo(xdr.MemoTypeMemoText, memoText)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}

	tx := xdr.Transaction{
		SourceAccount: source,
		Fee:           xdr.Uint32(feeAmount),
		SeqNum:        seq + 1,
		Memo:          memo,
		Operations:    []xdr.Operation{{Body: body}},
	}

	var raw bytes.Buffer
	if _, err := xdr.Marshal(&raw, tx); err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	digest, err := c.digest(tx)
	if err != nil {
		return nil, err
	}

	return &ledgernet.UnsignedPayload{
		Raw:    raw.Bytes(),
		Digest: digest,
		Source: spec.Source,
		Fee:    fee,
	}, nil
}

// digest is the value every co-signer signs: the SHA-256 of the
// signature payload, which binds the transaction to the network
// passphrase.
func (c *Client) digest(tx xdr.Transaction) ([]byte, error) {
	payload := xdr.TransactionSignaturePayload{
		NetworkId: xdr.Hash(c.networkID),
		TaggedTransaction: xdr.TransactionSignaturePayloadTaggedTransaction{
			Type: xdr.EnvelopeTypeEnvelopeTypeTx,
			Tx:   &tx,
		},
	}
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, payload); err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	sum := sha256.Sum256(buf.Bytes())
	return sum[:], nil
}

// SubmitMultiSigned wraps the raw transaction and the collected
// signatures into an envelope and broadcasts it.
func (c *Client) SubmitMultiSigned(ctx context.Context, final *ledgernet.FinalPayload) (*ledgernet.SubmitResult, error) {
	if final == nil || final.Unsigned == nil {
		return nil, errors.Wrap(errors.ErrEmpty, "payload")
	}
	if len(final.Signatures) == 0 {
		return nil, errors.Wrap(errors.ErrEmpty, "no signatures")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrIndeterminate, err.Error())
	}

	var tx xdr.Transaction
	if _, err := xdr.Unmarshal(bytes.NewReader(final.Unsigned.Raw), &tx); err != nil {
		return nil, errors.Wrap(errors.ErrInput, "raw transaction")
	}

	envelope := xdr.TransactionEnvelope{Tx: tx}
	for _, sig := range final.Signatures {
		decorated, err := decorate(sig)
		if err != nil {
			return nil, err
		}
		envelope.Signatures = append(envelope.Signatures, decorated)
	}

	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, envelope); err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())

	success, err := c.horizon.SubmitTransaction(encoded)
	if err != nil {
		return nil, submitError(err)
	}
	return &ledgernet.SubmitResult{
		TxID:   success.Hash,
		Ledger: int64(success.Ledger),
	}, nil
}

// decorate attaches the protocol signature hint, the trailing four bytes
// of the signer public key.
func decorate(sig ledgernet.PartialSignature) (xdr.DecoratedSignature, error) {
	if len(sig.PubKey) < 4 {
		return xdr.DecoratedSignature{}, errors.Wrapf(errors.ErrInput, "public key of %s", sig.Account)
	}
	var hint xdr.SignatureHint
	copy(hint[:], sig.PubKey[len(sig.PubKey)-4:])
	return xdr.DecoratedSignature{
		Hint:      hint,
		Signature: xdr.Signature(sig.Signature),
	}, nil
}

// submitError separates a definitive network refusal from an outcome
// that may still have been applied. A horizon problem response in the
// 4xx range means the network rejected the transaction. Anything else,
// including a gateway timeout, leaves the outcome unknown.
func submitError(err error) error {
	if herr, ok := err.(*horizon.Error); ok {
		status := herr.Problem.Status
		if status >= 400 && status < 500 && status != 408 {
			return errors.Wrapf(errors.ErrSubmission, "horizon: %s", herr.Problem.Title)
		}
	}
	return errors.Wrap(errors.ErrIndeterminate, err.Error())
}

// toStellarAmount converts a coin into the 7 decimal digit network
// representation.
func toStellarAmount(c coin.Coin) (xdr.Int64, error) {
	if !c.IsNonNegative() {
		return 0, errors.Wrap(errors.ErrAmount, "negative amount")
	}
	// The coin fractional unit is a billionth, Stellar resolves a ten
	// millionth. The remainder below that resolution must be zero or
	// value would silently vanish.
	const scale = coin.FracUnit / stellarFracUnit
	if c.Fractional%scale != 0 {
		return 0, errors.Wrapf(errors.ErrAmount, "amount %s below network resolution", c)
	}
	stroops := c.Whole*stellarFracUnit + c.Fractional/scale
	return xdr.Int64(stroops), nil
}

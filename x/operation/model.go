package operation

import (
	"encoding/json"

	"github.com/mintward/custody"
	"github.com/mintward/custody/coin"
	"github.com/mintward/custody/errors"
	"github.com/mintward/custody/ledgernet"
	"github.com/mintward/custody/orm"
	"github.com/mintward/custody/x/signers"
)

// Status tracks an operation through its lifecycle. It is monotonic:
// once a terminal status (Executed or Rejected) is reached no further
// mutation is permitted.
type Status uint8

const (
	StatusInvalid Status = iota
	// StatusPending collects approvals.
	StatusPending
	// StatusApproved reached the quorum, execution was attempted or is
	// in flight.
	StatusApproved
	// StatusRejected is terminal: administratively rejected, expired or
	// definitively refused by the ledger network.
	StatusRejected
	// StatusExecuted is terminal: the multi-signed transaction was
	// accepted by the ledger network.
	StatusExecuted
)

var statusNames = map[Status]string{
	StatusInvalid:  "invalid",
	StatusPending:  "pending",
	StatusApproved: "approved",
	StatusRejected: "rejected",
	StatusExecuted: "executed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal returns true if no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusExecuted
}

// CanTransitionTo returns true if moving from this status to the given
// one is a legal lifecycle step.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusRejected
	case StatusApproved:
		return next == StatusExecuted || next == StatusRejected
	default:
		return false
	}
}

func (s Status) Validate() error {
	if _, ok := statusNames[s]; !ok || s == StatusInvalid {
		return errors.Wrapf(errors.ErrState, "status %d", s)
	}
	return nil
}

// MarshalJSON keeps the persisted form readable.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(raw []byte) error {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return err
	}
	for st, n := range statusNames {
		if n == name {
			*s = st
			return nil
		}
	}
	return errors.Wrapf(errors.ErrInput, "status %q", name)
}

// Kind is the tagged variant describing what an operation does. Adding a
// new kind means adding a case to decodeKind and to every switch over
// Type(), which the compiler will point out.
type Kind interface {
	// Type is the stable tag used in the serialized form.
	Type() string
	// Amount of token supply this operation moves.
	Amount() coin.Coin
	Validate() error
}

// Mint creates new token supply and delivers it to a destination
// account.
type Mint struct {
	Quantity    coin.Coin `json:"quantity"`
	Destination string    `json:"destination"`
}

var _ Kind = Mint{}

func (Mint) Type() string { return "mint" }

func (m Mint) Amount() coin.Coin { return m.Quantity }

func (m Mint) Validate() error {
	var err error
	if !m.Quantity.IsPositive() {
		err = errors.AppendField(err, "Quantity", errors.ErrAmount)
	}
	err = errors.AppendField(err, "Quantity", m.Quantity.Validate())
	if m.Destination == "" {
		err = errors.AppendField(err, "Destination", errors.ErrEmpty)
	}
	return err
}

// Burn removes token supply by paying it from a source account back to
// the issuer.
type Burn struct {
	Quantity coin.Coin `json:"quantity"`
	Source   string    `json:"source"`
}

var _ Kind = Burn{}

func (Burn) Type() string { return "burn" }

func (b Burn) Amount() coin.Coin { return b.Quantity }

func (b Burn) Validate() error {
	var err error
	if !b.Quantity.IsPositive() {
		err = errors.AppendField(err, "Quantity", errors.ErrAmount)
	}
	err = errors.AppendField(err, "Quantity", b.Quantity.Validate())
	if b.Source == "" {
		err = errors.AppendField(err, "Source", errors.ErrEmpty)
	}
	return err
}

func decodeKind(typ string, raw json.RawMessage) (Kind, error) {
	switch typ {
	case "mint":
		var m Mint
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, errors.Wrap(errors.ErrInput, "mint payload")
		}
		return m, nil
	case "burn":
		var b Burn
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, errors.Wrap(errors.ErrInput, "burn payload")
		}
		return b, nil
	default:
		return nil, errors.Wrapf(errors.ErrType, "operation kind %q", typ)
	}
}

// Approval is one co-signer's recorded partial signature. An operation
// holds at most one approval per signer.
type Approval struct {
	// SignerID is the engine identity of the signer.
	SignerID custody.Address `json:"signer_id"`
	// Account is the signer's ledger network account.
	Account string `json:"account"`
	// Weight the signer contributed, captured from the registry at
	// signing time. The signer set is fixed, so this never drifts.
	Weight signers.Weight `json:"weight"`
	// PubKey is the signer's public key material.
	PubKey []byte `json:"pub_key"`
	// Signature is the partial signature blob.
	Signature []byte `json:"signature"`
	// SignedAt is when the approval was recorded.
	SignedAt custody.UnixTime `json:"signed_at"`
}

func (a Approval) Validate() error {
	var err error
	err = errors.AppendField(err, "SignerID", a.SignerID.Validate())
	err = errors.AppendField(err, "Weight", a.Weight.Validate())
	if a.Account == "" {
		err = errors.AppendField(err, "Account", errors.ErrEmpty)
	}
	if len(a.Signature) == 0 {
		err = errors.AppendField(err, "Signature", errors.ErrEmpty)
	}
	return err
}

// Operation is one mint or burn request tracked through its approval
// lifecycle. It is created once, mutated only by appending approvals and
// by legal status transitions, and never deleted.
type Operation struct {
	// ID is assigned from the bucket sequence at creation and is
	// immutable.
	ID int64
	// Kind describes what this operation does.
	Kind Kind
	// Reference is the caller supplied idempotency and reconciliation
	// token.
	Reference string
	// RequiredWeight is the quorum threshold.
	RequiredWeight signers.Weight
	// Approvals is the ordered set of recorded partial signatures,
	// unique by signer.
	Approvals []Approval
	// Status of the lifecycle.
	Status Status
	// Unsigned is the network transaction skeleton, produced once at
	// creation.
	Unsigned *ledgernet.UnsignedPayload
	// ResultTxID is the network transaction identifier, set only on
	// Executed.
	ResultTxID string
	// Note carries the human readable reason of an administrative
	// rejection or a flagged outcome.
	Note string
	// CreatedAt is when the operation was requested.
	CreatedAt custody.UnixTime
	// ExpiresAt is the deadline after which a still pending operation
	// is swept into Rejected.
	ExpiresAt custody.UnixTime
}

var _ orm.CloneableData = (*Operation)(nil)

// CurrentWeight is always recomputed from the approvals, it is never
// stored independently so it cannot drift.
func (o *Operation) CurrentWeight() signers.Weight {
	var total signers.Weight
	for _, a := range o.Approvals {
		total += a.Weight
	}
	return total
}

// HasApproved returns true if the given signer already has an approval
// recorded on this operation.
func (o *Operation) HasApproved(id custody.Address) bool {
	for _, a := range o.Approvals {
		if a.SignerID.Equals(id) {
			return true
		}
	}
	return false
}

// Partials returns the collected partial signatures in approval order.
func (o *Operation) Partials() []ledgernet.PartialSignature {
	res := make([]ledgernet.PartialSignature, 0, len(o.Approvals))
	for _, a := range o.Approvals {
		res = append(res, ledgernet.PartialSignature{
			Account:   a.Account,
			PubKey:    a.PubKey,
			Signature: a.Signature,
		})
	}
	return res
}

func (o *Operation) Validate() error {
	var err error
	if o.Kind == nil {
		err = errors.AppendField(err, "Kind", errors.ErrEmpty)
	} else {
		err = errors.AppendField(err, "Kind", o.Kind.Validate())
	}
	if o.Reference == "" {
		err = errors.AppendField(err, "Reference", errors.ErrEmpty)
	}
	err = errors.AppendField(err, "RequiredWeight", o.RequiredWeight.Validate())
	err = errors.AppendField(err, "Status", o.Status.Validate())
	if o.Unsigned == nil {
		err = errors.AppendField(err, "Unsigned", errors.ErrEmpty)
	} else {
		err = errors.AppendField(err, "Unsigned", o.Unsigned.Validate())
	}
	err = errors.AppendField(err, "CreatedAt", o.CreatedAt.Validate())
	err = errors.AppendField(err, "ExpiresAt", o.ExpiresAt.Validate())

	seen := make(map[string]struct{}, len(o.Approvals))
	for i, a := range o.Approvals {
		err = errors.AppendField(err, "Approvals", a.Validate())
		if _, ok := seen[string(a.SignerID)]; ok {
			err = errors.Append(err, errors.Wrapf(errors.ErrDuplicate, "approvals %d: signer %s", i, a.SignerID))
		}
		seen[string(a.SignerID)] = struct{}{}
	}

	if o.ResultTxID != "" && o.Status != StatusExecuted {
		err = errors.Append(err, errors.Wrap(errors.ErrState, "result tx id outside executed status"))
	}
	return err
}

// Copy returns a deep copy of the operation.
func (o *Operation) Copy() orm.CloneableData {
	cpy := &Operation{
		ID:             o.ID,
		Kind:           o.Kind,
		Reference:      o.Reference,
		RequiredWeight: o.RequiredWeight,
		Status:         o.Status,
		ResultTxID:     o.ResultTxID,
		Note:           o.Note,
		CreatedAt:      o.CreatedAt,
		ExpiresAt:      o.ExpiresAt,
	}
	if o.Unsigned != nil {
		u := *o.Unsigned
		u.Raw = append([]byte(nil), o.Unsigned.Raw...)
		u.Digest = append([]byte(nil), o.Unsigned.Digest...)
		cpy.Unsigned = &u
	}
	if len(o.Approvals) > 0 {
		cpy.Approvals = make([]Approval, len(o.Approvals))
		for i, a := range o.Approvals {
			a.SignerID = a.SignerID.Clone()
			a.PubKey = append([]byte(nil), a.PubKey...)
			a.Signature = append([]byte(nil), a.Signature...)
			cpy.Approvals[i] = a
		}
	}
	return cpy
}

// operationJSON is the persisted form. Kind is stored next to its tag so
// that it can be decoded into the right variant.
type operationJSON struct {
	ID             int64                      `json:"id"`
	KindType       string                     `json:"kind_type"`
	Kind           json.RawMessage            `json:"kind"`
	Reference      string                     `json:"reference"`
	RequiredWeight signers.Weight             `json:"required_weight"`
	Approvals      []Approval                 `json:"approvals,omitempty"`
	Status         Status                     `json:"status"`
	Unsigned       *ledgernet.UnsignedPayload `json:"unsigned"`
	ResultTxID     string                     `json:"result_tx_id,omitempty"`
	Note           string                     `json:"note,omitempty"`
	CreatedAt      custody.UnixTime           `json:"created_at"`
	ExpiresAt      custody.UnixTime           `json:"expires_at"`
}

// Marshal implements the Persistent interface.
func (o *Operation) Marshal() ([]byte, error) {
	rawKind, err := json.Marshal(o.Kind)
	if err != nil {
		return nil, errors.Wrap(errors.ErrType, "kind")
	}
	return json.Marshal(operationJSON{
		ID:             o.ID,
		KindType:       o.Kind.Type(),
		Kind:           rawKind,
		Reference:      o.Reference,
		RequiredWeight: o.RequiredWeight,
		Approvals:      o.Approvals,
		Status:         o.Status,
		Unsigned:       o.Unsigned,
		ResultTxID:     o.ResultTxID,
		Note:           o.Note,
		CreatedAt:      o.CreatedAt,
		ExpiresAt:      o.ExpiresAt,
	})
}

// Unmarshal implements the Persistent interface.
func (o *Operation) Unmarshal(raw []byte) error {
	var dto operationJSON
	if err := json.Unmarshal(raw, &dto); err != nil {
		return err
	}
	kind, err := decodeKind(dto.KindType, dto.Kind)
	if err != nil {
		return err
	}
	o.ID = dto.ID
	o.Kind = kind
	o.Reference = dto.Reference
	o.RequiredWeight = dto.RequiredWeight
	o.Approvals = dto.Approvals
	o.Status = dto.Status
	o.Unsigned = dto.Unsigned
	o.ResultTxID = dto.ResultTxID
	o.Note = dto.Note
	o.CreatedAt = dto.CreatedAt
	o.ExpiresAt = dto.ExpiresAt
	return nil
}

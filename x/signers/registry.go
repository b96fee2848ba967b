package signers

import (
	"github.com/mintward/custody"
	"github.com/mintward/custody/errors"
)

// Registry is the fixed set of authorized co-signers. It is configured
// once at startup and is immutable afterwards, which makes it safe for
// concurrent use without locking.
type Registry struct {
	members []Member
	byID    map[string]*Member
}

// NewRegistry validates the member set and builds a registry from it. A
// member account must not appear twice.
func NewRegistry(members []Member) (*Registry, error) {
	if len(members) == 0 {
		return nil, errors.Wrap(errors.ErrEmpty, "no members")
	}
	if len(members) > maxMembersAllowed {
		return nil, errors.Wrap(errors.ErrInput, "too many members")
	}

	r := &Registry{
		members: make([]Member, len(members)),
		byID:    make(map[string]*Member, len(members)),
	}
	copy(r.members, members)
	for i := range r.members {
		m := &r.members[i]
		if err := m.Validate(); err != nil {
			return nil, errors.Wrapf(err, "member %d", i)
		}
		if _, ok := r.byID[string(m.ID)]; ok {
			return nil, errors.Wrapf(errors.ErrDuplicate, "member %s", m.ID)
		}
		r.byID[string(m.ID)] = m
	}
	return r, nil
}

// Member returns the member with the given identity, or ErrNotFound.
func (r *Registry) Member(id custody.Address) (*Member, error) {
	m, ok := r.byID[string(id)]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "signer %s", id)
	}
	return m, nil
}

// Weight returns the quorum weight of the given signer, or ErrNotFound.
func (r *Registry) Weight(id custody.Address) (Weight, error) {
	m, err := r.Member(id)
	if err != nil {
		return 0, err
	}
	return m.Weight, nil
}

// Count returns the number of authorized co-signers. The multi-signature
// fee surcharge is derived from this value.
func (r *Registry) Count() int {
	return len(r.members)
}

// TotalWeight returns the sum of all member weights. A quorum threshold
// greater than this value could never be reached.
func (r *Registry) TotalWeight() Weight {
	var total Weight
	for _, m := range r.members {
		total += m.Weight
	}
	return total
}

// Members returns all members in configuration order. The returned slice
// must not be modified.
func (r *Registry) Members() []Member {
	return r.members
}

// ValidateThreshold ensures the given quorum threshold is reachable with
// this signer set.
func (r *Registry) ValidateThreshold(threshold Weight) error {
	if err := threshold.Validate(); err != nil {
		return errors.Wrap(err, "threshold")
	}
	if threshold > r.TotalWeight() {
		return errors.Wrap(errors.ErrInput, "threshold greater than total power")
	}
	return nil
}

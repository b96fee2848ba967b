package custody

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/mintward/custody/crypto/bech32"
	"github.com/mintward/custody/errors"
)

// AddressLength is the length of all addresses in bytes.
const AddressLength = 20

// addressHRP is the human readable prefix used when displaying an address
// in its bech32 form.
const addressHRP = "sig"

// Address identifies a co-signer within the engine. It is derived from
// the signer's public key material and does not change for the lifetime
// of the signer set.
type Address []byte

// NewAddress hashes the given data into a fixed length address. Nil data
// produces a nil address.
func NewAddress(data []byte) Address {
	if data == nil {
		return nil
	}
	h := sha256.Sum256(data)
	return h[:AddressLength]
}

// ParseAddress accepts an address in either its hex or bech32 text form.
func ParseAddress(enc string) (Address, error) {
	if strings.HasPrefix(enc, addressHRP) {
		hrp, payload, err := bech32.Decode(enc)
		if err != nil {
			return nil, errors.Wrap(err, "bech32")
		}
		if hrp != addressHRP {
			return nil, errors.Wrapf(errors.ErrInput, "unexpected prefix %q", hrp)
		}
		addr := Address(payload)
		return addr, addr.Validate()
	}

	raw, err := hex.DecodeString(enc)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, "not a hex string")
	}
	addr := Address(raw)
	return addr, addr.Validate()
}

// Clone returns an independent copy of this address.
func (a Address) Clone() Address {
	if a == nil {
		return nil
	}
	cpy := make(Address, len(a))
	copy(cpy, a)
	return cpy
}

// Equals checks if two addresses are the same.
func (a Address) Equals(b Address) bool {
	return bytes.Equal(a, b)
}

// Validate returns an error if the address is not well formed.
func (a Address) Validate() error {
	if len(a) == 0 {
		return errors.Wrap(errors.ErrEmpty, "address")
	}
	if len(a) != AddressLength {
		return errors.Wrapf(errors.ErrInput, "address must be %d bytes, got %d", AddressLength, len(a))
	}
	return nil
}

// String returns a human readable bech32 representation, or a hex dump if
// the address is malformed.
func (a Address) String() string {
	if len(a) == 0 {
		return "(nil)"
	}
	enc, err := bech32.Encode(addressHRP, a)
	if err != nil {
		return hex.EncodeToString(a)
	}
	return enc
}

// MarshalJSON encodes the address as a hex string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(a))
}

// UnmarshalJSON accepts both the hex and the bech32 text form.
func (a *Address) UnmarshalJSON(raw []byte) error {
	var enc string
	if err := json.Unmarshal(raw, &enc); err != nil {
		return err
	}
	if enc == "" {
		*a = nil
		return nil
	}
	addr, err := ParseAddress(enc)
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

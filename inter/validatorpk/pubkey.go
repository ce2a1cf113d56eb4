// Package validatorpk wraps the public keys that sign blocks, votes and
// transactions. A PubKey keeps its scheme tag next to the raw bytes so the
// encoded form is self-describing; only secp256k1 is produced today.
package validatorpk

import (
	"crypto/ecdsa"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PubKey is a tagged public key.
type PubKey struct {
	// Type identifies the signature scheme, see Types.
	Type uint8
	// Raw is the uncompressed key as produced by crypto.FromECDSAPub.
	Raw []byte
}

// Types enumerates the supported key schemes.
var Types = struct {
	Secp256k1 uint8
}{
	Secp256k1: 0xc0,
}

var (
	errEmptyPubKey       = errors.New("empty pubkey")
	errUnsupportedScheme = errors.New("unsupported pubkey scheme")
)

// FromECDSA tags an ecdsa public key as secp256k1.
func FromECDSA(pub *ecdsa.PublicKey) PubKey {
	return PubKey{
		Type: Types.Secp256k1,
		Raw:  crypto.FromECDSAPub(pub),
	}
}

// ECDSA decodes the key back into an ecdsa public key.
func (pk PubKey) ECDSA() (*ecdsa.PublicKey, error) {
	if pk.Type != Types.Secp256k1 {
		return nil, errUnsupportedScheme
	}
	return crypto.UnmarshalPubkey(pk.Raw)
}

// Address derives the account address owned by the key. Empty or
// malformed keys map to the zero address.
func (pk PubKey) Address() common.Address {
	pub, err := pk.ECDSA()
	if err != nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(*pub)
}

// Empty reports whether the key was never set.
func (pk PubKey) Empty() bool {
	return len(pk.Raw) == 0 && pk.Type == 0
}

// Equal compares scheme and raw bytes.
func (pk PubKey) Equal(other PubKey) bool {
	return pk.Type == other.Type && string(pk.Raw) == string(other.Raw)
}

// String returns 0x-prefixed hex of Bytes.
func (pk PubKey) String() string {
	return "0x" + common.Bytes2Hex(pk.Bytes())
}

// Bytes returns the type byte followed by the raw key.
func (pk PubKey) Bytes() []byte {
	return append([]byte{pk.Type}, pk.Raw...)
}

// Copy returns a deep copy, Raw is not shared.
func (pk PubKey) Copy() PubKey {
	return PubKey{
		Type: pk.Type,
		Raw:  common.CopyBytes(pk.Raw),
	}
}

// FromString parses hex, with or without the 0x prefix. A bare secp256k1
// key (33 or 65 bytes, as printed by most tools) is accepted as well and
// tagged automatically.
func FromString(str string) (PubKey, error) {
	b := common.FromHex(str)
	if len(b) == 33 {
		pub, err := crypto.DecompressPubkey(b)
		if err != nil {
			return PubKey{}, err
		}
		return FromECDSA(pub), nil
	}
	if len(b) == 65 && b[0] == 0x04 {
		pub, err := crypto.UnmarshalPubkey(b)
		if err != nil {
			return PubKey{}, err
		}
		return FromECDSA(pub), nil
	}
	return FromBytes(b)
}

// FromBytes splits the type byte from the raw key.
func FromBytes(b []byte) (PubKey, error) {
	if len(b) == 0 {
		return PubKey{}, errEmptyPubKey
	}
	return PubKey{b[0], common.CopyBytes(b[1:])}, nil
}

// MarshalText implements encoding.TextMarshaler.
func (pk *PubKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *PubKey) UnmarshalText(input []byte) error {
	res, err := FromString(string(input))
	if err != nil {
		return err
	}
	*pk = res
	return nil
}

// Package ident defines the address-like identities used for ownership and
// authorization checks, and the long-lived Schnorr keypairs they are derived
// from.
//
// An identity is the last 20 bytes of the SHA-256 digest of the marshaled
// public key. The width matches the mask key width so that neither value is
// distinguishable from an ordinary address at rest.
package ident

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"go.dedis.ch/kyber/v3"
	"golang.org/x/xerrors"
)

// Length is the size in bytes of an identity.
const Length = 20

// Identity is an address-like principal identifier.
type Identity [Length]byte

// Zero is the null identity. It is never a valid grant target.
var Zero = Identity{}

// FromPublicKey derives the identity of a public key.
func FromPublicKey(pub kyber.Point) (Identity, error) {
	buf, err := pub.MarshalBinary()
	if err != nil {
		return Zero, xerrors.Errorf("failed to marshal point: %v", err)
	}

	digest := sha256.Sum256(buf)

	ident := Identity{}
	copy(ident[:], digest[len(digest)-Length:])

	return ident, nil
}

// FromBytes returns the identity read from the buffer.
func FromBytes(buf []byte) (Identity, error) {
	if len(buf) != Length {
		return Zero, xerrors.Errorf("invalid identity length %d", len(buf))
	}

	ident := Identity{}
	copy(ident[:], buf)

	return ident, nil
}

// Parse returns the identity decoded from its hexadecimal representation.
func Parse(str string) (Identity, error) {
	buf, err := hex.DecodeString(str)
	if err != nil {
		return Zero, xerrors.Errorf("failed to decode identity: %v", err)
	}

	return FromBytes(buf)
}

// Bytes returns the byte representation of the identity.
func (id Identity) Bytes() []byte {
	return append([]byte{}, id[:]...)
}

// IsZero returns true if the identity is the null identity.
func (id Identity) IsZero() bool {
	return bytes.Equal(id[:], Zero[:])
}

// Equal returns true if both identities are the same.
func (id Identity) Equal(other Identity) bool {
	return bytes.Equal(id[:], other[:])
}

// String implements fmt.Stringer. It returns the hexadecimal representation
// of the identity.
func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// Package vault defines the boundary to the encryption backend holding the
// mask keys.
//
// The core logic treats the vault as a capability: it can encrypt a mask key
// into an opaque handle bound to an owner, extend the decrypt permission on a
// handle to additional identities, and answer signed, time-bounded decryption
// requests. The cryptographic machinery stays behind this interface.
package vault

import (
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/masq/core/store/kv"
	"go.dedis.ch/masq/ident"
	"go.dedis.ch/masq/vault/types"
	"golang.org/x/xerrors"
)

// ErrRejected is returned for every failed decryption request. The cause,
// whether a bad signature, an expired window or a missing authorization, is
// not surfaced to the caller, so a rejection leaks nothing about the
// permission set beyond what is already public.
var ErrRejected = xerrors.New("decryption request rejected")

// Vault is the interface of the encryption backend.
type Vault interface {
	// GetPublicKey returns the public key requesters unwrap against.
	GetPublicKey() (kyber.Point, error)

	// Encrypt encrypts the mask key into a ciphertext bound to the owner and
	// returns its opaque handle along with the proof of correct encryption.
	// The permission set of the handle is seeded with the owner.
	Encrypt(key []byte, owner ident.Identity) (types.Handle, types.Ciphertext, error)

	// ExtendPermission grants the delegate the right to later request the
	// plaintext of the handle. Permissions only grow: there is no revocation.
	ExtendPermission(handle types.Handle, delegate ident.Identity) error

	// RequestDecrypt verifies the signed envelope and, if the signer is
	// permitted on every handle and the validity window contains the current
	// time, returns the mask keys wrapped under the envelope's ephemeral
	// public key. Any failure yields ErrRejected without partial disclosure.
	RequestDecrypt(req types.SignedEnvelope) ([]types.WrappedKey, error)
}

// TxExtender is the optional interface of a vault whose permission records
// live in the same database as the caller's. The extension is persisted
// through the caller's open transaction, so that both sides commit or roll
// back together and the vault never opens a nested write transaction.
type TxExtender interface {
	// ExtendPermissionTx is ExtendPermission persisting through the given
	// transaction.
	ExtendPermissionTx(tx kv.Tx, handle types.Handle, delegate ident.Identity) error
}

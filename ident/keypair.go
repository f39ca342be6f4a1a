package ident

import (
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/sign/schnorr"
	"go.dedis.ch/kyber/v3/suites"
	"go.dedis.ch/kyber/v3/util/key"
	"golang.org/x/xerrors"
)

// suite is the Kyber suite shared by every signer and verifier.
var suite = suites.MustFind("Ed25519")

// Keypair is a long-lived Schnorr keypair binding a principal to its
// identity.
type Keypair struct {
	private kyber.Scalar
	public  kyber.Point
}

// NewKeypair generates a new random keypair.
func NewKeypair() Keypair {
	kp := key.NewKeyPair(suite)

	return Keypair{
		private: kp.Private,
		public:  kp.Public,
	}
}

// KeypairFromScalar restores a keypair from the marshaled private scalar.
func KeypairFromScalar(data []byte) (Keypair, error) {
	private := suite.Scalar()

	err := private.UnmarshalBinary(data)
	if err != nil {
		return Keypair{}, xerrors.Errorf("failed to unmarshal scalar: %v", err)
	}

	return Keypair{
		private: private,
		public:  suite.Point().Mul(private, nil),
	}, nil
}

// PublicKey returns the public key of the keypair.
func (kp Keypair) PublicKey() kyber.Point {
	return kp.public
}

// Identity returns the identity derived from the public key.
func (kp Keypair) Identity() (Identity, error) {
	return FromPublicKey(kp.public)
}

// Sign returns the Schnorr signature of the message. Signing uses no shared
// mutable state so concurrent signers never interfere.
func (kp Keypair) Sign(msg []byte) ([]byte, error) {
	sig, err := schnorr.Sign(suite, kp.private, msg)
	if err != nil {
		return nil, xerrors.Errorf("schnorr sign failed: %v", err)
	}

	return sig, nil
}

// MarshalBinary returns the marshaled private scalar of the keypair.
func (kp Keypair) MarshalBinary() ([]byte, error) {
	data, err := kp.private.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal scalar: %v", err)
	}

	return data, nil
}

// Verify returns nil if the signature matches the message for the given
// public key.
func Verify(pub kyber.Point, msg []byte, sig []byte) error {
	err := schnorr.Verify(suite, pub, msg, sig)
	if err != nil {
		return xerrors.Errorf("schnorr verify failed: %v", err)
	}

	return nil
}

// Suite returns the Kyber suite used by the keypairs.
func Suite() suites.Suite {
	return suite
}

package ocs

import (
	"crypto/sha256"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/suites"
	"go.dedis.ch/masq/vault/types"
	"golang.org/x/xerrors"
)

// Suite is the Kyber suite for the on-chain secrets construction.
var suite = suites.MustFind("Ed25519")

// gBar is the alternate base point the encryption proofs are anchored to. It
// is derived deterministically so that every party agrees on it.
var gBar = suite.Point().Pick(suite.XOF([]byte("masq:ocs:gbar")))

// verifiableEncrypt embeds the mask key in a point, encrypts it under the
// given public key and produces the proof of correct encryption.
//
// See https://arxiv.org/pdf/2205.08529.pdf / section 5.4
func verifiableEncrypt(pub kyber.Point, maskKey []byte) (types.Ciphertext, error) {
	if len(maskKey) == 0 {
		return types.Ciphertext{}, xerrors.New("mask key is empty")
	}

	if len(maskKey) > suite.Point().EmbedLen() {
		return types.Ciphertext{}, xerrors.Errorf("mask key is too long: %d > %d",
			len(maskKey), suite.Point().EmbedLen())
	}

	m := suite.Point().Embed(maskKey, suite.RandomStream())

	r := suite.Scalar().Pick(suite.RandomStream())
	k := suite.Point().Mul(r, nil)
	c := suite.Point().Add(suite.Point().Mul(r, pub), m)
	uBar := suite.Point().Mul(r, gBar)

	s := suite.Scalar().Pick(suite.RandomStream())
	w := suite.Point().Mul(s, nil)
	wBar := suite.Point().Mul(s, gBar)

	hash := sha256.New()
	c.MarshalTo(hash)
	k.MarshalTo(hash)
	uBar.MarshalTo(hash)
	w.MarshalTo(hash)
	wBar.MarshalTo(hash)

	e := suite.Scalar().SetBytes(hash.Sum(nil))
	f := suite.Scalar().Add(s, suite.Scalar().Mul(e, r))

	ct := types.Ciphertext{
		K:    k,
		C:    c,
		UBar: uBar,
		E:    e,
		F:    f,
		GBar: gBar,
	}

	return ct, nil
}

// reencrypt blinds the random part of the ciphertext towards the ephemeral
// public key: XhatEnc = x·(K + Pk). Combined with C and the ephemeral private
// key, the requester recovers the embedded point without the vault ever
// seeing the plaintext leave in clear.
func reencrypt(secret kyber.Scalar, k, ephemeral kyber.Point) kyber.Point {
	return suite.Point().Mul(secret, suite.Point().Add(k, ephemeral))
}

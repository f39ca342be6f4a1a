// Package types implements the data model of the vault boundary: the opaque
// ciphertext handle, the verifiable encryption artifact, the signed
// time-bounded decryption envelope and the wrapped key returned to an
// authorized requester.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/suites"
	"go.dedis.ch/masq/serde"
	"go.dedis.ch/masq/serde/registry"
	"golang.org/x/xerrors"
)

// suite is the Kyber suite shared with the signers and the vault.
var suite = suites.MustFind("Ed25519")

// HandleLength is the size in bytes of a ciphertext handle.
const HandleLength = 32

// DefaultValidity is the policy default for the validity window of a
// decryption envelope.
const DefaultValidity = 7 * 24 * time.Hour

var envelopeFormats = registry.NewSimpleRegistry()

// RegisterEnvelopeFormat registers the engine for the provided format.
func RegisterEnvelopeFormat(format serde.Format, engine serde.FormatEngine) {
	envelopeFormats.Register(format, engine)
}

// Handle is the opaque token referencing one encrypted mask key held by the
// vault. It is meaningless without the permission set attached to it.
type Handle [HandleLength]byte

// NewHandle derives the handle of a ciphertext from its two points.
func NewHandle(k, c kyber.Point) (Handle, error) {
	hash := sha256.New()

	_, err := k.MarshalTo(hash)
	if err != nil {
		return Handle{}, xerrors.Errorf("failed to marshal K: %v", err)
	}

	_, err = c.MarshalTo(hash)
	if err != nil {
		return Handle{}, xerrors.Errorf("failed to marshal C: %v", err)
	}

	handle := Handle{}
	copy(handle[:], hash.Sum(nil))

	return handle, nil
}

// HandleFromBytes returns the handle read from the buffer.
func HandleFromBytes(buf []byte) (Handle, error) {
	if len(buf) != HandleLength {
		return Handle{}, xerrors.Errorf("invalid handle length %d", len(buf))
	}

	handle := Handle{}
	copy(handle[:], buf)

	return handle, nil
}

// Bytes returns the byte representation of the handle.
func (h Handle) Bytes() []byte {
	return append([]byte{}, h[:]...)
}

// String implements fmt.Stringer. It returns the hexadecimal representation
// of the handle.
func (h Handle) String() string {
	return hex.EncodeToString(h[:])
}

// Ciphertext is the ElGamal encryption of a mask key along with the proof
// that it encodes the key the creator submitted, without revealing it.
type Ciphertext struct {
	// K is the ephemeral Diffie-Hellman public part.
	K kyber.Point
	// C is the blinded embedding of the mask key.
	C kyber.Point
	// UBar, E and F form the proof of correct encryption.
	UBar kyber.Point
	E    kyber.Scalar
	F    kyber.Scalar
	// GBar is the alternate base point the proof is anchored to.
	GBar kyber.Point
}

// Handle returns the handle referencing this ciphertext.
func (ct Ciphertext) Handle() (Handle, error) {
	return NewHandle(ct.K, ct.C)
}

// Verify checks the proof of correct encryption. Creators run this on the
// artifact returned by the vault before persisting the handle.
//
// See https://arxiv.org/pdf/2205.08529.pdf / section 5.4
func (ct Ciphertext) Verify() error {
	tmp1 := suite.Point().Mul(ct.F, nil)
	tmp2 := suite.Point().Mul(ct.E, ct.K)
	w := suite.Point().Sub(tmp1, tmp2)

	tmp1 = suite.Point().Mul(ct.F, ct.GBar)
	tmp2 = suite.Point().Mul(ct.E, ct.UBar)
	wBar := suite.Point().Sub(tmp1, tmp2)

	hash := sha256.New()
	ct.C.MarshalTo(hash)
	ct.K.MarshalTo(hash)
	ct.UBar.MarshalTo(hash)
	w.MarshalTo(hash)
	wBar.MarshalTo(hash)

	tmp := suite.Scalar().SetBytes(hash.Sum(nil))
	if !tmp.Equal(ct.E) {
		return xerrors.Errorf("hash not valid: %x != %x", ct.E, tmp)
	}

	return nil
}

// Envelope is the authorization request a principal signs to ask the vault
// for the plaintext of one or more handles. Its serialized form is canonical:
// the vault re-serializes the same typed value to verify the signature.
//
// - implements serde.Message
type Envelope struct {
	handles   []Handle
	requester kyber.Point
	ephemeral kyber.Point
	contexts  [][]byte
	start     int64
	duration  int64
	requestID string
}

// NewEnvelope creates an envelope for the given handles, valid in the window
// [start, start+duration).
func NewEnvelope(handles []Handle, requester, ephemeral kyber.Point,
	contexts [][]byte, start time.Time, duration time.Duration,
	requestID string) Envelope {

	return Envelope{
		handles:   append([]Handle{}, handles...),
		requester: requester,
		ephemeral: ephemeral,
		contexts:  contexts,
		start:     start.Unix(),
		duration:  int64(duration / time.Second),
		requestID: requestID,
	}
}

// GetHandles returns the handles the envelope applies to.
func (env Envelope) GetHandles() []Handle {
	return append([]Handle{}, env.handles...)
}

// GetRequester returns the long-lived public key of the requester.
func (env Envelope) GetRequester() kyber.Point {
	return env.requester
}

// GetEphemeral returns the single-use public key the plaintext must be
// wrapped under.
func (env Envelope) GetEphemeral() kyber.Point {
	return env.ephemeral
}

// GetContexts returns the context labels the request applies to.
func (env Envelope) GetContexts() [][]byte {
	return append([][]byte{}, env.contexts...)
}

// GetStart returns the beginning of the validity window.
func (env Envelope) GetStart() time.Time {
	return time.Unix(env.start, 0)
}

// GetDuration returns the length of the validity window.
func (env Envelope) GetDuration() time.Duration {
	return time.Duration(env.duration) * time.Second
}

// GetRequestID returns the correlation identifier of the request.
func (env Envelope) GetRequestID() string {
	return env.requestID
}

// Accepts returns true if the window of the envelope contains the given
// time and the context label is among the envelope's contexts.
func (env Envelope) Accepts(now time.Time, context []byte) bool {
	start := env.GetStart()
	if now.Before(start) || !now.Before(start.Add(env.GetDuration())) {
		return false
	}

	for _, label := range env.contexts {
		if string(label) == string(context) {
			return true
		}
	}

	return false
}

// Serialize implements serde.Message. It returns the canonical serialized
// form of the envelope, which is also the byte string that gets signed.
func (env Envelope) Serialize(ctx serde.Context) ([]byte, error) {
	format := envelopeFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, env)
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode envelope: %v", err)
	}

	return data, nil
}

// SignedEnvelope couples an envelope with the Schnorr signature of its
// canonical serialized form by the requester's long-lived key.
type SignedEnvelope struct {
	envelope  Envelope
	signature []byte
}

// NewSignedEnvelope creates a signed envelope.
func NewSignedEnvelope(env Envelope, sig []byte) SignedEnvelope {
	return SignedEnvelope{
		envelope:  env,
		signature: sig,
	}
}

// GetEnvelope returns the envelope.
func (se SignedEnvelope) GetEnvelope() Envelope {
	return se.envelope
}

// GetSignature returns the signature.
func (se SignedEnvelope) GetSignature() []byte {
	return append([]byte{}, se.signature...)
}

// WrappedKey is the vault's answer to a fulfilled decryption request: the
// reencryption of the mask key under the requester's ephemeral public key.
// Only the holder of the matching ephemeral private key can unwrap it.
type WrappedKey struct {
	xhatenc kyber.Point
	c       kyber.Point
}

// NewWrappedKey creates a wrapped key from the reencrypted point and the
// blinded embedding.
func NewWrappedKey(xhatenc, c kyber.Point) WrappedKey {
	return WrappedKey{
		xhatenc: xhatenc,
		c:       c,
	}
}

// GetXhatEnc returns the reencrypted point.
func (wk WrappedKey) GetXhatEnc() kyber.Point {
	return wk.xhatenc
}

// GetC returns the blinded embedding.
func (wk WrappedKey) GetC() kyber.Point {
	return wk.c
}

// Unwrap recovers the mask key locally using the ephemeral private key and
// the vault public key.
func (wk WrappedKey) Unwrap(ephemeral kyber.Scalar, vaultPub kyber.Point) ([]byte, error) {
	shared := suite.Point().Mul(ephemeral, vaultPub)

	m := suite.Point().Add(suite.Point().Sub(wk.c, wk.xhatenc), shared)

	key, err := m.Data()
	if err != nil {
		return nil, xerrors.Errorf("failed to extract key: %v", err)
	}

	return key, nil
}

// EnvelopeFactory deserializes envelopes.
//
// - implements serde.Factory
type EnvelopeFactory struct{}

// Deserialize implements serde.Factory. It returns the envelope read from the
// data.
func (EnvelopeFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	format := envelopeFormats.Get(ctx.GetFormat())

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("couldn't decode envelope: %v", err)
	}

	return msg, nil
}

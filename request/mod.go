// Package request implements the client side of the decryption request
// protocol.
//
// A recovery attempt is a short state machine run entirely by the requesting
// principal: generate a fresh single-use keypair, build a time-bounded
// envelope, sign it with the long-lived identity key, submit it to the vault
// and unwrap the answer locally. An attempt is terminal on success or
// failure; the caller decides whether to retry, always with a whole new
// attempt and a fresh keypair.
package request

import (
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.dedis.ch/kyber/v3/util/key"
	"go.dedis.ch/masq"
	"go.dedis.ch/masq/ident"
	"go.dedis.ch/masq/serde"
	"go.dedis.ch/masq/vault"
	"go.dedis.ch/masq/vault/types"
	"golang.org/x/xerrors"
)

// State is the progress indicator of a recovery attempt.
type State int

// States of a recovery attempt, in order. Fulfilled and Rejected are
// terminal.
const (
	Idle State = iota
	KeypairGenerated
	EnvelopeBuilt
	EnvelopeSigned
	Submitted
	Fulfilled
	Rejected
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case KeypairGenerated:
		return "keypair generated"
	case EnvelopeBuilt:
		return "envelope built"
	case EnvelopeSigned:
		return "envelope signed"
	case Submitted:
		return "submitted"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Request is one recovery attempt. It is not safe for concurrent use; run
// concurrent attempts with independent requests, they never interfere.
type Request struct {
	id       string
	signer   ident.Keypair
	sctx     serde.Context
	contexts [][]byte
	handles  []types.Handle
	validity time.Duration

	state     State
	ephemeral *key.Pair
	envelope  types.Envelope
	signed    types.SignedEnvelope
	keys      [][]byte

	logger zerolog.Logger
}

// New creates a recovery attempt for the given handles, signed by the given
// long-lived keypair and scoped to the given context labels. The validity
// window defaults to the policy duration. The attempt id tags both the local
// logger and the envelope, so client and vault logs correlate.
func New(signer ident.Keypair, sctx serde.Context, contexts [][]byte,
	handles ...types.Handle) *Request {

	id := xid.New().String()

	return &Request{
		id:       id,
		signer:   signer,
		sctx:     sctx,
		contexts: contexts,
		handles:  handles,
		validity: types.DefaultValidity,
		state:    Idle,
		logger:   masq.Logger.With().Str("request", id).Logger(),
	}
}

// SetValidity overrides the validity window of the envelope. It must be
// called before the envelope is built.
func (r *Request) SetValidity(d time.Duration) error {
	if r.state != Idle && r.state != KeypairGenerated {
		return xerrors.Errorf("envelope already built (state '%v')", r.state)
	}

	r.validity = d

	return nil
}

// State returns the current state of the attempt.
func (r *Request) State() State {
	return r.state
}

// GenerateKeypair draws the fresh single-use keypair the plaintext will be
// wrapped under. The keypair is never reused across attempts.
func (r *Request) GenerateKeypair() error {
	if r.state != Idle {
		return xerrors.Errorf("unexpected state '%v'", r.state)
	}

	r.ephemeral = key.NewKeyPair(ident.Suite())
	r.state = KeypairGenerated

	return nil
}

// BuildEnvelope constructs the authorization envelope with a validity window
// starting at the given time.
func (r *Request) BuildEnvelope(start time.Time) error {
	if r.state != KeypairGenerated {
		return xerrors.Errorf("unexpected state '%v'", r.state)
	}

	r.envelope = types.NewEnvelope(r.handles, r.signer.PublicKey(),
		r.ephemeral.Public, r.contexts, start, r.validity, r.id)

	r.state = EnvelopeBuilt

	return nil
}

// Sign signs the canonical serialized form of the envelope with the
// long-lived identity key.
func (r *Request) Sign() error {
	if r.state != EnvelopeBuilt {
		return xerrors.Errorf("unexpected state '%v'", r.state)
	}

	canonical, err := r.envelope.Serialize(r.sctx)
	if err != nil {
		return xerrors.Errorf("failed to serialize envelope: %v", err)
	}

	sig, err := r.signer.Sign(canonical)
	if err != nil {
		return xerrors.Errorf("failed to sign envelope: %v", err)
	}

	r.signed = types.NewSignedEnvelope(r.envelope, sig)
	r.state = EnvelopeSigned

	return nil
}

// Submit sends the signed envelope to the vault. On success the attempt is
// fulfilled and the recovered mask keys are available through Keys. On
// rejection the attempt is terminal; errors.Is(err, vault.ErrRejected) holds
// and the caller may retry with a whole new attempt.
func (r *Request) Submit(v vault.Vault) error {
	if r.state != EnvelopeSigned {
		return xerrors.Errorf("unexpected state '%v'", r.state)
	}

	r.state = Submitted

	wrapped, err := v.RequestDecrypt(r.signed)
	if err != nil {
		r.state = Rejected

		return xerrors.Errorf("vault refused the request: %w", err)
	}

	vaultPub, err := v.GetPublicKey()
	if err != nil {
		r.state = Rejected

		return xerrors.Errorf("failed to get vault public key: %v", err)
	}

	keys := make([][]byte, len(wrapped))

	for i, wk := range wrapped {
		maskKey, err := wk.Unwrap(r.ephemeral.Private, vaultPub)
		if err != nil {
			r.state = Rejected

			return xerrors.Errorf("failed to unwrap key: %v", err)
		}

		keys[i] = maskKey
	}

	r.keys = keys
	r.state = Fulfilled

	r.logger.Debug().Int("keys", len(keys)).Msg("recovery attempt fulfilled")

	return nil
}

// Keys returns the recovered mask keys, in the order of the requested
// handles. It returns an error unless the attempt is fulfilled.
func (r *Request) Keys() ([][]byte, error) {
	if r.state != Fulfilled {
		return nil, xerrors.Errorf("attempt not fulfilled (state '%v')", r.state)
	}

	return r.keys, nil
}

// Run executes the remaining steps of the attempt up to submission: keypair,
// envelope starting now, signature, submission.
func (r *Request) Run(v vault.Vault) error {
	err := r.GenerateKeypair()
	if err != nil {
		return xerrors.Errorf("failed to generate keypair: %v", err)
	}

	err = r.BuildEnvelope(time.Now())
	if err != nil {
		return xerrors.Errorf("failed to build envelope: %v", err)
	}

	err = r.Sign()
	if err != nil {
		return xerrors.Errorf("failed to sign envelope: %v", err)
	}

	err = r.Submit(v)
	if err != nil {
		return xerrors.Errorf("submission failed: %w", err)
	}

	return nil
}

// Recover runs a whole attempt and returns the recovered mask keys.
func Recover(signer ident.Keypair, sctx serde.Context, v vault.Vault,
	contexts [][]byte, handles ...types.Handle) ([][]byte, error) {

	req := New(signer, sctx, contexts, handles...)

	err := req.Run(v)
	if err != nil {
		return nil, err
	}

	keys, err := req.Keys()
	if err != nil {
		return nil, err
	}

	return keys, nil
}

// Package ocs implements an in-process vault based on the on-chain secrets
// construction: mask keys are embedded in a curve point, ElGamal-encrypted
// under the vault keypair, and released by reencrypting them under the
// requester's ephemeral public key so the plaintext never transits in clear.
package ocs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/util/key"
	"go.dedis.ch/masq"
	"go.dedis.ch/masq/core/store/kv"
	"go.dedis.ch/masq/ident"
	"go.dedis.ch/masq/serde"
	"go.dedis.ch/masq/vault"
	"go.dedis.ch/masq/vault/types"
	"golang.org/x/xerrors"
)

var promRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "masq_vault_decrypt_requests_total",
	Help: "total number of decryption requests by outcome",
}, []string{"outcome"})

func init() {
	masq.PromCollectors = append(masq.PromCollectors, promRequests)
}

// record couples one ciphertext with the identities permitted to request its
// plaintext. The insertion order is kept so that a persisted record restores
// identically.
type record struct {
	k     kyber.Point
	c     kyber.Point
	perms map[ident.Identity]struct{}
	order []ident.Identity
}

// Vault is a single-authority vault holding the encrypted mask keys and the
// permission set of each handle.
//
// - implements vault.Vault
// - implements vault.TxExtender
type Vault struct {
	sync.Mutex

	secret  kyber.Scalar
	public  kyber.Point
	context []byte
	sctx    serde.Context
	records map[types.Handle]*record
	db      kv.DB
	clock   func() time.Time
	logger  zerolog.Logger
}

// NewVault creates an in-memory vault with a fresh keypair. The context label
// is the value envelopes must carry to be accepted, and the serialization
// context must match the one requesters sign with.
func NewVault(context []byte, sctx serde.Context) *Vault {
	kp := key.NewKeyPair(suite)

	return &Vault{
		secret:  kp.Private,
		public:  kp.Public,
		context: append([]byte{}, context...),
		sctx:    sctx,
		records: make(map[types.Handle]*record),
		clock:   time.Now,
		logger:  masq.Logger.With().Str("component", "vault").Logger(),
	}
}

// NewPersistentVault creates a vault whose keypair lives in the file at
// keyPath and whose records are written through to the database, so that the
// vault state survives restarts.
func NewPersistentVault(context []byte, sctx serde.Context, db kv.DB,
	keyPath string) (*Vault, error) {

	secret, err := loadOrCreateSecret(keyPath)
	if err != nil {
		return nil, xerrors.Errorf("failed to load vault key: %v", err)
	}

	v := &Vault{
		secret:  secret,
		public:  suite.Point().Mul(secret, nil),
		context: append([]byte{}, context...),
		sctx:    sctx,
		records: make(map[types.Handle]*record),
		db:      db,
		clock:   time.Now,
		logger:  masq.Logger.With().Str("component", "vault").Logger(),
	}

	err = v.restore()
	if err != nil {
		return nil, xerrors.Errorf("failed to restore records: %v", err)
	}

	return v, nil
}

// GetPublicKey implements vault.Vault. It returns the public key requesters
// unwrap against.
func (v *Vault) GetPublicKey() (kyber.Point, error) {
	return v.public, nil
}

// Encrypt implements vault.Vault. It encrypts the mask key under the vault
// keypair, stores the resulting ciphertext with a permission set seeded with
// the owner, and returns the handle along with the proof of correct
// encryption.
func (v *Vault) Encrypt(maskKey []byte, owner ident.Identity) (types.Handle, types.Ciphertext, error) {
	if owner.IsZero() {
		return types.Handle{}, types.Ciphertext{}, xerrors.New("owner is the null identity")
	}

	ct, err := verifiableEncrypt(v.public, maskKey)
	if err != nil {
		return types.Handle{}, types.Ciphertext{}, xerrors.Errorf("failed to encrypt: %v", err)
	}

	handle, err := ct.Handle()
	if err != nil {
		return types.Handle{}, types.Ciphertext{}, xerrors.Errorf("failed to derive handle: %v", err)
	}

	v.Lock()
	defer v.Unlock()

	if _, found := v.records[handle]; found {
		return types.Handle{}, types.Ciphertext{}, xerrors.Errorf("handle '%s' already exists", handle)
	}

	rec := &record{
		k:     ct.K,
		c:     ct.C,
		perms: map[ident.Identity]struct{}{owner: {}},
		order: []ident.Identity{owner},
	}

	err = v.persist(handle, rec)
	if err != nil {
		return types.Handle{}, types.Ciphertext{}, xerrors.Errorf("failed to persist record: %v", err)
	}

	v.records[handle] = rec

	v.logger.Debug().
		Str("handle", handle.String()).
		Stringer("owner", owner).
		Msg("mask key stored")

	return handle, ct, nil
}

// ExtendPermission implements vault.Vault. It adds the delegate to the
// permission set of the handle inside a database transaction of its own. The
// operation is idempotent and permissions never shrink.
func (v *Vault) ExtendPermission(handle types.Handle, delegate ident.Identity) error {
	v.Lock()
	defer v.Unlock()

	return v.extendPermission(handle, delegate, v.persist)
}

// ExtendPermissionTx implements vault.TxExtender. It adds the delegate to the
// permission set of the handle, persisting through the caller's open
// transaction so that the extension commits or rolls back with the caller's
// own writes.
func (v *Vault) ExtendPermissionTx(tx kv.Tx, handle types.Handle,
	delegate ident.Identity) error {

	v.Lock()
	defer v.Unlock()

	return v.extendPermission(handle, delegate,
		func(handle types.Handle, rec *record) error {
			return v.persistTx(tx, handle, rec)
		})
}

func (v *Vault) extendPermission(handle types.Handle, delegate ident.Identity,
	persist func(types.Handle, *record) error) error {

	if delegate.IsZero() {
		return xerrors.New("delegate is the null identity")
	}

	rec, found := v.records[handle]
	if !found {
		return xerrors.Errorf("handle '%s' not found", handle)
	}

	if _, ok := rec.perms[delegate]; ok {
		return nil
	}

	err := persist(handle, &record{
		k:     rec.k,
		c:     rec.c,
		order: append(append([]ident.Identity{}, rec.order...), delegate),
	})
	if err != nil {
		return xerrors.Errorf("failed to persist record: %v", err)
	}

	rec.perms[delegate] = struct{}{}
	rec.order = append(rec.order, delegate)

	return nil
}

// RequestDecrypt implements vault.Vault. It verifies the signature over the
// canonical envelope bytes, the validity window, the context label and the
// permission of the signer on every requested handle. On success it returns
// the mask keys reencrypted under the envelope's ephemeral public key. Every
// failure collapses to vault.ErrRejected so that the response does not leak
// the permission set.
func (v *Vault) RequestDecrypt(req types.SignedEnvelope) ([]types.WrappedKey, error) {
	env := req.GetEnvelope()

	logger := v.logger.With().Str("request", env.GetRequestID()).Logger()

	reject := func(cause string) ([]types.WrappedKey, error) {
		logger.Debug().Str("cause", cause).Msg("decryption request rejected")
		promRequests.WithLabelValues("rejected").Inc()

		return nil, vault.ErrRejected
	}

	handles := env.GetHandles()
	if len(handles) == 0 {
		return reject("no handle requested")
	}

	canonical, err := env.Serialize(v.sctx)
	if err != nil {
		return reject("envelope not serializable")
	}

	err = ident.Verify(env.GetRequester(), canonical, req.GetSignature())
	if err != nil {
		return reject("invalid signature")
	}

	if !env.Accepts(v.clock(), v.context) {
		return reject("outside validity window or wrong context")
	}

	requester, err := ident.FromPublicKey(env.GetRequester())
	if err != nil {
		return reject("malformed requester key")
	}

	v.Lock()
	defer v.Unlock()

	wrapped := make([]types.WrappedKey, len(handles))

	for i, handle := range handles {
		rec, found := v.records[handle]
		if !found {
			return reject("unknown handle")
		}

		if _, ok := rec.perms[requester]; !ok {
			return reject("not authorized")
		}

		wrapped[i] = types.NewWrappedKey(reencrypt(v.secret, rec.k, env.GetEphemeral()), rec.c)
	}

	logger.Info().
		Stringer("requester", requester).
		Int("handles", len(handles)).
		Msg("decryption request fulfilled")

	promRequests.WithLabelValues("fulfilled").Inc()

	return wrapped, nil
}

package access

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/masq/core/store/kv"
	"go.dedis.ch/masq/ident"
	"go.dedis.ch/masq/node"
	"go.dedis.ch/masq/request"
	"go.dedis.ch/masq/serde/json"
	"go.dedis.ch/masq/vault/ocs"
	"go.dedis.ch/masq/vault/types"
	"golang.org/x/xerrors"
)

func TestController_Grant(t *testing.T) {
	registry := node.NewRegistry(kv.NewInMemory(), json.NewContext())
	vlt := &fakeVault{}

	ctrl := NewController(registry, vlt)

	owner := makeIdentity(t)
	delegate := makeIdentity(t)
	handle := types.Handle{0x01}

	id, err := registry.Create(owner, []byte("masked"), handle)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := ctrl.Watch(ctx)

	err = ctrl.Grant(id, owner, delegate)
	require.NoError(t, err)

	// The vault permission was propagated.
	require.Equal(t, []extension{{handle: handle, delegate: delegate}}, vlt.calls)

	event := <-events
	require.Equal(t, id, event.NodeID)
	require.True(t, owner.Equal(event.Owner))
	require.True(t, delegate.Equal(event.Delegate))

	list, err := ctrl.ListAuthorized(id)
	require.NoError(t, err)
	require.Equal(t, []ident.Identity{owner, delegate}, list)
}

func TestController_Grant_NodeNotFound(t *testing.T) {
	ctrl := NewController(node.NewRegistry(kv.NewInMemory(), json.NewContext()),
		&fakeVault{})

	err := ctrl.Grant(42, makeIdentity(t), makeIdentity(t))
	require.ErrorIs(t, err, node.ErrNotFound)
}

func TestController_Grant_NotOwner(t *testing.T) {
	registry := node.NewRegistry(kv.NewInMemory(), json.NewContext())
	ctrl := NewController(registry, &fakeVault{})

	id, err := registry.Create(makeIdentity(t), []byte("masked"), types.Handle{0x01})
	require.NoError(t, err)

	err = ctrl.Grant(id, makeIdentity(t), makeIdentity(t))
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestController_Grant_InvalidDelegate(t *testing.T) {
	registry := node.NewRegistry(kv.NewInMemory(), json.NewContext())
	ctrl := NewController(registry, &fakeVault{})

	owner := makeIdentity(t)

	id, err := registry.Create(owner, []byte("masked"), types.Handle{0x01})
	require.NoError(t, err)

	err = ctrl.Grant(id, owner, ident.Zero)
	require.ErrorIs(t, err, ErrInvalidDelegate)
}

func TestController_Grant_AlreadyAuthorized(t *testing.T) {
	registry := node.NewRegistry(kv.NewInMemory(), json.NewContext())
	ctrl := NewController(registry, &fakeVault{})

	owner := makeIdentity(t)
	delegate := makeIdentity(t)

	id, err := registry.Create(owner, []byte("masked"), types.Handle{0x01})
	require.NoError(t, err)

	// The owner is authorized from creation, so a self grant is a duplicate.
	err = ctrl.Grant(id, owner, owner)
	require.ErrorIs(t, err, node.ErrAlreadyAuthorized)

	require.NoError(t, ctrl.Grant(id, owner, delegate))

	err = ctrl.Grant(id, owner, delegate)
	require.ErrorIs(t, err, node.ErrAlreadyAuthorized)
}

func TestController_Grant_PropagationFailure(t *testing.T) {
	dir, err := ioutil.TempDir(os.TempDir(), "masq-access")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	db, err := kv.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)

	defer db.Close()

	registry := node.NewRegistry(db, json.NewContext())
	ctrl := NewController(registry, &fakeVault{err: xerrors.New("oops")})

	owner := makeIdentity(t)

	id, err := registry.Create(owner, []byte("masked"), types.Handle{0x01})
	require.NoError(t, err)

	err = ctrl.Grant(id, owner, makeIdentity(t))
	require.Error(t, err)

	// Neither side of the grant is observable after the failure.
	list, err := ctrl.ListAuthorized(id)
	require.NoError(t, err)
	require.Equal(t, []ident.Identity{owner}, list)
}

func TestController_Grant_SharedDatabase(t *testing.T) {
	dir, err := ioutil.TempDir(os.TempDir(), "masq-access")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	db, err := kv.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)

	defer db.Close()

	sctx := json.NewContext()
	label := []byte("ctx")

	// The vault and the registry share the same database, as the command
	// line tool wires them. A grant must then persist the vault extension
	// through the registry's transaction.
	vlt, err := ocs.NewPersistentVault(label, sctx, db, filepath.Join(dir, "vault.key"))
	require.NoError(t, err)

	registry := node.NewRegistry(db, sctx)
	ctrl := NewController(registry, vlt)

	owner := ident.NewKeypair()
	delegate := ident.NewKeypair()

	ownerID, err := owner.Identity()
	require.NoError(t, err)

	delegateID, err := delegate.Identity()
	require.NoError(t, err)

	maskKey := make([]byte, 20)
	copy(maskKey, "shared db key")

	handle, _, err := vlt.Encrypt(maskKey, ownerID)
	require.NoError(t, err)

	id, err := registry.Create(ownerID, []byte("masked"), handle)
	require.NoError(t, err)

	err = ctrl.Grant(id, ownerID, delegateID)
	require.NoError(t, err)

	list, err := ctrl.ListAuthorized(id)
	require.NoError(t, err)
	require.Equal(t, []ident.Identity{ownerID, delegateID}, list)

	keys, err := request.Recover(delegate, sctx, vlt, [][]byte{label}, handle)
	require.NoError(t, err)
	require.Equal(t, [][]byte{maskKey}, keys)

	// The extension reached the database: a vault restored from it still
	// honors the permission.
	restored, err := ocs.NewPersistentVault(label, sctx, db,
		filepath.Join(dir, "vault.key"))
	require.NoError(t, err)

	keys, err = request.Recover(delegate, sctx, restored, [][]byte{label}, handle)
	require.NoError(t, err)
	require.Equal(t, [][]byte{maskKey}, keys)
}

func TestController_Grant_SharedDatabase_PropagationFailure(t *testing.T) {
	dir, err := ioutil.TempDir(os.TempDir(), "masq-access")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	db, err := kv.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)

	defer db.Close()

	sctx := json.NewContext()

	vlt, err := ocs.NewPersistentVault([]byte("ctx"), sctx, db,
		filepath.Join(dir, "vault.key"))
	require.NoError(t, err)

	registry := node.NewRegistry(db, sctx)
	ctrl := NewController(registry, vlt)

	owner := makeIdentity(t)

	// The handle was never encrypted, so the vault refuses the extension.
	id, err := registry.Create(owner, []byte("masked"), types.Handle{0x01})
	require.NoError(t, err)

	err = ctrl.Grant(id, owner, makeIdentity(t))
	require.Error(t, err)

	list, err := ctrl.ListAuthorized(id)
	require.NoError(t, err)
	require.Equal(t, []ident.Identity{owner}, list)
}

func TestController_ListAuthorized_NotFound(t *testing.T) {
	ctrl := NewController(node.NewRegistry(kv.NewInMemory(), json.NewContext()),
		&fakeVault{})

	_, err := ctrl.ListAuthorized(42)
	require.ErrorIs(t, err, node.ErrNotFound)
}

// -----------------------------------------------------------------------------
// Utility functions

func makeIdentity(t *testing.T) ident.Identity {
	id, err := ident.NewKeypair().Identity()
	require.NoError(t, err)

	return id
}

type extension struct {
	handle   types.Handle
	delegate ident.Identity
}

// fakeVault records the permission extensions it receives.
//
// - implements vault.Vault
type fakeVault struct {
	calls []extension
	err   error
}

func (v *fakeVault) GetPublicKey() (kyber.Point, error) {
	return nil, nil
}

func (v *fakeVault) Encrypt([]byte, ident.Identity) (types.Handle, types.Ciphertext, error) {
	return types.Handle{}, types.Ciphertext{}, nil
}

func (v *fakeVault) ExtendPermission(handle types.Handle, delegate ident.Identity) error {
	if v.err != nil {
		return v.err
	}

	v.calls = append(v.calls, extension{handle: handle, delegate: delegate})

	return nil
}

func (v *fakeVault) RequestDecrypt(types.SignedEnvelope) ([]types.WrappedKey, error) {
	return nil, nil
}

// Package service exposes the operations of the masked-message store to a
// presentation layer, composing the mask codec, the registry, the access
// controller and the decryption request protocol.
package service

import (
	"github.com/rs/zerolog"
	"go.dedis.ch/masq"
	"go.dedis.ch/masq/access"
	"go.dedis.ch/masq/ident"
	"go.dedis.ch/masq/masking"
	"go.dedis.ch/masq/node"
	"go.dedis.ch/masq/request"
	"go.dedis.ch/masq/serde"
	"go.dedis.ch/masq/vault"
	"golang.org/x/xerrors"
)

// Service binds a local principal to the store.
type Service struct {
	keypair    ident.Keypair
	identity   ident.Identity
	registry   *node.Registry
	controller *access.Controller
	vault      vault.Vault
	sctx       serde.Context
	context    []byte
	logger     zerolog.Logger
}

// NewService creates a service acting on behalf of the given keypair. The
// context label must be the one the vault was created with.
func NewService(kp ident.Keypair, registry *node.Registry,
	controller *access.Controller, v vault.Vault, sctx serde.Context,
	context []byte) (*Service, error) {

	identity, err := kp.Identity()
	if err != nil {
		return nil, xerrors.Errorf("failed to derive identity: %v", err)
	}

	return &Service{
		keypair:    kp,
		identity:   identity,
		registry:   registry,
		controller: controller,
		vault:      v,
		sctx:       sctx,
		context:    append([]byte{}, context...),
		logger:     masq.Logger.With().Stringer("identity", identity).Logger(),
	}, nil
}

// Identity returns the identity of the local principal.
func (s *Service) Identity() ident.Identity {
	return s.identity
}

// Create masks the message under a fresh single-use key, places the key under
// the vault and persists the node. If any step fails the whole creation
// aborts: no node record and no weakly protected key is left behind.
func (s *Service) Create(message []byte) (uint64, error) {
	if len(message) == 0 {
		return 0, xerrors.Errorf("refusing to create node: %w", node.ErrEmptyMessage)
	}

	maskKey, err := masking.GenerateKey()
	if err != nil {
		return 0, xerrors.Errorf("failed to generate mask key: %w", err)
	}

	masked, err := masking.Mask(message, maskKey)
	if err != nil {
		return 0, xerrors.Errorf("failed to mask message: %v", err)
	}

	handle, proof, err := s.vault.Encrypt(maskKey, s.identity)
	if err != nil {
		return 0, xerrors.Errorf("failed to encrypt mask key: %v", err)
	}

	err = proof.Verify()
	if err != nil {
		return 0, xerrors.Errorf("invalid encryption proof: %v", err)
	}

	id, err := s.registry.Create(s.identity, masked, handle)
	if err != nil {
		return 0, xerrors.Errorf("failed to create node: %w", err)
	}

	return id, nil
}

// ListMine returns the ids of the nodes created by the local principal, in
// creation order.
func (s *Service) ListMine() ([]uint64, error) {
	return s.registry.ListByOwner(s.identity)
}

// GetNode returns the record of the node.
func (s *Service) GetNode(id uint64) (node.Record, error) {
	return s.registry.Get(id)
}

// ListAuthorized returns the ordered authorization list of the node.
func (s *Service) ListAuthorized(id uint64) ([]ident.Identity, error) {
	return s.controller.ListAuthorized(id)
}

// Grant extends the right to recover the node's message to the delegate.
func (s *Service) Grant(id uint64, delegate ident.Identity) error {
	return s.controller.Grant(id, s.identity, delegate)
}

// RecoverMessage recovers the mask key through the decryption request
// protocol and unmasks the payload. It fails with vault.ErrRejected if the
// local principal is not authorized on the node.
func (s *Service) RecoverMessage(id uint64) ([]byte, error) {
	record, err := s.registry.Get(id)
	if err != nil {
		return nil, xerrors.Errorf("failed to get node: %w", err)
	}

	keys, err := request.Recover(s.keypair, s.sctx, s.vault,
		[][]byte{s.context}, record.GetHandle())
	if err != nil {
		return nil, xerrors.Errorf("failed to recover mask key: %w", err)
	}

	message, err := masking.Unmask(record.GetPayload(), keys[0])
	if err != nil {
		return nil, xerrors.Errorf("failed to unmask payload: %v", err)
	}

	s.logger.Debug().Uint64("node", id).Msg("message recovered")

	return message, nil
}

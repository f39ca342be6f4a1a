// Package access manages the authorization list of each node: who, besides
// the owner, may request the mask key from the vault.
//
// Grants are monotonic. There is no revocation because the underlying
// permission primitive, extending decrypt rights on a ciphertext handle,
// cannot be taken back by construction.
package access

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/masq"
	"go.dedis.ch/masq/core"
	"go.dedis.ch/masq/core/store/kv"
	"go.dedis.ch/masq/ident"
	"go.dedis.ch/masq/node"
	"go.dedis.ch/masq/vault"
	"golang.org/x/xerrors"
)

var (
	// ErrNotOwner is returned when a privileged operation is attempted by an
	// identity that does not own the node.
	ErrNotOwner = xerrors.New("caller is not the node owner")

	// ErrInvalidDelegate is returned when the grant target is the null
	// identity.
	ErrInvalidDelegate = xerrors.New("invalid delegate")
)

var promGrants = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "masq_grants_total",
	Help: "total number of successful grants",
})

func init() {
	masq.PromCollectors = append(masq.PromCollectors, promGrants)
}

// GrantEvent is emitted once per successful grant.
type GrantEvent struct {
	NodeID   uint64
	Owner    ident.Identity
	Delegate ident.Identity
}

// Controller enforces the grant preconditions and keeps the local
// authorization list and the vault permission set consistent: the vault
// propagation runs inside the same registry transaction as the local append,
// so neither is observable without the other.
type Controller struct {
	registry *node.Registry
	vault    vault.Vault
	watcher  core.Observable
	logger   zerolog.Logger
}

// NewController creates an access controller for the given registry and
// vault.
func NewController(registry *node.Registry, v vault.Vault) *Controller {
	return &Controller{
		registry: registry,
		vault:    v,
		watcher:  core.NewWatcher(),
		logger:   masq.Logger.With().Str("component", "access").Logger(),
	}
}

// Grant extends the right to recover the node's mask key to the delegate. It
// fails with node.ErrNotFound if the node does not exist, ErrNotOwner if the
// caller does not own it, ErrInvalidDelegate for the null identity and
// node.ErrAlreadyAuthorized for a duplicate grant.
func (c *Controller) Grant(nodeID uint64, caller, delegate ident.Identity) error {
	record, err := c.registry.Get(nodeID)
	if err != nil {
		return xerrors.Errorf("failed to get node: %w", err)
	}

	if !record.GetOwner().Equal(caller) {
		return xerrors.Errorf("identity '%v' cannot grant: %w", caller, ErrNotOwner)
	}

	if delegate.IsZero() {
		return xerrors.Errorf("cannot grant to the null identity: %w", ErrInvalidDelegate)
	}

	err = c.registry.Extend(nodeID, delegate, func(tx kv.Tx, rec node.Record) error {
		// A vault sharing the registry's database must persist through the
		// open transaction: opening its own would deadlock on the writer
		// lock already held by Extend.
		if ext, ok := c.vault.(vault.TxExtender); ok {
			return ext.ExtendPermissionTx(tx, rec.GetHandle(), delegate)
		}

		return c.vault.ExtendPermission(rec.GetHandle(), delegate)
	})
	if err != nil {
		return xerrors.Errorf("failed to extend authorization: %w", err)
	}

	promGrants.Inc()

	c.logger.Info().
		Uint64("node", nodeID).
		Stringer("owner", caller).
		Stringer("delegate", delegate).
		Msg("access granted")

	c.watcher.Notify(GrantEvent{
		NodeID:   nodeID,
		Owner:    caller,
		Delegate: delegate,
	})

	return nil
}

// ListAuthorized returns the ordered authorization list of the node, owner
// first.
func (c *Controller) ListAuthorized(nodeID uint64) ([]ident.Identity, error) {
	list, err := c.registry.ListAuthorized(nodeID)
	if err != nil {
		return nil, xerrors.Errorf("failed to read authorization list: %w", err)
	}

	return list, nil
}

// Watch returns a channel of grant events. The subscription is removed when
// the context is done.
func (c *Controller) Watch(ctx context.Context) <-chan GrantEvent {
	ch := make(chan GrantEvent, 1)

	obs := observer{ch: ch}
	c.watcher.Add(obs)

	go func() {
		<-ctx.Done()
		c.watcher.Remove(obs)
	}()

	return ch
}

// observer forwards the watcher notifications to a channel.
//
// - implements core.Observer
type observer struct {
	ch chan GrantEvent
}

// NotifyCallback implements core.Observer.
func (obs observer) NotifyCallback(event interface{}) {
	obs.ch <- event.(GrantEvent)
}

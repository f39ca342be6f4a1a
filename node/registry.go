package node

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/masq"
	"go.dedis.ch/masq/core"
	"go.dedis.ch/masq/core/store/kv"
	"go.dedis.ch/masq/ident"
	"go.dedis.ch/masq/serde"
	"go.dedis.ch/masq/vault/types"
	"golang.org/x/xerrors"
)

var (
	bucketNodes  = []byte("nodes")
	bucketOwners = []byte("owners")
	bucketACLs   = []byte("acls")
	bucketMeta   = []byte("meta")

	keyCounter = []byte("counter")
)

var promNodes = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "masq_nodes_created_total",
	Help: "total number of nodes created",
})

func init() {
	masq.PromCollectors = append(masq.PromCollectors, promNodes)
}

// Registry is the authoritative store of node records, indexed by id and by
// owner. Every mutation runs inside a single database transaction, which
// gives the registry the serialized state transitions it needs: each call
// observes a consistent prior state and its effect is atomic.
//
// - implements node.Watchable
type Registry struct {
	db      kv.DB
	sctx    serde.Context
	factory serde.Factory
	watcher core.Observable
	clock   func() time.Time
	logger  zerolog.Logger
}

// NewRegistry creates a registry on top of the given database.
func NewRegistry(db kv.DB, sctx serde.Context) *Registry {
	return &Registry{
		db:      db,
		sctx:    sctx,
		factory: RecordFactory{},
		watcher: core.NewWatcher(),
		clock:   time.Now,
		logger:  masq.Logger.With().Str("component", "registry").Logger(),
	}
}

// Create allocates the next sequential id, inserts the record, appends the id
// to the owner's index and seeds the node's authorization list with the
// owner. It emits a creation event carrying the id, the owner and the
// payload length.
func (r *Registry) Create(owner ident.Identity, payload []byte,
	handle types.Handle) (uint64, error) {

	if len(payload) == 0 {
		return 0, xerrors.Errorf("refusing to create node: %w", ErrEmptyMessage)
	}

	if owner.IsZero() {
		return 0, xerrors.New("owner is the null identity")
	}

	var id uint64

	err := r.db.Update(func(tx kv.Tx) error {
		meta, err := tx.GetBucketOrCreate(bucketMeta)
		if err != nil {
			return xerrors.Errorf("failed to open meta bucket: %v", err)
		}

		id = readCounter(meta.Get(keyCounter)) + 1

		err = meta.Set(keyCounter, encodeID(id))
		if err != nil {
			return xerrors.Errorf("failed to set counter: %v", err)
		}

		record := NewRecord(id, owner, handle, payload, r.clock())

		data, err := record.Serialize(r.sctx)
		if err != nil {
			return xerrors.Errorf("failed to serialize record: %v", err)
		}

		nodes, err := tx.GetBucketOrCreate(bucketNodes)
		if err != nil {
			return xerrors.Errorf("failed to open nodes bucket: %v", err)
		}

		err = nodes.Set(encodeID(id), data)
		if err != nil {
			return xerrors.Errorf("failed to store record: %v", err)
		}

		owners, err := tx.GetBucketOrCreate(bucketOwners)
		if err != nil {
			return xerrors.Errorf("failed to open owners bucket: %v", err)
		}

		index := owners.Get(owner.Bytes())

		err = owners.Set(owner.Bytes(), append(index, encodeID(id)...))
		if err != nil {
			return xerrors.Errorf("failed to update owner index: %v", err)
		}

		acls, err := tx.GetBucketOrCreate(bucketACLs)
		if err != nil {
			return xerrors.Errorf("failed to open acls bucket: %v", err)
		}

		err = acls.Set(encodeID(id), owner.Bytes())
		if err != nil {
			return xerrors.Errorf("failed to seed authorization list: %v", err)
		}

		return nil
	})
	if err != nil {
		return 0, xerrors.Errorf("creation aborted: %w", err)
	}

	promNodes.Inc()

	r.logger.Info().
		Uint64("id", id).
		Stringer("owner", owner).
		Int("length", len(payload)).
		Msg("node created")

	r.watcher.Notify(CreationEvent{
		ID:            id,
		Owner:         owner,
		PayloadLength: len(payload),
	})

	return id, nil
}

// Get returns the record stored under the given id.
func (r *Registry) Get(id uint64) (Record, error) {
	var record Record

	err := r.db.View(func(tx kv.Tx) error {
		nodes := tx.GetBucket(bucketNodes)
		if nodes == nil {
			return xerrors.Errorf("no record for id %d: %w", id, ErrNotFound)
		}

		data := nodes.Get(encodeID(id))
		if data == nil {
			return xerrors.Errorf("no record for id %d: %w", id, ErrNotFound)
		}

		msg, err := r.factory.Deserialize(r.sctx, data)
		if err != nil {
			return xerrors.Errorf("failed to deserialize record: %v", err)
		}

		var ok bool

		record, ok = msg.(Record)
		if !ok {
			return xerrors.Errorf("expected to find '%T' but found '%T'", record, msg)
		}

		return nil
	})
	if err != nil {
		return Record{}, err
	}

	return record, nil
}

// ListByOwner returns the ids of the nodes the owner created, in creation
// order. An owner that created nothing gets an empty sequence.
func (r *Registry) ListByOwner(owner ident.Identity) ([]uint64, error) {
	ids := []uint64{}

	err := r.db.View(func(tx kv.Tx) error {
		owners := tx.GetBucket(bucketOwners)
		if owners == nil {
			return nil
		}

		index := owners.Get(owner.Bytes())

		for i := 0; i+8 <= len(index); i += 8 {
			ids = append(ids, readCounter(index[i:i+8]))
		}

		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to read owner index: %v", err)
	}

	return ids, nil
}

// ListAuthorized returns the ordered authorization list of the node, owner
// first.
func (r *Registry) ListAuthorized(id uint64) ([]ident.Identity, error) {
	var list []ident.Identity

	err := r.db.View(func(tx kv.Tx) error {
		acls := tx.GetBucket(bucketACLs)
		if acls == nil {
			return xerrors.Errorf("no record for id %d: %w", id, ErrNotFound)
		}

		data := acls.Get(encodeID(id))
		if data == nil {
			return xerrors.Errorf("no record for id %d: %w", id, ErrNotFound)
		}

		var err error

		list, err = decodeACL(data)
		if err != nil {
			return xerrors.Errorf("failed to decode authorization list: %v", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return list, nil
}

// Extend appends the delegate to the authorization list of the node and then
// runs the propagation callback with the same open transaction: if the
// propagation fails the local append is rolled back, so a state where the
// delegate is recorded locally but not propagated is never observable. The
// callback must write through the given transaction and never open its own,
// as the database writer lock is held for the duration of the call.
func (r *Registry) Extend(id uint64, delegate ident.Identity,
	propagate func(kv.Tx, Record) error) error {

	return r.db.Update(func(tx kv.Tx) error {
		nodes := tx.GetBucket(bucketNodes)
		acls := tx.GetBucket(bucketACLs)

		if nodes == nil || acls == nil {
			return xerrors.Errorf("no record for id %d: %w", id, ErrNotFound)
		}

		data := nodes.Get(encodeID(id))
		if data == nil {
			return xerrors.Errorf("no record for id %d: %w", id, ErrNotFound)
		}

		msg, err := r.factory.Deserialize(r.sctx, data)
		if err != nil {
			return xerrors.Errorf("failed to deserialize record: %v", err)
		}

		record, ok := msg.(Record)
		if !ok {
			return xerrors.Errorf("expected to find '%T' but found '%T'", record, msg)
		}

		acl := acls.Get(encodeID(id))

		list, err := decodeACL(acl)
		if err != nil {
			return xerrors.Errorf("failed to decode authorization list: %v", err)
		}

		for _, member := range list {
			if member.Equal(delegate) {
				return xerrors.Errorf("cannot extend: %w", ErrAlreadyAuthorized)
			}
		}

		err = acls.Set(encodeID(id), append(append([]byte{}, acl...), delegate.Bytes()...))
		if err != nil {
			return xerrors.Errorf("failed to update authorization list: %v", err)
		}

		err = propagate(tx, record)
		if err != nil {
			return xerrors.Errorf("propagation failed: %v", err)
		}

		return nil
	})
}

// Watch implements node.Watchable. It returns a channel of creation events.
// The subscription is removed when the context is done.
func (r *Registry) Watch(ctx context.Context) <-chan CreationEvent {
	ch := make(chan CreationEvent, 1)

	obs := observer{ch: ch}
	r.watcher.Add(obs)

	go func() {
		<-ctx.Done()
		r.watcher.Remove(obs)
	}()

	return ch
}

// observer forwards the watcher notifications to a channel.
//
// - implements core.Observer
type observer struct {
	ch chan CreationEvent
}

// NotifyCallback implements core.Observer.
func (obs observer) NotifyCallback(event interface{}) {
	obs.ch <- event.(CreationEvent)
}

func encodeID(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)

	return buf
}

func readCounter(buf []byte) uint64 {
	if len(buf) != 8 {
		return 0
	}

	return binary.BigEndian.Uint64(buf)
}

func decodeACL(data []byte) ([]ident.Identity, error) {
	if len(data)%ident.Length != 0 {
		return nil, xerrors.Errorf("malformed list of length %d", len(data))
	}

	list := make([]ident.Identity, 0, len(data)/ident.Length)

	for i := 0; i+ident.Length <= len(data); i += ident.Length {
		member, err := ident.FromBytes(data[i : i+ident.Length])
		if err != nil {
			return nil, err
		}

		list = append(list, member)
	}

	return list, nil
}

// Package node defines the durable node record, which binds an owner, an
// encrypted key handle and a masked payload, and the registry that stores
// them.
package node

import (
	"context"
	"time"

	"go.dedis.ch/masq/ident"
	"go.dedis.ch/masq/serde"
	"go.dedis.ch/masq/serde/registry"
	"go.dedis.ch/masq/vault/types"
	"golang.org/x/xerrors"
)

var (
	// ErrEmptyMessage is returned when creating a node with an empty payload.
	ErrEmptyMessage = xerrors.New("empty message")

	// ErrNotFound is returned when a node id resolves to no record.
	ErrNotFound = xerrors.New("node not found")

	// ErrAlreadyAuthorized is returned when a delegate is already in the
	// authorization list of a node.
	ErrAlreadyAuthorized = xerrors.New("delegate already authorized")
)

var recordFormats = registry.NewSimpleRegistry()

// RegisterRecordFormat registers the engine for the provided format.
func RegisterRecordFormat(format serde.Format, engine serde.FormatEngine) {
	recordFormats.Register(format, engine)
}

// Record is one stored node. It is created exactly once and immutable
// thereafter; only the authorization list it references grows.
//
// - implements serde.Message
type Record struct {
	id        uint64
	owner     ident.Identity
	handle    types.Handle
	payload   []byte
	createdAt int64
}

// NewRecord creates a record.
func NewRecord(id uint64, owner ident.Identity, handle types.Handle,
	payload []byte, createdAt time.Time) Record {

	return Record{
		id:        id,
		owner:     owner,
		handle:    handle,
		payload:   append([]byte{}, payload...),
		createdAt: createdAt.Unix(),
	}
}

// GetID returns the id of the node.
func (r Record) GetID() uint64 {
	return r.id
}

// GetOwner returns the identity that created the node.
func (r Record) GetOwner() ident.Identity {
	return r.owner
}

// GetHandle returns the opaque handle of the encrypted mask key.
func (r Record) GetHandle() types.Handle {
	return r.handle
}

// GetPayload returns the masked payload. It is safe to expose: its secrecy
// rests entirely on the mask key held by the vault.
func (r Record) GetPayload() []byte {
	return append([]byte{}, r.payload...)
}

// GetCreatedAt returns the creation timestamp of the node.
func (r Record) GetCreatedAt() time.Time {
	return time.Unix(r.createdAt, 0)
}

// Serialize implements serde.Message. It returns the serialized form of the
// record.
func (r Record) Serialize(ctx serde.Context) ([]byte, error) {
	format := recordFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, r)
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode record: %v", err)
	}

	return data, nil
}

// RecordFactory deserializes records.
//
// - implements serde.Factory
type RecordFactory struct{}

// Deserialize implements serde.Factory. It returns the record read from the
// data.
func (RecordFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	format := recordFormats.Get(ctx.GetFormat())

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("couldn't decode record: %v", err)
	}

	return msg, nil
}

// CreationEvent is emitted once per created node. It carries the payload
// length, never the payload.
type CreationEvent struct {
	ID            uint64
	Owner         ident.Identity
	PayloadLength int
}

// Watchable lets a consumer subscribe to registry events.
type Watchable interface {
	Watch(ctx context.Context) <-chan CreationEvent
}

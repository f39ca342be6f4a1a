// Package json implements the JSON format for the node record.
package json

import (
	"time"

	"go.dedis.ch/masq/ident"
	"go.dedis.ch/masq/node"
	"go.dedis.ch/masq/serde"
	"go.dedis.ch/masq/vault/types"
	"golang.org/x/xerrors"
)

func init() {
	node.RegisterRecordFormat(serde.FormatJSON, recordFormat{})
}

// Record is the JSON message of a node record.
type Record struct {
	ID        uint64
	Owner     []byte
	Handle    []byte
	Payload   []byte
	CreatedAt int64
}

// recordFormat is the engine to encode and decode node records in JSON
// format.
//
// - implements serde.FormatEngine
type recordFormat struct{}

// Encode implements serde.FormatEngine. It returns the serialized data of the
// record in JSON format.
func (f recordFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	record, ok := msg.(node.Record)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	handle := record.GetHandle()

	m := Record{
		ID:        record.GetID(),
		Owner:     record.GetOwner().Bytes(),
		Handle:    handle.Bytes(),
		Payload:   record.GetPayload(),
		CreatedAt: record.GetCreatedAt().Unix(),
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine. It returns the record read from the
// JSON data.
func (f recordFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := Record{}

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't unmarshal record: %v", err)
	}

	owner, err := ident.FromBytes(m.Owner)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode owner: %v", err)
	}

	handle, err := types.HandleFromBytes(m.Handle)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode handle: %v", err)
	}

	record := node.NewRecord(m.ID, owner, handle, m.Payload,
		time.Unix(m.CreatedAt, 0))

	return record, nil
}

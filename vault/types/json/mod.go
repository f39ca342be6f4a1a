// Package json implements the JSON format for the vault envelope.
package json

import (
	"time"

	"go.dedis.ch/kyber/v3/suites"
	"go.dedis.ch/masq/serde"
	"go.dedis.ch/masq/vault/types"
	"golang.org/x/xerrors"
)

func init() {
	types.RegisterEnvelopeFormat(serde.FormatJSON, envelopeFormat{
		suite: suites.MustFind("Ed25519"),
	})
}

// Envelope is the JSON message of a decryption envelope. The field order is
// fixed by this definition, which makes the encoding canonical: two parties
// encoding the same envelope produce the same bytes.
type Envelope struct {
	Handles   [][]byte
	Requester []byte
	Ephemeral []byte
	Contexts  [][]byte
	Start     int64
	Duration  int64
	RequestID string
}

// envelopeFormat is the engine to encode and decode envelopes in JSON format.
//
// - implements serde.FormatEngine
type envelopeFormat struct {
	suite suites.Suite
}

// Encode implements serde.FormatEngine. It returns the serialized data of the
// envelope in JSON format.
func (f envelopeFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	env, ok := msg.(types.Envelope)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	handles := env.GetHandles()

	rawHandles := make([][]byte, len(handles))
	for i, handle := range handles {
		rawHandles[i] = handle.Bytes()
	}

	requester, err := env.GetRequester().MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal requester: %v", err)
	}

	ephemeral, err := env.GetEphemeral().MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal ephemeral key: %v", err)
	}

	m := Envelope{
		Handles:   rawHandles,
		Requester: requester,
		Ephemeral: ephemeral,
		Contexts:  env.GetContexts(),
		Start:     env.GetStart().Unix(),
		Duration:  int64(env.GetDuration().Seconds()),
		RequestID: env.GetRequestID(),
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine. It returns the envelope read from the
// JSON data.
func (f envelopeFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := Envelope{}

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't unmarshal envelope: %v", err)
	}

	handles := make([]types.Handle, len(m.Handles))
	for i, raw := range m.Handles {
		handle, err := types.HandleFromBytes(raw)
		if err != nil {
			return nil, xerrors.Errorf("failed to decode handle: %v", err)
		}

		handles[i] = handle
	}

	requester := f.suite.Point()
	err = requester.UnmarshalBinary(m.Requester)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal requester: %v", err)
	}

	ephemeral := f.suite.Point()
	err = ephemeral.UnmarshalBinary(m.Ephemeral)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal ephemeral key: %v", err)
	}

	env := types.NewEnvelope(handles, requester, ephemeral, m.Contexts,
		time.Unix(m.Start, 0), time.Duration(m.Duration)*time.Second,
		m.RequestID)

	return env, nil
}

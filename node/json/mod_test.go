package json

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3/suites"
	"go.dedis.ch/masq/ident"
	"go.dedis.ch/masq/node"
	"go.dedis.ch/masq/serde"
	"go.dedis.ch/masq/vault/types"
)

var testSuite = suites.MustFind("Ed25519")

func TestRecordFormat_RoundTrip(t *testing.T) {
	ctx := serde.NewContext(testEngine{})

	owner, err := ident.FromPublicKey(testSuite.Point().Base())
	require.NoError(t, err)

	handle, err := types.NewHandle(testSuite.Point().Base(), testSuite.Point().Base())
	require.NoError(t, err)

	record := node.NewRecord(3, owner, handle, []byte("masked"), time.Unix(1000, 0))

	data, err := record.Serialize(ctx)
	require.NoError(t, err)

	msg, err := node.RecordFactory{}.Deserialize(ctx, data)
	require.NoError(t, err)

	decoded, ok := msg.(node.Record)
	require.True(t, ok)

	require.Equal(t, uint64(3), decoded.GetID())
	require.True(t, owner.Equal(decoded.GetOwner()))
	require.Equal(t, handle, decoded.GetHandle())
	require.Equal(t, []byte("masked"), decoded.GetPayload())
	require.Equal(t, time.Unix(1000, 0), decoded.GetCreatedAt())
}

func TestRecordFormat_Encode_BadMessage(t *testing.T) {
	format := recordFormat{}

	_, err := format.Encode(serde.NewContext(testEngine{}), fakeMessage{})
	require.EqualError(t, err, "unsupported message of type 'json.fakeMessage'")
}

func TestRecordFormat_Decode_Malformed(t *testing.T) {
	format := recordFormat{}
	ctx := serde.NewContext(testEngine{})

	_, err := format.Decode(ctx, []byte("not json"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't unmarshal record")

	_, err = format.Decode(ctx, []byte(`{"Owner":"AAE="}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to decode owner")
}

// -----------------------------------------------------------------------------
// Utility functions

type testEngine struct{}

func (testEngine) GetFormat() serde.Format {
	return serde.FormatJSON
}

func (testEngine) Marshal(m interface{}) ([]byte, error) {
	return json.Marshal(m)
}

func (testEngine) Unmarshal(data []byte, m interface{}) error {
	return json.Unmarshal(data, m)
}

type fakeMessage struct {
	serde.Message
}

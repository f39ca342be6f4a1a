package json

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3/suites"
	"go.dedis.ch/masq/serde"
	"go.dedis.ch/masq/vault/types"
)

var testSuite = suites.MustFind("Ed25519")

func TestEnvelopeFormat_RoundTrip(t *testing.T) {
	ctx := serde.NewContext(testEngine{})

	handle, err := types.NewHandle(testSuite.Point().Base(), testSuite.Point().Base())
	require.NoError(t, err)

	env := types.NewEnvelope(
		[]types.Handle{handle},
		testSuite.Point().Pick(testSuite.RandomStream()),
		testSuite.Point().Pick(testSuite.RandomStream()),
		[][]byte{[]byte("ctx")},
		time.Unix(1000, 0),
		time.Hour,
		"deadbeef",
	)

	data, err := env.Serialize(ctx)
	require.NoError(t, err)

	msg, err := types.EnvelopeFactory{}.Deserialize(ctx, data)
	require.NoError(t, err)

	decoded, ok := msg.(types.Envelope)
	require.True(t, ok)

	require.Equal(t, env.GetHandles(), decoded.GetHandles())
	require.True(t, env.GetRequester().Equal(decoded.GetRequester()))
	require.True(t, env.GetEphemeral().Equal(decoded.GetEphemeral()))
	require.Equal(t, env.GetContexts(), decoded.GetContexts())
	require.Equal(t, env.GetStart(), decoded.GetStart())
	require.Equal(t, env.GetDuration(), decoded.GetDuration())
	require.Equal(t, env.GetRequestID(), decoded.GetRequestID())
}

func TestEnvelopeFormat_Canonical(t *testing.T) {
	ctx := serde.NewContext(testEngine{})

	env := types.NewEnvelope(nil,
		testSuite.Point().Base(), testSuite.Point().Base(),
		[][]byte{[]byte("ctx")}, time.Unix(1000, 0), time.Hour, "deadbeef")

	data, err := env.Serialize(ctx)
	require.NoError(t, err)

	again, err := env.Serialize(ctx)
	require.NoError(t, err)
	require.Equal(t, data, again)

	// An envelope rebuilt from its serialized form encodes to the same bytes.
	msg, err := types.EnvelopeFactory{}.Deserialize(ctx, data)
	require.NoError(t, err)

	reencoded, err := msg.(types.Envelope).Serialize(ctx)
	require.NoError(t, err)
	require.Equal(t, data, reencoded)
}

func TestEnvelopeFormat_Encode_BadMessage(t *testing.T) {
	format := envelopeFormat{suite: testSuite}

	_, err := format.Encode(serde.NewContext(testEngine{}), fakeMessage{})
	require.EqualError(t, err,
		"unsupported message of type 'json.fakeMessage'")
}

func TestEnvelopeFormat_Decode_Malformed(t *testing.T) {
	format := envelopeFormat{suite: testSuite}
	ctx := serde.NewContext(testEngine{})

	_, err := format.Decode(ctx, []byte("not json"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't unmarshal envelope")

	_, err = format.Decode(ctx, []byte(`{"Handles":["AAE="]}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to decode handle")
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

package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/masq/serde"
)

func TestSimpleRegistry_Register(t *testing.T) {
	r := NewSimpleRegistry()

	engine := fakeFormat{}
	r.Register(serde.FormatJSON, engine)

	require.Equal(t, engine, r.Get(serde.FormatJSON))
}

func TestSimpleRegistry_Get_Unknown(t *testing.T) {
	r := NewSimpleRegistry()

	format := r.Get("XML")

	_, err := format.Encode(serde.Context{}, nil)
	require.EqualError(t, err, "format 'XML' is not implemented")

	_, err = format.Decode(serde.Context{}, nil)
	require.EqualError(t, err, "format 'XML' is not implemented")
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeFormat struct {
	serde.FormatEngine
}

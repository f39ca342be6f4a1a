package serde

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContext_GetFactory(t *testing.T) {
	ctx := NewContext(nil)

	require.Nil(t, ctx.GetFactory("A"))

	factory := fakeFactory{}
	child := WithFactory(ctx, "A", factory)

	require.Equal(t, factory, child.GetFactory("A"))

	// The parent context must not know the factory.
	require.Nil(t, ctx.GetFactory("A"))
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeFactory struct {
	Factory
}

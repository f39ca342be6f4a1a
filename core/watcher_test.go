package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWatcher_Add(t *testing.T) {
	w := NewWatcher()

	obs := &fakeObserver{}
	w.Add(obs)
	w.Add(obs)

	require.Len(t, w.observers, 1)
}

func TestWatcher_Remove(t *testing.T) {
	w := NewWatcher()

	obs := &fakeObserver{}
	w.Add(obs)
	w.Remove(obs)

	require.Len(t, w.observers, 0)
}

func TestWatcher_Notify(t *testing.T) {
	w := NewWatcher()

	obs := &fakeObserver{}
	other := &fakeObserver{}

	w.Add(obs)
	w.Add(other)

	w.Notify("deadbeef")

	require.Equal(t, []interface{}{"deadbeef"}, obs.events)
	require.Equal(t, []interface{}{"deadbeef"}, other.events)

	w.Remove(other)
	w.Notify("livebeef")

	require.Len(t, obs.events, 2)
	require.Len(t, other.events, 1)
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeObserver struct {
	events []interface{}
}

func (obs *fakeObserver) NotifyCallback(event interface{}) {
	obs.events = append(obs.events, event)
}

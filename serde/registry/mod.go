// Package registry defines the format registry mechanism.
//
// It also provides a default implementation that returns an empty format for
// unknown keys, so that serialization fails with a meaningful error without
// checking the format existence at every call site.
package registry

import (
	"go.dedis.ch/masq/serde"
	"golang.org/x/xerrors"
)

// Registry is an interface to register and look up format engines for a
// specific format.
type Registry interface {
	// Register takes a format and its engine and registers them so that the
	// engine can be looked up later.
	Register(serde.Format, serde.FormatEngine)

	// Get returns the engine associated with the format.
	Get(serde.Format) serde.FormatEngine
}

// SimpleRegistry is a default implementation of the Registry interface.
//
// - implements registry.Registry
type SimpleRegistry struct {
	store map[serde.Format]serde.FormatEngine
}

// NewSimpleRegistry returns a new empty registry.
func NewSimpleRegistry() *SimpleRegistry {
	return &SimpleRegistry{
		store: make(map[serde.Format]serde.FormatEngine),
	}
}

// Register implements registry.Registry. It registers the engine for the
// given format.
func (r *SimpleRegistry) Register(name serde.Format, f serde.FormatEngine) {
	r.store[name] = f
}

// Get implements registry.Registry. It returns the format engine associated
// with the format if it exists, otherwise an empty format.
func (r *SimpleRegistry) Get(name serde.Format) serde.FormatEngine {
	fmt := r.store[name]
	if fmt == nil {
		return emptyFormat{name: name}
	}

	return fmt
}

// emptyFormat is a format engine that always returns an error.
//
// - implements serde.FormatEngine
type emptyFormat struct {
	serde.FormatEngine
	name serde.Format
}

// Encode implements serde.FormatEngine. It always returns an error.
func (f emptyFormat) Encode(serde.Context, serde.Message) ([]byte, error) {
	return nil, xerrors.Errorf("format '%s' is not implemented", f.name)
}

// Decode implements serde.FormatEngine. It always returns an error.
func (f emptyFormat) Decode(serde.Context, []byte) (serde.Message, error) {
	return nil, xerrors.Errorf("format '%s' is not implemented", f.name)
}

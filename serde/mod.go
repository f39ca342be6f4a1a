// Package serde defines the primitives to serialize and deserialize typed
// messages with a canonical, format-independent encoding.
//
// A message declares how to serialize itself for a given context, and the
// actual encoding is delegated to a format engine registered for the context
// format. The pair (message type, format) is therefore injective: two
// independent parties serializing the same typed value produce the same
// bytes, which is what allows signatures over serialized messages to be
// verified without trusting the signer's encoder.
package serde

// Format is the identifier type of a format implementation.
type Format string

const (
	// FormatJSON is the identifier of the JSON format.
	FormatJSON Format = "JSON"
)

// Message is the interface a data model should implement to be serialized and
// deserialized.
type Message interface {
	// Serialize returns the serialized form of the message according to the
	// format of the context.
	Serialize(ctx Context) ([]byte, error)
}

// Factory is the interface to implement to instantiate a data model from its
// serialized form.
type Factory interface {
	// Deserialize returns the message instantiated from the data according to
	// the format of the context.
	Deserialize(ctx Context, data []byte) (Message, error)
}

// FormatEngine is the interface to implement to encode and decode messages of
// a given family in a specific format.
type FormatEngine interface {
	// Encode returns the serialized form of the message in the format
	// supported by the engine.
	Encode(ctx Context, msg Message) ([]byte, error)

	// Decode returns the message instantiated from the data in the format
	// supported by the engine.
	Decode(ctx Context, data []byte) (Message, error)
}

// ContextEngine is the interface to implement to create a serialization
// context.
type ContextEngine interface {
	// GetFormat returns the name of the format for this context.
	GetFormat() Format

	// Marshal returns the bytes of the message according to the format of the
	// context.
	Marshal(message interface{}) ([]byte, error)

	// Unmarshal populates the message with the data according to the format
	// of the context.
	Unmarshal(data []byte, message interface{}) error
}

// Context is the context passed to the serialization and deserialization
// requests.
type Context struct {
	ContextEngine

	factories map[interface{}]Factory
}

// NewContext returns a new empty context.
func NewContext(engine ContextEngine) Context {
	return Context{
		ContextEngine: engine,
		factories:     make(map[interface{}]Factory),
	}
}

// GetFactory returns the factory associated to the key, or nil.
func (ctx Context) GetFactory(key interface{}) Factory {
	return ctx.factories[key]
}

// WithFactory returns a child context holding the additional factory. The
// factory is then available with the key when deserializing.
func WithFactory(ctx Context, key interface{}, f Factory) Context {
	factories := map[interface{}]Factory{}

	for key, value := range ctx.factories {
		factories[key] = value
	}

	factories[key] = f

	// Prevent the parent context from being contaminated with the new
	// factory.
	ctx.factories = factories

	return ctx
}

// Package kv defines the abstraction for the key/value database that backs
// the node registry.
//
// The default implementation uses bbolt as the engine
// (https://github.com/etcd-io/bbolt). An in-memory implementation is provided
// for tests.
package kv

// Bucket is a general interface to operate on a database bucket.
type Bucket interface {
	// Get reads the key from the bucket and returns the value, or nil if the
	// key does not exist.
	Get(key []byte) []byte

	// Set assigns the value to the provided key.
	Set(key, value []byte) error

	// ForEach iterates over all the items in the bucket in lexicographic key
	// order. The iteration stops when the callback returns an error.
	ForEach(fn func(k, v []byte) error) error
}

// Tx allows one to perform atomic operations on a set of buckets.
type Tx interface {
	// GetBucket returns the bucket of the given name if it exists, otherwise
	// it returns nil.
	GetBucket(name []byte) Bucket

	// GetBucketOrCreate returns the bucket of the given name, creating it if
	// necessary. It returns an error inside a read-only transaction.
	GetBucketOrCreate(name []byte) (Bucket, error)
}

// DB is a general interface to operate over a key/value database.
type DB interface {
	// View executes the provided read-only transaction in the context of the
	// database.
	View(fn func(Tx) error) error

	// Update executes the provided writable transaction in the context of the
	// database. The changes are either all committed, or all rolled back when
	// the callback returns an error.
	Update(fn func(Tx) error) error

	// Close closes the database and frees the resources.
	Close() error
}

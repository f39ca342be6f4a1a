package kv

import (
	"sort"
	"sync"
)

// inMemoryDB is a map-backed implementation of the database, used by tests
// and by callers that do not need durability.
//
// - implements kv.DB
type inMemoryDB struct {
	sync.Mutex

	buckets map[string]map[string][]byte
}

// NewInMemory returns a new empty in-memory database.
func NewInMemory() DB {
	return &inMemoryDB{
		buckets: make(map[string]map[string][]byte),
	}
}

// View implements kv.DB. It executes the read-only transaction. The database
// is locked for the duration of the call so the callback observes a
// consistent state.
func (db *inMemoryDB) View(fn func(Tx) error) error {
	db.Lock()
	defer db.Unlock()

	return fn(memTx{db: db, writable: false})
}

// Update implements kv.DB. It executes the writable transaction. An error
// from the callback restores the state snapshotted when the transaction
// began, matching the rollback semantics of the bbolt implementation.
func (db *inMemoryDB) Update(fn func(Tx) error) error {
	db.Lock()
	defer db.Unlock()

	snapshot := db.snapshot()

	err := fn(memTx{db: db, writable: true})
	if err != nil {
		db.buckets = snapshot

		return err
	}

	return nil
}

func (db *inMemoryDB) snapshot() map[string]map[string][]byte {
	buckets := make(map[string]map[string][]byte, len(db.buckets))

	for name, data := range db.buckets {
		cp := make(map[string][]byte, len(data))
		for key, value := range data {
			cp[key] = value
		}

		buckets[name] = cp
	}

	return buckets
}

// Close implements kv.DB. It is a no-op.
func (db *inMemoryDB) Close() error {
	return nil
}

// memTx is an in-memory transaction.
//
// - implements kv.Tx
type memTx struct {
	db       *inMemoryDB
	writable bool
}

// GetBucket implements kv.Tx. It returns the bucket, or nil if it does not
// exist.
func (tx memTx) GetBucket(name []byte) Bucket {
	bucket, found := tx.db.buckets[string(name)]
	if !found {
		return nil
	}

	return memBucket{data: bucket}
}

// GetBucketOrCreate implements kv.Tx. It returns the bucket, creating it if
// necessary.
func (tx memTx) GetBucketOrCreate(name []byte) (Bucket, error) {
	bucket, found := tx.db.buckets[string(name)]
	if !found {
		bucket = make(map[string][]byte)
		tx.db.buckets[string(name)] = bucket
	}

	return memBucket{data: bucket}, nil
}

// memBucket is an in-memory bucket.
//
// - implements kv.Bucket
type memBucket struct {
	data map[string][]byte
}

// Get implements kv.Bucket. It returns the value, or nil if the key is not
// set.
func (b memBucket) Get(key []byte) []byte {
	return b.data[string(key)]
}

// Set implements kv.Bucket. It assigns the value to the key.
func (b memBucket) Set(key, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)

	b.data[string(key)] = cp

	return nil
}

// ForEach implements kv.Bucket. It iterates over the keys in lexicographic
// order to match the bbolt implementation.
func (b memBucket) ForEach(fn func(k, v []byte) error) error {
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		err := fn([]byte(k), b.data[k])
		if err != nil {
			return err
		}
	}

	return nil
}

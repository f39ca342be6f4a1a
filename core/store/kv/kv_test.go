package kv

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestBoltDB_New(t *testing.T) {
	dir, clean := makeDir(t)
	defer clean()

	db, err := New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = New(filepath.Join(dir, "missing", "test.db"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to open db")
}

func TestBoltDB_ReadWrite(t *testing.T) {
	dir, clean := makeDir(t)
	defer clean()

	db, err := New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)

	defer db.Close()

	testDBReadWrite(t, db)
}

func TestBoltDB_Rollback(t *testing.T) {
	dir, clean := makeDir(t)
	defer clean()

	db, err := New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)

	defer db.Close()

	testDBRollback(t, db)
}

func TestInMemoryDB_ReadWrite(t *testing.T) {
	db := NewInMemory()

	defer db.Close()

	testDBReadWrite(t, db)
}

func TestInMemoryDB_Rollback(t *testing.T) {
	db := NewInMemory()

	defer db.Close()

	testDBRollback(t, db)
}

// -----------------------------------------------------------------------------
// Utility functions

func makeDir(t *testing.T) (string, func()) {
	dir, err := ioutil.TempDir(os.TempDir(), "masq-kv")
	require.NoError(t, err)

	return dir, func() { os.RemoveAll(dir) }
}

func testDBReadWrite(t *testing.T, db DB) {
	err := db.View(func(tx Tx) error {
		require.Nil(t, tx.GetBucket([]byte("test")))

		return nil
	})
	require.NoError(t, err)

	err = db.Update(func(tx Tx) error {
		bucket, err := tx.GetBucketOrCreate([]byte("test"))
		require.NoError(t, err)

		require.NoError(t, bucket.Set([]byte("b"), []byte("2")))
		require.NoError(t, bucket.Set([]byte("a"), []byte("1")))

		return nil
	})
	require.NoError(t, err)

	err = db.View(func(tx Tx) error {
		bucket := tx.GetBucket([]byte("test"))
		require.NotNil(t, bucket)

		require.Equal(t, []byte("1"), bucket.Get([]byte("a")))
		require.Nil(t, bucket.Get([]byte("c")))

		var keys []string

		err := bucket.ForEach(func(k, v []byte) error {
			keys = append(keys, string(k))

			return nil
		})
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b"}, keys)

		return nil
	})
	require.NoError(t, err)
}

func testDBRollback(t *testing.T, db DB) {
	err := db.Update(func(tx Tx) error {
		bucket, err := tx.GetBucketOrCreate([]byte("existing"))
		require.NoError(t, err)

		return bucket.Set([]byte("ping"), []byte("pong"))
	})
	require.NoError(t, err)

	err = db.Update(func(tx Tx) error {
		bucket, err := tx.GetBucketOrCreate([]byte("test"))
		require.NoError(t, err)

		require.NoError(t, bucket.Set([]byte("ping"), []byte("pong")))

		existing := tx.GetBucket([]byte("existing"))
		require.NotNil(t, existing)

		require.NoError(t, existing.Set([]byte("ping"), []byte("overwritten")))

		return xerrors.New("oops")
	})
	require.EqualError(t, err, "oops")

	// The failed transaction left no trace.
	err = db.View(func(tx Tx) error {
		require.Nil(t, tx.GetBucket([]byte("test")))

		existing := tx.GetBucket([]byte("existing"))
		require.NotNil(t, existing)
		require.Equal(t, []byte("pong"), existing.Get([]byte("ping")))

		return nil
	})
	require.NoError(t, err)
}

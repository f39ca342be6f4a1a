package ocs

import (
	"io/ioutil"
	"os"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/masq/core/store/kv"
	"go.dedis.ch/masq/ident"
	"go.dedis.ch/masq/vault/types"
	"golang.org/x/xerrors"
)

var bucketVault = []byte("vault")

// pointLen is the marshaled size of a point on the Ed25519 suite.
const pointLen = 32

// persistTx writes the record through the caller's open transaction. It is a
// no-op for an in-memory vault.
func (v *Vault) persistTx(tx kv.Tx, handle types.Handle, rec *record) error {
	if v.db == nil {
		return nil
	}

	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	bucket, err := tx.GetBucketOrCreate(bucketVault)
	if err != nil {
		return xerrors.Errorf("failed to open vault bucket: %v", err)
	}

	return bucket.Set(handle.Bytes(), data)
}

// persist writes the record through to the database in a transaction of its
// own. It must never run while another write transaction on the same
// database is open. It is a no-op for an in-memory vault.
func (v *Vault) persist(handle types.Handle, rec *record) error {
	if v.db == nil {
		return nil
	}

	return v.db.Update(func(tx kv.Tx) error {
		return v.persistTx(tx, handle, rec)
	})
}

func encodeRecord(rec *record) ([]byte, error) {
	kBuf, err := rec.k.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal K: %v", err)
	}

	cBuf, err := rec.c.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal C: %v", err)
	}

	data := append(kBuf, cBuf...)
	for _, member := range rec.order {
		data = append(data, member.Bytes()...)
	}

	return data, nil
}

// restore loads every persisted record into memory.
func (v *Vault) restore() error {
	if v.db == nil {
		return nil
	}

	return v.db.View(func(tx kv.Tx) error {
		bucket := tx.GetBucket(bucketVault)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(key, data []byte) error {
			handle, err := types.HandleFromBytes(key)
			if err != nil {
				return xerrors.Errorf("malformed handle: %v", err)
			}

			rec, err := decodeRecord(data)
			if err != nil {
				return xerrors.Errorf("malformed record '%s': %v", handle, err)
			}

			v.records[handle] = rec

			return nil
		})
	})
}

func decodeRecord(data []byte) (*record, error) {
	if len(data) < 2*pointLen || (len(data)-2*pointLen)%ident.Length != 0 {
		return nil, xerrors.Errorf("invalid length %d", len(data))
	}

	k := suite.Point()

	err := k.UnmarshalBinary(data[:pointLen])
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal K: %v", err)
	}

	c := suite.Point()

	err = c.UnmarshalBinary(data[pointLen : 2*pointLen])
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal C: %v", err)
	}

	rec := &record{
		k:     k,
		c:     c,
		perms: make(map[ident.Identity]struct{}),
	}

	for i := 2 * pointLen; i+ident.Length <= len(data); i += ident.Length {
		member, err := ident.FromBytes(data[i : i+ident.Length])
		if err != nil {
			return nil, err
		}

		rec.perms[member] = struct{}{}
		rec.order = append(rec.order, member)
	}

	return rec, nil
}

// loadOrCreateSecret loads the vault's private scalar from the file, or
// generates a new one and stores it there.
func loadOrCreateSecret(path string) (kyber.Scalar, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		secret := suite.Scalar().Pick(suite.RandomStream())

		data, err := secret.MarshalBinary()
		if err != nil {
			return nil, xerrors.Errorf("failed to marshal scalar: %v", err)
		}

		file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0400)
		if err != nil {
			return nil, xerrors.Errorf("while creating file: %v", err)
		}

		defer file.Close()

		_, err = file.Write(data)
		if err != nil {
			return nil, xerrors.Errorf("while writing: %v", err)
		}

		return secret, nil
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to load file: %v", err)
	}

	secret := suite.Scalar()

	err = secret.UnmarshalBinary(data)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal scalar: %v", err)
	}

	return secret, nil
}

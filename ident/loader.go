package ident

import (
	"io/ioutil"
	"os"

	"golang.org/x/xerrors"
)

// LoadOrCreate loads the keypair stored at the given path, or generates a new
// one and stores it there. The file is created with minimal read permission
// for the current user.
func LoadOrCreate(path string) (Keypair, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		kp := NewKeypair()

		data, err := kp.MarshalBinary()
		if err != nil {
			return Keypair{}, xerrors.Errorf("failed to marshal keypair: %v", err)
		}

		file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0400)
		if err != nil {
			return Keypair{}, xerrors.Errorf("while creating file: %v", err)
		}

		defer file.Close()

		_, err = file.Write(data)
		if err != nil {
			return Keypair{}, xerrors.Errorf("while writing: %v", err)
		}

		return kp, nil
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Keypair{}, xerrors.Errorf("failed to load file: %v", err)
	}

	kp, err := KeypairFromScalar(data)
	if err != nil {
		return Keypair{}, xerrors.Errorf("failed to restore keypair: %v", err)
	}

	return kp, nil
}

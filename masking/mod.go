// Package masking implements the mask codec: a message is obscured by XORing
// it against a single-use random key, the key bytes reused cyclically.
//
// The masked payload carries no confidentiality on its own. The entire
// security burden rests on the mask key staying secret, which is why the key,
// not the message, is the value placed under the vault's encryption and
// access control.
package masking

import (
	"crypto/rand"
	"io"

	"golang.org/x/xerrors"
)

// KeyLength is the size in bytes of a mask key. It coincides with the
// identity width so that a key is indistinguishable from an ordinary address
// at rest.
const KeyLength = 20

// ErrEntropySource is returned when the cryptographically secure random
// source is unavailable. Key generation never falls back to a weaker source.
var ErrEntropySource = xerrors.New("entropy source unavailable")

// Key is a single-use secret used to mask one message.
type Key []byte

// GenerateKey draws a new random key from the operating system's
// cryptographically secure source.
func GenerateKey() (Key, error) {
	return generateKey(rand.Reader)
}

func generateKey(source io.Reader) (Key, error) {
	key := make(Key, KeyLength)

	_, err := io.ReadFull(source, key)
	if err != nil {
		return nil, xerrors.Errorf("failed to read %d bytes: %w",
			KeyLength, ErrEntropySource)
	}

	return key, nil
}

// Mask obscures the message with the key. The output has the same length as
// the message and the operation is its own inverse.
func Mask(message []byte, key Key) ([]byte, error) {
	if len(key) == 0 {
		return nil, xerrors.New("key is empty")
	}

	masked := make([]byte, len(message))
	for i := range message {
		masked[i] = message[i] ^ key[i%len(key)]
	}

	return masked, nil
}

// Unmask recovers the message from the masked payload and the key that was
// used to mask it.
func Unmask(payload []byte, key Key) ([]byte, error) {
	return Mask(payload, key)
}

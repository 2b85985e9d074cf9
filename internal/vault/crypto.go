package vault

import (
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Key derivation and sealing parameters. Changing these requires a format
// version bump; the stored values always win over the constants.
const (
	kdfTime    = 3
	kdfMemory  = 64 * 1024 // KiB
	kdfThreads = 4

	keySize  = chacha20poly1305.KeySize
	saltSize = 32

	// keyCheckDomain is sealed at creation time and opened on unlock to
	// verify the passphrase before touching any entry.
	keyCheckDomain = "autotyped-keycheck-v1"
)

var (
	ErrWrongPassphrase = errors.New("vault: wrong passphrase")
	ErrLocked          = errors.New("vault: store is locked")
)

// deriveKey stretches a passphrase with argon2id.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, kdfTime, kdfMemory, kdfThreads, keySize)
}

func newSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// seal encrypts plaintext under key with a fresh random nonce. The label is
// authenticated additional data binding the ciphertext to its slot, so a
// sealed value cannot be swapped into another entry or field undetected.
// Layout: nonce || ciphertext.
func seal(key []byte, plaintext, label string) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, []byte(plaintext), []byte(label))
	return out, nil
}

// unseal reverses seal. A wrong key or label surfaces as ErrWrongPassphrase
// so callers never have to distinguish tampering from a bad passphrase.
func unseal(key []byte, blob []byte, label string) (string, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("init aead: %w", err)
	}
	if len(blob) < aead.NonceSize() {
		return "", fmt.Errorf("sealed value too short (%d bytes)", len(blob))
	}
	nonce, ct := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, []byte(label))
	if err != nil {
		return "", ErrWrongPassphrase
	}
	return string(pt), nil
}

// wipe zeroes key material before it is released to the garbage collector.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// Package federation implements the federation policies (C10): database-
// and network-role exclusivity, forking a parent, encrypted server
// passwords, and the anonymous-read gate. Grounded on the role tables in
// node_role_ops.rs (original_source) and spec.md §4.10.
package federation

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// Argon2id tuning follows the OWASP baseline recommendation (time=1,
// memory=64MiB, parallelism=4) for an interactive, latency-sensitive path —
// this key is derived once per registration/owner-password-change, not per
// request.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// deriveKey stretches the owner password into an AES-256 key. salt must be
// persisted alongside the ciphertext (it is not secret) since a fresh
// random salt is used every time the owner password changes.
func deriveKey(ownerPassword string, salt []byte) []byte {
	return argon2.IDKey([]byte(ownerPassword), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// EncryptedPassword is the on-disk form of a server_node's password: the
// Argon2 salt and the AES-GCM nonce travel with the ciphertext so
// decryption needs nothing but the owner password.
type EncryptedPassword struct {
	Salt       []byte
	Nonce      []byte
	Ciphertext []byte
}

// Marshal packs salt | nonce | ciphertext into the single blob stored in
// server_nodes.encrypted_password.
func (e EncryptedPassword) Marshal() []byte {
	out := make([]byte, 0, len(e.Salt)+len(e.Nonce)+len(e.Ciphertext))
	out = append(out, e.Salt...)
	out = append(out, e.Nonce...)
	out = append(out, e.Ciphertext...)
	return out
}

func unmarshalEncryptedPassword(blob []byte, nonceLen int) (EncryptedPassword, error) {
	if len(blob) < saltLen+nonceLen {
		return EncryptedPassword{}, errors.New("federation: encrypted password blob too short")
	}
	return EncryptedPassword{
		Salt:       blob[:saltLen],
		Nonce:      blob[saltLen : saltLen+nonceLen],
		Ciphertext: blob[saltLen+nonceLen:],
	}, nil
}

// EncryptPassword encrypts plainPassword under a key derived from
// ownerPassword, returning the packed blob ready for storage.
func EncryptPassword(ownerPassword, plainPassword string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("federation: read salt: %w", err)
	}
	gcm, err := newGCM(deriveKey(ownerPassword, salt))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("federation: read nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, []byte(plainPassword), nil)
	return EncryptedPassword{Salt: salt, Nonce: nonce, Ciphertext: ciphertext}.Marshal(), nil
}

// DecryptPassword reverses EncryptPassword given the same owner password.
func DecryptPassword(ownerPassword string, blob []byte) (string, error) {
	gcmProbe, err := newGCM(make([]byte, argonKeyLen))
	if err != nil {
		return "", err
	}
	e, err := unmarshalEncryptedPassword(blob, gcmProbe.NonceSize())
	if err != nil {
		return "", err
	}
	gcm, err := newGCM(deriveKey(ownerPassword, e.Salt))
	if err != nil {
		return "", err
	}
	plain, err := gcm.Open(nil, e.Nonce, e.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("federation: decrypt password: %w", err)
	}
	return string(plain), nil
}

// ReencryptPassword decrypts blob under oldOwnerPassword and re-encrypts it
// under newOwnerPassword, for the cascade spec.md §4.10 requires whenever
// the owner password changes.
func ReencryptPassword(oldOwnerPassword, newOwnerPassword string, blob []byte) ([]byte, error) {
	plain, err := DecryptPassword(oldOwnerPassword, blob)
	if err != nil {
		return nil, err
	}
	return EncryptPassword(newOwnerPassword, plain)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("federation: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("federation: new gcm: %w", err)
	}
	return gcm, nil
}

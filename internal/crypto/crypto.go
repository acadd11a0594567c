// Package crypto implements the client-side cryptography for budget sync:
// password-based key derivation, envelope encryption, deterministic budget
// identity derivation and content hashing. The remote store only ever sees
// the output of Encrypt.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"runtime"

	"golang.org/x/crypto/pbkdf2"

	"github.com/budgetvault/BudgetVault/internal/models"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// SaltSize is the key-derivation salt length in bytes.
	SaltSize = 16
	// Iterations is the PBKDF2 iteration count.
	Iterations = 100_000

	ivSize = 12
)

// ErrCrypto marks key-derivation or encryption infrastructure failures.
// These are fatal to the session.
var ErrCrypto = errors.New("crypto failure")

// ErrDecryption marks an authentication failure on a specific payload.
// Upstream this is the "wrong password or foreign data" signal; it is
// recoverable and must stay distinguishable from ErrCrypto.
var ErrDecryption = errors.New("decryption failed")

// DeriveKey derives a fresh AES-256 key from the secret with a new random
// salt. Used for first-time setup; the salt must be persisted so the key
// can be re-derived on the next login.
func DeriveKey(secret string) (key, salt []byte, err error) {
	salt = make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("%w: generate salt: %v", ErrCrypto, err)
	}
	key, err = DeriveKeyWithSalt(secret, salt)
	if err != nil {
		return nil, nil, err
	}
	return key, salt, nil
}

// DeriveKeyWithSalt reproduces the key for a returning login. Identical
// (secret, salt) pairs always yield byte-identical key material.
func DeriveKeyWithSalt(secret string, salt []byte) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: empty secret", ErrCrypto)
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: empty salt", ErrCrypto)
	}
	return pbkdf2.Key([]byte(secret), salt, Iterations, KeySize, sha256.New), nil
}

// Encrypt serializes v to canonical JSON and seals it with AES-256-GCM
// under a fresh 96-bit IV.
func Encrypt(key []byte, v any) (*models.EncryptedEnvelope, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	plain, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal payload: %v", ErrCrypto, err)
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("%w: generate iv: %v", ErrCrypto, err)
	}
	return &models.EncryptedEnvelope{
		Ciphertext: aead.Seal(nil, iv, plain, nil),
		IV:         iv,
	}, nil
}

// Decrypt opens an envelope and unmarshals the plaintext into out. A GCM
// authentication failure is reported as ErrDecryption so callers can treat
// the data as foreign rather than the transport as broken.
func Decrypt(key []byte, env *models.EncryptedEnvelope, out any) error {
	aead, err := newAEAD(key)
	if err != nil {
		return err
	}
	if env == nil || len(env.IV) != ivSize {
		return fmt.Errorf("%w: malformed envelope", ErrDecryption)
	}
	plain, err := aead.Open(nil, env.IV, env.Ciphertext, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if err := json.Unmarshal(plain, out); err != nil {
		return fmt.Errorf("%w: unmarshal plaintext: %v", ErrDecryption, err)
	}
	return nil
}

// DeriveIdentity maps the secret to the budget's routing key. Deterministic
// and non-reversible; two devices sharing a household password converge on
// the same remote document without any registration handshake. This is a
// routing key, not a security boundary, so a fast non-cryptographic hash
// is sufficient.
func DeriveIdentity(secret string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash returns the sha256 fingerprint of b as a hex string, used for
// integrity tagging of snapshots.
func ContentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// DeviceFingerprint identifies the current device for author attribution.
func DeviceFingerprint() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(host + "|" + runtime.GOOS + "|" + runtime.GOARCH))
	return hex.EncodeToString(h.Sum(nil))
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: no encryption key", ErrCrypto)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: create cipher: %v", ErrCrypto, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: create AEAD: %v", ErrCrypto, err)
	}
	return aead, nil
}

package crypt

import (
	"crypto/sha256"
	"io"

	"github.com/ortelius/storefront-guard/internal/secerr"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the shortest master secret accepted at startup
const MinSecretLength = 16

// DefaultKeyContext separates keys derived from the same secret by different deployments
const DefaultKeyContext = "storefront-guard/master-key/v1"

// argon2id parameters for master key derivation
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	keySize      = 32
)

// Key is a derived 256-bit key. Its formatting methods never reveal the bytes.
type Key struct {
	b []byte
}

func (k Key) String() string   { return "crypt.Key(redacted)" }
func (k Key) GoString() string { return k.String() }

// MarshalText keeps the key out of JSON, YAML and log encoders
func (k Key) MarshalText() ([]byte, error) { return []byte("redacted"), nil }

// Len returns the key size in bytes
func (k Key) Len() int { return len(k.b) }

// DeriveKey stretches secret into a master key with Argon2id. The salt is
// fixed per keyContext so the same configuration always yields the same key.
func DeriveKey(secret, keyContext string) (Key, error) {
	if len(secret) < MinSecretLength {
		return Key{}, secerr.Validation("master secret must be at least %d bytes", MinSecretLength)
	}
	if keyContext == "" {
		keyContext = DefaultKeyContext
	}
	salt := sha256.Sum256([]byte("salt|" + keyContext))
	return Key{b: argon2.IDKey([]byte(secret), salt[:], argonTime, argonMemory, argonThreads, keySize)}, nil
}

// subkey expands the master key for a single purpose
func (k Key) subkey(purpose string) ([]byte, error) {
	out := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, k.b, nil, []byte(purpose)), out); err != nil {
		return nil, &secerr.CryptoError{Op: "derive"}
	}
	return out, nil
}

package crypt

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ortelius/storefront-guard/internal/secerr"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// Credential hashing parameters
const (
	MinHashIterations = 12000
	maxHashIterations = 10_000_000
	hashScheme        = "pbkdf2-sha512"
	saltSize          = 32
	derivedSize       = 64
	defaultTokenBytes = 32
)

func effectiveIterations(configured int) int {
	if configured < MinHashIterations {
		return MinHashIterations
	}
	return configured
}

// HashCredential hashes a password or other secret with a fresh random salt.
// The result is "pbkdf2-sha512$<iterations>$<hex salt>$<hex key>".
func (s *Service) HashCredential(secret string) (string, error) {
	if secret == "" {
		return "", secerr.Validation("credential must not be empty")
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		s.metrics.CryptoFailure("hash")
		return "", &secerr.CryptoError{Op: "hash"}
	}

	dk := pbkdf2.Key([]byte(secret), salt, s.iterations, derivedSize, sha512.New)
	return fmt.Sprintf("%s$%d$%s$%s", hashScheme, s.iterations, hex.EncodeToString(salt), hex.EncodeToString(dk)), nil
}

// VerifyCredential recomputes the hash with the stored salt and iteration count
// and compares in constant time. Malformed hashes never verify.
func (s *Service) VerifyCredential(secret, encoded string) bool {
	if isLegacyBcrypt(encoded) {
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(secret)) == nil
	}
	iterations, salt, want, ok := parseCredentialHash(encoded)
	if !ok {
		return false
	}
	got := pbkdf2.Key([]byte(secret), salt, iterations, len(want), sha512.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// NeedsRehash reports whether encoded was produced with fewer iterations than
// the service now uses. Legacy bcrypt hashes always need a rehash.
func (s *Service) NeedsRehash(encoded string) bool {
	iterations, _, _, ok := parseCredentialHash(encoded)
	return !ok || iterations < s.iterations
}

// isLegacyBcrypt matches hashes written before the move to PBKDF2
func isLegacyBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") || strings.HasPrefix(encoded, "$2b$") || strings.HasPrefix(encoded, "$2y$")
}

func parseCredentialHash(encoded string) (int, []byte, []byte, bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != hashScheme {
		return 0, nil, nil, false
	}

	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations < MinHashIterations || iterations > maxHashIterations {
		return 0, nil, nil, false
	}

	salt, err := hex.DecodeString(parts[2])
	if err != nil || len(salt) == 0 {
		return 0, nil, nil, false
	}

	key, err := hex.DecodeString(parts[3])
	if err != nil || len(key) != derivedSize {
		return 0, nil, nil, false
	}
	return iterations, salt, key, true
}

// GenerateToken returns n random bytes hex encoded. n <= 0 uses 32 bytes.
func GenerateToken(n int) (string, error) {
	b, err := randomBytes(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateURLToken returns n random bytes as unpadded base64url, for reset and invitation links
func GenerateURLToken(n int) (string, error) {
	b, err := randomBytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// TokensEqual compares two tokens in constant time
func TokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func randomBytes(n int) ([]byte, error) {
	if n <= 0 {
		n = defaultTokenBytes
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, &secerr.CryptoError{Op: "token"}
	}
	return b, nil
}

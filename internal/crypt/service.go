// Package crypt provides field encryption, credential hashing, secure tokens
// and keyed fingerprints for the storefront.
//
// A Service holds one immutable key set derived at startup and is safe for
// concurrent use. Failures are always reported as a generic secerr.CryptoError.
package crypt

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/ortelius/storefront-guard/internal/metrics"
	"github.com/ortelius/storefront-guard/internal/secerr"
	"github.com/ortelius/storefront-guard/model"
	"go.uber.org/zap"
)

// fieldAAD binds ciphertexts to this envelope version
var fieldAAD = []byte("storefront-guard/field/v1")

// TokenizeLength is the number of hex characters kept by Tokenize
const TokenizeLength = 16

// Config holds the crypto settings. Secret comes from the environment only.
type Config struct {
	Secret         string `yaml:"-"`
	KeyContext     string `yaml:"key_context"`
	HashIterations int    `yaml:"hash_iterations"`
}

// EventSink receives DECRYPTION_FAILURE events
type EventSink interface {
	Record(ctx context.Context, event model.SecurityEvent)
}

// Service performs the crypto operations under the derived master key
type Service struct {
	aead       cipher.AEAD
	fpKey      []byte
	iterations int
	sink       EventSink
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewService derives the master key from cfg.Secret and prepares the cipher.
// It fails if the secret is missing or too short.
func NewService(cfg Config, logger *zap.Logger, m *metrics.Metrics) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	master, err := DeriveKey(cfg.Secret, cfg.KeyContext)
	if err != nil {
		return nil, err
	}

	encKey, err := master.subkey("field-encryption")
	if err != nil {
		return nil, err
	}
	fpKey, err := master.subkey("fingerprint")
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, &secerr.CryptoError{Op: "init"}
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &secerr.CryptoError{Op: "init"}
	}

	return &Service{
		aead:       aead,
		fpKey:      fpKey,
		iterations: effectiveIterations(cfg.HashIterations),
		logger:     logger,
		metrics:    m,
	}, nil
}

// WithEventSink sets the sink notified on decryption failures. Call before use.
func (s *Service) WithEventSink(sink EventSink) *Service {
	s.sink = sink
	return s
}

// Iterations returns the PBKDF2 iteration count used for new hashes
func (s *Service) Iterations() int {
	return s.iterations
}

// Encrypt seals plaintext with a fresh random nonce
func (s *Service) Encrypt(plaintext []byte) (EncryptedValue, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedValue{}, s.fail(context.Background(), "encrypt", "nonce generation failed")
	}

	sealed := s.aead.Seal(nil, nonce, plaintext, fieldAAD)
	split := len(sealed) - tagSize
	return EncryptedValue{
		IV:         nonce,
		Tag:        sealed[split:],
		Ciphertext: sealed[:split],
	}, nil
}

// Decrypt authenticates and opens v. Nothing is returned unless the tag verifies.
func (s *Service) Decrypt(v EncryptedValue) ([]byte, error) {
	return s.decrypt(context.Background(), v)
}

func (s *Service) decrypt(ctx context.Context, v EncryptedValue) ([]byte, error) {
	if len(v.IV) != nonceSize || len(v.Tag) != tagSize {
		return nil, s.fail(ctx, "decrypt", "malformed envelope")
	}

	sealed := make([]byte, 0, len(v.Ciphertext)+tagSize)
	sealed = append(sealed, v.Ciphertext...)
	sealed = append(sealed, v.Tag...)

	plaintext, err := s.aead.Open(nil, v.IV, sealed, fieldAAD)
	if err != nil {
		return nil, s.fail(ctx, "decrypt", "authentication failed")
	}
	return plaintext, nil
}

// EncryptString encrypts a string field and returns the serialized envelope
func (s *Service) EncryptString(plaintext string) (string, error) {
	v, err := s.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// DecryptString parses and decrypts an envelope produced by EncryptString
func (s *Service) DecryptString(ctx context.Context, envelope string) (string, error) {
	v, err := ParseEncryptedValue(envelope)
	if err != nil {
		return "", s.fail(ctx, "decrypt", "unparseable envelope")
	}
	plaintext, err := s.decrypt(ctx, v)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Tokenize returns a short stable pseudonym for value
func (s *Service) Tokenize(value string) string {
	return s.Fingerprint(value)[:TokenizeLength]
}

// Fingerprint returns the full keyed HMAC-SHA256 of value in hex
func (s *Service) Fingerprint(value string) string {
	mac := hmac.New(sha256.New, s.fpKey)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// fail logs and counts a crypto failure and returns the generic error.
// reason is internal only and never contains key or plaintext material.
func (s *Service) fail(ctx context.Context, op, reason string) error {
	s.metrics.CryptoFailure(op)
	s.logger.Warn("crypto operation failed", zap.String("op", op), zap.String("reason", reason))
	if op == "decrypt" && s.sink != nil {
		s.sink.Record(ctx, model.NewSecurityEvent(model.EventDecryptionFailure, "crypt", "", op, ""))
	}
	return &secerr.CryptoError{Op: op}
}

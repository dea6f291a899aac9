package crypt

import (
	"encoding/hex"
	"strings"

	"github.com/ortelius/storefront-guard/internal/secerr"
)

const (
	nonceSize = 12
	tagSize   = 16
)

// EncryptedValue is the AES-GCM envelope for a single field
type EncryptedValue struct {
	IV         []byte
	Tag        []byte
	Ciphertext []byte
}

// String serializes the envelope as hex "iv:tag:ciphertext"
func (v EncryptedValue) String() string {
	return hex.EncodeToString(v.IV) + ":" + hex.EncodeToString(v.Tag) + ":" + hex.EncodeToString(v.Ciphertext)
}

// ParseEncryptedValue parses the form produced by String
func ParseEncryptedValue(s string) (EncryptedValue, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return EncryptedValue{}, &secerr.CryptoError{Op: "parse"}
	}

	var decoded [3][]byte
	for i, p := range parts {
		b, err := hex.DecodeString(p)
		if err != nil {
			return EncryptedValue{}, &secerr.CryptoError{Op: "parse"}
		}
		decoded[i] = b
	}

	if len(decoded[0]) != nonceSize || len(decoded[1]) != tagSize {
		return EncryptedValue{}, &secerr.CryptoError{Op: "parse"}
	}
	return EncryptedValue{IV: decoded[0], Tag: decoded[1], Ciphertext: decoded[2]}, nil
}

// IsEnvelope reports whether s looks like a serialized EncryptedValue
func IsEnvelope(s string) bool {
	_, err := ParseEncryptedValue(s)
	return err == nil
}

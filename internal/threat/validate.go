package threat

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/ortelius/storefront-guard/internal/secerr"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// AllowedUploadTypes maps permitted file extensions to their content type
var AllowedUploadTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

// ValidateEmail checks address syntax
func ValidateEmail(email string) error {
	if len(email) > 254 || !emailPattern.MatchString(email) {
		return secerr.Validation("malformed email address")
	}
	return nil
}

// ValidatePhone accepts 7 to 15 digits with optional +, spaces, dashes, dots and parentheses
func ValidatePhone(phone string) error {
	digits := 0
	for i, r := range phone {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return secerr.Validation("phone number contains invalid character")
		}
	}
	if digits < 7 || digits > 15 {
		return secerr.Validation("phone number must have 7 to 15 digits")
	}
	return nil
}

// ValidatePasswordStrength requires at least 8 characters mixing upper, lower, digit and symbol
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return secerr.Validation("password must be at least 8 characters long")
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}

	switch {
	case !upper:
		return secerr.Validation("password must contain an uppercase letter")
	case !lower:
		return secerr.Validation("password must contain a lowercase letter")
	case !digit:
		return secerr.Validation("password must contain a number")
	case !special:
		return secerr.Validation("password must contain a special character")
	}
	return nil
}

// ValidateUploadType checks the extension against the allowlist and, when given,
// that the declared content type agrees with it
func ValidateUploadType(filename, contentType string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	want, ok := AllowedUploadTypes[ext]
	if !ok {
		return secerr.Validation("file type %q not allowed", ext)
	}
	if contentType == "" {
		return nil
	}
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if ct != want {
		return secerr.Validation("content type %q does not match extension %q", ct, ext)
	}
	return nil
}

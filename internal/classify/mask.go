package classify

import (
	"fmt"
	"strings"
	"unicode"
)

// MaskKind selects the masking rule for a value
type MaskKind int

// Mask rules
const (
	MaskGeneric MaskKind = iota
	MaskEmail
	MaskPhone
	MaskCard
)

const maskFill = "***"

// KindForField infers the mask rule from a field name
func KindForField(field string) MaskKind {
	f := normalizeField(field)
	switch {
	case strings.Contains(f, "email"):
		return MaskEmail
	case strings.Contains(f, "phone"), strings.Contains(f, "mobile"):
		return MaskPhone
	case strings.Contains(f, "card"):
		return MaskCard
	default:
		return MaskGeneric
	}
}

// Mask returns a copy of record with the named fields redacted for display.
// Masked output is never a substitute for Protect.
func Mask(record map[string]interface{}, fields []string) map[string]interface{} {
	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		out[k] = v
	}
	for _, f := range fields {
		v, ok := out[f]
		if !ok || v == nil {
			continue
		}
		s, isString := v.(string)
		if !isString {
			s = fmt.Sprint(v)
		}
		out[f] = MaskValue(KindForField(f), s)
	}
	return out
}

// MaskValue redacts v with the rule for kind. It is deterministic and
// idempotent: masking an already masked value of the same kind is a no-op.
func MaskValue(kind MaskKind, v string) string {
	switch kind {
	case MaskEmail:
		return maskEmail(v)
	case MaskPhone:
		return maskPhone(v)
	case MaskCard:
		return maskCard(v)
	default:
		return maskGeneric(v)
	}
}

func maskEmail(v string) string {
	at := strings.LastIndex(v, "@")
	if at < 0 {
		return maskGeneric(v)
	}
	local, domain := []rune(v[:at]), v[at+1:]

	// only the leading run before any '*' is shown
	lead := 0
	for lead < len(local) && local[lead] != '*' {
		lead++
	}
	if lead == 0 {
		return maskFill + "@" + domain
	}
	keep := 2
	if lead < 2 || len(local) < 3 {
		keep = 1
	}
	return string(local[:keep]) + maskFill + "@" + domain
}

func maskPhone(v string) string {
	var kept []rune
	for _, r := range v {
		if unicode.IsDigit(r) || r == '*' {
			kept = append(kept, r)
		}
	}
	n := len(kept)
	if n <= 6 {
		return strings.Repeat("*", n)
	}
	return string(kept[:3]) + strings.Repeat("*", n-6) + string(kept[n-3:])
}

func maskCard(v string) string {
	var digits []rune
	for _, r := range v {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	if len(digits) < 4 {
		return "****"
	}
	return "**** **** **** " + string(digits[len(digits)-4:])
}

func maskGeneric(v string) string {
	r := []rune(v)
	if strings.Trim(v, "*") == "" && v != "" {
		return v
	}
	if len(r) <= 2 {
		return maskFill
	}
	return string(r[0]) + maskFill + string(r[len(r)-1])
}

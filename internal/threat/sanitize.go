package threat

import (
	"regexp"
	"strings"
)

var (
	schemePrefix  = regexp.MustCompile(`(?i)\b(javascript|vbscript)\s*:`)
	handlerPrefix = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
)

// entities produced by escape, left untouched on a second pass
var knownEntities = []string{"amp;", "quot;", "#x27;", "#x2F;", "lt;", "gt;"}

// Sanitize neutralizes markup in free text destined for display.
// It is best-effort and idempotent: Sanitize(Sanitize(s)) == Sanitize(s).
// It is not a substitute for rejecting input through Scan.
func Sanitize(s string) string {
	s = strings.NewReplacer("<", "", ">", "").Replace(s)

	// removal can splice a new prefix together, so repeat until stable
	for {
		prev := s
		s = schemePrefix.ReplaceAllString(s, "")
		s = handlerPrefix.ReplaceAllString(s, "")
		if s == prev {
			break
		}
	}
	return escape(s)
}

func escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '&':
			if hasEntityAt(s[i+1:]) {
				b.WriteByte(c)
			} else {
				b.WriteString("&amp;")
			}
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&#x27;")
		case '/':
			b.WriteString("&#x2F;")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func hasEntityAt(rest string) bool {
	for _, e := range knownEntities {
		if strings.HasPrefix(rest, e) {
			return true
		}
	}
	return false
}

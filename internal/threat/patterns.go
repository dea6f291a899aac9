package threat

import (
	"regexp"

	"github.com/ortelius/storefront-guard/model"
)

// Detector names the detector family that produced a verdict
type Detector string

// Detector families
const (
	DetectorInjection Detector = "injection"
	DetectorScript    Detector = "script-injection"
	DetectorHeader    Detector = "header-injection"
	DetectorAgent     Detector = "user-agent"
	DetectorStructure Detector = "structure"
)

// family is a detector with its compiled patterns. Patterns are RE2 so matching
// stays linear in the input length whatever the payload.
type family struct {
	detector Detector
	kind     model.EventKind
	patterns []*regexp.Regexp
}

// scriptFamily runs before injectionFamily: XSS payloads usually carry quotes too
var scriptFamily = family{
	detector: DetectorScript,
	kind:     model.EventXSS,
	patterns: []*regexp.Regexp{
		regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`),
		regexp.MustCompile(`(?i)\b(javascript|vbscript)\s*:`),
		regexp.MustCompile(`(?i)\bdata\s*:\s*text/html`),
		regexp.MustCompile(`(?i)\bon[a-z]+\s*=`),
		regexp.MustCompile(`(?i)<\s*(iframe|object|embed|link|meta)\b`),
	},
}

var injectionFamily = family{
	detector: DetectorInjection,
	kind:     model.EventSQLInjection,
	patterns: []*regexp.Regexp{
		// keywords as whole words
		regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|DROP|UNION|CREATE|ALTER|EXEC|EXECUTE|TRUNCATE|DECLARE)\b`),
		// quotes, statement separators, comments and wildcard/paren clusters
		regexp.MustCompile(`('|"|;|--|/\*|\*/|\(\s*\)|[*%]{2,})`),
		// url-encoded quote, hash, semicolon and angle brackets
		regexp.MustCompile(`(?i)(%27|%22|%23|%3b|%3c|%3e)`),
		// timing attacks
		regexp.MustCompile(`(?i)(\bWAITFOR\s+DELAY\b|\bBENCHMARK\s*\(|\bSLEEP\s*\()`),
	},
}

var leafFamilies = []family{scriptFamily, injectionFamily}

// headerBreak matches raw or url-encoded CR/LF used for response splitting
var headerBreak = regexp.MustCompile(`(?i)(\r|\n|%0d|%0a)`)

// DefaultAgentDenylist lists user-agent substrings of common scanners and attack tools
var DefaultAgentDenylist = []string{
	"sqlmap",
	"nikto",
	"nmap",
	"masscan",
	"acunetix",
	"nessus",
	"w3af",
	"dirbuster",
	"gobuster",
	"zgrab",
	"havij",
	"wpscan",
	"hydra",
	"burpsuite",
}

func (f family) match(value string) bool {
	for _, re := range f.patterns {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

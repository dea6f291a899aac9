// Package threat implements the request-time threat scanner.
//
// The scanner is a pure decision function plus event emission: it never
// rejects a request itself. Callers must fail closed on a positive Verdict.
package threat

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/ortelius/storefront-guard/internal/metrics"
	"github.com/ortelius/storefront-guard/model"
	"go.uber.org/zap"
)

// DefaultMaxDepth bounds recursion into nested payloads
const DefaultMaxDepth = 32

// Verdict is the result of scanning a value
type Verdict struct {
	Threat   bool            `json:"threat"`
	Detector Detector        `json:"detector,omitempty"`
	Kind     model.EventKind `json:"kind,omitempty"`
	Path     string          `json:"path,omitempty"`
	// Excerpt is for internal logging only and is never serialized
	Excerpt string `json:"-"`
}

// Clean is the negative verdict
var Clean = Verdict{}

// EventSink receives the SecurityEvent emitted for each positive verdict
type EventSink interface {
	Record(ctx context.Context, event model.SecurityEvent)
}

// Config tunes the scanner
type Config struct {
	MaxDepth      int      `yaml:"max_depth"`
	AgentDenylist []string `yaml:"agent_denylist"`
}

// Scanner detects injection and script-injection payloads. It holds no mutable
// state after construction and is safe for concurrent use.
type Scanner struct {
	maxDepth int
	agents   []string
	sink     EventSink
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewScanner creates a scanner. sink, logger and m may be nil.
func NewScanner(cfg Config, sink EventSink, logger *zap.Logger, m *metrics.Metrics) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	depth := cfg.MaxDepth
	if depth <= 0 {
		depth = DefaultMaxDepth
	}
	denylist := cfg.AgentDenylist
	if len(denylist) == 0 {
		denylist = DefaultAgentDenylist
	}
	agents := make([]string, 0, len(denylist))
	for _, a := range denylist {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			agents = append(agents, a)
		}
	}
	return &Scanner{
		maxDepth: depth,
		agents:   agents,
		sink:     sink,
		logger:   logger,
		metrics:  m,
	}
}

// Classify runs both detector families over a single string without emitting anything
func Classify(value string) (Detector, model.EventKind, bool) {
	for _, f := range leafFamilies {
		if f.match(value) {
			return f.detector, f.kind, true
		}
	}
	return "", "", false
}

// Scan visits every string leaf of input and returns the first match.
// root prefixes the reported path (e.g. "query", "body"); source identifies the caller.
func (s *Scanner) Scan(ctx context.Context, source, root string, input interface{}) Verdict {
	v := s.walk(input, root, 0)
	if v.Threat {
		s.emit(ctx, source, v)
	}
	return v
}

// ScanHeaders checks header values for embedded CR/LF
func (s *Scanner) ScanHeaders(ctx context.Context, source string, headers map[string]string) Verdict {
	for _, name := range sortedKeys(headers) {
		value := headers[name]
		if headerBreak.MatchString(value) {
			v := Verdict{
				Threat:   true,
				Detector: DetectorHeader,
				Kind:     model.EventHeaderInjection,
				Path:     "headers." + name,
				Excerpt:  model.Excerpt(value),
			}
			s.emit(ctx, source, v)
			return v
		}
	}
	return Clean
}

// CheckUserAgent matches ua against the scanner/tool denylist
func (s *Scanner) CheckUserAgent(ctx context.Context, source, ua string) Verdict {
	lower := strings.ToLower(ua)
	for _, agent := range s.agents {
		if strings.Contains(lower, agent) {
			v := Verdict{
				Threat:   true,
				Detector: DetectorAgent,
				Kind:     model.EventSuspiciousAgent,
				Path:     "headers.User-Agent",
				Excerpt:  model.Excerpt(ua),
			}
			s.emit(ctx, source, v)
			return v
		}
	}
	return Clean
}

func (s *Scanner) walk(value interface{}, path string, depth int) Verdict {
	if depth > s.maxDepth {
		return Verdict{Threat: true, Detector: DetectorStructure, Kind: model.EventMalformedPayload, Path: path}
	}

	switch val := value.(type) {
	case string:
		return leaf(val, path)
	case []byte:
		return leaf(string(val), path)
	case map[string]interface{}:
		for _, k := range sortedKeys(val) {
			if v := s.walkKey(k, val[k], path, depth); v.Threat {
				return v
			}
		}
	case map[string]string:
		for _, k := range sortedKeys(val) {
			if v := s.walkKey(k, val[k], path, depth); v.Threat {
				return v
			}
		}
	case url.Values:
		return s.walk(map[string][]string(val), path, depth)
	case map[string][]string:
		for _, k := range sortedKeys(val) {
			if v := s.walkKey(k, val[k], path, depth); v.Threat {
				return v
			}
		}
	case []interface{}:
		for i, item := range val {
			if v := s.walk(item, join(path, strconv.Itoa(i)), depth+1); v.Threat {
				return v
			}
		}
	case []string:
		for i, item := range val {
			if v := leaf(item, join(path, strconv.Itoa(i))); v.Threat {
				return v
			}
		}
	}
	// numbers, booleans and nil carry no payload
	return Clean
}

// walkKey scans the key itself before descending into its value
func (s *Scanner) walkKey(key string, value interface{}, path string, depth int) Verdict {
	child := join(path, key)
	if v := leaf(key, child); v.Threat {
		return v
	}
	return s.walk(value, child, depth+1)
}

func leaf(value, path string) Verdict {
	detector, kind, ok := Classify(value)
	if !ok {
		return Clean
	}
	return Verdict{
		Threat:   true,
		Detector: detector,
		Kind:     kind,
		Path:     path,
		Excerpt:  model.Excerpt(value),
	}
}

func (s *Scanner) emit(ctx context.Context, source string, v Verdict) {
	s.metrics.ThreatDetected(string(v.Detector))
	s.logger.Warn("threat detected",
		zap.String("detector", string(v.Detector)),
		zap.String("kind", string(v.Kind)),
		zap.String("path", v.Path),
		zap.String("source", source),
		zap.String("excerpt", v.Excerpt),
	)
	if s.sink != nil {
		s.sink.Record(ctx, model.NewSecurityEvent(v.Kind, source, v.Path, string(v.Detector), v.Excerpt))
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

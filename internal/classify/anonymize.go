package classify

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Age bands used by Anonymize
const (
	AgeUnknown = "unknown"
	AgeUnder18 = "under-18"
	Age18to24  = "18-24"
	Age25to34  = "25-34"
	Age35to44  = "35-44"
	Age45to54  = "45-54"
	Age55to64  = "55-64"
	Age65Plus  = "65+"
)

// Regions returned when the gazetteer cannot place an address
const (
	RegionUnknown = "unknown"
	RegionOther   = "other"
)

// RegionRule maps a case-insensitive address substring to a coarse region.
// Rules are tried in order and the first match wins.
type RegionRule struct {
	Match  string `json:"match" yaml:"match"`
	Region string `json:"region" yaml:"region"`
}

// DefaultGazetteer is a short best-effort place list. Addresses outside it
// resolve to "other"; this is a heuristic, not a privacy guarantee.
var DefaultGazetteer = []RegionRule{
	{Match: "new york", Region: "us-northeast"},
	{Match: "boston", Region: "us-northeast"},
	{Match: "philadelphia", Region: "us-northeast"},
	{Match: "chicago", Region: "us-midwest"},
	{Match: "detroit", Region: "us-midwest"},
	{Match: "texas", Region: "us-south"},
	{Match: "atlanta", Region: "us-south"},
	{Match: "miami", Region: "us-south"},
	{Match: "california", Region: "us-west"},
	{Match: "los angeles", Region: "us-west"},
	{Match: "san francisco", Region: "us-west"},
	{Match: "seattle", Region: "us-west"},
	{Match: "london", Region: "europe"},
	{Match: "paris", Region: "europe"},
	{Match: "berlin", Region: "europe"},
	{Match: "toronto", Region: "canada"},
	{Match: "tokyo", Region: "asia-pacific"},
	{Match: "sydney", Region: "asia-pacific"},
}

// UserAggregate is the identified input to Anonymize
type UserAggregate struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	Name         string     `json:"name"`
	Address      string     `json:"address"`
	DateOfBirth  *time.Time `json:"date_of_birth,omitempty"`
	RegisteredAt time.Time  `json:"registered_at"`
	OrderCount   int        `json:"order_count"`
	TotalSpend   float64    `json:"total_spend"`
	ReviewCount  int        `json:"review_count"`
}

// AnonymizedProfile holds only coarse buckets and aggregate counters
type AnonymizedProfile struct {
	AnonymousID       string  `json:"anonymous_id"`
	AgeBand           string  `json:"age_band"`
	Region            string  `json:"region"`
	RegistrationMonth string  `json:"registration_month"`
	OrderCount        int     `json:"order_count"`
	TotalSpend        float64 `json:"total_spend"`
	AverageOrderValue float64 `json:"average_order_value"`
	ReviewCount       int     `json:"review_count"`
}

// Anonymize reduces a user to an analytics profile. The id is random and
// carries no relation to the source record.
func (e *Engine) Anonymize(u UserAggregate) AnonymizedProfile {
	p := AnonymizedProfile{
		AnonymousID: uuid.NewString(),
		AgeBand:     AgeBand(u.DateOfBirth, e.now()),
		Region:      e.Region(u.Address),
		OrderCount:  u.OrderCount,
		TotalSpend:  round2(u.TotalSpend),
		ReviewCount: u.ReviewCount,
	}
	if !u.RegisteredAt.IsZero() {
		p.RegistrationMonth = u.RegisteredAt.UTC().Format("2006-01")
	}
	if u.OrderCount > 0 {
		p.AverageOrderValue = round2(u.TotalSpend / float64(u.OrderCount))
	}
	return p
}

// AgeBand buckets a birth date relative to now
func AgeBand(dob *time.Time, now time.Time) string {
	if dob == nil || dob.IsZero() || dob.After(now) {
		return AgeUnknown
	}

	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}

	switch {
	case age < 18:
		return AgeUnder18
	case age < 25:
		return Age18to24
	case age < 35:
		return Age25to34
	case age < 45:
		return Age35to44
	case age < 55:
		return Age45to54
	case age < 65:
		return Age55to64
	default:
		return Age65Plus
	}
}

// Region resolves a free-text address against the configured gazetteer
func (e *Engine) Region(address string) string {
	addr := strings.ToLower(strings.TrimSpace(address))
	if addr == "" {
		return RegionUnknown
	}
	for _, rule := range e.gazetteer {
		if strings.Contains(addr, rule.Match) {
			return rule.Region
		}
	}
	return RegionOther
}

func normalizeGazetteer(rules []RegionRule) []RegionRule {
	out := make([]RegionRule, 0, len(rules))
	for _, r := range rules {
		m := strings.ToLower(strings.TrimSpace(r.Match))
		if m == "" || r.Region == "" {
			continue
		}
		out = append(out, RegionRule{Match: m, Region: r.Region})
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

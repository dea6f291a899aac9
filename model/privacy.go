// Package model - data classification tiers and retention policy records
package model

import (
	"strings"
	"time"
)

// DataClassification is the sensitivity tier driving which protection transform applies
type DataClassification string

// Classification tiers
const (
	ClassPublic       DataClassification = "PUBLIC"
	ClassInternal     DataClassification = "INTERNAL"
	ClassConfidential DataClassification = "CONFIDENTIAL"
	ClassRestricted   DataClassification = "RESTRICTED"
)

// ParseClassification normalizes a classification name
func ParseClassification(s string) (DataClassification, bool) {
	c := DataClassification(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case ClassPublic, ClassInternal, ClassConfidential, ClassRestricted:
		return c, true
	}
	return c, false
}

// RetentionPolicy maps a record category to its maximum age
type RetentionPolicy struct {
	Category       string `json:"category" yaml:"category"`
	Collection     string `json:"collection" yaml:"collection"`
	TimestampField string `json:"timestamp_field" yaml:"timestamp_field"`
	MaxAgeDays     int    `json:"max_age_days" yaml:"max_age_days"`
}

// Cutoff returns the instant before which records of this category are expired
func (p RetentionPolicy) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -p.MaxAgeDays)
}

// PolicyResult is the outcome of sweeping a single retention policy
type PolicyResult struct {
	Category string    `json:"category"`
	Deleted  int       `json:"deleted"`
	Cutoff   time.Time `json:"cutoff"`
	Skipped  bool      `json:"skipped,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// SweepReport summarizes a retention sweep across all policies
type SweepReport struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Results    []PolicyResult `json:"results"`
}

// TotalDeleted sums deletions across policies
func (r SweepReport) TotalDeleted() int {
	total := 0
	for _, res := range r.Results {
		total += res.Deleted
	}
	return total
}

// Failed returns the results that carry an error
func (r SweepReport) Failed() []PolicyResult {
	var failed []PolicyResult
	for _, res := range r.Results {
		if res.Error != "" {
			failed = append(failed, res)
		}
	}
	return failed
}

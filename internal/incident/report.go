package incident

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ortelius/storefront-guard/internal/secerr"
)

// Period is a reporting window
type Period string

// Reporting windows
const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Days returns the window length, 0 for an unknown period
func (p Period) Days() int {
	switch p {
	case PeriodDaily:
		return 1
	case PeriodWeekly:
		return 7
	case PeriodMonthly:
		return 30
	}
	return 0
}

// ParsePeriod normalizes a period name
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if p.Days() == 0 {
		return "", secerr.Validation("unknown report period %q", s)
	}
	return p, nil
}

// SecurityReport aggregates incidents over a period
type SecurityReport struct {
	Period              Period         `json:"period"`
	From                time.Time      `json:"from"`
	To                  time.Time      `json:"to"`
	GeneratedAt         time.Time      `json:"generated_at"`
	Total               int            `json:"total"`
	ByType              map[string]int `json:"by_type"`
	BySeverity          map[string]int `json:"by_severity"`
	ByStatus            map[string]int `json:"by_status"`
	Resolved            int            `json:"resolved"`
	MeanResolutionHours *float64       `json:"mean_resolution_hours"`
}

// GenerateReport summarizes incidents reported during the last period. The
// mean resolution time only counts incidents that have been resolved and is
// nil when there are none.
func (c *Coordinator) GenerateReport(ctx context.Context, period Period) (*SecurityReport, error) {
	days := period.Days()
	if days == 0 {
		return nil, secerr.Validation("unknown report period %q", period)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReportTimeout)
	defer cancel()

	now := c.now().UTC()
	from := now.AddDate(0, 0, -days)

	incidents, err := c.store.ListBetween(ctx, from, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}

	report := &SecurityReport{
		Period:      period,
		From:        from,
		To:          now,
		GeneratedAt: now,
		ByType:      map[string]int{},
		BySeverity:  map[string]int{},
		ByStatus:    map[string]int{},
	}

	var hours float64
	for _, inc := range incidents {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("report interrupted: %w", err)
		}
		report.Total++
		report.ByType[string(inc.Type)]++
		report.BySeverity[string(inc.Severity)]++
		report.ByStatus[string(inc.Status)]++
		if h, ok := inc.ResolutionHours(); ok {
			report.Resolved++
			hours += h
		}
	}

	if report.Resolved > 0 {
		mean := hours / float64(report.Resolved)
		report.MeanResolutionHours = &mean
	}
	return report, nil
}

package model

import (
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// Page is the limit/skip/sort triple accepted by every list query.
type Page struct {
	Limit     int
	Skip      int
	SortField string
	SortDesc  bool
}

// ParseSort reads "field:1" or "field:-1"; a bare field sorts descending.
func ParseSort(raw string) (field string, desc bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", true
	}
	field, dir, found := strings.Cut(raw, ":")
	if !found {
		return field, true
	}
	n, err := strconv.Atoi(strings.TrimSpace(dir))
	if err != nil {
		return field, true
	}
	return field, n < 0
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.SortField == "" {
		p.SortField = "timestamp"
		p.SortDesc = true
	}
	return p
}

type TimeRange struct {
	From *time.Time
	To   *time.Time
}

type APILogFilter struct {
	TimeRange
	Username  string
	Endpoint  string
	Method    string
	SessionID string
	Status    int
	Success   *bool
}

type ErrorLogFilter struct {
	TimeRange
	Username  string
	Endpoint  string
	SessionID string
	ErrorType string
	Severity  string
	Resolved  *bool
}

type ActivityFilter struct {
	TimeRange
	Username  string
	SessionID string
	Activity  string
	Success   *bool
}

type FrontendLogFilter struct {
	TimeRange
	Type      string
	Username  string
	SessionID string
}

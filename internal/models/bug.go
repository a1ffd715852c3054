package models

import (
	"fmt"
	"strconv"
	"time"
)

// Status represents the open/closed state of a bug. The numeric values
// are stored in the index and must never change.
type Status int

const (
	StatusClosed Status = 0
	StatusOpen   Status = 1
)

var statusNames = []string{"closed", "open"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// ParseStatus accepts a status name or its numeric index.
func ParseStatus(arg string) (Status, error) {
	for i, name := range statusNames {
		if name == arg {
			return Status(i), nil
		}
	}
	if n, err := strconv.Atoi(arg); err == nil && n >= 0 && n < len(statusNames) {
		return Status(n), nil
	}
	return 0, fmt.Errorf("invalid status %q", arg)
}

// Severity represents the severity of a bug, ordered from least to most
// severe. The numeric values are stored in the index.
type Severity int

const (
	SeverityWishlist Severity = iota
	SeverityMinor
	SeverityNormal
	SeverityImportant
	SeveritySerious
	SeverityCritical
	SeverityGrave
)

var severityNames = []string{"wishlist", "minor", "normal", "important", "serious", "critical", "grave"}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity accepts a severity name or its numeric index.
func ParseSeverity(arg string) (Severity, error) {
	for i, name := range severityNames {
		if name == arg {
			return Severity(i), nil
		}
	}
	if n, err := strconv.Atoi(arg); err == nil && n >= 0 && n < len(severityNames) {
		return Severity(n), nil
	}
	return 0, fmt.Errorf("invalid severity %q", arg)
}

// Bug represents a tracked issue. ID is assigned by the index on
// creation and never reused; Submitter is set once at creation.
type Bug struct {
	ID        int64
	Title     string
	Status    Status
	Severity  Severity
	Owner     string
	Submitter string
	CreatedAt time.Time
	Deadline  *time.Time
	Progress  int // 0-100
	Milestone string
}

// VersionStatus records that a bug was found in or fixed in a version.
// At most one record exists per (bug, version).
type VersionStatus struct {
	Bug     int64
	Version string
	Found   bool // true = found in, false = fixed in
}

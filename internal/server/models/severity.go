package models

import "strings"

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ParseSeverity lower-cases and trims s. The result may be unknown.
func ParseSeverity(s string) Severity {
	return Severity(strings.ToLower(strings.TrimSpace(s)))
}

// Known reports whether s is one of the four recognised severities.
func (s Severity) Known() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Alerting reports whether findings of this severity raise an event.
func (s Severity) Alerting() bool {
	return s == SeverityCritical || s == SeverityHigh
}

type SeverityCounts struct {
	Critical int `json:"criticalCount"`
	High     int `json:"highCount"`
	Medium   int `json:"mediumCount"`
	Low      int `json:"lowCount"`
}

// Add increments the bucket for s. Unknown severities change nothing.
func (c *SeverityCounts) Add(s Severity) {
	switch s {
	case SeverityCritical:
		c.Critical++
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	case SeverityLow:
		c.Low++
	}
}

// Merge adds every bucket of o into c.
func (c *SeverityCounts) Merge(o SeverityCounts) {
	c.Critical += o.Critical
	c.High += o.High
	c.Medium += o.Medium
	c.Low += o.Low
}

// CountSeverities buckets findings by severity.
func CountSeverities(findings []SecurityFinding) SeverityCounts {
	var c SeverityCounts
	for _, f := range findings {
		c.Add(f.Severity)
	}
	return c
}

package models

import "time"

// AccountScanResult is the outcome of scanning one account inside RunScan.
type AccountScanResult struct {
	AccountID     string   `json:"accountId"`
	ScanRunID     string   `json:"scanRunId,omitempty"`
	Provider      Provider `json:"provider"`
	Success       bool     `json:"success"`
	Error         string   `json:"error,omitempty"`
	FindingsCount int      `json:"findingsCount"`
	SeverityCounts
}

// ScanResult aggregates one RunScan call. It is returned to the caller and
// never persisted.
type ScanResult struct {
	ScanID          string        `json:"scanId"`
	AccountsScanned int           `json:"accountsScanned"`
	TotalFindings   int           `json:"totalFindings"`
	Duration        time.Duration `json:"duration"`
	SeverityCounts
	Accounts []AccountScanResult `json:"accounts"`
}

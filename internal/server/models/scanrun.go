package models

import "time"

type ScanStatus string

const (
	ScanRunning   ScanStatus = "running"
	ScanCompleted ScanStatus = "completed"
	ScanFailed    ScanStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s ScanStatus) Terminal() bool {
	return s == ScanCompleted || s == ScanFailed
}

// ScanRun records one scan attempt against one account. It is created
// running and moved to completed or failed exactly once.
type ScanRun struct {
	ID             string
	TenantID       string
	CloudAccountID string
	Provider       Provider
	Status         ScanStatus
	StartedAt      time.Time
	CompletedAt    *time.Time
	FindingsCount  int
	SeverityCounts
	ErrorMessage string
}

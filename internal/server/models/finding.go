package models

import "time"

// ProviderFinding is what a cloud scanner hands back. Title, Description,
// Severity, ResourceID and ResourceType are always set; the rest depends on
// the provider. Scanners report either ComplianceRef or Compliance.
type ProviderFinding struct {
	FindingID       string
	Title           string
	Description     string
	Severity        string
	Category        string
	ResourceID      string
	ResourceType    string
	Region          string
	Remediation     string
	ComplianceRef   string
	Compliance      []string
	Metadata        map[string]any
	FirstObservedAt time.Time
	LastObservedAt  time.Time
}

// SecurityFinding is the provider-agnostic shape every finding is
// normalized to before deduplication.
type SecurityFinding struct {
	FindingID       string         `json:"findingId"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Severity        Severity       `json:"severity"`
	Category        string         `json:"category"`
	ResourceID      string         `json:"resourceId"`
	ResourceType    string         `json:"resourceType"`
	Region          string         `json:"region"`
	Remediation     string         `json:"remediation"`
	Compliance      []string       `json:"compliance"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	FirstObservedAt time.Time      `json:"firstObservedAt"`
	LastObservedAt  time.Time      `json:"lastObservedAt"`
}

type FindingStatus string

const (
	FindingOpen     FindingStatus = "open"
	FindingResolved FindingStatus = "resolved"
)

// FindingRecord is a persisted finding. Metadata always carries resourceId,
// which is what deduplication matches on.
type FindingRecord struct {
	ID             string
	TenantID       string
	ScanID         string
	CloudAccountID string
	FindingID      string
	Title          string
	Description    string
	Severity       Severity
	Status         FindingStatus
	RuleCode       string
	Framework      string
	Provider       Provider
	Category       string
	Compliance     []string
	Metadata       map[string]any
	DetectedAt     time.Time
}

// ResourceID returns the resourceId stored in Metadata, or "".
func (r *FindingRecord) ResourceID() string {
	if v, ok := r.Metadata["resourceId"].(string); ok {
		return v
	}
	return ""
}

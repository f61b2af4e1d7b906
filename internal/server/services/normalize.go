package services

import (
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/cloudwarden/internal/common"
	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
)

// normalize turns a provider finding into the provider-agnostic shape.
// Findings that already carry an ID, a lower-case severity and a compliance
// list come out unchanged.
func normalize(p models.Provider, f models.ProviderFinding, now time.Time) models.SecurityFinding {
	id := f.FindingID
	if id == "" {
		id = string(p) + "-" + uuid.NewString()
	}

	compliance := f.Compliance
	if len(compliance) == 0 && f.ComplianceRef != "" {
		compliance = []string{f.ComplianceRef}
	}

	first, last := f.FirstObservedAt, f.LastObservedAt
	if first.IsZero() {
		first = now
	}
	if last.IsZero() {
		last = now
	}

	return models.SecurityFinding{
		FindingID:       id,
		Title:           f.Title,
		Description:     f.Description,
		Severity:        models.ParseSeverity(f.Severity),
		Category:        f.Category,
		ResourceID:      f.ResourceID,
		ResourceType:    f.ResourceType,
		Region:          f.Region,
		Remediation:     f.Remediation,
		Compliance:      compliance,
		Metadata:        maps.Clone(f.Metadata),
		FirstObservedAt: first,
		LastObservedAt:  last,
	}
}

// ruleAndFramework derives the rule code and framework from the first
// compliance tag: "CIS-1.5" gives ("CIS-1.5", "CIS").
func ruleAndFramework(compliance []string) (rule, framework string) {
	if len(compliance) == 0 || compliance[0] == "" {
		return common.CustomRuleCode, common.CustomFramework
	}
	rule = compliance[0]
	framework, _, ok := strings.Cut(rule, "-")
	if !ok || framework == "" {
		return rule, common.CustomFramework
	}
	return rule, framework
}

// toRecord builds the persisted form of a new finding. Provider metadata is
// kept, but the well-known keys always reflect the finding itself.
func toRecord(acc *models.CloudAccount, scanRunID string, f models.SecurityFinding, detectedAt time.Time) *models.FindingRecord {
	rule, framework := ruleAndFramework(f.Compliance)

	meta := make(map[string]any, len(f.Metadata)+7)
	maps.Copy(meta, f.Metadata)
	meta["resourceId"] = f.ResourceID
	meta["resourceType"] = f.ResourceType
	meta["region"] = f.Region
	meta["category"] = f.Category
	meta["remediation"] = f.Remediation
	meta["compliance"] = f.Compliance
	meta["findingId"] = f.FindingID

	return &models.FindingRecord{
		ID:             uuid.NewString(),
		TenantID:       acc.TenantID,
		ScanID:         scanRunID,
		CloudAccountID: acc.ID,
		FindingID:      f.FindingID,
		Title:          f.Title,
		Description:    f.Description,
		Severity:       f.Severity,
		Status:         models.FindingOpen,
		RuleCode:       rule,
		Framework:      framework,
		Provider:       acc.Provider,
		Category:       f.Category,
		Compliance:     f.Compliance,
		Metadata:       meta,
		DetectedAt:     detectedAt,
	}
}

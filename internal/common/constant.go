package common

// CombinedScanID is the ScanResult.ScanID of a fleet-wide run.
const CombinedScanID = "combined"

// FindingCreatedEvent is published for every new critical or high finding.
const FindingCreatedEvent = "security.finding.created"

// CustomRuleCode marks findings that carry no compliance reference.
const CustomRuleCode = "CUSTOM"

// CustomFramework is the framework of findings without a hyphenated
// compliance reference.
const CustomFramework = "CUSTOM"

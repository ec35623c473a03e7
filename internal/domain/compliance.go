package domain

import "time"

// ComplianceRule matches appended audit events. Conditions compare event
// fields (or Details entries) for equality; RegoModule, when set, hands the
// whole event to a rego policy instead.
type ComplianceRule struct {
	RuleID      string
	Name        string
	Description string
	EventTypes  []AuditEventType
	Conditions  map[string]any
	RegoModule  string
	Severity    Severity
	Enabled     bool
}

// AppliesTo reports whether the rule should see this event. An empty
// EventTypes list means the rule applies to every event type; rego-only
// rules loaded from a policy bundle rely on this.
func (r ComplianceRule) AppliesTo(eventType AuditEventType) bool {
	if len(r.EventTypes) == 0 {
		return true
	}
	for _, t := range r.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

type TamperedEvent struct {
	EventID          string
	Timestamp        time.Time
	EventType        AuditEventType
	Reason           string
	ExpectedChecksum string
	ActualChecksum   string
}

type VerificationFailure struct {
	EventID string
	Err     string
}

/// IntegrityReport is a finding, not a fault: mismatches are reported and
// never auto-corrected.
type IntegrityReport struct {
	TotalEvents         int
	VerifiedEvents      int
	TamperedEvents      []TamperedEvent
	MissingSignatures   []string
	FailedVerifications []VerificationFailure
	TrailRoot           string
}

func (r IntegrityReport) Clean() bool {
	return len(r.TamperedEvents) == 0 &&
		len(r.MissingSignatures) == 0 &&
		len(r.FailedVerifications) == 0
}

// InclusionProof places one event inside a trail root: hashing the
// event's checksum leaf together with Path reproduces TrailRoot.
type InclusionProof struct {
	EventID   string
	LeafIndex int
	TrailSize int
	Path      []string
	TrailRoot string
}

type ReportRange struct {
	Start time.Time
	End   time.Time
}

// ComplianceReport aggregates a window of the trail for compliance tooling.
type ComplianceReport struct {
	ReportID    string
	GeneratedAt time.Time
	CaseID      string
	Range       ReportRange

	TotalEvents      int
	EventsByType     map[string]int
	EventsBySeverity map[string]int
	EventsByUser     map[string]int
	UniqueUsers      []string
	UniqueCases      []string

	Integrity   IntegrityReport
	ActiveHolds []LegalHold
}

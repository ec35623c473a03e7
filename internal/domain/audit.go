package domain

import "time"

type AuditEventType string

const (
	AuditEventEvidenceStored    AuditEventType = "evidence_stored"
	AuditEventEvidenceAccessed  AuditEventType = "evidence_accessed"
	AuditEventEvidenceDecrypted AuditEventType = "evidence_decrypted"
	AuditEventEvidenceLocked    AuditEventType = "evidence_locked"
	AuditEventEvidenceDeleted   AuditEventType = "evidence_deleted"
	AuditEventDataEncrypted     AuditEventType = "data_encrypted"
	AuditEventDataDecrypted     AuditEventType = "data_decrypted"
	AuditEventKeyGenerated      AuditEventType = "key_generated"
	AuditEventKeyRotated        AuditEventType = "key_rotated"
	AuditEventPIIEncrypted      AuditEventType = "pii_fields_encrypted"
	AuditEventPIIDecrypted      AuditEventType = "pii_fields_decrypted"
	AuditEventExportCreated     AuditEventType = "export_created"
	AuditEventCaseDeleted       AuditEventType = "case_deleted"
	AuditEventRoleChange        AuditEventType = "role_change"
	AuditEventPermissionChange  AuditEventType = "permission_change"
	AuditEventLegalHoldCreated  AuditEventType = "legal_hold_created"
	AuditEventLegalHoldReleased AuditEventType = "legal_hold_released"
	AuditEventComplianceViolation AuditEventType = "compliance_violation"
	AuditEventSuspiciousActivity  AuditEventType = "suspicious_activity"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Actor identifies who performed an action. Every field is optional;
// system-initiated events carry an empty actor.
type Actor struct {
	UserID    string
	Username  string
	IPAddress string
	UserAgent string
	SessionID string
}

// ResourceRef points an event at the case and/or object it concerns.
type ResourceRef struct {
	CaseID     string
	ResourceID string
}

// AuditEvent is a single custody record. Once appended it is never mutated;
// Checksum covers the canonical serialization of every other field except
// Signature, and Signature is the ledger key's signature over Checksum.
type AuditEvent struct {
	EventID   string
	EventType AuditEventType
	Timestamp time.Time

	UserID    string
	Username  string
	IPAddress string
	UserAgent string
	SessionID string

	CaseID     string
	ResourceID string

	Action   string
	Details  map[string]any
	Severity Severity

	Checksum  string
	Signature string
}

func (e AuditEvent) Actor() Actor {
	return Actor{
		UserID:    e.UserID,
		Username:  e.Username,
		IPAddress: e.IPAddress,
		UserAgent: e.UserAgent,
		SessionID: e.SessionID,
	}
}

// AuditFilter narrows a trail query; zero fields are ignored and the
// remaining ones are ANDed.
type AuditFilter struct {
	CaseID     string
	UserID     string
	Start      time.Time
	End        time.Time
	EventTypes []AuditEventType
}

func (f AuditFilter) Matches(event AuditEvent) bool {
	if f.CaseID != "" && event.CaseID != f.CaseID {
		return false
	}
	if f.UserID != "" && event.UserID != f.UserID {
		return false
	}
	if !f.Start.IsZero() && event.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && event.Timestamp.After(f.End) {
		return false
	}
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if event.EventType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

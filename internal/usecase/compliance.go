package usecase

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"custodia/internal/domain"
)

// ComplianceRuleRepository persists the rule set the ledger evaluates.
type ComplianceRuleRepository interface {
	Save(ctx context.Context, rule domain.ComplianceRule) error
	List(ctx context.Context) ([]domain.ComplianceRule, error)
}

// complianceEvaluator matches one event against one rule. Conditions are
// checked in-process; a rule carrying a rego module delegates to the
// policy engine instead.
type complianceEvaluator struct {
	engine PolicyEngine
	log    *logrus.Logger
}

func (e complianceEvaluator) matches(ctx context.Context, rule domain.ComplianceRule, event domain.AuditEvent) (bool, error) {
	if !rule.Enabled || !rule.AppliesTo(event.EventType) {
		return false, nil
	}
	if rule.RegoModule != "" {
		if e.engine == nil {
			e.log.WithField("rule_id", rule.RuleID).Warn("rego rule skipped, no policy engine")
			return false, nil
		}
		return e.engine.EvaluateRule(ctx, rule.RuleID, rule.RegoModule, eventInput(event))
	}
	for field, want := range rule.Conditions {
		if !conditionMatches(event, field, want) {
			return false, nil
		}
	}
	return true, nil
}

// conditionMatches compares one condition against an event field, falling
// back to the Details map for unknown names. A slice value means any-of;
// a map supports {"gt": n} and {"lt": n} numeric comparisons.
func conditionMatches(event domain.AuditEvent, field string, want any) bool {
	got, ok := eventField(event, field)
	if !ok {
		return false
	}
	switch w := want.(type) {
	case []any:
		for _, candidate := range w {
			if looseEqual(got, candidate) {
				return true
			}
		}
		return false
	case []string:
		for _, candidate := range w {
			if looseEqual(got, candidate) {
				return true
			}
		}
		return false
	case map[string]any:
		gotNum, ok := asFloat(got)
		if !ok {
			return false
		}
		if bound, present := w["gt"]; present {
			limit, ok := asFloat(bound)
			if !ok || gotNum <= limit {
				return false
			}
		}
		if bound, present := w["lt"]; present {
			limit, ok := asFloat(bound)
			if !ok || gotNum >= limit {
				return false
			}
		}
		return true
	default:
		return looseEqual(got, want)
	}
}

func eventField(event domain.AuditEvent, field string) (any, bool) {
	switch field {
	case "event_type":
		return string(event.EventType), true
	case "severity":
		return string(event.Severity), true
	case "user_id":
		return event.UserID, true
	case "username":
		return event.Username, true
	case "ip_address":
		return event.IPAddress, true
	case "case_id":
		return event.CaseID, true
	case "resource_id":
		return event.ResourceID, true
	case "action":
		return event.Action, true
	default:
		if event.Details == nil {
			return nil, false
		}
		v, ok := event.Details[field]
		return v, ok
	}
}

func looseEqual(got, want any) bool {
	if gn, ok := asFloat(got); ok {
		if wn, ok := asFloat(want); ok {
			return gn == wn
		}
	}
	gs, gok := got.(string)
	ws, wok := want.(string)
	if gok && wok {
		return gs == ws
	}
	return got == want
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// eventInput flattens an event into the shape rego modules and rule
// conditions see: plain JSON types only.
func eventInput(event domain.AuditEvent) map[string]any {
	input := map[string]any{
		"event_id":   event.EventID,
		"event_type": string(event.EventType),
		"timestamp":  event.Timestamp.UTC().Format(time.RFC3339Nano),
		"user_id":    event.UserID,
		"username":   event.Username,
		"ip_address": event.IPAddress,
		"user_agent": event.UserAgent,
		"session_id": event.SessionID,
		"case_id":    event.CaseID,
		"resource_id": event.ResourceID,
		"action":     event.Action,
		"severity":   string(event.Severity),
	}
	if event.Details != nil {
		input["details"] = event.Details
	}
	return input
}

const afterHoursAccessRego = `package custodia.compliance

import rego.v1

default violation := false

violation if {
	input.event_type == "evidence_accessed"
	hour := time.clock(time.parse_rfc3339_ns(input.timestamp))[0]
	hour < 6
}

violation if {
	input.event_type == "evidence_accessed"
	hour := time.clock(time.parse_rfc3339_ns(input.timestamp))[0]
	hour >= 22
}
`

// DefaultComplianceRules is the rule set seeded into an empty rules
// table at startup.
func DefaultComplianceRules() []domain.ComplianceRule {
	return []domain.ComplianceRule{
		{
			RuleID:      "rule_bulk_export",
			Name:        "Bulk export",
			Description: "An export touching more than ten files needs review.",
			EventTypes:  []domain.AuditEventType{domain.AuditEventExportCreated},
			Conditions:  map[string]any{"file_count": map[string]any{"gt": 10}},
			Severity:    domain.SeverityHigh,
			Enabled:     true,
		},
		{
			RuleID:      "rule_case_deletion",
			Name:        "Case deletion",
			Description: "Every case deletion is a reportable custody event.",
			EventTypes:  []domain.AuditEventType{domain.AuditEventCaseDeleted},
			Severity:    domain.SeverityCritical,
			Enabled:     true,
		},
		{
			RuleID:      "rule_privilege_change",
			Name:        "Privilege change",
			Description: "Role or permission changes on custody accounts.",
			EventTypes:  []domain.AuditEventType{domain.AuditEventRoleChange, domain.AuditEventPermissionChange},
			Severity:    domain.SeverityMedium,
			Enabled:     true,
		},
		{
			RuleID:      "rule_after_hours_access",
			Name:        "After-hours evidence access",
			Description: "Evidence reads outside 06:00-22:00 UTC.",
			EventTypes:  []domain.AuditEventType{domain.AuditEventEvidenceAccessed},
			RegoModule:  afterHoursAccessRego,
			Severity:    domain.SeverityMedium,
			Enabled:     true,
		},
	}
}

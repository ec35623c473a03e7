package usecase

import (
	"context"
	"testing"
	"time"

	"custodia/internal/domain"
	"custodia/internal/infra/policyrego"
)

func TestConditionMatching(t *testing.T) {
	event := domain.AuditEvent{
		EventType: domain.AuditEventExportCreated,
		UserID:    "u1",
		Action:    "create_export",
		Severity:  domain.SeverityLow,
		Details:   map[string]any{"file_count": 15, "format": "zip"},
	}

	cases := []struct {
		name  string
		field string
		want  any
		match bool
	}{
		{"field equality", "user_id", "u1", true},
		{"field inequality", "user_id", "u2", false},
		{"detail equality", "format", "zip", true},
		{"detail greater than", "file_count", map[string]any{"gt": 10}, true},
		{"detail greater than fails", "file_count", map[string]any{"gt": 20}, false},
		{"detail less than", "file_count", map[string]any{"lt": 20}, true},
		{"any of", "action", []any{"create_export", "delete_case"}, true},
		{"any of misses", "action", []any{"delete_case"}, false},
		{"unknown detail", "missing", "x", false},
		{"int float equivalence", "file_count", float64(15), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := conditionMatches(event, tc.field, tc.want); got != tc.match {
				t.Fatalf("conditionMatches(%s, %v) = %v, want %v", tc.field, tc.want, got, tc.match)
			}
		})
	}
}

func TestEvaluatorRespectsEnabledAndType(t *testing.T) {
	eval := complianceEvaluator{}
	event := domain.AuditEvent{EventType: domain.AuditEventCaseDeleted}

	disabled := domain.ComplianceRule{
		RuleID:     "r1",
		EventTypes: []domain.AuditEventType{domain.AuditEventCaseDeleted},
		Enabled:    false,
	}
	matched, err := eval.matches(context.Background(), disabled, event)
	if err != nil || matched {
		t.Fatalf("disabled rule matched: %v %v", matched, err)
	}

	wrongType := domain.ComplianceRule{
		RuleID:     "r2",
		EventTypes: []domain.AuditEventType{domain.AuditEventKeyRotated},
		Enabled:    true,
	}
	matched, err = eval.matches(context.Background(), wrongType, event)
	if err != nil || matched {
		t.Fatalf("wrong-type rule matched: %v %v", matched, err)
	}
}

func TestDefaultRulesAgainstLedger(t *testing.T) {
	repo := &fakeEventRepo{}
	rules := &fakeRuleRepo{}
	ledger := NewAuditLedger(repo, LedgerOptions{
		Signer: testSigner(t),
		Rules:  rules,
		Policy: policyrego.NewEngine(nil),
		Clock:  fixedClock(time.Date(2026, 3, 10, 2, 30, 0, 0, time.UTC)),
	})
	ctx := context.Background()
	if err := ledger.SeedDefaultRules(ctx); err != nil {
		t.Fatalf("SeedDefaultRules: %v", err)
	}

	// 02:30 UTC evidence access trips the rego after-hours rule.
	_, err := ledger.LogEvent(ctx, AuditInput{
		Type:   domain.AuditEventEvidenceAccessed,
		Action: "retrieve_evidence",
		Actor:  domain.Actor{UserID: "u-night"},
	})
	if err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	violations := repo.byType(domain.AuditEventComplianceViolation)
	if len(violations) != 1 {
		t.Fatalf("after-hours violations %d, want 1", len(violations))
	}
	if violations[0].Details["rule_id"] != "rule_after_hours_access" {
		t.Fatalf("wrong rule fired: %v", violations[0].Details)
	}

	// A 30-file export trips the bulk export condition rule.
	_, err = ledger.LogEvent(ctx, AuditInput{
		Type:    domain.AuditEventExportCreated,
		Action:  "create_export",
		Actor:   domain.Actor{UserID: "u-night"},
		Details: map[string]any{"file_count": 30},
	})
	if err != nil {
		t.Fatalf("LogEvent export: %v", err)
	}
	violations = repo.byType(domain.AuditEventComplianceViolation)
	found := false
	for _, violation := range violations {
		if violation.Details["rule_id"] == "rule_bulk_export" {
			found = true
		}
	}
	if !found {
		t.Fatalf("bulk export rule did not fire: %v", violations)
	}

	// A small export does not.
	before := len(repo.byType(domain.AuditEventComplianceViolation))
	_, err = ledger.LogEvent(ctx, AuditInput{
		Type:    domain.AuditEventExportCreated,
		Action:  "create_export",
		Actor:   domain.Actor{UserID: "u-day"},
		Details: map[string]any{"file_count": 2},
	})
	if err != nil {
		t.Fatalf("LogEvent small export: %v", err)
	}
	after := len(repo.byType(domain.AuditEventComplianceViolation))
	if after != before {
		t.Fatal("small export flagged as bulk")
	}
}

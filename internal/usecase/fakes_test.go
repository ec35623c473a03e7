package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"custodia/internal/domain"
)

type fakeEventRepo struct {
	mu        sync.Mutex
	events    []domain.AuditEvent
	appendErr error
}

func (f *fakeEventRepo) Append(_ context.Context, event domain.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEventRepo) List(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.AuditEvent, 0, len(f.events))
	for _, event := range f.events {
		if filter.Matches(event) {
			out = append(out, event)
		}
	}
	return out, nil
}

func (f *fakeEventRepo) byType(eventType domain.AuditEventType) []domain.AuditEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AuditEvent
	for _, event := range f.events {
		if event.EventType == eventType {
			out = append(out, event)
		}
	}
	return out
}

type fakeHoldRepo struct {
	mu    sync.Mutex
	holds []domain.LegalHold
}

func (f *fakeHoldRepo) Create(_ context.Context, hold domain.LegalHold) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holds = append(f.holds, hold)
	return nil
}

func (f *fakeHoldRepo) Update(_ context.Context, hold domain.LegalHold) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.holds {
		if f.holds[i].HoldID == hold.HoldID {
			f.holds[i] = hold
			return nil
		}
	}
	return fmt.Errorf("legal hold %s not found", hold.HoldID)
}

func (f *fakeHoldRepo) GetByID(_ context.Context, holdID string) (domain.LegalHold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, hold := range f.holds {
		if hold.HoldID == holdID {
			return hold, nil
		}
	}
	return domain.LegalHold{}, fmt.Errorf("legal hold %s not found", holdID)
}

func (f *fakeHoldRepo) ListByCase(_ context.Context, caseID string) ([]domain.LegalHold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.LegalHold
	for _, hold := range f.holds {
		if hold.CaseID == caseID {
			out = append(out, hold)
		}
	}
	return out, nil
}

func (f *fakeHoldRepo) ListActive(_ context.Context, now time.Time) ([]domain.LegalHold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.LegalHold
	for _, hold := range f.holds {
		if hold.ActiveAt(now) {
			out = append(out, hold)
		}
	}
	return out, nil
}

type fakeRuleRepo struct {
	mu    sync.Mutex
	rules []domain.ComplianceRule
}

func (f *fakeRuleRepo) Save(_ context.Context, rule domain.ComplianceRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rules {
		if f.rules[i].RuleID == rule.RuleID {
			f.rules[i] = rule
			return nil
		}
	}
	f.rules = append(f.rules, rule)
	return nil
}

func (f *fakeRuleRepo) List(_ context.Context) ([]domain.ComplianceRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ComplianceRule(nil), f.rules...), nil
}

type fakeSink struct {
	mu     sync.Mutex
	inputs []AuditInput
	err    error
}

func (f *fakeSink) LogEvent(_ context.Context, input AuditInput) (domain.AuditEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.AuditEvent{}, f.err
	}
	f.inputs = append(f.inputs, input)
	return domain.AuditEvent{EventID: fmt.Sprintf("evt_fake_%d", len(f.inputs))}, nil
}

func (f *fakeSink) byType(eventType domain.AuditEventType) []AuditInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []AuditInput
	for _, input := range f.inputs {
		if input.Type == eventType {
			out = append(out, input)
		}
	}
	return out
}

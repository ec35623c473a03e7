package usecase

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"custodia/internal/domain"
	"custodia/internal/infra/crypto"
	"custodia/internal/infra/merkle"
)

// AuditLedger is the append-only custody trail. Every event is
// checksummed over its canonical serialization and signed; appended
// events are evaluated against the suspicious-activity detector and the
// enabled compliance rules, deriving follow-up events one level deep.
type AuditLedger struct {
	events   AuditEventRepository
	holds    LegalHoldRepository
	rules    ComplianceRuleRepository
	signer   *crypto.Signer
	detector *SuspiciousActivityDetector
	eval     complianceEvaluator
	clock    Clock
	log      *logrus.Logger

	mu          sync.RWMutex
	ruleCache   []domain.ComplianceRule
	rulesLoaded bool
}

type LedgerOptions struct {
	Holds    LegalHoldRepository
	Rules    ComplianceRuleRepository
	Signer   *crypto.Signer
	Detector *SuspiciousActivityDetector
	Policy   PolicyEngine
	Clock    Clock
	Logger   *logrus.Logger
}

func NewAuditLedger(events AuditEventRepository, opts LedgerOptions) *AuditLedger {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &AuditLedger{
		events:   events,
		holds:    opts.Holds,
		rules:    opts.Rules,
		signer:   opts.Signer,
		detector: opts.Detector,
		eval:     complianceEvaluator{engine: opts.Policy, log: opts.Logger},
		clock:    opts.Clock,
		log:      opts.Logger,
	}
}

// LogEvent appends one custody record. It fails only on persistence
// errors, which propagate to the caller; rule evaluation and scoring
// never block the append itself.
func (l *AuditLedger) LogEvent(ctx context.Context, input AuditInput) (domain.AuditEvent, error) {
	return l.logEvent(ctx, input, false)
}

func (l *AuditLedger) logEvent(ctx context.Context, input AuditInput, derived bool) (domain.AuditEvent, error) {
	if input.Severity == "" {
		input.Severity = domain.SeverityLow
	}
	event := domain.AuditEvent{
		EventID:    "evt_" + uuid.NewString(),
		EventType:  input.Type,
		Timestamp:  l.clock().UTC(),
		UserID:     input.Actor.UserID,
		Username:   input.Actor.Username,
		IPAddress:  input.Actor.IPAddress,
		UserAgent:  input.Actor.UserAgent,
		SessionID:  input.Actor.SessionID,
		CaseID:     input.Resource.CaseID,
		ResourceID: input.Resource.ResourceID,
		Action:     input.Action,
		Details:    input.Details,
		Severity:   input.Severity,
	}

	checksum, err := ChecksumEvent(event)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("checksum event: %w", err)
	}
	event.Checksum = checksum
	if l.signer != nil {
		event.Signature = l.signer.Sign([]byte(checksum))
	}

	if err := l.events.Append(ctx, event); err != nil {
		return domain.AuditEvent{}, fmt.Errorf("append audit event: %w", err)
	}

	// Derived records never feed back into detection or rule evaluation,
	// bounding recursion to one level.
	if !derived {
		l.detect(ctx, event)
		l.evaluateRules(ctx, event)
	}
	return event, nil
}

func (l *AuditLedger) detect(ctx context.Context, event domain.AuditEvent) {
	if l.detector == nil {
		return
	}
	score, signals := l.detector.Score(ctx, event)
	if score < ScoreAlertThreshold {
		return
	}
	_, err := l.logEvent(ctx, AuditInput{
		Type:     domain.AuditEventSuspiciousActivity,
		Action:   "suspicious_activity_detected",
		Actor:    event.Actor(),
		Resource: domain.ResourceRef{CaseID: event.CaseID, ResourceID: event.ResourceID},
		Severity: domain.SeverityHigh,
		Details: map[string]any{
			"source_event_id": event.EventID,
			"score":           score,
			"signals":         signals,
		},
	}, true)
	if err != nil {
		l.log.WithError(err).WithField("source_event_id", event.EventID).Error("suspicious activity record not persisted")
	}
}

func (l *AuditLedger) evaluateRules(ctx context.Context, event domain.AuditEvent) {
	rules, err := l.loadRules(ctx)
	if err != nil {
		l.log.WithError(err).Warn("compliance rules unavailable")
		return
	}
	for _, rule := range rules {
		matched, err := l.eval.matches(ctx, rule, event)
		if err != nil {
			l.log.WithError(err).WithField("rule_id", rule.RuleID).Warn("compliance rule evaluation failed")
			continue
		}
		if !matched {
			continue
		}
		_, err = l.logEvent(ctx, AuditInput{
			Type:     domain.AuditEventComplianceViolation,
			Action:   "compliance_rule_matched",
			Actor:    event.Actor(),
			Resource: domain.ResourceRef{CaseID: event.CaseID, ResourceID: event.ResourceID},
			Severity: rule.Severity,
			Details: map[string]any{
				"rule_id":         rule.RuleID,
				"rule_name":       rule.Name,
				"source_event_id": event.EventID,
			},
		}, true)
		if err != nil {
			l.log.WithError(err).WithField("rule_id", rule.RuleID).Error("violation record not persisted")
		}
	}
}

func (l *AuditLedger) loadRules(ctx context.Context) ([]domain.ComplianceRule, error) {
	l.mu.RLock()
	if l.rulesLoaded {
		cached := l.ruleCache
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	if l.rules == nil {
		return nil, nil
	}
	loaded, err := l.rules.List(ctx)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.ruleCache = loaded
	l.rulesLoaded = true
	l.mu.Unlock()
	return loaded, nil
}

// RegisterRule persists a rule and makes it live for subsequent events.
func (l *AuditLedger) RegisterRule(ctx context.Context, rule domain.ComplianceRule) error {
	if l.rules != nil {
		if err := l.rules.Save(ctx, rule); err != nil {
			return err
		}
	}
	l.mu.Lock()
	l.ruleCache = append(l.ruleCache, rule)
	l.rulesLoaded = true
	l.mu.Unlock()
	return nil
}

// SeedDefaultRules installs the default rule set when the repository is
// empty. Existing rules are left untouched.
func (l *AuditLedger) SeedDefaultRules(ctx context.Context) error {
	existing, err := l.loadRules(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, rule := range DefaultComplianceRules() {
		if err := l.RegisterRule(ctx, rule); err != nil {
			return err
		}
	}
	return nil
}

func (l *AuditLedger) GetAuditTrail(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	return l.events.List(ctx, filter)
}

// VerifyAuditIntegrity re-derives every checksum and signature in the
// filtered trail. Mismatches are reported, never repaired.
func (l *AuditLedger) VerifyAuditIntegrity(ctx context.Context, filter domain.AuditFilter) (domain.IntegrityReport, error) {
	events, err := l.events.List(ctx, filter)
	if err != nil {
		return domain.IntegrityReport{}, err
	}

	report := domain.IntegrityReport{TotalEvents: len(events)}
	leaves := make([][]byte, 0, len(events))
	for _, event := range events {
		leaves = append(leaves, merkle.LeafHash([]byte(event.Checksum)))

		expected, err := ChecksumEvent(event)
		if err != nil {
			report.FailedVerifications = append(report.FailedVerifications, domain.VerificationFailure{
				EventID: event.EventID,
				Err:     err.Error(),
			})
			continue
		}
		if expected != event.Checksum {
			report.TamperedEvents = append(report.TamperedEvents, domain.TamperedEvent{
				EventID:          event.EventID,
				Timestamp:        event.Timestamp,
				EventType:        event.EventType,
				Reason:           "checksum mismatch",
				ExpectedChecksum: expected,
				ActualChecksum:   event.Checksum,
			})
			continue
		}
		if event.Signature == "" {
			report.MissingSignatures = append(report.MissingSignatures, event.EventID)
			continue
		}
		if l.signer != nil && !l.signer.Verify([]byte(event.Checksum), event.Signature) {
			report.TamperedEvents = append(report.TamperedEvents, domain.TamperedEvent{
				EventID:   event.EventID,
				Timestamp: event.Timestamp,
				EventType: event.EventType,
				Reason:    "signature verification failed",
			})
			continue
		}
		report.VerifiedEvents++
	}

	if len(leaves) > 0 {
		root, err := merkle.Root(leaves)
		if err != nil {
			return report, fmt.Errorf("trail root: %w", err)
		}
		report.TrailRoot = hex.EncodeToString(root)
	}
	return report, nil
}

// ProveEventInclusion produces the sibling-hash path tying one event's
// checksum to the filtered trail's root. A verifier holding only the
// root can confirm the event is part of the trail without refetching it.
func (l *AuditLedger) ProveEventInclusion(ctx context.Context, eventID string, filter domain.AuditFilter) (domain.InclusionProof, error) {
	events, err := l.events.List(ctx, filter)
	if err != nil {
		return domain.InclusionProof{}, err
	}

	leafIndex := -1
	leaves := make([][]byte, 0, len(events))
	for i, event := range events {
		if event.EventID == eventID {
			leafIndex = i
		}
		leaves = append(leaves, merkle.LeafHash([]byte(event.Checksum)))
	}
	if leafIndex < 0 {
		return domain.InclusionProof{}, fmt.Errorf("event %s: %w", eventID, domain.ErrObjectNotFound)
	}

	path, err := merkle.InclusionProof(leaves, leafIndex)
	if err != nil {
		return domain.InclusionProof{}, fmt.Errorf("inclusion proof: %w", err)
	}
	root, err := merkle.Root(leaves)
	if err != nil {
		return domain.InclusionProof{}, fmt.Errorf("trail root: %w", err)
	}

	proof := domain.InclusionProof{
		EventID:   eventID,
		LeafIndex: leafIndex,
		TrailSize: len(leaves),
		Path:      make([]string, 0, len(path)),
		TrailRoot: hex.EncodeToString(root),
	}
	for _, sibling := range path {
		proof.Path = append(proof.Path, hex.EncodeToString(sibling))
	}
	return proof, nil
}

// CreateLegalHold opens a hold on a case. While any hold on a case is
// active, deletes of that case's objects are refused by the store.
func (l *AuditLedger) CreateLegalHold(ctx context.Context, caseID, description, createdBy string, expiresAt *time.Time) (domain.LegalHold, error) {
	if l.holds == nil {
		return domain.LegalHold{}, fmt.Errorf("legal holds not configured")
	}
	hold := domain.LegalHold{
		HoldID:      "hold_" + uuid.NewString(),
		CaseID:      caseID,
		Description: description,
		CreatedBy:   createdBy,
		CreatedAt:   l.clock().UTC(),
		ExpiresAt:   expiresAt,
		IsActive:    true,
	}
	if err := l.holds.Create(ctx, hold); err != nil {
		return domain.LegalHold{}, fmt.Errorf("create legal hold: %w", err)
	}
	_, err := l.LogEvent(ctx, AuditInput{
		Type:     domain.AuditEventLegalHoldCreated,
		Action:   "create_legal_hold",
		Actor:    domain.Actor{UserID: createdBy},
		Resource: domain.ResourceRef{CaseID: caseID},
		Severity: domain.SeverityMedium,
		Details:  map[string]any{"hold_id": hold.HoldID, "description": description},
	})
	if err != nil {
		return domain.LegalHold{}, err
	}
	return hold, nil
}

func (l *AuditLedger) ReleaseLegalHold(ctx context.Context, holdID, releasedBy string) error {
	if l.holds == nil {
		return fmt.Errorf("legal holds not configured")
	}
	hold, err := l.holds.GetByID(ctx, holdID)
	if err != nil {
		return err
	}
	hold.IsActive = false
	if err := l.holds.Update(ctx, hold); err != nil {
		return fmt.Errorf("release legal hold: %w", err)
	}
	_, err = l.LogEvent(ctx, AuditInput{
		Type:     domain.AuditEventLegalHoldReleased,
		Action:   "release_legal_hold",
		Actor:    domain.Actor{UserID: releasedBy},
		Resource: domain.ResourceRef{CaseID: hold.CaseID},
		Severity: domain.SeverityMedium,
		Details:  map[string]any{"hold_id": hold.HoldID},
	})
	return err
}

// IsHoldActive implements the store's hold check.
func (l *AuditLedger) IsHoldActive(ctx context.Context, caseID string) (bool, error) {
	if l.holds == nil || caseID == "" {
		return false, nil
	}
	holds, err := l.holds.ListByCase(ctx, caseID)
	if err != nil {
		return false, err
	}
	now := l.clock()
	for _, hold := range holds {
		if hold.ActiveAt(now) {
			return true, nil
		}
	}
	return false, nil
}

// GenerateComplianceReport aggregates the filtered trail, verifies its
// integrity, and records the export itself in the trail.
func (l *AuditLedger) GenerateComplianceReport(ctx context.Context, rng domain.ReportRange, caseID string, actor domain.Actor) (domain.ComplianceReport, error) {
	filter := domain.AuditFilter{CaseID: caseID, Start: rng.Start, End: rng.End}
	events, err := l.events.List(ctx, filter)
	if err != nil {
		return domain.ComplianceReport{}, err
	}

	report := domain.ComplianceReport{
		ReportID:         "rpt_" + uuid.NewString(),
		GeneratedAt:      l.clock().UTC(),
		CaseID:           caseID,
		Range:            rng,
		TotalEvents:      len(events),
		EventsByType:     make(map[string]int),
		EventsBySeverity: make(map[string]int),
		EventsByUser:     make(map[string]int),
	}
	users := make(map[string]struct{})
	cases := make(map[string]struct{})
	for _, event := range events {
		report.EventsByType[string(event.EventType)]++
		report.EventsBySeverity[string(event.Severity)]++
		if event.UserID != "" {
			report.EventsByUser[event.UserID]++
			users[event.UserID] = struct{}{}
		}
		if event.CaseID != "" {
			cases[event.CaseID] = struct{}{}
		}
	}
	report.UniqueUsers = sortedKeys(users)
	report.UniqueCases = sortedKeys(cases)

	integrity, err := l.VerifyAuditIntegrity(ctx, filter)
	if err != nil {
		return domain.ComplianceReport{}, err
	}
	report.Integrity = integrity

	if l.holds != nil {
		active, err := l.holds.ListActive(ctx, l.clock())
		if err != nil {
			return domain.ComplianceReport{}, err
		}
		for _, hold := range active {
			if caseID == "" || hold.CaseID == caseID {
				report.ActiveHolds = append(report.ActiveHolds, hold)
			}
		}
	}

	_, err = l.LogEvent(ctx, AuditInput{
		Type:     domain.AuditEventExportCreated,
		Action:   "generate_compliance_report",
		Actor:    actor,
		Resource: domain.ResourceRef{CaseID: caseID},
		Severity: domain.SeverityLow,
		Details: map[string]any{
			"report_id":    report.ReportID,
			"total_events": report.TotalEvents,
		},
	})
	if err != nil {
		return domain.ComplianceReport{}, err
	}
	return report, nil
}

// ChecksumEvent hashes the canonical serialization of the event minus
// its checksum and signature. The serialization is stable across a JSON
// store and load, so a recomputed checksum matches the stored one unless
// the record changed.
func ChecksumEvent(event domain.AuditEvent) (string, error) {
	payload := eventInput(event)
	canonical, err := crypto.CanonicalizeAny(payload)
	if err != nil {
		return "", err
	}
	return crypto.SHA256Hex(canonical), nil
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"custodia/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "custodia.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store, err := New(gdb, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func sampleEvent(id string, at time.Time, user, caseID string, eventType domain.AuditEventType) domain.AuditEvent {
	return domain.AuditEvent{
		EventID:   id,
		EventType: eventType,
		Timestamp: at,
		UserID:    user,
		CaseID:    caseID,
		Action:    "test_action",
		Details:   map[string]any{"size_bytes": 42},
		Severity:  domain.SeverityLow,
		Checksum:  "checksum-" + id,
		Signature: "signature-" + id,
	}
}

func TestAuditEventsAppendAndList(t *testing.T) {
	store := openTestStore(t)
	repo := store.AuditEvents()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 8, 0, 0, 123456789, time.UTC)

	events := []domain.AuditEvent{
		sampleEvent("evt_1", base, "u1", "case-1", domain.AuditEventEvidenceStored),
		sampleEvent("evt_2", base.Add(time.Minute), "u2", "case-1", domain.AuditEventEvidenceAccessed),
		sampleEvent("evt_3", base.Add(2*time.Minute), "u1", "case-2", domain.AuditEventEvidenceAccessed),
	}
	for _, event := range events {
		if err := repo.Append(ctx, event); err != nil {
			t.Fatalf("Append %s: %v", event.EventID, err)
		}
	}

	all, err := repo.List(ctx, domain.AuditFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("listed %d, want 3", len(all))
	}
	for i, event := range all {
		if event.EventID != events[i].EventID {
			t.Fatalf("append order broken at %d: %s", i, event.EventID)
		}
	}
	// Nanosecond timestamps and details must survive the round trip.
	if !all[0].Timestamp.Equal(base) {
		t.Fatalf("timestamp %v, want %v", all[0].Timestamp, base)
	}
	if got, ok := all[0].Details["size_bytes"].(float64); !ok || got != 42 {
		t.Fatalf("details %v", all[0].Details)
	}

	byCase, err := repo.List(ctx, domain.AuditFilter{CaseID: "case-1"})
	if err != nil {
		t.Fatalf("List by case: %v", err)
	}
	if len(byCase) != 2 {
		t.Fatalf("case filter returned %d", len(byCase))
	}
	byUser, err := repo.List(ctx, domain.AuditFilter{UserID: "u1", EventTypes: []domain.AuditEventType{domain.AuditEventEvidenceAccessed}})
	if err != nil {
		t.Fatalf("List by user and type: %v", err)
	}
	if len(byUser) != 1 || byUser[0].EventID != "evt_3" {
		t.Fatalf("combined filter returned %+v", byUser)
	}
	inRange, err := repo.List(ctx, domain.AuditFilter{Start: base.Add(30 * time.Second), End: base.Add(90 * time.Second)})
	if err != nil {
		t.Fatalf("List by range: %v", err)
	}
	if len(inRange) != 1 || inRange[0].EventID != "evt_2" {
		t.Fatalf("range filter returned %+v", inRange)
	}
}

func TestAuditEventsRejectDuplicateID(t *testing.T) {
	store := openTestStore(t)
	repo := store.AuditEvents()
	ctx := context.Background()
	event := sampleEvent("evt_dup", time.Now().UTC(), "u1", "", domain.AuditEventEvidenceStored)

	if err := repo.Append(ctx, event); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := repo.Append(ctx, event); err == nil {
		t.Fatal("duplicate event id accepted")
	}
}

func TestLegalHoldLifecycle(t *testing.T) {
	store := openTestStore(t)
	repo := store.LegalHolds()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	expires := now.Add(48 * time.Hour)
	holds := []domain.LegalHold{
		{HoldID: "hold_1", CaseID: "case-1", Description: "open", CreatedBy: "counsel", CreatedAt: now, IsActive: true},
		{HoldID: "hold_2", CaseID: "case-2", Description: "expiring", CreatedBy: "counsel", CreatedAt: now, ExpiresAt: &expires, IsActive: true},
	}
	for _, hold := range holds {
		if err := repo.Create(ctx, hold); err != nil {
			t.Fatalf("Create %s: %v", hold.HoldID, err)
		}
	}

	active, err := repo.ListActive(ctx, now)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active %d, want 2", len(active))
	}
	active, err = repo.ListActive(ctx, now.Add(72*time.Hour))
	if err != nil {
		t.Fatalf("ListActive later: %v", err)
	}
	if len(active) != 1 || active[0].HoldID != "hold_1" {
		t.Fatalf("expired hold still listed: %+v", active)
	}

	released, err := repo.GetByID(ctx, "hold_1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	released.IsActive = false
	if err := repo.Update(ctx, released); err != nil {
		t.Fatalf("Update: %v", err)
	}
	byCase, err := repo.ListByCase(ctx, "case-1")
	if err != nil {
		t.Fatalf("ListByCase: %v", err)
	}
	if len(byCase) != 1 || byCase[0].IsActive {
		t.Fatalf("release not persisted: %+v", byCase)
	}

	if err := repo.Update(ctx, domain.LegalHold{HoldID: "hold_missing"}); err == nil {
		t.Fatal("update of missing hold succeeded")
	}
}

func TestComplianceRuleUpsert(t *testing.T) {
	store := openTestStore(t)
	repo := store.ComplianceRules()
	ctx := context.Background()

	rule := domain.ComplianceRule{
		RuleID:     "rule_bulk_export",
		Name:       "Bulk export",
		EventTypes: []domain.AuditEventType{domain.AuditEventExportCreated},
		Conditions: map[string]any{"file_count": map[string]any{"gt": 10}},
		Severity:   domain.SeverityHigh,
		Enabled:    true,
	}
	if err := repo.Save(ctx, rule); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rule.Severity = domain.SeverityCritical
	rule.Enabled = false
	if err := repo.Save(ctx, rule); err != nil {
		t.Fatalf("Save update: %v", err)
	}

	rules, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("upsert created %d rows", len(rules))
	}
	got := rules[0]
	if got.Severity != domain.SeverityCritical || got.Enabled {
		t.Fatalf("update not applied: %+v", got)
	}
	if len(got.EventTypes) != 1 || got.EventTypes[0] != domain.AuditEventExportCreated {
		t.Fatalf("event types lost: %+v", got.EventTypes)
	}
	if _, ok := got.Conditions["file_count"]; !ok {
		t.Fatalf("conditions lost: %+v", got.Conditions)
	}
}

func TestDataKeyRepo(t *testing.T) {
	store := openTestStore(t)
	repo := store.DataKeys()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	key := domain.WrappedKey{
		EncryptionKey: domain.EncryptionKey{
			KeyID:     "dek_1",
			Algorithm: domain.KeyAlgorithmAES256,
			CreatedAt: now,
			ExpiresAt: now.Add(90 * 24 * time.Hour),
			Version:   1,
		},
		Wrapped: []byte{0x01, 0x02, 0x03},
	}
	if err := repo.Save(ctx, key); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.Get(ctx, "dek_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Algorithm != domain.KeyAlgorithmAES256 || len(got.Wrapped) != 3 {
		t.Fatalf("key did not round trip: %+v", got)
	}

	got.ExpiresAt = now.Add(-time.Hour)
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	updated, err := repo.Get(ctx, "dek_1")
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if !updated.Expired(now) {
		t.Fatal("deprecation not persisted")
	}

	if _, err := repo.Get(ctx, "dek_missing"); !errors.Is(err, domain.ErrKeyUnknown) {
		t.Fatalf("got %v, want ErrKeyUnknown", err)
	}
	keys, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("listed %d keys", len(keys))
	}
}

package usecase

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"custodia/internal/domain"
	"custodia/internal/infra/detector"
)

func scoreOf(t *testing.T, d *SuspiciousActivityDetector, event domain.AuditEvent) (float64, []string) {
	t.Helper()
	return d.Score(context.Background(), event)
}

func TestScoreQuietEvent(t *testing.T) {
	d := NewSuspiciousActivityDetector(detector.NewMemoryWindows(0), nil)
	score, signals := scoreOf(t, d, domain.AuditEvent{
		EventType: domain.AuditEventEvidenceAccessed,
		Timestamp: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
		UserID:    "u1",
	})
	if score != 0 || len(signals) != 0 {
		t.Fatalf("quiet event scored %.2f %v", score, signals)
	}
}

func TestScoreOffHours(t *testing.T) {
	d := NewSuspiciousActivityDetector(detector.NewMemoryWindows(0), nil)
	for _, hour := range []int{0, 5, 22, 23} {
		score, signals := scoreOf(t, d, domain.AuditEvent{
			EventType: domain.AuditEventEvidenceAccessed,
			Timestamp: time.Date(2026, 3, 10, hour, 0, 0, 0, time.UTC),
		})
		if math.Abs(score-0.2) > 1e-9 || len(signals) != 1 || signals[0] != "off_hours" {
			t.Fatalf("hour %d scored %.2f %v", hour, score, signals)
		}
	}
	score, _ := scoreOf(t, d, domain.AuditEvent{
		EventType: domain.AuditEventEvidenceAccessed,
		Timestamp: time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC),
	})
	if score != 0 {
		t.Fatalf("06:00 scored %.2f", score)
	}
}

func TestScoreHighPrivilegeAndBulk(t *testing.T) {
	d := NewSuspiciousActivityDetector(detector.NewMemoryWindows(0), nil)
	score, signals := scoreOf(t, d, domain.AuditEvent{
		EventType: domain.AuditEventExportCreated,
		Timestamp: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		Details:   map[string]any{"file_count": 50},
	})
	if math.Abs(score-0.5) > 1e-9 {
		t.Fatalf("scored %.2f, want 0.5", score)
	}
	want := map[string]bool{"high_privilege": false, "bulk_operation": false}
	for _, signal := range signals {
		want[signal] = true
	}
	for signal, seen := range want {
		if !seen {
			t.Fatalf("signal %s missing from %v", signal, signals)
		}
	}
}

func TestScoreRapidActivity(t *testing.T) {
	d := NewSuspiciousActivityDetector(detector.NewMemoryWindows(0), nil)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	event := domain.AuditEvent{
		EventType: domain.AuditEventEvidenceAccessed,
		UserID:    "u1",
	}
	for i := 0; i < 20; i++ {
		event.Timestamp = base.Add(time.Duration(i) * time.Second)
		if score, _ := scoreOf(t, d, event); score != 0 {
			t.Fatalf("event %d scored %.2f before the limit", i, score)
		}
	}
	event.Timestamp = base.Add(21 * time.Second)
	score, signals := scoreOf(t, d, event)
	if math.Abs(score-0.3) > 1e-9 || len(signals) != 1 || signals[0] != "rapid_activity" {
		t.Fatalf("burst scored %.2f %v", score, signals)
	}

	// Outside the window the count resets.
	event.Timestamp = base.Add(10 * time.Minute)
	if score, _ := scoreOf(t, d, event); score != 0 {
		t.Fatalf("stale window still scoring %.2f", score)
	}
}

func TestScoreMultiUserIP(t *testing.T) {
	d := NewSuspiciousActivityDetector(detector.NewMemoryWindows(0), nil)
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		event := domain.AuditEvent{
			EventType: domain.AuditEventEvidenceAccessed,
			Timestamp: at,
			UserID:    fmt.Sprintf("user-%d", i),
			IPAddress: "203.0.113.9",
		}
		if score, _ := scoreOf(t, d, event); score != 0 {
			t.Fatalf("user %d scored %.2f", i, score)
		}
	}
	event := domain.AuditEvent{
		EventType: domain.AuditEventEvidenceAccessed,
		Timestamp: at,
		UserID:    "user-3",
		IPAddress: "203.0.113.9",
	}
	score, signals := scoreOf(t, d, event)
	if math.Abs(score-0.4) > 1e-9 || len(signals) != 1 || signals[0] != "multi_user_ip" {
		t.Fatalf("fourth user scored %.2f %v", score, signals)
	}
}

func TestScoreCapsAtOne(t *testing.T) {
	windows := detector.NewMemoryWindows(0)
	d := NewSuspiciousActivityDetector(windows, nil)
	at := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)

	// Saturate the user and IP windows first.
	for i := 0; i < 25; i++ {
		scoreOf(t, d, domain.AuditEvent{
			EventType: domain.AuditEventEvidenceAccessed,
			Timestamp: at,
			UserID:    "u-main",
			IPAddress: "198.51.100.7",
		})
	}
	for i := 0; i < 4; i++ {
		scoreOf(t, d, domain.AuditEvent{
			EventType: domain.AuditEventEvidenceAccessed,
			Timestamp: at,
			UserID:    fmt.Sprintf("u-%d", i),
			IPAddress: "198.51.100.7",
		})
	}

	score, _ := scoreOf(t, d, domain.AuditEvent{
		EventType: domain.AuditEventExportCreated,
		Timestamp: at,
		UserID:    "u-main",
		IPAddress: "198.51.100.7",
		Details:   map[string]any{"file_count": 100},
	})
	if score != 1.0 {
		t.Fatalf("scored %.2f, want capped 1.0", score)
	}
}

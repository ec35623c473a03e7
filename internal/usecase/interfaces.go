package usecase

import (
	"context"
	"time"

	"custodia/internal/domain"
)

type Clock func() time.Time

// ObjectStore is the content-addressed WORM store the evidence service
// writes through. blobfs implements it.
type ObjectStore interface {
	Put(ctx context.Context, data []byte, contentType string, tags map[string]string) (string, error)
	Get(ctx context.Context, objectID string) ([]byte, error)
	Metadata(ctx context.Context, objectID string) (domain.StoredObject, error)
	ApplyWormLock(ctx context.Context, objectID string) error
	Delete(ctx context.Context, objectID string) (bool, error)
	List(ctx context.Context, prefix string, limit int) ([]domain.StoredObject, error)
}

// AuditEventRepository persists the append-only trail. Append must be
// durable before it returns; list order is append order.
type AuditEventRepository interface {
	Append(ctx context.Context, event domain.AuditEvent) error
	List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error)
}

type LegalHoldRepository interface {
	Create(ctx context.Context, hold domain.LegalHold) error
	Update(ctx context.Context, hold domain.LegalHold) error
	GetByID(ctx context.Context, holdID string) (domain.LegalHold, error)
	ListByCase(ctx context.Context, caseID string) ([]domain.LegalHold, error)
	ListActive(ctx context.Context, now time.Time) ([]domain.LegalHold, error)
}

// KeyStore persists data keys in wrapped form only. Material never
// crosses this interface unwrapped.
type KeyStore interface {
	Save(ctx context.Context, key domain.WrappedKey) error
	Get(ctx context.Context, keyID string) (domain.WrappedKey, error)
	Update(ctx context.Context, key domain.WrappedKey) error
	List(ctx context.Context) ([]domain.WrappedKey, error)
}

// WindowStore backs the suspicious-activity detector's sliding windows.
// Implementations may undercount under concurrency but must never error
// into the logging path for capacity reasons alone.
type WindowStore interface {
	// CountEvents records one occurrence under key and returns how many
	// occurrences fall inside the trailing window ending at "at".
	CountEvents(ctx context.Context, key string, at time.Time, window time.Duration) (int, error)
	// CountDistinct records member under key and returns how many distinct
	// members were seen inside the trailing window.
	CountDistinct(ctx context.Context, key, member string, at time.Time, window time.Duration) (int, error)
}

// PolicyEngine evaluates a rego-expressed compliance rule against an
// event. policyrego implements it.
type PolicyEngine interface {
	EvaluateRule(ctx context.Context, ruleID, module string, input map[string]any) (bool, error)
}

// AuditInput is what callers hand to the ledger; the ledger fills in
// identity, checksum and signature.
type AuditInput struct {
	Type     domain.AuditEventType
	Action   string
	Details  map[string]any
	Actor    domain.Actor
	Resource domain.ResourceRef
	Severity domain.Severity
}

// AuditSink decouples the crypto and evidence services from the concrete
// ledger. A nil sink is valid for lower-level use and drops events.
type AuditSink interface {
	LogEvent(ctx context.Context, input AuditInput) (domain.AuditEvent, error)
}

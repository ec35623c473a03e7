package usecase

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"custodia/internal/domain"
)

// TagEncryptionKeyID records, on the stored object, which data key its
// envelope was sealed under.
const TagEncryptionKeyID = "encryption_key_id"

// EvidenceService ties the custody chain together: encrypt, then store,
// then log, with WORM locking and deletion going through the same trail.
type EvidenceService struct {
	store  ObjectStore
	crypto *CryptoService
	audit  AuditSink
	log    *logrus.Logger
}

func NewEvidenceService(store ObjectStore, crypto *CryptoService, audit AuditSink, log *logrus.Logger) *EvidenceService {
	if log == nil {
		log = logrus.New()
	}
	return &EvidenceService{store: store, crypto: crypto, audit: audit, log: log}
}

// Store encrypts the payload and writes the envelope content-addressed.
// The returned object describes the envelope, not the plaintext.
func (s *EvidenceService) Store(ctx context.Context, data []byte, contentType string, tags map[string]string, actor domain.Actor) (domain.StoredObject, error) {
	caseID := tags[domain.TagCaseID]
	envelope, keyID, err := s.crypto.Encrypt(ctx, data, actor, domain.ResourceRef{CaseID: caseID})
	if err != nil {
		return domain.StoredObject{}, fmt.Errorf("encrypt evidence: %w", err)
	}

	merged := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		merged[k] = v
	}
	merged[TagEncryptionKeyID] = keyID

	objectID, err := s.store.Put(ctx, envelope, contentType, merged)
	if err != nil {
		return domain.StoredObject{}, err
	}
	object, err := s.store.Metadata(ctx, objectID)
	if err != nil {
		return domain.StoredObject{}, err
	}

	if err := s.emit(ctx, AuditInput{
		Type:     domain.AuditEventEvidenceStored,
		Action:   "store_evidence",
		Actor:    actor,
		Resource: domain.ResourceRef{CaseID: caseID, ResourceID: objectID},
		Severity: domain.SeverityLow,
		Details: map[string]any{
			"content_type": contentType,
			"size_bytes":   object.SizeBytes,
			"key_id":       keyID,
		},
	}); err != nil {
		return domain.StoredObject{}, err
	}
	return object, nil
}

// Retrieve reads the envelope back, verifies its content address, and
// decrypts it under the key the object was stored with.
func (s *EvidenceService) Retrieve(ctx context.Context, objectID string, actor domain.Actor) ([]byte, domain.StoredObject, error) {
	object, err := s.store.Metadata(ctx, objectID)
	if err != nil {
		return nil, domain.StoredObject{}, err
	}
	envelope, err := s.store.Get(ctx, objectID)
	if err != nil {
		return nil, domain.StoredObject{}, err
	}

	keyID := object.Tags[TagEncryptionKeyID]
	if keyID == "" {
		return nil, domain.StoredObject{}, fmt.Errorf("object %s: %w", objectID, domain.ErrKeyUnknown)
	}
	resource := domain.ResourceRef{CaseID: object.CaseID(), ResourceID: objectID}
	plaintext, err := s.crypto.Decrypt(ctx, envelope, keyID, actor, resource)
	if err != nil {
		return nil, domain.StoredObject{}, fmt.Errorf("decrypt evidence: %w", err)
	}

	if err := s.emit(ctx, AuditInput{
		Type:     domain.AuditEventEvidenceAccessed,
		Action:   "retrieve_evidence",
		Actor:    actor,
		Resource: resource,
		Severity: domain.SeverityLow,
		Details:  map[string]any{"size_bytes": object.SizeBytes},
	}); err != nil {
		return nil, domain.StoredObject{}, err
	}
	if err := s.emit(ctx, AuditInput{
		Type:     domain.AuditEventEvidenceDecrypted,
		Action:   "decrypt_evidence",
		Actor:    actor,
		Resource: resource,
		Severity: domain.SeverityLow,
		Details:  map[string]any{"key_id": keyID},
	}); err != nil {
		return nil, domain.StoredObject{}, err
	}
	return plaintext, object, nil
}

// Lock makes the object permanently immutable.
func (s *EvidenceService) Lock(ctx context.Context, objectID string, actor domain.Actor) error {
	object, err := s.store.Metadata(ctx, objectID)
	if err != nil {
		return err
	}
	if err := s.store.ApplyWormLock(ctx, objectID); err != nil {
		return err
	}
	return s.emit(ctx, AuditInput{
		Type:     domain.AuditEventEvidenceLocked,
		Action:   "apply_worm_lock",
		Actor:    actor,
		Resource: domain.ResourceRef{CaseID: object.CaseID(), ResourceID: objectID},
		Severity: domain.SeverityMedium,
	})
}

// Delete removes an unlocked, unheld object. WORM locks and active legal
// holds refuse the delete; the refusal propagates unrecorded into the
// trail only as a warning log, the content stays untouched.
func (s *EvidenceService) Delete(ctx context.Context, objectID string, actor domain.Actor) (bool, error) {
	object, err := s.store.Metadata(ctx, objectID)
	if err != nil {
		return false, err
	}
	removed, err := s.store.Delete(ctx, objectID)
	if err != nil {
		s.log.WithFields(logrus.Fields{"object_id": objectID}).WithError(err).Warn("evidence delete refused")
		return false, err
	}
	if !removed {
		return false, nil
	}
	return true, s.emit(ctx, AuditInput{
		Type:     domain.AuditEventEvidenceDeleted,
		Action:   "delete_evidence",
		Actor:    actor,
		Resource: domain.ResourceRef{CaseID: object.CaseID(), ResourceID: objectID},
		Severity: domain.SeverityHigh,
		Details:  map[string]any{"size_bytes": object.SizeBytes},
	})
}

func (s *EvidenceService) emit(ctx context.Context, input AuditInput) error {
	if s.audit == nil {
		return nil
	}
	_, err := s.audit.LogEvent(ctx, input)
	return err
}

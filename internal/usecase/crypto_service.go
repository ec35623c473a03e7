package usecase

import (
	"context"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"custodia/internal/domain"
	"custodia/internal/infra/crypto"
)

// piiEncryptedMarker keys the map shape a classified field is replaced
// with once encrypted. Decrypt recognizes fields by this marker, not by
// name, so renamed records still round-trip.
const (
	piiMarkerKey    = "_encrypted"
	piiKeyIDKey     = "_key_id"
	piiValueKey     = "_value"
	piiAlgorithmKey = "_algorithm"
)

// CryptoService implements envelope encryption over a wrapping master
// AEAD. Data keys are generated per call, persisted wrapped, and zeroed
// after use; the master key never leaves the AEAD it was sealed into.
type CryptoService struct {
	master            cipher.AEAD
	keys              KeyStore
	audit             AuditSink
	clock             Clock
	rotationPeriod    time.Duration
	rotationThreshold time.Duration
	log               *logrus.Logger
}

type CryptoOptions struct {
	Audit AuditSink
	Clock Clock
	// RotationPeriod is the lifetime stamped on new keys. Zero means 90 days.
	RotationPeriod time.Duration
	// RotationThreshold is how close to expiry a key must be before
	// RotateKeys replaces it. Zero means 7 days.
	RotationThreshold time.Duration
	Logger            *logrus.Logger
}

func NewCryptoService(master cipher.AEAD, keys KeyStore, opts CryptoOptions) *CryptoService {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.RotationPeriod <= 0 {
		opts.RotationPeriod = 90 * 24 * time.Hour
	}
	if opts.RotationThreshold <= 0 {
		opts.RotationThreshold = 7 * 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &CryptoService{
		master:            master,
		keys:              keys,
		audit:             opts.Audit,
		clock:             opts.Clock,
		rotationPeriod:    opts.RotationPeriod,
		rotationThreshold: opts.RotationThreshold,
		log:               opts.Logger,
	}
}

// GenerateDataKey mints a fresh AES-256 data key, persists it wrapped
// and returns its metadata. The plaintext material is zeroed before
// returning.
func (s *CryptoService) GenerateDataKey(ctx context.Context, actor domain.Actor) (domain.EncryptionKey, error) {
	key, material, err := s.mintDataKey(ctx)
	if err != nil {
		return domain.EncryptionKey{}, err
	}
	crypto.Zero(material)

	if err := s.emit(ctx, AuditInput{
		Type:     domain.AuditEventKeyGenerated,
		Action:   "generate_data_key",
		Actor:    actor,
		Severity: domain.SeverityLow,
		Details:  map[string]any{"key_id": key.KeyID, "algorithm": key.Algorithm},
	}); err != nil {
		return domain.EncryptionKey{}, err
	}
	return key, nil
}

// Encrypt seals plaintext under a fresh data key and returns the
// self-contained envelope plus the key id it was sealed under.
func (s *CryptoService) Encrypt(ctx context.Context, plaintext []byte, actor domain.Actor, resource domain.ResourceRef) ([]byte, string, error) {
	envelope, keyID, err := s.encrypt(ctx, plaintext)
	if err != nil {
		return nil, "", err
	}
	if err := s.emit(ctx, AuditInput{
		Type:     domain.AuditEventDataEncrypted,
		Action:   "encrypt",
		Actor:    actor,
		Resource: resource,
		Severity: domain.SeverityLow,
		Details:  map[string]any{"key_id": keyID, "plaintext_bytes": len(plaintext)},
	}); err != nil {
		return nil, "", err
	}
	return envelope, keyID, nil
}

// Decrypt opens an envelope produced by Encrypt. The key id must be
// known to the key store; deprecated keys still decrypt, unknown ones
// fail with ErrKeyUnknown before any cryptography runs.
func (s *CryptoService) Decrypt(ctx context.Context, envelope []byte, keyID string, actor domain.Actor, resource domain.ResourceRef) ([]byte, error) {
	plaintext, err := s.decrypt(ctx, envelope, keyID)
	if err != nil {
		return nil, err
	}
	if err := s.emit(ctx, AuditInput{
		Type:     domain.AuditEventDataDecrypted,
		Action:   "decrypt",
		Actor:    actor,
		Resource: resource,
		Severity: domain.SeverityLow,
		Details:  map[string]any{"key_id": keyID},
	}); err != nil {
		return nil, err
	}
	return plaintext, nil
}

// EncryptPIIFields walks one level of the record and replaces every
// field whose name classifies as PII, and whose value is a string, with
// an encrypted sub-document. Non-PII fields pass through untouched.
func (s *CryptoService) EncryptPIIFields(ctx context.Context, record map[string]any, actor domain.Actor, resource domain.ResourceRef) (map[string]any, error) {
	out := make(map[string]any, len(record))
	encrypted := make([]string, 0, 4)
	for name, value := range record {
		category, ok := domain.ClassifyPIIField(name)
		if !ok {
			out[name] = value
			continue
		}
		text, ok := value.(string)
		if !ok {
			out[name] = value
			continue
		}
		envelope, keyID, err := s.encrypt(ctx, []byte(text))
		if err != nil {
			return nil, fmt.Errorf("encrypt pii field %s: %w", name, err)
		}
		out[name] = map[string]any{
			piiMarkerKey:    true,
			piiKeyIDKey:     keyID,
			piiValueKey:     base64.StdEncoding.EncodeToString(envelope),
			piiAlgorithmKey: domain.KeyAlgorithmAES256,
		}
		encrypted = append(encrypted, name)
		s.log.WithFields(logrus.Fields{"field": name, "category": string(category)}).Debug("pii field encrypted")
	}
	if len(encrypted) > 0 {
		if err := s.emit(ctx, AuditInput{
			Type:     domain.AuditEventPIIEncrypted,
			Action:   "encrypt_pii_fields",
			Actor:    actor,
			Resource: resource,
			Severity: domain.SeverityLow,
			Details:  map[string]any{"fields": encrypted},
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DecryptPIIFields is the inverse of EncryptPIIFields. A field that
// fails to decrypt is replaced with nil rather than failing the whole
// record, so a corrupt field never blocks access to the rest.
func (s *CryptoService) DecryptPIIFields(ctx context.Context, record map[string]any, actor domain.Actor, resource domain.ResourceRef) (map[string]any, error) {
	out := make(map[string]any, len(record))
	decrypted := make([]string, 0, 4)
	failed := make([]string, 0)
	for name, value := range record {
		sub, ok := encryptedSubDocument(value)
		if !ok {
			out[name] = value
			continue
		}
		plaintext, err := s.openPIIField(ctx, sub)
		if err != nil {
			s.log.WithFields(logrus.Fields{"field": name}).WithError(err).Warn("pii field decrypt failed")
			out[name] = nil
			failed = append(failed, name)
			continue
		}
		out[name] = string(plaintext)
		decrypted = append(decrypted, name)
	}
	if len(decrypted) > 0 || len(failed) > 0 {
		severity := domain.SeverityLow
		if len(failed) > 0 {
			severity = domain.SeverityMedium
		}
		if err := s.emit(ctx, AuditInput{
			Type:     domain.AuditEventPIIDecrypted,
			Action:   "decrypt_pii_fields",
			Actor:    actor,
			Resource: resource,
			Severity: severity,
			Details:  map[string]any{"fields": decrypted, "failed_fields": failed},
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RotateKeys replaces every key that is inside the rotation threshold of
// its expiry. Old keys are deprecated, not destroyed: envelopes sealed
// under them must stay readable.
func (s *CryptoService) RotateKeys(ctx context.Context, actor domain.Actor) (domain.RotationReport, error) {
	now := s.clock()
	var report domain.RotationReport

	keys, err := s.keys.List(ctx)
	if err != nil {
		return report, fmt.Errorf("list keys: %w", err)
	}
	for _, key := range keys {
		if key.Expired(now) {
			report.ExpiredKeys = append(report.ExpiredKeys, key.KeyID)
			continue
		}
		if key.ExpiresAt.Sub(now) > s.rotationThreshold {
			continue
		}
		replacement, material, err := s.mintDataKey(ctx)
		crypto.Zero(material)
		if err != nil {
			report.Errors = append(report.Errors, domain.RotationError{KeyID: key.KeyID, Err: err.Error()})
			continue
		}
		deprecated := key
		deprecated.ExpiresAt = now.Add(-24 * time.Hour)
		if err := s.keys.Update(ctx, deprecated); err != nil {
			report.Errors = append(report.Errors, domain.RotationError{KeyID: key.KeyID, Err: err.Error()})
			continue
		}
		report.RotatedKeys = append(report.RotatedKeys, domain.RotatedKey{
			OldKeyID:  key.KeyID,
			NewKeyID:  replacement.KeyID,
			RotatedAt: now,
		})
		s.log.WithFields(logrus.Fields{"old_key_id": key.KeyID, "new_key_id": replacement.KeyID}).Info("data key rotated")
	}

	if err := s.emit(ctx, AuditInput{
		Type:     domain.AuditEventKeyRotated,
		Action:   "rotate_keys",
		Actor:    actor,
		Severity: domain.SeverityMedium,
		Details: map[string]any{
			"rotated": len(report.RotatedKeys),
			"expired": len(report.ExpiredKeys),
			"errors":  len(report.Errors),
		},
	}); err != nil {
		return report, err
	}
	return report, nil
}

func (s *CryptoService) encrypt(ctx context.Context, plaintext []byte) ([]byte, string, error) {
	key, material, err := s.mintDataKey(ctx)
	if err != nil {
		return nil, "", err
	}
	defer crypto.Zero(material)

	sealed, err := crypto.EncryptPayload(material, plaintext)
	if err != nil {
		return nil, "", err
	}
	wrapped, err := s.keys.Get(ctx, key.KeyID)
	if err != nil {
		return nil, "", err
	}
	return crypto.BuildEnvelope(wrapped.Wrapped, sealed), key.KeyID, nil
}

func (s *CryptoService) decrypt(ctx context.Context, envelope []byte, keyID string) ([]byte, error) {
	if _, err := s.keys.Get(ctx, keyID); err != nil {
		return nil, err
	}
	wrappedBlob, sealed, err := crypto.SplitEnvelope(s.master, envelope)
	if err != nil {
		return nil, err
	}
	material, err := crypto.UnwrapKey(s.master, wrappedBlob)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(material)
	return crypto.DecryptPayload(material, sealed)
}

// mintDataKey generates, wraps and persists a fresh key, returning its
// metadata and the plaintext material. Callers own zeroing the material.
func (s *CryptoService) mintDataKey(ctx context.Context) (domain.EncryptionKey, []byte, error) {
	material, err := crypto.NewDataKeyMaterial()
	if err != nil {
		return domain.EncryptionKey{}, nil, err
	}
	wrappedBlob, err := crypto.WrapKey(s.master, material)
	if err != nil {
		crypto.Zero(material)
		return domain.EncryptionKey{}, nil, err
	}
	now := s.clock()
	key := domain.EncryptionKey{
		KeyID:     "dek_" + uuid.NewString(),
		Algorithm: domain.KeyAlgorithmAES256,
		CreatedAt: now,
		ExpiresAt: now.Add(s.rotationPeriod),
		Version:   1,
	}
	if err := s.keys.Save(ctx, domain.WrappedKey{EncryptionKey: key, Wrapped: wrappedBlob}); err != nil {
		crypto.Zero(material)
		return domain.EncryptionKey{}, nil, fmt.Errorf("persist wrapped key: %w", err)
	}
	return key, material, nil
}

func (s *CryptoService) openPIIField(ctx context.Context, sub map[string]any) ([]byte, error) {
	keyID, _ := sub[piiKeyIDKey].(string)
	encoded, _ := sub[piiValueKey].(string)
	if keyID == "" || encoded == "" {
		return nil, domain.ErrInvalidEnvelope
	}
	envelope, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Join(domain.ErrInvalidEnvelope, err)
	}
	return s.decrypt(ctx, envelope, keyID)
}

func (s *CryptoService) emit(ctx context.Context, input AuditInput) error {
	if s.audit == nil {
		return nil
	}
	_, err := s.audit.LogEvent(ctx, input)
	return err
}

func encryptedSubDocument(value any) (map[string]any, bool) {
	sub, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	marker, ok := sub[piiMarkerKey].(bool)
	if !ok || !marker {
		return nil, false
	}
	return sub, true
}

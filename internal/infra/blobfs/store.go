// Package blobfs is a content-addressed object store on the local
// filesystem. Content lives at evidence/{hash[0:2]}/{hash}, metadata in a
// JSON sidecar at metadata/{object_id}.json, and WORM state is a one-way
// transition backed by an exclusively-created marker file so concurrent
// lock attempts resolve to exactly one winner.
package blobfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"custodia/internal/domain"
)

// HoldChecker answers whether a case is frozen by an active legal hold.
// The audit ledger implements it; Delete consults it before removing
// anything tagged with a case.
type HoldChecker interface {
	IsHoldActive(ctx context.Context, caseID string) (bool, error)
}

type Options struct {
	Holds  HoldChecker
	Clock  func() time.Time
	Logger *logrus.Logger
}

type Store struct {
	basePath     string
	evidencePath string
	metadataPath string

	holds HoldChecker
	clock func() time.Time
	log   *logrus.Logger

	// Guards sidecar rewrites. The WORM marker is the cross-process CAS;
	// the mutex keeps in-process metadata mutations from interleaving.
	mu sync.Mutex
}

func Open(basePath string, opts Options) (*Store, error) {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	s := &Store{
		basePath:     basePath,
		evidencePath: filepath.Join(basePath, "evidence"),
		metadataPath: filepath.Join(basePath, "metadata"),
		holds:        opts.Holds,
		clock:        opts.Clock,
		log:          opts.Logger,
	}
	for _, dir := range []string{s.evidencePath, s.metadataPath} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, &domain.StorageError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	return s, nil
}

// SetHoldChecker wires the legal-hold registry after construction; the
// ledger and the store reference each other, so one side attaches late.
func (s *Store) SetHoldChecker(holds HoldChecker) {
	s.holds = holds
}

// Put stores content under its SHA-256 address. A second put of identical
// bytes is a no-op beyond merging the caller's tags into the sidecar.
func (s *Store) Put(ctx context.Context, data []byte, contentType string, tags map[string]string) (string, error) {
	sum := sha256.Sum256(data)
	objectID := hex.EncodeToString(sum[:])

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, err := s.loadMetadata(objectID); err == nil {
		merged := false
		for k, v := range tags {
			if existing.Tags[k] != v {
				existing.Tags[k] = v
				merged = true
			}
		}
		if merged {
			if err := s.saveMetadata(existing); err != nil {
				return "", err
			}
		}
		s.log.WithFields(logrus.Fields{"object_id": objectID}).Debug("put deduplicated")
		return objectID, nil
	} else if !errors.Is(err, domain.ErrObjectNotFound) {
		return "", err
	}

	contentPath := s.contentPath(objectID)
	if err := os.MkdirAll(filepath.Dir(contentPath), 0o700); err != nil {
		return "", &domain.StorageError{Op: "mkdir", Path: filepath.Dir(contentPath), Err: err}
	}
	if err := writeFileAtomic(contentPath, data); err != nil {
		return "", &domain.StorageError{Op: "put", Path: contentPath, Err: err}
	}

	if tags == nil {
		tags = map[string]string{}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	meta := domain.StoredObject{
		ObjectID:    objectID,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		CreatedAt:   s.clock().UTC(),
		Checksum:    objectID,
		Tags:        tags,
		WormLocked:  false,
	}
	if err := s.saveMetadata(meta); err != nil {
		return "", err
	}

	s.log.WithFields(logrus.Fields{
		"object_id":  objectID,
		"size_bytes": len(data),
	}).Info("object stored")
	return objectID, nil
}

// Get reads content and re-verifies its hash against the object ID.
// A disagreement is corruption, reported as a StorageError wrapping
// ErrChecksumMismatch, never returned as data.
func (s *Store) Get(ctx context.Context, objectID string) ([]byte, error) {
	if _, err := s.Metadata(ctx, objectID); err != nil {
		return nil, err
	}
	contentPath := s.contentPath(objectID)
	data, err := os.ReadFile(contentPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrObjectNotFound
		}
		return nil, &domain.StorageError{Op: "get", Path: contentPath, Err: err}
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != objectID {
		return nil, &domain.StorageError{Op: "get", Path: contentPath, Err: domain.ErrChecksumMismatch}
	}
	return data, nil
}

// Metadata returns the sidecar without touching the payload.
func (s *Store) Metadata(ctx context.Context, objectID string) (domain.StoredObject, error) {
	return s.loadMetadata(objectID)
}

// ApplyWormLock transitions an object to LOCKED exactly once. The marker
// file is created with O_EXCL, so of two racing callers one succeeds and
// the other observes ErrWormLocked. The store lock is held for the whole
// transition so a concurrent Delete cannot slip between the metadata read
// and the marker create and leave a locked sidecar behind for content
// that is already gone.
func (s *Store) ApplyWormLock(ctx context.Context, objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.loadMetadata(objectID)
	if err != nil {
		return err
	}
	if meta.WormLocked {
		return domain.ErrWormLocked
	}

	markerPath := s.markerPath(objectID)
	marker, err := os.OpenFile(markerPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return domain.ErrWormLocked
		}
		return &domain.StorageError{Op: "lock", Path: markerPath, Err: err}
	}
	if err := marker.Close(); err != nil {
		return &domain.StorageError{Op: "lock", Path: markerPath, Err: err}
	}

	meta.WormLocked = true
	if err := s.saveMetadata(meta); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"object_id": objectID}).Info("worm lock applied")
	return nil
}

// Delete removes content and sidecar. It refuses WORM-locked objects and
// objects whose case is under an active legal hold; a missing object is
// (false, nil), not an error.
func (s *Store) Delete(ctx context.Context, objectID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.loadMetadata(objectID)
	if err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			return false, nil
		}
		return false, err
	}
	if meta.WormLocked {
		return false, domain.ErrWormLocked
	}
	if s.holds != nil {
		if caseID := meta.CaseID(); caseID != "" {
			held, err := s.holds.IsHoldActive(ctx, caseID)
			if err != nil {
				return false, err
			}
			if held {
				return false, domain.ErrHoldActive
			}
		}
	}

	contentPath := s.contentPath(objectID)
	if err := os.Remove(contentPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, &domain.StorageError{Op: "delete", Path: contentPath, Err: err}
	}
	sidecarPath := s.sidecarPath(objectID)
	if err := os.Remove(sidecarPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, &domain.StorageError{Op: "delete", Path: sidecarPath, Err: err}
	}
	s.log.WithFields(logrus.Fields{"object_id": objectID}).Info("object deleted")
	return true, nil
}

// List returns metadata for objects whose ID starts with prefix, in
// lexical object-ID order, up to limit. There is no cursor; a caller
// restarts with a fresh prefix query.
func (s *Store) List(ctx context.Context, prefix string, limit int) ([]domain.StoredObject, error) {
	entries, err := os.ReadDir(s.metadataPath)
	if err != nil {
		return nil, &domain.StorageError{Op: "list", Path: s.metadataPath, Err: err}
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(names)

	out := make([]domain.StoredObject, 0)
	for _, objectID := range names {
		if limit > 0 && len(out) >= limit {
			break
		}
		if prefix != "" && !strings.HasPrefix(objectID, prefix) {
			continue
		}
		meta, err := s.loadMetadata(objectID)
		if err != nil {
			s.log.WithFields(logrus.Fields{"object_id": objectID}).
				WithError(err).Warn("skipping unreadable sidecar")
			continue
		}
		out = append(out, meta)
	}
	return out, nil
}

// Stats walks the sidecars and summarizes the store.
func (s *Store) Stats(ctx context.Context) (domain.StorageStats, error) {
	objects, err := s.List(ctx, "", 0)
	if err != nil {
		return domain.StorageStats{}, err
	}
	var stats domain.StorageStats
	for _, meta := range objects {
		stats.TotalObjects++
		stats.TotalBytes += meta.SizeBytes
		if meta.WormLocked {
			stats.WormLocked++
		}
	}
	return stats, nil
}

// HealthCheck probes that the base path is writable.
func (s *Store) HealthCheck(ctx context.Context) error {
	probe := filepath.Join(s.basePath, ".health")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return &domain.StorageError{Op: "health", Path: probe, Err: err}
	}
	if err := os.Remove(probe); err != nil {
		return &domain.StorageError{Op: "health", Path: probe, Err: err}
	}
	return nil
}

func (s *Store) contentPath(objectID string) string {
	return filepath.Join(s.evidencePath, objectID[:2], objectID)
}

func (s *Store) sidecarPath(objectID string) string {
	return filepath.Join(s.metadataPath, objectID+".json")
}

func (s *Store) markerPath(objectID string) string {
	return filepath.Join(s.metadataPath, objectID+".worm")
}

func (s *Store) loadMetadata(objectID string) (domain.StoredObject, error) {
	if len(objectID) != 64 {
		return domain.StoredObject{}, domain.ErrObjectNotFound
	}
	sidecarPath := s.sidecarPath(objectID)
	raw, err := os.ReadFile(sidecarPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.StoredObject{}, domain.ErrObjectNotFound
		}
		return domain.StoredObject{}, &domain.StorageError{Op: "metadata", Path: sidecarPath, Err: err}
	}
	var meta domain.StoredObject
	if err := json.Unmarshal(raw, &meta); err != nil {
		return domain.StoredObject{}, &domain.StorageError{Op: "metadata", Path: sidecarPath, Err: err}
	}
	// The marker is authoritative even when a crash interrupted the
	// sidecar rewrite.
	if !meta.WormLocked {
		if _, err := os.Stat(s.markerPath(objectID)); err == nil {
			meta.WormLocked = true
		}
	}
	if meta.Tags == nil {
		meta.Tags = map[string]string{}
	}
	return meta, nil
}

func (s *Store) saveMetadata(meta domain.StoredObject) error {
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return &domain.StorageError{Op: "metadata", Path: meta.ObjectID, Err: err}
	}
	sidecarPath := s.sidecarPath(meta.ObjectID)
	if err := writeFileAtomic(sidecarPath, raw); err != nil {
		return &domain.StorageError{Op: "metadata", Path: sidecarPath, Err: err}
	}
	return nil
}

// writeFileAtomic writes to a temp file in the target directory and
// renames it into place, so a torn write never leaves a hash-labeled
// path with wrong content.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

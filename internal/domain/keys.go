package domain

import "time"

const KeyAlgorithmAES256 = "AES-256"

// EncryptionKey is data-key metadata. Key material is never part of this
// struct; it lives only inside the crypto service for the duration of a
// single encrypt or decrypt call.
type EncryptionKey struct {
	KeyID     string
	Algorithm string
	CreatedAt time.Time
	ExpiresAt time.Time
	Version   int
}

func (k EncryptionKey) Expired(now time.Time) bool {
	if k.ExpiresAt.IsZero() {
		return false
	}
	return now.After(k.ExpiresAt)
}

// WrappedKey is the persisted form of a data key: metadata plus the key
// material sealed under the master key.
type WrappedKey struct {
	EncryptionKey
	Wrapped []byte
}

type RotatedKey struct {
	OldKeyID  string
	NewKeyID  string
	RotatedAt time.Time
}

type RotationError struct {
	KeyID string
	Err   string
}

// RotationReport lists what a rotation pass did. Rotation deprecates old
// keys; it never re-encrypts payloads sealed under them.
type RotationReport struct {
	RotatedKeys []RotatedKey
	ExpiredKeys []string
	Errors      []RotationError
}

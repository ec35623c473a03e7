package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"custodia/internal/domain"
)

// Wrap suites for sealing data keys under the master key. Payloads are
// always AES-256-GCM; the wrap suite only governs the key blob.
const (
	SuiteAESGCM   = "aes-gcm"
	SuiteXChaCha  = "xchacha20"
	DataKeyLength = 32
)

// NewMasterAEAD builds the key-wrapping AEAD for a 256-bit master key.
func NewMasterAEAD(suite string, masterKey []byte) (cipher.AEAD, error) {
	if len(masterKey) != DataKeyLength {
		return nil, fmt.Errorf("invalid master key length: expected %d bytes, got %d", DataKeyLength, len(masterKey))
	}
	switch suite {
	case SuiteAESGCM:
		block, err := aes.NewCipher(masterKey)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case SuiteXChaCha:
		return chacha20poly1305.NewX(masterKey)
	default:
		return nil, fmt.Errorf("unsupported wrap suite: %q", suite)
	}
}

// WrapKey seals data-key material under the master AEAD with a fresh
// random nonce. Output is nonce || ciphertext || tag.
func WrapKey(master cipher.AEAD, keyMaterial []byte) ([]byte, error) {
	if len(keyMaterial) != DataKeyLength {
		return nil, fmt.Errorf("invalid data key length: expected %d bytes, got %d", DataKeyLength, len(keyMaterial))
	}
	nonce := make([]byte, master.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return master.Seal(nonce, nonce, keyMaterial, nil), nil
}

// UnwrapKey opens a wrapped key blob. A tag mismatch fails closed with
// domain.ErrDecryptFailed; corrupt key material is never returned.
func UnwrapKey(master cipher.AEAD, wrapped []byte) ([]byte, error) {
	if len(wrapped) != WrappedKeyLength(master) {
		return nil, domain.ErrInvalidEnvelope
	}
	nonceSize := master.NonceSize()
	keyMaterial, err := master.Open(nil, wrapped[:nonceSize], wrapped[nonceSize:], nil)
	if err != nil {
		return nil, domain.ErrDecryptFailed
	}
	return keyMaterial, nil
}

// WrappedKeyLength is fixed per suite, which lets SplitEnvelope slice an
// envelope without a length prefix.
func WrappedKeyLength(master cipher.AEAD) int {
	return master.NonceSize() + DataKeyLength + master.Overhead()
}

// EncryptPayload AES-256-GCM encrypts a payload under a data key.
// Output is nonce || ciphertext || tag.
func EncryptPayload(dataKey, plaintext []byte) ([]byte, error) {
	aead, err := payloadAEAD(dataKey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptPayload inverts EncryptPayload and fails closed on any tag or
// format mismatch.
func DecryptPayload(dataKey, blob []byte) ([]byte, error) {
	aead, err := payloadAEAD(dataKey)
	if err != nil {
		return nil, err
	}
	if len(blob) < aead.NonceSize()+aead.Overhead() {
		return nil, domain.ErrInvalidEnvelope
	}
	nonceSize := aead.NonceSize()
	plaintext, err := aead.Open(nil, blob[:nonceSize], blob[nonceSize:], nil)
	if err != nil {
		return nil, domain.ErrDecryptFailed
	}
	return plaintext, nil
}

// BuildEnvelope concatenates the persisted unit:
// wrapped_data_key || nonce || ciphertext || tag.
func BuildEnvelope(wrappedKey, sealedPayload []byte) []byte {
	envelope := make([]byte, 0, len(wrappedKey)+len(sealedPayload))
	envelope = append(envelope, wrappedKey...)
	return append(envelope, sealedPayload...)
}

// SplitEnvelope separates the wrapped key blob from the sealed payload.
func SplitEnvelope(master cipher.AEAD, envelope []byte) (wrappedKey, sealedPayload []byte, err error) {
	wrappedLen := WrappedKeyLength(master)
	if len(envelope) <= wrappedLen {
		return nil, nil, domain.ErrInvalidEnvelope
	}
	return envelope[:wrappedLen], envelope[wrappedLen:], nil
}

func payloadAEAD(dataKey []byte) (cipher.AEAD, error) {
	if len(dataKey) != DataKeyLength {
		return nil, fmt.Errorf("invalid data key length: expected %d bytes, got %d", DataKeyLength, len(dataKey))
	}
	block, err := aes.NewCipher(dataKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// NewDataKeyMaterial draws fresh 256-bit key material.
func NewDataKeyMaterial() ([]byte, error) {
	material := make([]byte, DataKeyLength)
	if _, err := io.ReadFull(rand.Reader, material); err != nil {
		return nil, err
	}
	return material, nil
}

// Zero wipes key material once a call is done with it.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

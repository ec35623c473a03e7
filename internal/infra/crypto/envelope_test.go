package crypto

import (
	"bytes"
	"errors"
	"testing"

	"custodia/internal/domain"
)

func testMasterKey() []byte {
	key := make([]byte, DataKeyLength)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestEnvelopeRoundTrip(t *testing.T) {
	for _, suite := range []string{SuiteAESGCM, SuiteXChaCha} {
		t.Run(suite, func(t *testing.T) {
			master, err := NewMasterAEAD(suite, testMasterKey())
			if err != nil {
				t.Fatalf("NewMasterAEAD: %v", err)
			}
			dataKey, err := NewDataKeyMaterial()
			if err != nil {
				t.Fatalf("NewDataKeyMaterial: %v", err)
			}
			plaintext := []byte("exhibit A: signed statement")

			sealed, err := EncryptPayload(dataKey, plaintext)
			if err != nil {
				t.Fatalf("EncryptPayload: %v", err)
			}
			wrapped, err := WrapKey(master, dataKey)
			if err != nil {
				t.Fatalf("WrapKey: %v", err)
			}
			envelope := BuildEnvelope(wrapped, sealed)

			gotWrapped, gotSealed, err := SplitEnvelope(master, envelope)
			if err != nil {
				t.Fatalf("SplitEnvelope: %v", err)
			}
			if !bytes.Equal(gotWrapped, wrapped) {
				t.Fatal("wrapped key did not survive the envelope")
			}
			unwrapped, err := UnwrapKey(master, gotWrapped)
			if err != nil {
				t.Fatalf("UnwrapKey: %v", err)
			}
			got, err := DecryptPayload(unwrapped, gotSealed)
			if err != nil {
				t.Fatalf("DecryptPayload: %v", err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Fatalf("round trip mismatch: got %q", got)
			}
		})
	}
}

func TestEnvelopeBitFlipFailsClosed(t *testing.T) {
	master, err := NewMasterAEAD(SuiteAESGCM, testMasterKey())
	if err != nil {
		t.Fatalf("NewMasterAEAD: %v", err)
	}
	dataKey, err := NewDataKeyMaterial()
	if err != nil {
		t.Fatalf("NewDataKeyMaterial: %v", err)
	}
	sealed, err := EncryptPayload(dataKey, []byte("chain of custody"))
	if err != nil {
		t.Fatalf("EncryptPayload: %v", err)
	}
	wrapped, err := WrapKey(master, dataKey)
	if err != nil {
		t.Fatalf("WrapKey: %v", err)
	}
	envelope := BuildEnvelope(wrapped, sealed)

	// Flipping any single byte must fail decryption, never return
	// corrupted plaintext.
	for i := range envelope {
		corrupted := make([]byte, len(envelope))
		copy(corrupted, envelope)
		corrupted[i] ^= 0x01

		gotWrapped, gotSealed, err := SplitEnvelope(master, corrupted)
		if err != nil {
			continue
		}
		unwrapped, err := UnwrapKey(master, gotWrapped)
		if err != nil {
			if !errors.Is(err, domain.ErrDecryptFailed) {
				t.Fatalf("byte %d: unexpected unwrap error %v", i, err)
			}
			continue
		}
		if _, err := DecryptPayload(unwrapped, gotSealed); err == nil {
			t.Fatalf("byte %d: corrupted envelope decrypted", i)
		}
	}
}

func TestWrapKeyFreshNonce(t *testing.T) {
	master, err := NewMasterAEAD(SuiteAESGCM, testMasterKey())
	if err != nil {
		t.Fatalf("NewMasterAEAD: %v", err)
	}
	dataKey, err := NewDataKeyMaterial()
	if err != nil {
		t.Fatalf("NewDataKeyMaterial: %v", err)
	}
	first, err := WrapKey(master, dataKey)
	if err != nil {
		t.Fatalf("WrapKey: %v", err)
	}
	second, err := WrapKey(master, dataKey)
	if err != nil {
		t.Fatalf("WrapKey: %v", err)
	}
	if bytes.Equal(first, second) {
		t.Fatal("two wraps of the same key produced identical blobs")
	}
	if len(first) != WrappedKeyLength(master) {
		t.Fatalf("wrapped length %d, want %d", len(first), WrappedKeyLength(master))
	}
}

func TestUnwrapKeyRejectsShortBlob(t *testing.T) {
	master, err := NewMasterAEAD(SuiteAESGCM, testMasterKey())
	if err != nil {
		t.Fatalf("NewMasterAEAD: %v", err)
	}
	if _, err := UnwrapKey(master, []byte("short")); !errors.Is(err, domain.ErrInvalidEnvelope) {
		t.Fatalf("got %v, want ErrInvalidEnvelope", err)
	}
	if _, _, err := SplitEnvelope(master, []byte("short")); !errors.Is(err, domain.ErrInvalidEnvelope) {
		t.Fatalf("got %v, want ErrInvalidEnvelope", err)
	}
}

func TestNewMasterAEADRejectsBadInput(t *testing.T) {
	if _, err := NewMasterAEAD(SuiteAESGCM, []byte("too short")); err == nil {
		t.Fatal("short master key accepted")
	}
	if _, err := NewMasterAEAD("rot13", testMasterKey()); err == nil {
		t.Fatal("unknown suite accepted")
	}
}

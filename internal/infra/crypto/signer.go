package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

// Signer holds the ledger's ed25519 keypair. Audit-event signatures are
// hex-encoded ed25519 signatures over the event checksum.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

func NewSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Signer{priv: priv, pub: pub}, nil
}

func SignerFromSeedHex(seedHex string) (*Signer, error) {
	raw, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, errors.New("invalid ledger key seed hex")
	}
	return signerFromRaw(raw)
}

func SignerFromBase64(encoded string) (*Signer, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.New("invalid ledger key base64")
	}
	return signerFromRaw(raw)
}

func signerFromRaw(raw []byte) (*Signer, error) {
	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	default:
		return nil, errors.New("invalid ed25519 private key length")
	}
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

func (s *Signer) Sign(data []byte) string {
	return hex.EncodeToString(ed25519.Sign(s.priv, data))
}

func (s *Signer) Verify(data []byte, sigHex string) bool {
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(s.pub, data, sig)
}

func (s *Signer) PublicKey() []byte {
	out := make([]byte, len(s.pub))
	copy(out, s.pub)
	return out
}

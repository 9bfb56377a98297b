package ticket

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/ed25519"
)

// SignatureService signs and verifies ticket bodies. A verify-only
// instance carries no private key and refuses to sign.
type SignatureService interface {
	Sign(msg []byte) ([]byte, error)
	Verify(msg, sig []byte) bool
	PublicKey() []byte
}

// Ed25519Service is the stock SignatureService.
type Ed25519Service struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewEd25519Service generates a fresh signing keypair.
func NewEd25519Service() (*Ed25519Service, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Ed25519Service{priv: priv, pub: pub}, nil
}

// LoadEd25519Service rebuilds a service from a stored private key.
func LoadEd25519Service(priv ed25519.PrivateKey) *Ed25519Service {
	return &Ed25519Service{priv: priv, pub: priv.Public().(ed25519.PublicKey)}
}

// NewEd25519Verifier wraps a public key into a verify-only service.
func NewEd25519Verifier(pub []byte) *Ed25519Service {
	return &Ed25519Service{pub: ed25519.PublicKey(pub)}
}

func (s *Ed25519Service) Sign(msg []byte) ([]byte, error) {
	if s.priv == nil {
		return nil, errors.New("ticket: verify-only signature service")
	}
	return ed25519.Sign(s.priv, msg), nil
}

func (s *Ed25519Service) Verify(msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(s.pub, msg, sig)
}

func (s *Ed25519Service) PublicKey() []byte {
	return append([]byte(nil), s.pub...)
}

// PrivateKey exposes the raw key for persistence under seal-wrapped
// storage. Nil for verify-only services.
func (s *Ed25519Service) PrivateKey() []byte {
	return append([]byte(nil), s.priv...)
}

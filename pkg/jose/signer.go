package jose

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
)

// ErrKeyNotFound is returned when the signer holds no private key for the
// requested public key.
var ErrKeyNotFound = errors.New("signing key not found")

// SignRequest is the input of a signing operation. Key is the public half of
// the key to sign with; Headers become the protected JWS header.
type SignRequest struct {
	Payload   []byte
	Key       jwk.Key
	Algorithm string
	Headers   map[string]interface{}
}

// Signer produces compact JWS signatures. Implementations keep private key
// material to themselves.
type Signer interface {
	// SupportedAlgorithms lists the JWA algorithms this signer can produce.
	SupportedAlgorithms() []string
	// Sign signs the payload with the private key matching req.Key.
	Sign(ctx context.Context, req SignRequest) (string, error)
}

// MemorySigner keeps private keys in process memory, indexed by the SHA-256
// JWK thumbprint of their public key.
type MemorySigner struct {
	mu   sync.RWMutex
	keys map[string]crypto.Signer
}

var memorySignerAlgorithms = []string{AlgEdDSA, AlgES256, AlgES384}

// NewMemorySigner creates an empty MemorySigner
func NewMemorySigner() *MemorySigner {
	return &MemorySigner{keys: make(map[string]crypto.Signer)}
}

// SupportedAlgorithms lists the algorithms the held keys can produce, in
// preference order. An empty signer supports none.
func (s *MemorySigner) SupportedAlgorithms() []string {
	s.mu.RLock()
	held := make(map[KeyType]bool, len(s.keys))
	for _, priv := range s.keys {
		if kt, err := keyTypeOfRaw(priv.Public()); err == nil {
			held[kt] = true
		}
	}
	s.mu.RUnlock()

	var algs []string
	for _, alg := range memorySignerAlgorithms {
		if held[algorithmKeyTypes[alg]] {
			algs = append(algs, alg)
		}
	}
	return algs
}

// GenerateKey creates a new private key suited for alg and returns its public JWK.
func (s *MemorySigner) GenerateKey(alg string) (jwk.Key, error) {
	var priv crypto.Signer
	var err error
	switch alg {
	case AlgEdDSA:
		_, priv, err = ed25519.GenerateKey(rand.Reader)
	case AlgES256:
		priv, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case AlgES384:
		priv, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", alg)
	}
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return s.AddKey(priv)
}

// AddKey registers an existing private key and returns its public JWK.
func (s *MemorySigner) AddKey(priv crypto.Signer) (jwk.Key, error) {
	pub, err := jwk.FromRaw(priv.Public())
	if err != nil {
		return nil, fmt.Errorf("converting public key: %w", err)
	}
	thumbprint, err := Thumbprint(pub)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.keys[thumbprint] = priv
	s.mu.Unlock()
	return pub, nil
}

func (s *MemorySigner) Sign(ctx context.Context, req SignRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Key == nil {
		return "", errors.New("no key given")
	}
	if !KeySupportsAlgorithm(req.Key, req.Algorithm) {
		return "", fmt.Errorf("key cannot sign with %s", req.Algorithm)
	}
	thumbprint, err := Thumbprint(req.Key)
	if err != nil {
		return "", err
	}
	s.mu.RLock()
	priv, ok := s.keys[thumbprint]
	s.mu.RUnlock()
	if !ok {
		return "", ErrKeyNotFound
	}

	headers := jws.NewHeaders()
	for k, v := range req.Headers {
		if err := headers.Set(k, v); err != nil {
			return "", fmt.Errorf("setting header %s: %w", k, err)
		}
	}
	signed, err := jws.Sign(req.Payload, jws.WithKey(jwa.SignatureAlgorithm(req.Algorithm), priv, jws.WithProtectedHeaders(headers)))
	if err != nil {
		return "", fmt.Errorf("signing: %w", err)
	}
	return string(signed), nil
}

// Thumbprint returns the base64url SHA-256 JWK thumbprint of key.
func Thumbprint(key jwk.Key) (string, error) {
	pub, err := key.PublicKey()
	if err != nil {
		return "", fmt.Errorf("deriving public key: %w", err)
	}
	tp, err := pub.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("computing thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(tp), nil
}

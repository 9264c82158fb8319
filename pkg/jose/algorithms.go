// Package jose maps JOSE signature algorithms onto key types and signature
// suites, and provides an in-memory Signer for holder and verifier keys.
package jose

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// KeyType names the key material an algorithm signs with.
type KeyType string

const (
	KeyTypeEd25519   KeyType = "Ed25519"
	KeyTypeP256      KeyType = "P-256"
	KeyTypeP384      KeyType = "P-384"
	KeyTypeSecp256k1 KeyType = "secp256k1"
)

// Algorithms supported by MemorySigner, in preference order.
const (
	AlgEdDSA = "EdDSA"
	AlgES256 = "ES256"
	AlgES384 = "ES384"
)

var algorithmKeyTypes = map[string]KeyType{
	AlgEdDSA: KeyTypeEd25519,
	AlgES256: KeyTypeP256,
	AlgES384: KeyTypeP384,
	"ES256K": KeyTypeSecp256k1,
}

// Linked data signature suites per key type. The first entry is the one
// used when matching against an issuer's declared suites.
var signatureSuites = map[KeyType][]string{
	KeyTypeEd25519:   {"Ed25519Signature2018", "Ed25519Signature2020"},
	KeyTypeP256:      {"EcdsaSecp256r1Signature2019"},
	KeyTypeSecp256k1: {"EcdsaSecp256k1Signature2019"},
}

// KeyTypeForAlgorithm returns the key type a JWA signature algorithm uses.
func KeyTypeForAlgorithm(alg string) (KeyType, bool) {
	kt, ok := algorithmKeyTypes[alg]
	return kt, ok
}

// ProofTypeForKeyType returns the preferred linked data proof type for a key type.
func ProofTypeForKeyType(kt KeyType) (string, bool) {
	suites := signatureSuites[kt]
	if len(suites) == 0 {
		return "", false
	}
	return suites[0], true
}

// ProofTypeForAlgorithm combines KeyTypeForAlgorithm and ProofTypeForKeyType.
func ProofTypeForAlgorithm(alg string) (string, bool) {
	kt, ok := KeyTypeForAlgorithm(alg)
	if !ok {
		return "", false
	}
	return ProofTypeForKeyType(kt)
}

// KeyTypeOf inspects a JWK and reports its key type.
func KeyTypeOf(key jwk.Key) (KeyType, error) {
	raw, err := jwk.PublicRawKeyOf(key)
	if err != nil {
		return "", fmt.Errorf("extracting public key: %w", err)
	}
	return keyTypeOfRaw(raw)
}

func keyTypeOfRaw(raw interface{}) (KeyType, error) {
	switch k := raw.(type) {
	case ed25519.PublicKey:
		return KeyTypeEd25519, nil
	case *ed25519.PublicKey:
		return KeyTypeEd25519, nil
	case *ecdsa.PublicKey:
		switch k.Curve.Params().Name {
		case "P-256":
			return KeyTypeP256, nil
		case "P-384":
			return KeyTypeP384, nil
		}
		return "", fmt.Errorf("unsupported curve %s", k.Curve.Params().Name)
	case ecdsa.PublicKey:
		return keyTypeOfRaw(&k)
	default:
		return "", fmt.Errorf("unsupported key type %T", raw)
	}
}

// KeySupportsAlgorithm reports whether key can produce alg signatures.
func KeySupportsAlgorithm(key jwk.Key, alg string) bool {
	want, ok := KeyTypeForAlgorithm(alg)
	if !ok {
		return false
	}
	got, err := KeyTypeOf(key)
	if err != nil {
		return false
	}
	return got == want
}

package didresolver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
	ssi "github.com/nuts-foundation/go-did"
	"github.com/nuts-foundation/go-did/did"
)

// JWKMethod is the did:jwk method name.
const JWKMethod = "jwk"

var _ Resolver = (*JWKResolver)(nil)

// JWKResolver resolves did:jwk DIDs.
type JWKResolver struct{}

// NewJWKResolver creates a new JWKResolver.
func NewJWKResolver() *JWKResolver {
	return &JWKResolver{}
}

func (r *JWKResolver) Resolve(_ context.Context, id did.DID) (*did.Document, error) {
	if id.Method != JWKMethod {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotSupported, id.Method)
	}
	encodedJWK, err := base64.RawURLEncoding.DecodeString(id.ID)
	if err != nil {
		return nil, fmt.Errorf("did:jwk: invalid base64url: %w", err)
	}
	key, err := jwk.ParseKey(encodedJWK)
	if err != nil {
		return nil, fmt.Errorf("did:jwk: failed to parse JWK: %w", err)
	}
	if isPrivateKey(key) {
		return nil, fmt.Errorf("did:jwk: private keys are forbidden")
	}
	publicRawKey, err := jwk.PublicRawKeyOf(key)
	if err != nil {
		return nil, fmt.Errorf("did:jwk: failed to get public key: %w", err)
	}

	keyID := did.DIDURL{DID: id, Fragment: "0"}
	vm, err := did.NewVerificationMethod(keyID, ssi.JsonWebKey2020, id, publicRawKey)
	if err != nil {
		return nil, fmt.Errorf("did:jwk: failed to create verification method: %w", err)
	}
	document := did.Document{ID: id}
	document.AddAssertionMethod(vm)
	document.AddAuthenticationMethod(vm)
	return &document, nil
}

// NewDIDJWK encodes the public part of key as a did:jwk DID.
func NewDIDJWK(key jwk.Key) (*did.DID, error) {
	pub, err := key.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("did:jwk: deriving public key: %w", err)
	}
	data, err := json.Marshal(pub)
	if err != nil {
		return nil, fmt.Errorf("did:jwk: marshalling key: %w", err)
	}
	return did.ParseDID("did:jwk:" + base64.RawURLEncoding.EncodeToString(data))
}

func isPrivateKey(key jwk.Key) bool {
	switch key.(type) {
	case jwk.ECDSAPrivateKey, jwk.OKPPrivateKey, jwk.RSAPrivateKey:
		return true
	}
	return false
}

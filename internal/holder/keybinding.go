package holder

import (
	"context"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/samber/lo"

	"github.com/sirosfoundation/go-oid4vc/internal/didresolver"
	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

// KeyBindingResolver binds every credential to a single holder key, either
// through its did:jwk identifier or as a bare JWK.
type KeyBindingResolver struct {
	key    jwk.Key
	didURL string
}

// NewKeyBindingResolver creates a KeyBindingResolver for the public key key
func NewKeyBindingResolver(key jwk.Key) (*KeyBindingResolver, error) {
	pub, err := key.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("deriving public key: %w", err)
	}
	id, err := didresolver.NewDIDJWK(pub)
	if err != nil {
		return nil, err
	}
	return &KeyBindingResolver{key: pub, didURL: id.String() + "#0"}, nil
}

// DIDURL returns the verification method the did:jwk binding references
func (r *KeyBindingResolver) DIDURL() string {
	return r.didURL
}

func (r *KeyBindingResolver) ResolveBinding(_ context.Context, req BindingRequest) (CredentialBinding, error) {
	requirement := req.Requirement
	if requirement.PreferredBinding() == BindingJWK {
		return JWKBinding(r.key), nil
	}
	if requirement.SupportsAllDIDMethods || requirement.SupportedDIDMethods == nil ||
		lo.Contains(requirement.SupportedDIDMethods, oid4vc.DIDPrefix+didresolver.JWKMethod) {
		return DIDBinding(r.didURL), nil
	}
	if requirement.SupportsJWK {
		return JWKBinding(r.key), nil
	}
	return CredentialBinding{}, oid4vc.Errorf(oid4vc.ErrBindingMismatch,
		"credential %s accepts DID methods %v, holder key is only available as did:jwk",
		req.Credential.ID, requirement.SupportedDIDMethods).WithFormat(req.Credential.Format)
}

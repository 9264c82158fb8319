package holder

import (
	"context"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/samber/lo"

	"github.com/sirosfoundation/go-oid4vc/internal/didresolver"
	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

// BindingKind tells how a credential is bound to the holder's key
type BindingKind string

const (
	BindingDID BindingKind = "did"
	BindingJWK BindingKind = "jwk"
)

// CredentialBinding identifies the holder key a credential is bound to.
// Exactly one of DIDURL and JWK is set, according to Kind.
type CredentialBinding struct {
	Kind BindingKind
	// DIDURL references a verification method, e.g. did:key:z6Mk...#z6Mk...
	DIDURL string
	// JWK is the public key
	JWK jwk.Key
}

// DIDBinding binds a credential to the verification method didURL
func DIDBinding(didURL string) CredentialBinding {
	return CredentialBinding{Kind: BindingDID, DIDURL: didURL}
}

// JWKBinding binds a credential to a bare public key
func JWKBinding(key jwk.Key) CredentialBinding {
	return CredentialBinding{Kind: BindingJWK, JWK: key}
}

// BindingRequest is the information a CredentialBindingResolver decides on
type BindingRequest struct {
	Credential  CredentialSupported
	Requirement ProofOfPossessionRequirement
}

// CredentialBindingResolver chooses the holder key a credential is bound to.
// It is supplied by the wallet integrating the engine.
type CredentialBindingResolver interface {
	ResolveBinding(ctx context.Context, req BindingRequest) (CredentialBinding, error)
}

// CredentialBindingResolverFunc adapts a function to CredentialBindingResolver
type CredentialBindingResolverFunc func(ctx context.Context, req BindingRequest) (CredentialBinding, error)

func (f CredentialBindingResolverFunc) ResolveBinding(ctx context.Context, req BindingRequest) (CredentialBinding, error) {
	return f(ctx, req)
}

// ResolveCredentialBinding asks resolver for a binding and checks that the
// issuer accepts it.
func ResolveCredentialBinding(ctx context.Context, resolver CredentialBindingResolver, requirement ProofOfPossessionRequirement, credential CredentialSupported) (CredentialBinding, error) {
	if resolver == nil {
		return CredentialBinding{}, oid4vc.Errorf(oid4vc.ErrConfiguration, "no credential binding resolver configured")
	}
	binding, err := resolver.ResolveBinding(ctx, BindingRequest{Credential: credential, Requirement: requirement})
	if err != nil {
		return CredentialBinding{}, err
	}
	if err := validateBinding(binding, requirement); err != nil {
		return CredentialBinding{}, err
	}
	return binding, nil
}

func validateBinding(binding CredentialBinding, requirement ProofOfPossessionRequirement) error {
	switch binding.Kind {
	case BindingDID:
		ref, err := didresolver.ParseKeyReference(binding.DIDURL)
		if err != nil {
			return oid4vc.Wrap(oid4vc.ErrBindingMismatch, err)
		}
		if requirement.SupportsAllDIDMethods || requirement.SupportedDIDMethods == nil {
			return nil
		}
		method := oid4vc.DIDPrefix + ref.DID.Method
		if !lo.ContainsBy(requirement.SupportedDIDMethods, func(m string) bool {
			return hasDIDPrefix(binding.DIDURL, m)
		}) {
			return oid4vc.Errorf(oid4vc.ErrBindingMismatch, "issuer supports DID methods %v, holder selected %s",
				requirement.SupportedDIDMethods, method)
		}
		return nil
	case BindingJWK:
		if binding.JWK == nil {
			return oid4vc.Errorf(oid4vc.ErrBindingMismatch, "jwk binding carries no key")
		}
		if !requirement.SupportsJWK {
			return oid4vc.Errorf(oid4vc.ErrBindingMismatch, "issuer does not support jwk binding")
		}
		return nil
	default:
		return oid4vc.Errorf(oid4vc.ErrBindingMismatch, "unknown binding kind %q", binding.Kind)
	}
}

// hasDIDPrefix reports whether didURL starts with the declared method or DID
// prefix, ending at a ':' or '#' boundary.
func hasDIDPrefix(didURL, prefix string) bool {
	if !strings.HasPrefix(didURL, prefix) {
		return false
	}
	rest := didURL[len(prefix):]
	return rest == "" || rest[0] == ':' || rest[0] == '#'
}

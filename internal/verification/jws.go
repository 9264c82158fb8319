package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/sirosfoundation/go-oid4vc/internal/didresolver"
	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

// clockSkew is tolerated when checking exp, nbf and iat.
const clockSkew = 5 * time.Minute

var errLinkedDataProof = errors.New("no linked data proof verifier is configured for ldp_vc")

// JWSCredentialVerifier verifies JWT-secured credentials whose signing key is
// referenced by a DID URL in the kid header.
//
// It does not check linked data proofs: every ldp_vc credential comes back
// Invalid. Deployments that accept ldp_vc wrap it in a CredentialVerifier
// that handles that format and hand the wrapper to NewDispatcher.
type JWSCredentialVerifier struct {
	resolver didresolver.Resolver
	now      func() time.Time
}

// NewJWSCredentialVerifier creates a JWSCredentialVerifier
func NewJWSCredentialVerifier(resolver didresolver.Resolver) *JWSCredentialVerifier {
	return &JWSCredentialVerifier{resolver: resolver, now: time.Now}
}

func (v *JWSCredentialVerifier) VerifyCredential(ctx context.Context, req CredentialRequest) (Result, error) {
	switch req.Format {
	case oid4vc.FormatJwtVcJson, oid4vc.FormatJwtVcJsonLd:
		token, err := v.verifyJWT(ctx, req.Compact)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			return Invalid(err), nil
		}
		if _, ok := token.Get("vc"); !ok {
			return Invalid(errors.New("JWT does not contain a vc claim")), nil
		}
		return Valid(), nil
	case oid4vc.FormatLdpVc:
		return Invalid(errLinkedDataProof), nil
	default:
		return Result{}, oid4vc.Errorf(oid4vc.ErrUnsupportedFormat, "cannot verify %s", req.Format).WithFormat(req.Format)
	}
}

// verifyJWT checks the signature of a compact JWT against the key referenced
// by its kid header and validates the registered time claims.
func (v *JWSCredentialVerifier) verifyJWT(ctx context.Context, compact string) (jwt.Token, error) {
	message, err := jws.ParseString(compact)
	if err != nil {
		return nil, fmt.Errorf("parsing JWS: %w", err)
	}
	if len(message.Signatures()) != 1 {
		return nil, fmt.Errorf("expected exactly one signature, got %d", len(message.Signatures()))
	}
	headers := message.Signatures()[0].ProtectedHeaders()
	kid := headers.KeyID()
	if kid == "" {
		return nil, errors.New("JWS has no kid header")
	}
	key, err := didresolver.ResolveKey(ctx, v.resolver, kid, didresolver.AssertionMethod, didresolver.Authentication)
	if err != nil {
		return nil, fmt.Errorf("resolving signing key: %w", err)
	}
	token, err := jwt.ParseString(compact,
		jwt.WithKey(headers.Algorithm(), key),
		jwt.WithClock(jwt.ClockFunc(v.now)),
		jwt.WithAcceptableSkew(clockSkew))
	if err != nil {
		return nil, fmt.Errorf("verifying JWT: %w", err)
	}
	if iss := token.Issuer(); iss != "" {
		ref, _ := didresolver.ParseKeyReference(kid)
		if ref != nil && iss != ref.DID.String() {
			return nil, fmt.Errorf("issuer %s does not control key %s", iss, kid)
		}
	}
	return token, nil
}

// verifySignature verifies a compact JWS without interpreting its payload as
// a JWT and returns the decoded payload.
func verifySignature(ctx context.Context, resolver didresolver.Resolver, compact string) (map[string]interface{}, error) {
	message, err := jws.ParseString(compact)
	if err != nil {
		return nil, fmt.Errorf("parsing JWS: %w", err)
	}
	if len(message.Signatures()) != 1 {
		return nil, fmt.Errorf("expected exactly one signature, got %d", len(message.Signatures()))
	}
	headers := message.Signatures()[0].ProtectedHeaders()
	if headers.KeyID() == "" {
		return nil, errors.New("JWS has no kid header")
	}
	key, err := didresolver.ResolveKey(ctx, resolver, headers.KeyID(), didresolver.AssertionMethod, didresolver.Authentication)
	if err != nil {
		return nil, fmt.Errorf("resolving signing key: %w", err)
	}
	payload, err := jws.Verify([]byte(compact), jws.WithKey(headers.Algorithm(), key))
	if err != nil {
		return nil, fmt.Errorf("verifying signature: %w", err)
	}
	var claims map[string]interface{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	return claims, nil
}

package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/sirosfoundation/go-oid4vc/internal/didresolver"
)

// PresentationRequest is the input of a presentation verification
type PresentationRequest struct {
	VPToken json.RawMessage
	// Challenge is the nonce the presentation must be bound to
	Challenge string
	// Domain is the verifier client_id the presentation must be addressed to
	Domain string
}

// PresentationVerifier verifies a vp_token and returns it decoded, so
// presentation submission paths can be evaluated against it.
type PresentationVerifier interface {
	VerifyPresentation(ctx context.Context, req PresentationRequest) (map[string]interface{}, error)
}

// JWTPresentationVerifier verifies vp_tokens that are JWT verifiable
// presentations signed with a key referenced by a DID URL.
type JWTPresentationVerifier struct {
	resolver didresolver.Resolver
	now      func() time.Time
	skew     time.Duration
}

// NewJWTPresentationVerifier creates a JWTPresentationVerifier
func NewJWTPresentationVerifier(resolver didresolver.Resolver) *JWTPresentationVerifier {
	return &JWTPresentationVerifier{resolver: resolver, now: time.Now, skew: clockSkew}
}

func (v *JWTPresentationVerifier) VerifyPresentation(ctx context.Context, req PresentationRequest) (map[string]interface{}, error) {
	var compact string
	if err := json.Unmarshal(req.VPToken, &compact); err != nil {
		return nil, errors.New("vp_token is not a JWT presentation")
	}
	message, err := jws.ParseString(compact)
	if err != nil {
		return nil, fmt.Errorf("parsing vp_token: %w", err)
	}
	if len(message.Signatures()) != 1 {
		return nil, fmt.Errorf("expected exactly one signature, got %d", len(message.Signatures()))
	}
	headers := message.Signatures()[0].ProtectedHeaders()
	kid := headers.KeyID()
	if kid == "" {
		return nil, errors.New("vp_token has no kid header")
	}
	key, err := didresolver.ResolveKey(ctx, v.resolver, kid, didresolver.Authentication, didresolver.AssertionMethod)
	if err != nil {
		return nil, fmt.Errorf("resolving presentation key: %w", err)
	}

	token, err := jwt.ParseString(compact,
		jwt.WithKey(headers.Algorithm(), key),
		jwt.WithClock(jwt.ClockFunc(v.now)),
		jwt.WithAcceptableSkew(v.skew),
		jwt.WithAudience(req.Domain),
		jwt.WithClaimValue("nonce", req.Challenge))
	if err != nil {
		return nil, fmt.Errorf("verifying vp_token: %w", err)
	}
	if _, ok := token.Get("vp"); !ok {
		return nil, errors.New("vp_token does not contain a vp claim")
	}
	if iss := token.Issuer(); iss != "" {
		ref, _ := didresolver.ParseKeyReference(kid)
		if ref != nil && iss != ref.DID.String() {
			return nil, fmt.Errorf("presentation issuer %s does not control key %s", iss, kid)
		}
	}

	var claims map[string]interface{}
	if err := json.Unmarshal(message.Payload(), &claims); err != nil {
		return nil, fmt.Errorf("decoding vp_token: %w", err)
	}
	return claims, nil
}

package verifier

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/sirosfoundation/go-oid4vc/internal/didresolver"
	"github.com/sirosfoundation/go-oid4vc/pkg/jose"
)

// clockSkew is tolerated when checking exp and iat.
const clockSkew = 5 * time.Minute

// verifyIDToken validates a self-issued id_token bound to session and
// returns its claims.
func (s *Service) verifyIDToken(ctx context.Context, idToken string, session *ProofRequestSession) (jwt.MapClaims, error) {
	if idToken == "" {
		return nil, errors.New("id_token is missing")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jose.AlgEdDSA, jose.AlgES256, jose.AlgES384}),
		jwt.WithAudience(session.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(s.now),
	)

	var kid string
	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(idToken, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ = token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("id_token has no kid header")
		}
		key, err := didresolver.ResolveKey(ctx, s.didResolver, kid, didresolver.Authentication)
		if err != nil {
			return nil, err
		}
		return verificationKey(key)
	})
	if err != nil {
		return nil, fmt.Errorf("validating id_token: %w", err)
	}

	iss, _ := claims.GetIssuer()
	sub, _ := claims.GetSubject()
	if iss == "" || iss != sub {
		return nil, fmt.Errorf("id_token is not self-issued: iss %q, sub %q", iss, sub)
	}
	if ref, err := didresolver.ParseKeyReference(kid); err != nil || ref.DID.String() != sub {
		return nil, fmt.Errorf("id_token key %s does not belong to subject %s", kid, sub)
	}
	if nonce, _ := claims["nonce"].(string); nonce != session.Nonce {
		return nil, errors.New("id_token nonce does not match the request")
	}
	return claims, nil
}

// verificationKey converts a JWK to the key type golang-jwt expects
func verificationKey(key jwk.Key) (interface{}, error) {
	raw, err := jwk.PublicRawKeyOf(key)
	if err != nil {
		return nil, fmt.Errorf("extracting public key: %w", err)
	}
	if k, ok := raw.(ecdsa.PublicKey); ok {
		return &k, nil
	}
	return raw, nil
}

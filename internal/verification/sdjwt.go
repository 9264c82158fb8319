package verification

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/sirosfoundation/go-oid4vc/internal/didresolver"
)

// SdJwtVerifier verifies the issuer signature of an SD-JWT VC and checks that
// every disclosure it carries is committed to by the signed payload.
type SdJwtVerifier struct {
	resolver didresolver.Resolver
}

// NewSdJwtVerifier creates an SdJwtVerifier
func NewSdJwtVerifier(resolver didresolver.Resolver) *SdJwtVerifier {
	return &SdJwtVerifier{resolver: resolver}
}

func (v *SdJwtVerifier) VerifySdJwtVc(ctx context.Context, compact string) (Result, error) {
	parts := strings.Split(compact, "~")
	if len(parts) < 2 {
		return Invalid(errors.New("SD-JWT must contain at least one '~' separator")), nil
	}
	issuerJWT, disclosures := parts[0], parts[1:]
	// The last element is either empty or a key binding JWT.
	disclosures = disclosures[:len(disclosures)-1]

	claims, err := verifySignature(ctx, v.resolver, issuerJWT)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Invalid(err), nil
	}
	if vct, _ := claims["vct"].(string); vct == "" {
		return Invalid(errors.New("SD-JWT VC has no vct claim")), nil
	}
	if alg, ok := claims["_sd_alg"]; ok && alg != "sha-256" {
		return Invalid(fmt.Errorf("unsupported _sd_alg %v", alg)), nil
	}

	digests := make(map[string]struct{})
	collectDigests(claims, digests)
	for _, disclosure := range disclosures {
		if disclosure == "" {
			return Invalid(errors.New("empty disclosure")), nil
		}
		if _, ok := digests[disclosureDigest(disclosure)]; !ok {
			return Invalid(fmt.Errorf("disclosure %s is not referenced by the credential", disclosure)), nil
		}
	}
	return Valid(), nil
}

func disclosureDigest(disclosure string) string {
	sum := sha256.Sum256([]byte(disclosure))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// collectDigests gathers digests from _sd arrays and array element
// placeholders ({"...": digest}) anywhere in the payload.
func collectDigests(value interface{}, into map[string]struct{}) {
	switch v := value.(type) {
	case map[string]interface{}:
		if sd, ok := v["_sd"].([]interface{}); ok {
			for _, d := range sd {
				if s, ok := d.(string); ok {
					into[s] = struct{}{}
				}
			}
		}
		if d, ok := v["..."].(string); ok && len(v) == 1 {
			into[d] = struct{}{}
		}
		for k, child := range v {
			if k != "_sd" {
				collectDigests(child, into)
			}
		}
	case []interface{}:
		for _, child := range v {
			collectDigests(child, into)
		}
	}
}

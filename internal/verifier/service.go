// Package verifier implements the verifier side of SIOPv2 / OpenID4VP:
// creating signed proof requests and verifying the holder's authorization
// response against the session the request was created with.
package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-oid4vc/internal/didresolver"
	"github.com/sirosfoundation/go-oid4vc/pkg/jose"
	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc/schema"
)

const (
	responseTypeIDToken = "id_token"
	responseModePost    = "post"
	defaultRequestTTL   = 10 * time.Minute
)

// Options configures a Service
type Options struct {
	Signer      jose.Signer
	DIDResolver didresolver.Resolver
	// PresentationVerifier defaults to a JWTPresentationVerifier
	PresentationVerifier PresentationVerifier
	// Sessions, when set, receives every created session
	Sessions SessionStore
	// RequestTTL bounds how long a holder may take to respond. Defaults to 10 minutes.
	RequestTTL time.Duration
	Logger     *zap.Logger
	Now        func() time.Time
}

// Service creates proof requests and verifies authorization responses. It
// keeps no per-request state of its own.
type Service struct {
	signer       jose.Signer
	didResolver  didresolver.Resolver
	presentation PresentationVerifier
	sessions     SessionStore
	requestTTL   time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates a verifier Service
func NewService(opts Options) (*Service, error) {
	if opts.Signer == nil {
		return nil, errors.New("verifier: signer is required")
	}
	if opts.DIDResolver == nil {
		return nil, errors.New("verifier: DID resolver is required")
	}
	if opts.PresentationVerifier == nil {
		opts.PresentationVerifier = NewJWTPresentationVerifier(opts.DIDResolver)
	}
	if opts.RequestTTL <= 0 {
		opts.RequestTTL = defaultRequestTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		signer:       opts.Signer,
		didResolver:  opts.DIDResolver,
		presentation: opts.PresentationVerifier,
		sessions:     opts.Sessions,
		requestTTL:   opts.RequestTTL,
		logger:       opts.Logger.Named("verifier"),
		now:          opts.Now,
	}, nil
}

// CreateProofRequest builds and signs a request object and returns it along
// with the session needed to verify the response.
func (s *Service) CreateProofRequest(ctx context.Context, opts ProofRequestOptions) (*ProofRequest, *ProofRequestSession, error) {
	if opts.RedirectURI == "" {
		return nil, nil, oid4vc.Errorf(oid4vc.ErrConfiguration, "redirect_uri is required")
	}
	ref, err := didresolver.ParseKeyReference(opts.KeyID)
	if err != nil {
		return nil, nil, oid4vc.Wrap(oid4vc.ErrConfiguration, fmt.Errorf("verifier key: %w", err))
	}
	if pd := opts.PresentationDefinition; pd != nil {
		if err := schema.ValidateValue(pd, schema.PresentationDefinition); err != nil {
			return nil, nil, oid4vc.Errorf(oid4vc.ErrConfiguration, "invalid presentation definition: %w", err)
		}
	}
	holderMetadata := DefaultHolderMetadata()
	if opts.HolderMetadata != nil {
		holderMetadata = *opts.HolderMetadata
	}

	key, err := didresolver.ResolveKey(ctx, s.didResolver, opts.KeyID, didresolver.Authentication)
	if err != nil {
		return nil, nil, oid4vc.Wrap(oid4vc.ErrConfiguration, fmt.Errorf("resolving verifier key: %w", err))
	}
	alg, err := s.signingAlgorithm(key, opts.Algorithm)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	session := &ProofRequestSession{
		ID:                     uuid.NewString(),
		Nonce:                  uuid.NewString(),
		ClientID:               ref.DID.String(),
		RedirectURI:            opts.RedirectURI,
		PresentationDefinition: opts.PresentationDefinition,
		HolderMetadata:         holderMetadata,
		SigningAlgorithm:       alg,
		KeyID:                  opts.KeyID,
		CreatedAt:              now,
		ExpiresAt:              now.Add(s.requestTTL),
	}

	claims := map[string]interface{}{
		"iss":           session.ClientID,
		"iat":           now.Unix(),
		"exp":           session.ExpiresAt.Unix(),
		"jti":           uuid.NewString(),
		"response_type": responseTypeIDToken,
		"scope":         oid4vc.ScopeOpenID,
		"response_mode": responseModePost,
		"client_id":     session.ClientID,
		"redirect_uri":  session.RedirectURI,
		"nonce":         session.Nonce,
		"state":         session.ID,
		"registration":  holderMetadata,
	}
	if session.PresentationDefinition != nil {
		claims["presentation_definition"] = session.PresentationDefinition
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding request object: %w", err)
	}
	requestObject, err := s.signer.Sign(ctx, jose.SignRequest{
		Payload:   payload,
		Key:       key,
		Algorithm: alg,
		Headers:   map[string]interface{}{"typ": "JWT", "kid": opts.KeyID},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("signing request object: %w", err)
	}

	if s.sessions != nil {
		if err := s.sessions.Put(ctx, session); err != nil {
			return nil, nil, fmt.Errorf("storing session: %w", err)
		}
	}

	query := url.Values{}
	query.Set(oid4vc.RequestParam, requestObject)
	request := &ProofRequest{
		RequestURI:    oid4vc.SIOPRequestScheme + "://?" + query.Encode(),
		RequestObject: requestObject,
		State:         session.ID,
		Nonce:         session.Nonce,
	}

	s.logger.Info("Created proof request",
		zap.String("state", session.ID),
		zap.String("client_id", session.ClientID),
		zap.Bool("presentation_definition", session.PresentationDefinition != nil))
	return request, session, nil
}

func (s *Service) signingAlgorithm(key jwk.Key, requested string) (string, error) {
	if requested != "" {
		if !lo.Contains(s.signer.SupportedAlgorithms(), requested) || !jose.KeySupportsAlgorithm(key, requested) {
			return "", oid4vc.Errorf(oid4vc.ErrNoCompatibleAlgorithm, "verifier key cannot sign with %s", requested).
				WithAlgorithm(requested)
		}
		return requested, nil
	}
	alg, ok := lo.Find(s.signer.SupportedAlgorithms(), func(alg string) bool {
		return jose.KeySupportsAlgorithm(key, alg)
	})
	if !ok {
		return "", oid4vc.Errorf(oid4vc.ErrNoCompatibleAlgorithm, "signer supports no algorithm for the verifier key")
	}
	return alg, nil
}

// VerifyAuthorizationResponse checks the holder's response against the
// session it answers. Any failed check rejects the whole response.
func (s *Service) VerifyAuthorizationResponse(ctx context.Context, resp AuthorizationResponse, session *ProofRequestSession) (*VerifiedAuthorizationResponse, error) {
	if session == nil {
		return nil, oid4vc.Errorf(oid4vc.ErrMissingContext, "no proof request session")
	}
	if session.Expired(s.now()) {
		return nil, oid4vc.Errorf(oid4vc.ErrMissingContext, "proof request session %s has expired", session.ID)
	}

	result, err := s.verify(ctx, resp, session)
	if err != nil {
		s.logger.Info("Rejected authorization response",
			zap.String("state", session.ID),
			zap.Error(err))
		if ctx.Err() != nil {
			return nil, oid4vc.Wrap(oid4vc.ErrVerification, ctx.Err())
		}
		return nil, oid4vc.Wrap(oid4vc.ErrVerification, err)
	}
	s.logger.Info("Verified authorization response", zap.String("state", session.ID))
	return result, nil
}

func (s *Service) verify(ctx context.Context, resp AuthorizationResponse, session *ProofRequestSession) (*VerifiedAuthorizationResponse, error) {
	var submission *oid4vc.PresentationSubmission
	if len(resp.PresentationSubmission) > 0 {
		parsed, err := parseSubmission(resp.PresentationSubmission)
		if err != nil {
			return nil, err
		}
		submission = parsed
	}

	idClaims, err := s.verifyIDToken(ctx, resp.IDToken, session)
	if err != nil {
		return nil, err
	}
	if resp.State != "" && resp.State != session.ID {
		return nil, errors.New("state does not match the request")
	}

	result := &VerifiedAuthorizationResponse{
		IDTokenPayload:         idClaims,
		PresentationSubmission: submission,
	}
	definition := session.PresentationDefinition
	if definition == nil {
		if len(resp.VPToken) > 0 || submission != nil {
			return nil, errors.New("vp_token was not requested")
		}
		return result, nil
	}
	if len(resp.VPToken) == 0 {
		return nil, errors.New("vp_token is missing")
	}
	if submission == nil {
		return nil, errors.New("presentation_submission is missing")
	}
	presentation, err := s.presentation.VerifyPresentation(ctx, PresentationRequest{
		VPToken:   resp.VPToken,
		Challenge: session.Nonce,
		Domain:    session.ClientID,
	})
	if err != nil {
		return nil, fmt.Errorf("verifying presentation: %w", err)
	}
	if err := checkSubmission(submission, definition, presentation); err != nil {
		return nil, err
	}
	result.Presentation = presentation
	return result, nil
}

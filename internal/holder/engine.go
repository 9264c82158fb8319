// Package holder implements the holder side of OpenID4VCI: resolving credential
// offers, running the authorization flow, negotiating proof-of-possession
// requirements and requesting credentials.
package holder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-oid4vc/internal/didresolver"
	"github.com/sirosfoundation/go-oid4vc/internal/metadata"
	"github.com/sirosfoundation/go-oid4vc/internal/verification"
	"github.com/sirosfoundation/go-oid4vc/pkg/jose"
)

// CredentialVerifier checks a received credential according to its format
type CredentialVerifier interface {
	Verify(ctx context.Context, raw json.RawMessage, format string) (verification.Result, error)
}

var _ CredentialVerifier = (*verification.Dispatcher)(nil)

// Options configures an Engine
type Options struct {
	// HTTPClient is used for every call to the issuer. Defaults to a client with a 30 second timeout.
	HTTPClient  *http.Client
	DIDResolver didresolver.Resolver
	Signer      jose.Signer
	Verifier    CredentialVerifier
	Logger      *zap.Logger
	// Now defaults to time.Now
	Now func() time.Time
}

// Engine drives holder-side issuance flows. It keeps no per-flow state, so a
// single Engine may serve any number of concurrent flows.
type Engine struct {
	httpClient  *http.Client
	metadata    *metadata.Client
	didResolver didresolver.Resolver
	signer      jose.Signer
	verifier    CredentialVerifier
	logger      *zap.Logger
	now         func() time.Time
}

// NewEngine creates a new holder Engine
func NewEngine(opts Options) (*Engine, error) {
	if opts.Signer == nil {
		return nil, errors.New("holder: signer is required")
	}
	if opts.DIDResolver == nil {
		return nil, errors.New("holder: DID resolver is required")
	}
	if opts.Verifier == nil {
		return nil, errors.New("holder: credential verifier is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger.Named("holder")
	return &Engine{
		httpClient:  opts.HTTPClient,
		metadata:    metadata.NewClient(opts.HTTPClient, logger),
		didResolver: opts.DIDResolver,
		signer:      opts.Signer,
		verifier:    opts.Verifier,
		logger:      logger,
		now:         opts.Now,
	}, nil
}

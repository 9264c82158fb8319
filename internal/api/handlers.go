package api

import (
	"errors"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-oid4vc/internal/holder"
	"github.com/sirosfoundation/go-oid4vc/internal/verifier"
	"github.com/sirosfoundation/go-oid4vc/pkg/config"
)

// Handlers aggregates all HTTP handlers
type Handlers struct {
	holder   *holder.Engine
	binding  holder.CredentialBindingResolver
	verifier *verifier.Service
	sessions verifier.SessionStore
	// verifierKeyID is the DID URL of the key request objects are signed with
	verifierKeyID string
	pending       *pendingAuthorizations
	cfg           *config.Config
	logger        *zap.Logger
}

// Dependencies are the components the handlers drive
type Dependencies struct {
	Holder        *holder.Engine
	Binding       holder.CredentialBindingResolver
	Verifier      *verifier.Service
	Sessions      verifier.SessionStore
	VerifierKeyID string
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, cfg *config.Config, logger *zap.Logger) (*Handlers, error) {
	if deps.Holder != nil && deps.Binding == nil {
		return nil, errors.New("api: holder requires a credential binding resolver")
	}
	if deps.Verifier != nil && (deps.Sessions == nil || deps.VerifierKeyID == "") {
		return nil, errors.New("api: verifier requires a session store and a key id")
	}
	return &Handlers{
		holder:        deps.Holder,
		binding:       deps.Binding,
		verifier:      deps.Verifier,
		sessions:      deps.Sessions,
		verifierKeyID: deps.VerifierKeyID,
		pending:       newPendingAuthorizations(),
		cfg:           cfg,
		logger:        logger.Named("api"),
	}, nil
}

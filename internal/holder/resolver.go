package holder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-oid4vc/internal/metadata"
	"github.com/sirosfoundation/go-oid4vc/pkg/logging"
	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

// rawOffer covers both the draft 11 and the draft 13 offer shapes
type rawOffer struct {
	CredentialIssuer           string            `json:"credential_issuer"`
	Credentials                []json.RawMessage `json:"credentials,omitempty"`
	CredentialConfigurationIDs []string          `json:"credential_configuration_ids,omitempty"`
	Grants                     struct {
		AuthorizationCode *struct {
			IssuerState         string `json:"issuer_state,omitempty"`
			AuthorizationServer string `json:"authorization_server,omitempty"`
		} `json:"authorization_code,omitempty"`
		PreAuthorizedCode *struct {
			PreAuthorizedCode   string  `json:"pre-authorized_code"`
			UserPINRequired     bool    `json:"user_pin_required,omitempty"`
			TxCode              *TxCode `json:"tx_code,omitempty"`
			AuthorizationServer string  `json:"authorization_server,omitempty"`
		} `json:"urn:ietf:params:oauth:grant-type:pre-authorized_code,omitempty"`
	} `json:"grants"`
}

// offeredCredentialObject is a draft 11 inline credential reference
type offeredCredentialObject struct {
	Format string   `json:"format"`
	Types  []string `json:"types"`
}

type rawCredentialDefinition struct {
	Context           []interface{}          `json:"@context,omitempty"`
	Type              []string               `json:"type,omitempty"`
	Types             []string               `json:"types,omitempty"`
	CredentialSubject map[string]interface{} `json:"credentialSubject,omitempty"`
}

// rawProofType is a proof_types_supported entry (draft 13)
type rawProofType struct {
	ProofSigningAlgValuesSupported []string `json:"proof_signing_alg_values_supported"`
}

// rawCredentialConfig covers a credentials_supported entry (draft 11) and a
// credential_configurations_supported value (draft 13).
type rawCredentialConfig struct {
	ID                                   string                   `json:"id,omitempty"`
	Format                               string                   `json:"format"`
	Scope                                string                   `json:"scope,omitempty"`
	CryptographicBindingMethodsSupported []string                 `json:"cryptographic_binding_methods_supported,omitempty"`
	CryptographicSuitesSupported         []string                 `json:"cryptographic_suites_supported,omitempty"`
	CredentialSigningAlgValuesSupported  []string                 `json:"credential_signing_alg_values_supported,omitempty"`
	ProofTypesSupported                  map[string]rawProofType  `json:"proof_types_supported,omitempty"`
	Types                                []string                 `json:"types,omitempty"`
	Context                              []interface{}            `json:"@context,omitempty"`
	CredentialSubject                    map[string]interface{}   `json:"credentialSubject,omitempty"`
	CredentialDefinition                 *rawCredentialDefinition `json:"credential_definition,omitempty"`
	VCT                                  string                   `json:"vct,omitempty"`
	Claims                               map[string]interface{}   `json:"claims,omitempty"`
}

// Resolve turns a credential offer reference into a ResolvedCredentialOffer.
// The reference is an openid-credential-offer:// URI carrying either
// credential_offer or credential_offer_uri, or a bare JSON offer.
func (e *Engine) Resolve(ctx context.Context, offerReference string) (*ResolvedCredentialOffer, error) {
	raw, err := e.dereferenceOffer(ctx, offerReference)
	if err != nil {
		return nil, err
	}

	var offerDoc rawOffer
	if err := json.Unmarshal(raw, &offerDoc); err != nil {
		return nil, oid4vc.Errorf(oid4vc.ErrOfferResolution, "decoding credential offer: %w", err)
	}
	if offerDoc.CredentialIssuer == "" {
		return nil, oid4vc.Errorf(oid4vc.ErrOfferResolution, "credential offer has no credential_issuer")
	}
	if len(offerDoc.Credentials) == 0 && len(offerDoc.CredentialConfigurationIDs) == 0 {
		return nil, oid4vc.Errorf(oid4vc.ErrOfferResolution, "credential offer contains no credentials")
	}

	issuerDoc, err := e.metadata.FetchIssuerMetadata(ctx, offerDoc.CredentialIssuer)
	if err != nil {
		return nil, err
	}
	entries, version, err := normalizeCredentials(issuerDoc)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, oid4vc.Errorf(oid4vc.ErrOfferResolution, "issuer declares no supported credentials").WithEndpoint(offerDoc.CredentialIssuer)
	}

	offer := CredentialOffer{CredentialIssuer: offerDoc.CredentialIssuer}
	if g := offerDoc.Grants.PreAuthorizedCode; g != nil {
		offer.PreAuthorizedCode = &PreAuthorizedCodeGrant{
			Code:                logging.Secret(g.PreAuthorizedCode),
			UserPINRequired:     g.UserPINRequired,
			TxCode:              g.TxCode,
			AuthorizationServer: g.AuthorizationServer,
		}
	}
	if g := offerDoc.Grants.AuthorizationCode; g != nil {
		offer.AuthorizationCode = &AuthorizationCodeGrant{
			IssuerState:         g.IssuerState,
			AuthorizationServer: g.AuthorizationServer,
		}
	}

	offered, err := joinOffered(offerDoc, entries)
	if err != nil {
		return nil, err
	}
	for _, c := range offered {
		offer.CredentialIDs = append(offer.CredentialIDs, c.ID)
	}

	md := IssuerMetadata{
		CredentialIssuer:                   issuerDoc.CredentialIssuer,
		CredentialEndpoint:                 issuerDoc.CredentialEndpoint,
		TokenEndpoint:                      issuerDoc.TokenEndpoint,
		AuthorizationEndpoint:              issuerDoc.AuthorizationEndpoint,
		PushedAuthorizationRequestEndpoint: issuerDoc.PushedAuthorizationRequestEndpoint,
		AuthorizationServer:                authorizationServer(issuerDoc, offer),
		Version:                            version,
	}
	for _, entry := range entries {
		if c, err := entry.toCredentialSupported(); err == nil {
			md.CredentialsSupported = append(md.CredentialsSupported, c)
		}
	}
	if err := e.completeEndpoints(ctx, &md); err != nil {
		return nil, err
	}

	e.logger.Debug("Resolved credential offer",
		zap.String("issuer", md.CredentialIssuer),
		zap.Strings("credentials", offer.CredentialIDs),
		zap.Int("version", int(version)))

	return &ResolvedCredentialOffer{
		Offer:              offer,
		Metadata:           md,
		OfferedCredentials: offered,
	}, nil
}

func (e *Engine) dereferenceOffer(ctx context.Context, reference string) (json.RawMessage, error) {
	reference = strings.TrimSpace(reference)
	if strings.HasPrefix(reference, "{") {
		return json.RawMessage(reference), nil
	}
	u, err := url.Parse(reference)
	if err != nil {
		return nil, oid4vc.Errorf(oid4vc.ErrOfferResolution, "invalid offer reference: %w", err)
	}
	query := u.Query()
	if inline := query.Get(oid4vc.CredentialOfferParam); inline != "" {
		return json.RawMessage(inline), nil
	}
	if offerURI := query.Get(oid4vc.CredentialOfferURIParam); offerURI != "" {
		return e.metadata.FetchCredentialOffer(ctx, offerURI)
	}
	return nil, oid4vc.Errorf(oid4vc.ErrOfferResolution, "offer reference carries neither %s nor %s",
		oid4vc.CredentialOfferParam, oid4vc.CredentialOfferURIParam)
}

// completeEndpoints fills endpoints the issuer metadata leaves out from the
// authorization server metadata.
func (e *Engine) completeEndpoints(ctx context.Context, md *IssuerMetadata) error {
	if md.TokenEndpoint != "" && md.AuthorizationEndpoint != "" {
		return nil
	}
	as, err := e.metadata.FetchAuthorizationServerMetadata(ctx, md.AuthorizationServer)
	if err != nil {
		if md.TokenEndpoint == "" || ctx.Err() != nil {
			return err
		}
		e.logger.Debug("Continuing without authorization server metadata",
			zap.String("authorization_server", md.AuthorizationServer),
			zap.Error(err))
		return nil
	}
	if md.TokenEndpoint == "" {
		md.TokenEndpoint = as.TokenEndpoint
	}
	if md.AuthorizationEndpoint == "" {
		md.AuthorizationEndpoint = as.AuthorizationEndpoint
	}
	if md.PushedAuthorizationRequestEndpoint == "" {
		md.PushedAuthorizationRequestEndpoint = as.PushedAuthorizationRequestEndpoint
	}
	if md.TokenEndpoint == "" {
		return oid4vc.Errorf(oid4vc.ErrMetadata, "no token endpoint declared").WithEndpoint(md.AuthorizationServer)
	}
	return nil
}

func authorizationServer(doc *metadata.IssuerMetadata, offer CredentialOffer) string {
	switch {
	case offer.AuthorizationCode != nil && offer.AuthorizationCode.AuthorizationServer != "":
		return offer.AuthorizationCode.AuthorizationServer
	case offer.PreAuthorizedCode != nil && offer.PreAuthorizedCode.AuthorizationServer != "":
		return offer.PreAuthorizedCode.AuthorizationServer
	case len(doc.AuthorizationServers) > 0:
		return doc.AuthorizationServers[0]
	case doc.AuthorizationServer != "":
		return doc.AuthorizationServer
	default:
		return doc.CredentialIssuer
	}
}

type credentialEntry struct {
	id  string
	raw rawCredentialConfig
}

// normalizeCredentials flattens credentials_supported (list or map) and
// credential_configurations_supported into entries. A list keeps the issuer's
// order, maps are sorted by id.
func normalizeCredentials(doc *metadata.IssuerMetadata) ([]credentialEntry, MetadataVersion, error) {
	var entries []credentialEntry
	version := Draft11

	if len(doc.CredentialConfigurationsSupported) > 0 {
		version = Draft13
		var configs map[string]rawCredentialConfig
		if err := json.Unmarshal(doc.CredentialConfigurationsSupported, &configs); err != nil {
			return nil, 0, oid4vc.Errorf(oid4vc.ErrMetadata, "decoding credential_configurations_supported: %w", err).
				WithEndpoint(doc.CredentialIssuer)
		}
		entries = sortedEntries(configs)
	} else if len(doc.CredentialsSupported) > 0 {
		var list []rawCredentialConfig
		if err := json.Unmarshal(doc.CredentialsSupported, &list); err == nil {
			for _, cfg := range list {
				entries = append(entries, credentialEntry{id: cfg.ID, raw: cfg})
			}
		} else {
			var configs map[string]rawCredentialConfig
			if err := json.Unmarshal(doc.CredentialsSupported, &configs); err != nil {
				return nil, 0, oid4vc.Errorf(oid4vc.ErrMetadata, "decoding credentials_supported: %w", err).
					WithEndpoint(doc.CredentialIssuer)
			}
			entries = sortedEntries(configs)
		}
	}
	return entries, version, nil
}

// sortedEntries orders map-shaped metadata by id
func sortedEntries(configs map[string]rawCredentialConfig) []credentialEntry {
	ids := lo.Keys(configs)
	sort.Strings(ids)
	return lo.Map(ids, func(id string, _ int) credentialEntry {
		return credentialEntry{id: id, raw: configs[id]}
	})
}

// joinOffered maps every offered credential onto exactly one metadata entry
func joinOffered(offer rawOffer, entries []credentialEntry) ([]CredentialSupported, error) {
	var matched []credentialEntry
	for _, id := range offer.CredentialConfigurationIDs {
		entry, err := matchByID(id, entries)
		if err != nil {
			return nil, err
		}
		matched = append(matched, entry)
	}
	for _, rawCredential := range offer.Credentials {
		var id string
		if err := json.Unmarshal(rawCredential, &id); err == nil {
			entry, err := matchByID(id, entries)
			if err != nil {
				return nil, err
			}
			matched = append(matched, entry)
			continue
		}
		var obj offeredCredentialObject
		if err := json.Unmarshal(rawCredential, &obj); err != nil {
			return nil, oid4vc.Errorf(oid4vc.ErrOfferResolution, "invalid offered credential %s", string(rawCredential))
		}
		entry, err := matchByShape(obj, entries)
		if err != nil {
			return nil, err
		}
		matched = append(matched, entry)
	}

	offered := make([]CredentialSupported, 0, len(matched))
	for _, entry := range matched {
		c, err := entry.toCredentialSupported()
		if err != nil {
			return nil, err
		}
		offered = append(offered, c)
	}
	return offered, nil
}

func matchByID(id string, entries []credentialEntry) (credentialEntry, error) {
	found := lo.Filter(entries, func(e credentialEntry, _ int) bool { return e.id == id })
	if len(found) != 1 {
		return credentialEntry{}, oid4vc.Errorf(oid4vc.ErrOfferResolution,
			"offered credential %q matches %d supported credentials", id, len(found))
	}
	return found[0], nil
}

func matchByShape(obj offeredCredentialObject, entries []credentialEntry) (credentialEntry, error) {
	found := lo.Filter(entries, func(e credentialEntry, _ int) bool {
		if e.raw.Format != obj.Format {
			return false
		}
		types := e.raw.types()
		return len(types) == len(obj.Types) && len(lo.Without(types, obj.Types...)) == 0
	})
	if len(found) != 1 {
		return credentialEntry{}, oid4vc.Errorf(oid4vc.ErrOfferResolution,
			"offered %s credential %v matches %d supported credentials", obj.Format, obj.Types, len(found))
	}
	return found[0], nil
}

func (c rawCredentialConfig) types() []string {
	if c.CredentialDefinition != nil {
		if len(c.CredentialDefinition.Type) > 0 {
			return c.CredentialDefinition.Type
		}
		return c.CredentialDefinition.Types
	}
	return c.Types
}

func (c rawCredentialConfig) context() []interface{} {
	if c.CredentialDefinition != nil && len(c.CredentialDefinition.Context) > 0 {
		return c.CredentialDefinition.Context
	}
	return c.Context
}

func (c rawCredentialConfig) credentialSubject() map[string]interface{} {
	if c.CredentialDefinition != nil && c.CredentialDefinition.CredentialSubject != nil {
		return c.CredentialDefinition.CredentialSubject
	}
	return c.CredentialSubject
}

func (e credentialEntry) toCredentialSupported() (CredentialSupported, error) {
	format, err := oid4vc.ParseFormat(e.raw.Format)
	if err != nil {
		return CredentialSupported{}, fmt.Errorf("credential %q: %w", e.id, err)
	}
	suites := e.raw.CryptographicSuitesSupported
	if suites == nil {
		suites = e.raw.CredentialSigningAlgValuesSupported
	}
	c := CredentialSupported{
		ID:                           e.id,
		Format:                       format,
		Scope:                        e.raw.Scope,
		BindingMethodsSupported:      e.raw.CryptographicBindingMethodsSupported,
		CryptographicSuitesSupported: suites,
	}
	if jwt, ok := e.raw.ProofTypesSupported[oid4vc.ProofTypeJWT]; ok {
		c.ProofSigningAlgValuesSupported = jwt.ProofSigningAlgValuesSupported
	}
	switch format {
	case oid4vc.FormatJwtVcJson:
		c.Definition = JwtVcJsonDefinition{Types: e.raw.types()}
	case oid4vc.FormatJwtVcJsonLd, oid4vc.FormatLdpVc:
		c.Definition = LinkedDataDefinition{
			Context:           e.raw.context(),
			Types:             e.raw.types(),
			CredentialSubject: e.raw.credentialSubject(),
		}
	case oid4vc.FormatSdJwtVc:
		c.Definition = SdJwtVcDefinition{VCT: e.raw.VCT, Claims: e.raw.Claims}
	}
	return c, nil
}

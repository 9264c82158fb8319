// Package didresolver resolves DID documents and dereferences the public keys
// they hold. Method-specific resolution is pluggable through Router.
package didresolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/nuts-foundation/go-did/did"
)

var (
	// ErrNotFound is returned when no DID document exists for a DID.
	ErrNotFound = errors.New("unable to find the DID document")
	// ErrMethodNotSupported is returned when no resolver is registered for a DID method.
	ErrMethodNotSupported = errors.New("DID method not supported")
	// ErrKeyNotFound is returned when a key is not found under the requested relationship.
	ErrKeyNotFound = errors.New("key not found in DID document")
)

// Resolver resolves a DID to its DID document.
type Resolver interface {
	Resolve(ctx context.Context, id did.DID) (*did.Document, error)
}

// Relationship is a DID document verification relationship.
type Relationship string

const (
	Authentication  Relationship = "authentication"
	AssertionMethod Relationship = "assertionMethod"
)

// Router dispatches resolution by DID method.
type Router struct {
	mu        sync.RWMutex
	resolvers map[string]Resolver
}

// NewRouter creates a Router with the given method resolvers registered
func NewRouter() *Router {
	return &Router{resolvers: make(map[string]Resolver)}
}

// Register adds a resolver for the given DID method, replacing any previous one.
func (r *Router) Register(method string, resolver Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[method] = resolver
}

func (r *Router) Resolve(ctx context.Context, id did.DID) (*did.Document, error) {
	r.mu.RLock()
	resolver, ok := r.resolvers[id.Method]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotSupported, id.Method)
	}
	return resolver.Resolve(ctx, id)
}

// NewDefaultRouter creates a Router that resolves did:key and did:jwk.
func NewDefaultRouter() *Router {
	r := NewRouter()
	r.Register(KeyMethod, NewKeyResolver())
	r.Register(JWKMethod, NewJWKResolver())
	return r
}

// ParseKeyReference parses a key reference of the form did:<method>:<id>#<fragment>.
func ParseKeyReference(keyID string) (*did.DIDURL, error) {
	if !strings.HasPrefix(keyID, "did:") {
		return nil, fmt.Errorf("key reference %q is not a DID", keyID)
	}
	if !strings.Contains(keyID, "#") {
		return nil, fmt.Errorf("key reference %q has no fragment", keyID)
	}
	u, err := did.ParseDIDURL(keyID)
	if err != nil {
		return nil, fmt.Errorf("invalid key reference %q: %w", keyID, err)
	}
	if u.Fragment == "" {
		return nil, fmt.Errorf("key reference %q has no fragment", keyID)
	}
	return u, nil
}

// DereferenceKey finds the verification method identified by keyID in doc,
// searching the given relationships in order.
func DereferenceKey(doc *did.Document, keyID did.DIDURL, relationships ...Relationship) (*did.VerificationMethod, error) {
	for _, relationship := range relationships {
		entries, err := relationshipEntries(doc, relationship)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.VerificationMethod == nil {
				continue
			}
			if entry.ID.String() == keyID.String() ||
				(entry.ID.DID.String() == keyID.DID.String() && entry.ID.Fragment == keyID.Fragment) {
				return entry.VerificationMethod, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID.String())
}

// ResolveKey resolves the DID of keyID and returns the referenced public key as a JWK.
func ResolveKey(ctx context.Context, resolver Resolver, keyID string, relationships ...Relationship) (jwk.Key, error) {
	ref, err := ParseKeyReference(keyID)
	if err != nil {
		return nil, err
	}
	doc, err := resolver.Resolve(ctx, ref.DID)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", ref.DID.String(), err)
	}
	vm, err := DereferenceKey(doc, *ref, relationships...)
	if err != nil {
		return nil, err
	}
	pub, err := vm.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("reading public key of %s: %w", keyID, err)
	}
	key, err := jwk.FromRaw(pub)
	if err != nil {
		return nil, fmt.Errorf("converting public key of %s: %w", keyID, err)
	}
	if err := key.Set(jwk.KeyIDKey, keyID); err != nil {
		return nil, err
	}
	return key, nil
}

func relationshipEntries(doc *did.Document, relationship Relationship) (did.VerificationRelationships, error) {
	switch relationship {
	case Authentication:
		return doc.Authentication, nil
	case AssertionMethod:
		return doc.AssertionMethod, nil
	default:
		return nil, fmt.Errorf("unable to locate relationship %s", relationship)
	}
}

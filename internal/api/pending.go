package api

import (
	"sync"
	"time"

	"github.com/sirosfoundation/go-oid4vc/internal/holder"
)

// pendingAuthorizationTTL bounds how long a user may take to authorize
const pendingAuthorizationTTL = 10 * time.Minute

// pendingAuthorization is an authorization_code flow waiting for its callback
type pendingAuthorization struct {
	offer         *holder.ResolvedCredentialOffer
	session       *holder.AuthorizationSession
	credentialIDs []string
	expiresAt     time.Time
}

// pendingAuthorizations keeps authorization sessions, keyed by state, in
// process memory. Code verifiers never leave the process.
type pendingAuthorizations struct {
	mu      sync.Mutex
	entries map[string]*pendingAuthorization
	now     func() time.Time
}

func newPendingAuthorizations() *pendingAuthorizations {
	return &pendingAuthorizations{
		entries: make(map[string]*pendingAuthorization),
		now:     time.Now,
	}
}

func (p *pendingAuthorizations) put(pending *pendingAuthorization) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for state, entry := range p.entries {
		if now.After(entry.expiresAt) {
			delete(p.entries, state)
		}
	}
	pending.expiresAt = now.Add(pendingAuthorizationTTL)
	p.entries[pending.session.State] = pending
}

// take removes and returns the pending authorization for state
func (p *pendingAuthorizations) take(state string) (*pendingAuthorization, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[state]
	if !ok {
		return nil, false
	}
	delete(p.entries, state)
	if p.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry, true
}

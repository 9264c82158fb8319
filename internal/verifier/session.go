package verifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-oid4vc/pkg/oid4vc"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
)

// ProofRequestSession is the verifier-side state of one proof request. It is
// returned by CreateProofRequest and must be handed back to
// VerifyAuthorizationResponse.
type ProofRequestSession struct {
	// ID equals the state parameter of the request
	ID                     string                         `json:"id"`
	Nonce                  string                         `json:"nonce"`
	ClientID               string                         `json:"client_id"`
	RedirectURI            string                         `json:"redirect_uri"`
	PresentationDefinition *oid4vc.PresentationDefinition `json:"presentation_definition,omitempty"`
	HolderMetadata         HolderMetadata                 `json:"holder_metadata"`
	SigningAlgorithm       string                         `json:"signing_algorithm"`
	KeyID                  string                         `json:"key_id"`
	CreatedAt              time.Time                      `json:"created_at"`
	ExpiresAt              time.Time                      `json:"expires_at"`
}

// Expired reports whether the session is no longer usable at now
func (s *ProofRequestSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// SessionStore keeps proof request sessions until the holder responds.
// Implementations must be safe for concurrent use.
type SessionStore interface {
	// Get retrieves a session by ID. Expired sessions are not returned.
	Get(ctx context.Context, id string) (*ProofRequestSession, error)

	// Put stores a session. Returns ErrSessionExists if the id is taken.
	Put(ctx context.Context, session *ProofRequestSession) error

	// Delete removes a session by ID.
	Delete(ctx context.Context, id string) error

	// Cleanup removes expired sessions.
	Cleanup(ctx context.Context) (int64, error)

	// Close releases resources.
	Close() error
}

// MemorySessionStore is an in-memory session store for single-instance deployments.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*ProofRequestSession
	now      func() time.Time
	logger   *zap.Logger
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore(logger *zap.Logger) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*ProofRequestSession),
		now:      time.Now,
		logger:   logger.Named("memory_store"),
	}
}

func (m *MemorySessionStore) Get(ctx context.Context, id string) (*ProofRequestSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok || session.Expired(m.now()) {
		return nil, ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (m *MemorySessionStore) Put(ctx context.Context, session *ProofRequestSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.sessions[session.ID]; exists && !existing.Expired(m.now()) {
		return ErrSessionExists
	}
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

func (m *MemorySessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) Cleanup(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	now := m.now()
	for id, session := range m.sessions {
		if session.Expired(now) {
			delete(m.sessions, id)
			count++
		}
	}

	if count > 0 {
		m.logger.Debug("Cleaned up expired sessions", zap.Int64("count", count))
	}
	return count, nil
}

func (m *MemorySessionStore) Close() error {
	return nil
}

// RunCleanup removes expired sessions from store every interval until ctx is done.
func RunCleanup(ctx context.Context, store SessionStore, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := store.Cleanup(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("Session cleanup failed", zap.Error(err))
			}
		}
	}
}

// Package session issues, resolves and destroys opaque session tokens over a
// pluggable backing store.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"expensetrail/internal/models"
	"expensetrail/internal/storage"
)

// ErrNoSession is returned by a Store when a token is unknown or expired.
var ErrNoSession = errors.New("no session")

// Record is the server-side state bound to a token. The user snapshot carries
// identity only, never credential material.
type Record struct {
	User      models.User
	ExpiresAt time.Time
}

// Store persists the token-to-user association. Implementations must be safe
// for concurrent use.
type Store interface {
	Insert(token string, user models.User, expiresAt time.Time) error
	// Lookup returns the record for a live token, or ErrNoSession when the
	// token is unknown or expired.
	Lookup(token string) (Record, error)
	Renew(token string, expiresAt time.Time) error
	Delete(token string) error
}

// NewToken generates a cryptographically random session token.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Manager issues and validates session tokens with a fixed TTL and rolling
// renewal: resolving a token past the halfway point of its lifetime extends it.
type Manager struct {
	store Store
	ttl   time.Duration
}

// NewManager creates a Manager over the given store.
func NewManager(store Store, ttl time.Duration) *Manager {
	return &Manager{store: store, ttl: ttl}
}

// TTL returns the session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Create issues a fresh token bound to the user and returns it with its expiry.
func (m *Manager) Create(user *models.User) (string, time.Time, error) {
	token, err := NewToken()
	if err != nil {
		return "", time.Time{}, err
	}

	snapshot := *user
	snapshot.PasswordHash = ""

	expiresAt := time.Now().Add(m.ttl)
	if err := m.store.Insert(token, snapshot, expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Resolution is the outcome of resolving a live token.
type Resolution struct {
	User      models.User
	ExpiresAt time.Time
	// Renewed reports that the session lifetime was extended, so the caller
	// should refresh the client's cookie.
	Renewed bool
}

// Resolve returns the state bound to the token. An unknown or expired token
// yields (nil, nil); only a store failure is an error.
func (m *Manager) Resolve(token string) (*Resolution, error) {
	rec, err := m.store.Lookup(token)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil, nil
		}
		return nil, err
	}

	res := &Resolution{User: rec.User, ExpiresAt: rec.ExpiresAt}

	// Rolling session: renew once the session is in the second half of its
	// lifetime. This keeps active users logged in while still expiring
	// inactive sessions. A renewal failure is not fatal; the current session
	// is still valid.
	now := time.Now()
	if rec.ExpiresAt.Sub(now) < m.ttl/2 {
		newExpiresAt := now.Add(m.ttl)
		if err := m.store.Renew(token, newExpiresAt); err == nil {
			res.ExpiresAt = newExpiresAt
			res.Renewed = true
		}
	}

	return res, nil
}

// Destroy removes the token's association unconditionally. Destroying an
// absent token succeeds.
func (m *Manager) Destroy(token string) error {
	return m.store.Delete(token)
}

// SQLStore backs sessions with the sessions table in storage.DB.
type SQLStore struct {
	db *storage.DB
}

// NewSQLStore creates a Store over the database.
func NewSQLStore(db *storage.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Insert(token string, user models.User, expiresAt time.Time) error {
	return s.db.CreateSession(token, user.ID, expiresAt)
}

func (s *SQLStore) Lookup(token string) (Record, error) {
	info, err := s.db.LookupSession(token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Record{}, ErrNoSession
		}
		return Record{}, err
	}

	user := *info.User
	user.PasswordHash = ""
	return Record{User: user, ExpiresAt: info.ExpiresAt}, nil
}

func (s *SQLStore) Renew(token string, expiresAt time.Time) error {
	return s.db.RenewSession(token, expiresAt)
}

func (s *SQLStore) Delete(token string) error {
	return s.db.DeleteSession(token)
}

// MemoryStore is an in-memory Store for tests and single-process deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Record)}
}

func (s *MemoryStore) Insert(token string, user models.User, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = Record{User: user, ExpiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) Lookup(token string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[token]
	if !ok || !rec.ExpiresAt.After(time.Now()) {
		return Record{}, ErrNoSession
	}
	return rec, nil
}

func (s *MemoryStore) Renew(token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[token]
	if !ok {
		return ErrNoSession
	}
	rec.ExpiresAt = expiresAt
	s.sessions[token] = rec
	return nil
}

func (s *MemoryStore) Delete(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

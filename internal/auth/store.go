package auth

import "sync"

// Credential holds the OAuth2 token pair for the relay's single user.
//
// RefreshToken may be empty when the provider withheld one; it is never
// cleared by a refresh that omits it.
type Credential struct {
	AccessToken  string
	RefreshToken string
}

// TokenStore is the in-process holder of the current [Credential].
//
// Safe for concurrent use. A write replaces the whole record, never a torn
// mix of two separate exchanges. Credentials do not survive a restart.
type TokenStore struct {
	mu     sync.RWMutex
	cred   Credential
	loaded bool
}

// NewTokenStore creates an empty TokenStore (pre-login state).
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Get returns the current credential and whether one has been obtained.
func (s *TokenStore) Get() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred, s.loaded
}

// Set atomically replaces the stored credential.
func (s *TokenStore) Set(cred Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = cred
	s.loaded = true
}

// SeedRefreshToken primes an empty store with a pre-provisioned refresh
// token, for deployments where the browser consent step never runs.
//
// A no-op when the token is empty or a credential was already obtained.
func (s *TokenStore) SeedRefreshToken(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return
	}
	s.cred = Credential{RefreshToken: token}
	s.loaded = true
}

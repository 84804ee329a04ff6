package reset

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TokenTTL is how long a reset token stays redeemable after the security
// answers were verified.
const TokenTTL = 60 * time.Minute

type tokenEntry struct {
	accountID uuid.UUID
	expiresAt time.Time
}

// TokenStore holds single-use reset tokens in memory. Tokens do not
// survive a restart, which is acceptable for a 60-minute window.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]tokenEntry
	now    func() time.Time
}

func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]tokenEntry),
		now:    time.Now,
	}
}

// Issue creates a fresh token bound to the account.
func (s *TokenStore) Issue(accountID uuid.UUID) string {
	token := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = tokenEntry{
		accountID: accountID,
		expiresAt: s.now().Add(TokenTTL),
	}
	return token
}

// Lookup returns the account the token was issued for. Expired tokens are
// removed on access and reported as not found with expired=true.
func (s *TokenStore) Lookup(token string) (accountID uuid.UUID, ok bool, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, found := s.tokens[token]
	if !found {
		return uuid.Nil, false, false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.tokens, token)
		return uuid.Nil, false, true
	}
	return entry.accountID, true, false
}

// Delete consumes a token so it cannot be redeemed twice.
func (s *TokenStore) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

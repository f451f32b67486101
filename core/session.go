package core

import (
	"sync"

	"github.com/google/uuid"
)

// SessionManager holds the single signed-in principal of this process.
// Login and Logout are expected to come from one flow at a time; the lock
// only keeps concurrent readers consistent.
type SessionManager struct {
	mu        sync.RWMutex
	principal *Principal
	token     string
}

func NewSessionManager() *SessionManager {
	return &SessionManager{}
}

// Login replaces whatever session exists with p and returns a fresh token
// identifying this login.
func (s *SessionManager) Login(p Principal) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principal = &p
	s.token = uuid.NewString()
	return s.token
}

func (s *SessionManager) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principal = nil
	s.token = ""
}

// CurrentUser returns the signed-in principal, if any.
func (s *SessionManager) CurrentUser() (Principal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.principal == nil {
		return Principal{}, false
	}
	return *s.principal, true
}

func (s *SessionManager) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principal != nil
}

func (s *SessionManager) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principal != nil && s.principal.IsAdmin()
}

// Token is empty while logged out.
func (s *SessionManager) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Holds reports whether token belongs to the current login.
func (s *SessionManager) Holds(token string) (Principal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.principal == nil || token == "" || token != s.token {
		return Principal{}, false
	}
	return *s.principal, true
}

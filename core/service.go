package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultStoreTimeout bounds each credential store round trip.
	DefaultStoreTimeout = 3 * time.Second

	MinUsernameLength = 3
	MinPasswordLength = 6
)

// RepositoryAuthService authenticates against a CredentialStore, guarded by a LockoutTracker.
type RepositoryAuthService struct {
	users        CredentialStore
	hasher       PasswordHasher
	lockout      LockoutTracker
	feed         *AccessFeed
	metrics      *AuthMetrics
	storeTimeout time.Duration
}

// AuthOption configures a RepositoryAuthService.
type AuthOption func(*RepositoryAuthService)

// WithAccessFeed mirrors successful logins into the Redis access feed.
func WithAccessFeed(feed *AccessFeed) AuthOption {
	return func(s *RepositoryAuthService) { s.feed = feed }
}

func WithMetrics(m *AuthMetrics) AuthOption {
	return func(s *RepositoryAuthService) { s.metrics = m }
}

func WithStoreTimeout(d time.Duration) AuthOption {
	return func(s *RepositoryAuthService) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

func NewRepositoryAuthService(users CredentialStore, hasher PasswordHasher, lockout LockoutTracker, opts ...AuthOption) *RepositoryAuthService {
	s := &RepositoryAuthService{
		users:        users,
		hasher:       hasher,
		lockout:      lockout,
		storeTimeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate checks the lockout, looks up the active account and verifies
// the password. Unknown users, inactive users and wrong passwords all return
// ErrInvalidCredentials and all count toward the username's lockout.
// A blank username or password is rejected with ErrInvalidCredentials before
// the lockout is consulted, so it never reports ErrAccountLocked.
func (s *RepositoryAuthService) Authenticate(username, password string) (Principal, error) {
	username = NormalizeUsername(username)
	if username == "" || password == "" {
		return Principal{}, ErrInvalidCredentials
	}

	if s.lockout.IsLocked(username) {
		s.record(OutcomeLocked)
		return Principal{}, ErrAccountLocked
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.storeTimeout)
	defer cancel()

	u, err := s.users.FindActiveByUsername(ctx, username)
	if err != nil {
		log.Printf("auth: credential store lookup failed: %v", err)
		s.record(OutcomeUnavailable)
		return Principal{}, ErrStoreUnavailable
	}
	if u == nil || !u.Active {
		s.lockout.RecordFailure(username)
		s.record(OutcomeInvalid)
		return Principal{}, ErrInvalidCredentials
	}

	if !s.hasher.Verify(password, u.PasswordHash) {
		s.lockout.RecordFailure(username)
		s.record(OutcomeInvalid)
		return Principal{}, ErrInvalidCredentials
	}

	s.lockout.RecordSuccess(username)
	s.record(OutcomeSuccess)
	s.upgradeHash(ctx, u, password)
	p := u.Principal()
	s.logAccess(ctx, &p.ID, p.Username, ActionLogin, "signed in")
	return p, nil
}

// Register creates a user-role account. It returns false for any rejected
// precondition or store failure without saying which.
func (s *RepositoryAuthService) Register(username, password, fullName string) bool {
	username, fullName, err := ValidateAccount(username, password, fullName)
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.storeTimeout)
	defer cancel()

	taken, err := s.users.ExistsByUsername(ctx, username)
	if err != nil {
		log.Printf("auth: register lookup failed: %v", err)
		return false
	}
	if taken {
		return false
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false
	}
	ok, err := s.users.Insert(ctx, username, hash, fullName, RoleUser)
	if err != nil {
		log.Printf("auth: register insert failed: %v", err)
		return false
	}
	if ok {
		s.logAccess(ctx, nil, username, ActionRegister, "account registered")
	}
	return ok
}

// ErrInvalidAccount wraps every ValidateAccount rejection.
var ErrInvalidAccount = errors.New("invalid account")

// ValidateAccount applies the rules shared by self-registration and admin
// account creation, returning the username and full name as they are stored.
func ValidateAccount(username, password, fullName string) (string, string, error) {
	username = NormalizeUsername(username)
	fullName = strings.TrimSpace(fullName)
	switch {
	case utf8.RuneCountInString(username) < MinUsernameLength:
		return "", "", fmt.Errorf("%w: username must be at least %d characters", ErrInvalidAccount, MinUsernameLength)
	case utf8.RuneCountInString(password) < MinPasswordLength:
		return "", "", fmt.Errorf("%w: password must be at least %d characters", ErrInvalidAccount, MinPasswordLength)
	case fullName == "":
		return "", "", fmt.Errorf("%w: full name is required", ErrInvalidAccount)
	}
	return username, fullName, nil
}

// upgradeHash re-hashes with the current cost when the stored hash is older.
func (s *RepositoryAuthService) upgradeHash(ctx context.Context, u *UserRecord, password string) {
	updater, ok := s.users.(PasswordUpdater)
	if !ok || !s.hasher.NeedsRehash(u.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return
	}
	if err := updater.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		log.Printf("auth: rehash for user id=%d failed: %v", u.ID, err)
	}
}

// logAccess is best-effort: failures are logged locally and never surfaced.
func (s *RepositoryAuthService) logAccess(ctx context.Context, userID *int64, username, action, description string) {
	if err := s.users.AppendAccessLog(ctx, userID, action, description); err != nil {
		log.Printf("auth: access log append failed: %v", err)
	}
	ev := AccessEvent{UserID: userID, Username: username, Action: action, Description: description, At: time.Now()}
	if err := s.feed.Push(ctx, ev); err != nil {
		log.Printf("auth: access feed push failed: %v", err)
	}
}

func (s *RepositoryAuthService) record(outcome string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.metrics.Record(ctx, outcome); err != nil {
		log.Printf("auth: metrics update failed: %v", err)
	}
}

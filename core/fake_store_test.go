package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

type accessLogCall struct {
	UserID *int64
	Action string
}

// fakeStore is an in-memory UserStore for service and router tests.
type fakeStore struct {
	mu        sync.Mutex
	nextID    int64
	users     map[int64]*UserRecord
	accessLog []accessLogCall

	findCalls int
	findErr   error
	logErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[int64]*UserRecord{}}
}

func (s *fakeStore) add(username, hash, fullName string, role Role, active bool) *UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	u := &UserRecord{ID: s.nextID, Username: NormalizeUsername(username), PasswordHash: hash, FullName: fullName, Role: role, Active: active, CreatedAt: time.Now()}
	s.users[u.ID] = u
	return u
}

func (s *fakeStore) byName(username string) *UserRecord {
	for _, u := range s.users {
		if u.Username == NormalizeUsername(username) {
			return u
		}
	}
	return nil
}

func (s *fakeStore) FindActiveByUsername(_ context.Context, username string) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	u := s.byName(username)
	if u == nil || !u.Active {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) Insert(_ context.Context, username, passwordHash, fullName string, role Role) (bool, error) {
	s.mu.Lock()
	taken := s.byName(username) != nil
	s.mu.Unlock()
	if taken {
		return false, nil
	}
	s.add(username, passwordHash, fullName, role, true)
	return true, nil
}

func (s *fakeStore) ExistsByUsername(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return false, s.findErr
	}
	return s.byName(username) != nil, nil
}

func (s *fakeStore) AppendAccessLog(_ context.Context, userID *int64, action, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logErr != nil {
		return s.logErr
	}
	s.accessLog = append(s.accessLog, accessLogCall{UserID: userID, Action: action})
	return nil
}

func (s *fakeStore) AccessLog(_ context.Context, limit int) ([]AccessEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []AccessEvent{}
	for i := len(s.accessLog) - 1; i >= 0 && len(out) < limit; i-- {
		call := s.accessLog[i]
		out = append(out, AccessEvent{UserID: call.UserID, Action: call.Action})
	}
	return out, nil
}

func (s *fakeStore) UpdatePasswordHash(_ context.Context, id int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s *fakeStore) HasAdmin(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Role == RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) Get(_ context.Context, id int64) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) List(_ context.Context, page, perPage int) ([]Principal, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]Principal, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, u.Principal())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	start := (page - 1) * perPage
	if start > len(all) {
		start = len(all)
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (s *fakeStore) SetRole(_ context.Context, id int64, role Role) error {
	return s.mutate(id, func(u *UserRecord) { u.Role = role })
}

func (s *fakeStore) SetActive(_ context.Context, id int64, active bool) error {
	return s.mutate(id, func(u *UserRecord) { u.Active = active })
}

func (s *fakeStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *fakeStore) Ping(context.Context) error { return s.findErr }

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) mutate(id int64, fn func(*UserRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	fn(u)
	return nil
}

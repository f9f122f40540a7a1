package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/authbridge/saml/identity"
)

// MemoryBindingStore is an in-memory BindingStore for tests and demos.
// PutIfAbsent holds the lock across check and insert, matching the
// atomicity the SQLite primary key provides.
type MemoryBindingStore struct {
	mu       sync.Mutex
	bindings map[string]int64
}

func NewMemoryBindingStore() *MemoryBindingStore {
	return &MemoryBindingStore{bindings: map[string]int64{}}
}

func (s *MemoryBindingStore) Get(_ context.Context, subjectID string) (*identity.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.bindings[subjectID]
	if !ok {
		return nil, fmt.Errorf("store.MemoryBindingStore.Get: subject %q: %w", subjectID, identity.ErrNotFound)
	}

	return &identity.Binding{SubjectID: subjectID, UserID: userID}, nil
}

func (s *MemoryBindingStore) PutIfAbsent(_ context.Context, subjectID string, userID int64) (*identity.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.bindings[subjectID]; ok {
		return &identity.Binding{SubjectID: subjectID, UserID: existing}, nil
	}

	s.bindings[subjectID] = userID
	return &identity.Binding{SubjectID: subjectID, UserID: userID}, nil
}

// MemoryUserDirectory is an in-memory UserDirectory keyed by email.
type MemoryUserDirectory struct {
	mu    sync.RWMutex
	users map[string]identity.User
}

func NewMemoryUserDirectory(users ...identity.User) *MemoryUserDirectory {
	d := &MemoryUserDirectory{users: map[string]identity.User{}}
	for _, u := range users {
		d.users[u.Email] = u
	}
	return d
}

func (d *MemoryUserDirectory) FindByEmail(_ context.Context, email string) (*identity.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[email]
	if !ok {
		return nil, fmt.Errorf("store.MemoryUserDirectory.FindByEmail: email %q: %w", email, identity.ErrNotFound)
	}

	return &u, nil
}

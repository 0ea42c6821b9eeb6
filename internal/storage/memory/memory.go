package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/glossbook/auth-backend/internal/domain"
	"github.com/glossbook/auth-backend/internal/storage"
)

// Store implements an in-memory storage
type Store struct {
	users        *UserStore
	credentials  *CredentialStore
	challenges   *ChallengeStore
	loginHistory *LoginHistoryStore
}

// NewStore creates a new in-memory store
func NewStore() *Store {
	return &Store{
		users:        &UserStore{data: make(map[domain.UserID]*domain.User)},
		credentials:  &CredentialStore{data: make(map[string]*domain.Credential)},
		challenges:   &ChallengeStore{data: make(map[string]*domain.Challenge)},
		loginHistory: &LoginHistoryStore{},
	}
}

func (s *Store) Users() storage.UserStore                { return s.users }
func (s *Store) Credentials() storage.CredentialStore    { return s.credentials }
func (s *Store) Challenges() storage.ChallengeStore      { return s.challenges }
func (s *Store) LoginHistory() storage.LoginHistoryStore { return s.loginHistory }
func (s *Store) Close() error                            { return nil }
func (s *Store) Ping(ctx context.Context) error          { return nil }

// UserStore implements in-memory user storage
type UserStore struct {
	mu   sync.RWMutex
	data map[domain.UserID]*domain.User
}

func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[user.ID]; exists {
		return storage.ErrAlreadyExists
	}
	for _, u := range s.data {
		if u.Phone == user.Phone {
			return storage.ErrAlreadyExists
		}
	}

	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	s.data[user.ID] = user
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return user, nil
}

func (s *UserStore) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.data {
		if user.Phone == phone {
			return user, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *UserStore) Update(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[user.ID]; !exists {
		return storage.ErrNotFound
	}

	user.UpdatedAt = time.Now()
	s.data[user.ID] = user
	return nil
}

func (s *UserStore) Delete(ctx context.Context, id domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[id]; !exists {
		return storage.ErrNotFound
	}
	delete(s.data, id)
	return nil
}

// CredentialStore implements in-memory credential storage
type CredentialStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Credential
}

func (s *CredentialStore) Create(ctx context.Context, credential *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[credential.CredentialID]; exists {
		return storage.ErrAlreadyExists
	}

	credential.CreatedAt = time.Now()
	s.data[credential.CredentialID] = credential
	return nil
}

func (s *CredentialStore) GetByID(ctx context.Context, credentialID string) (*domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	credential, exists := s.data[credentialID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return credential, nil
}

func (s *CredentialStore) GetAllByOwner(ctx context.Context, ownerID domain.UserID) ([]*domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	credentials := make([]*domain.Credential, 0)
	for _, credential := range s.data {
		if credential.OwnerID == ownerID {
			credentials = append(credentials, credential)
		}
	}
	sort.Slice(credentials, func(i, j int) bool {
		return credentials[i].CreatedAt.Before(credentials[j].CreatedAt)
	})
	return credentials, nil
}

func (s *CredentialStore) CountByOwner(ctx context.Context, ownerID domain.UserID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, credential := range s.data {
		if credential.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (s *CredentialStore) BumpCounter(ctx context.Context, credentialID string, newCounter uint32, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	credential, exists := s.data[credentialID]
	if !exists {
		return storage.ErrNotFound
	}
	if newCounter <= credential.Counter {
		return storage.ErrStaleCounter
	}

	credential.Counter = newCounter
	credential.LastUsedAt = &usedAt
	return nil
}

func (s *CredentialStore) TouchUsed(ctx context.Context, credentialID string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	credential, exists := s.data[credentialID]
	if !exists {
		return storage.ErrNotFound
	}

	credential.LastUsedAt = &usedAt
	return nil
}

func (s *CredentialStore) Rename(ctx context.Context, credentialID string, ownerID domain.UserID, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	credential, exists := s.data[credentialID]
	if !exists || credential.OwnerID != ownerID {
		return storage.ErrNotFound
	}

	credential.DeviceLabel = label
	return nil
}

func (s *CredentialStore) Delete(ctx context.Context, credentialID string, ownerID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	credential, exists := s.data[credentialID]
	if !exists || credential.OwnerID != ownerID {
		return storage.ErrNotFound
	}
	delete(s.data, credentialID)
	return nil
}

// ChallengeStore implements in-memory challenge storage
type ChallengeStore struct {
	mu   sync.Mutex
	data map[string]*domain.Challenge
}

func (s *ChallengeStore) Create(ctx context.Context, challenge *domain.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[challenge.ID]; exists {
		return storage.ErrAlreadyExists
	}
	s.data[challenge.ID] = challenge
	return nil
}

func (s *ChallengeStore) Consume(ctx context.Context, subject string, typ domain.ChallengeType) (*domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var newest *domain.Challenge
	for _, challenge := range s.data {
		if challenge.Subject != subject || challenge.Type != typ {
			continue
		}
		if !challenge.ExpiresAt.After(now) {
			continue
		}
		if newest == nil || challenge.CreatedAt.After(newest.CreatedAt) {
			newest = challenge
		}
	}
	if newest == nil {
		return nil, storage.ErrNotFound
	}

	// Find and delete in the same critical section so a racing consumer
	// cannot see the same challenge.
	delete(s.data, newest.ID)
	return newest, nil
}

func (s *ChallengeStore) DeleteExpired(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, challenge := range s.data {
		if !challenge.ExpiresAt.After(now) {
			delete(s.data, id)
		}
	}
	return nil
}

// LoginHistoryStore implements in-memory login history storage
type LoginHistoryStore struct {
	mu      sync.RWMutex
	records []*domain.LoginRecord
}

func (s *LoginHistoryStore) Append(ctx context.Context, record *domain.LoginRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.CreatedAt = time.Now()
	s.records = append(s.records, record)
	return nil
}

func (s *LoginHistoryStore) GetByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.LoginRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*domain.LoginRecord, 0)
	for i := len(s.records) - 1; i >= 0 && len(records) < limit; i-- {
		if s.records[i].UserID == userID {
			records = append(records, s.records[i])
		}
	}
	return records, nil
}

package authcoderepo

import (
	"errors"
	"sync"
)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu    sync.RWMutex
	codes map[string]*AuthorizationCode
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		codes: make(map[string]*AuthorizationCode),
	}
}

func (r *InMemoryRepo) Upsert(code string, authCode *AuthorizationCode) error {
	if code == "" {
		return errors.New("code cannot be empty")
	}
	if authCode == nil {
		return errors.New("authCode cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *authCode
	r.codes[code] = &copied
	return nil
}

func (r *InMemoryRepo) Get(code string) (*AuthorizationCode, error) {
	if code == "" {
		return nil, errors.New("code cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	authCode, exists := r.codes[code]
	if !exists {
		return nil, errors.New("code not found")
	}

	copied := *authCode
	return &copied, nil
}

func (r *InMemoryRepo) Delete(code string) error {
	if code == "" {
		return errors.New("code cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.codes, code)
	return nil
}

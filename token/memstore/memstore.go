// Package memstore keeps tokens in process memory. Tokens are lost when the
// process exits.
package memstore

import (
	"sync"

	"github.com/jrsteele09/go-admin-client/token"
)

var _ token.Storage = (*Store)(nil)

type Store struct {
	values map[string]string
	lock   sync.RWMutex
}

func New() *Store {
	return &Store{values: make(map[string]string)}
}

func (s *Store) Get(key string) (string, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *Store) Set(values map[string]string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for key, value := range values {
		if value == "" {
			delete(s.values, key)
			continue
		}
		s.values[key] = value
	}
	return nil
}

func (s *Store) Remove(keys ...string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}

// Len is the number of stored keys.
func (s *Store) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.values)
}

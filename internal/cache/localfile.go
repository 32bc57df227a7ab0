// Package cache is the client-side store of user snapshots and the persisted
// session. Every write is flushed to disk before it becomes visible.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"speedgolf/internal/models"
)

var (
	ErrNotFound = errors.New("not found in cache")
	ErrClosed   = errors.New("cache is closed")
)

// Session is the persisted login of the client.
type Session struct {
	AccountID string `json:"accountId"`
	Token     string `json:"token"`
}

type fileData struct {
	Session *Session               `json:"session,omitempty"`
	Users   map[string]models.User `json:"users"`
}

// Store is a JSON file keyed by account identifier. It is safe for
// concurrent use. A Store opened with an empty path keeps data in memory only.
type Store struct {
	mu     sync.RWMutex
	data   fileData
	path   string
	closed bool

	writeFile func(path string, data []byte) error
}

// Open loads path, creating it and its directory when missing.
func Open(path string) (*Store, error) {
	s := &Store{
		data:      fileData{Users: make(map[string]models.User)},
		path:      path,
		writeFile: atomicWrite,
	}
	if path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("error creating cache directory: %w", err)
		}
		if err := s.writeFile(path, mustEncode(s.data)); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("error opening cache file: %w", err)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("error decoding cache file %s: %w", path, err)
		}
	}
	if s.data.Users == nil {
		s.data.Users = make(map[string]models.User)
	}
	return s, nil
}

// Get returns a copy of the snapshot stored under accountID.
func (s *Store) Get(accountID string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return models.User{}, ErrClosed
	}
	user, ok := s.data.Users[accountID]
	if !ok {
		return models.User{}, fmt.Errorf("could not get key %s: %w", accountID, ErrNotFound)
	}
	return user.Clone(), nil
}

// Put stores user under its account identifier.
func (s *Store) Put(user models.User) error {
	return s.update(func(d *fileData) error {
		d.Users[user.AccountData.ID] = user.Clone()
		return nil
	})
}

// PutWithSession stores user and replaces the session in a single write.
func (s *Store) PutWithSession(user models.User, session Session) error {
	return s.update(func(d *fileData) error {
		d.Users[user.AccountData.ID] = user.Clone()
		d.Session = &session
		return nil
	})
}

// Rekey replaces the entry under oldID with user under its own identifier in a
// single write, so exactly one entry remains. A non-nil session replaces the
// stored one in the same write.
func (s *Store) Rekey(oldID string, user models.User, session *Session) error {
	return s.update(func(d *fileData) error {
		delete(d.Users, oldID)
		d.Users[user.AccountData.ID] = user.Clone()
		if session != nil {
			next := *session
			d.Session = &next
		}
		return nil
	})
}

func (s *Store) Delete(accountID string) error {
	return s.update(func(d *fileData) error {
		delete(d.Users, accountID)
		return nil
	})
}

// Keys returns the stored account identifiers, sorted.
// A closed store has no keys.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return []string{}
	}
	keys := make([]string, 0, len(s.data.Users))
	for key := range s.data.Users {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) Session() (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Session{}, ErrClosed
	}
	if s.data.Session == nil {
		return Session{}, fmt.Errorf("session: %w", ErrNotFound)
	}
	return *s.data.Session, nil
}

func (s *Store) SetSession(session Session) error {
	return s.update(func(d *fileData) error {
		d.Session = &session
		return nil
	})
}

// Clear removes every snapshot and the session.
func (s *Store) Clear() error {
	return s.update(func(d *fileData) error {
		d.Users = make(map[string]models.User)
		d.Session = nil
		return nil
	})
}

// Close flushes once more and rejects further access.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.path == "" {
		return nil
	}
	return s.writeFile(s.path, mustEncode(s.data))
}

// update applies fn to a copy of the data and swaps it in only after the copy
// was written to disk.
func (s *Store) update(fn func(d *fileData) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	next := fileData{Users: make(map[string]models.User, len(s.data.Users))}
	for key, user := range s.data.Users {
		next.Users[key] = user
	}
	if s.data.Session != nil {
		session := *s.data.Session
		next.Session = &session
	}
	if err := fn(&next); err != nil {
		return err
	}

	if s.path != "" {
		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("error encoding cache: %w", err)
		}
		if err := s.writeFile(s.path, encoded); err != nil {
			return err
		}
	}
	s.data = next
	return nil
}

func mustEncode(d fileData) []byte {
	encoded, err := json.Marshal(d)
	if err != nil {
		panic(fmt.Sprintf("cache: encode: %v", err))
	}
	return encoded
}

// atomicWrite writes to a temp file in the same directory and renames it over
// path.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("error writing cache file %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing cache file %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("error syncing cache file %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error writing cache file %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("error replacing cache file %s: %w", path, err)
	}
	return nil
}

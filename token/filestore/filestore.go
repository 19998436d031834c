// Package filestore keeps tokens in a JSON file per backend origin so they
// survive restarts and are shared by every process using the same directory.
package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jrsteele09/go-admin-client/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	fileMode        = 0o600
	dirMode         = 0o700
	watchDebounce   = 100 * time.Millisecond
	tempFilePattern = ".tokens-*.tmp"
	tokenFileSuffix = ".tokens.json"
)

var _ token.Storage = (*Store)(nil)

// Store is a file-backed token.Storage. Every write replaces the whole file with
// a rename, so readers never observe a half-written pair. The lock only covers
// one process: concurrent writes from separate processes are last-writer-wins,
// and a refresh in one can rotate the refresh token out from under another.
type Store struct {
	path string
	lock sync.Mutex
}

// New returns a Store for the backend at apiURL, keeping its file in dir.
func New(dir, apiURL string) (*Store, error) {
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, errors.Wrapf(err, "[filestore.New] create %s", dir)
	}
	return &Store{path: filepath.Join(dir, token.OriginName(apiURL)+tokenFileSuffix)}, nil
}

// Path is the token file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Get(key string) (string, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	values, err := s.read()
	if err != nil {
		return "", false, err
	}
	value, ok := values[key]
	return value, ok, nil
}

func (s *Store) Set(values map[string]string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	current, err := s.read()
	if err != nil {
		return err
	}
	for key, value := range values {
		if value == "" {
			delete(current, key)
			continue
		}
		current[key] = value
	}
	return s.write(current)
}

func (s *Store) Remove(keys ...string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	current, err := s.read()
	if err != nil {
		return err
	}
	for _, key := range keys {
		delete(current, key)
	}
	if len(current) == 0 {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "[Store.Remove] delete %s", s.path)
		}
		return nil
	}
	return s.write(current)
}

func (s *Store) read() (map[string]string, error) {
	values := map[string]string{}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return values, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[Store.read] read %s", s.path)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		// A corrupt file is treated as empty; the next write replaces it.
		log.Warn().Err(err).Str("path", s.path).Msg("ignoring unreadable token file")
		return map[string]string{}, nil
	}
	return values, nil
}

func (s *Store) write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[Store.write] encode tokens")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), tempFilePattern)
	if err != nil {
		return errors.Wrap(err, "[Store.write] create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "[Store.write] write temp file")
	}
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return errors.Wrap(err, "[Store.write] chmod temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "[Store.write] close temp file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrapf(err, "[Store.write] replace %s", s.path)
	}
	return nil
}

// Watch calls onChange whenever the token file is created, replaced or
// removed, including by other processes. Bursts of events are coalesced. It
// blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "[Store.Watch] create watcher")
	}
	defer watcher.Close()

	// The directory is watched because rename swaps the file's inode.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return errors.Wrapf(err, "[Store.Watch] watch %s", filepath.Dir(s.path))
	}

	var debounce <-chan time.Time
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) || !isRelevant(event) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(watchDebounce)
			debounce = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Str("path", s.path).Msg("token file watcher error")

		case <-debounce:
			debounce = nil
			onChange()
		}
	}
}

func isRelevant(event fsnotify.Event) bool {
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0
}

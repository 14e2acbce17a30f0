// Package mapsbrowser scrapes map listing search results with a headless
// Chrome that keeps a persistent profile on disk.
package mapsbrowser

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
)

// ErrBusy is returned when another scrape holds the browser profile.
var ErrBusy = eris.New("mapsbrowser: browser session is busy")

// Session guards exclusive use of one browser profile directory. Only one
// scrape may run at a time, within this process (mutex) and across
// processes sharing the profile (file lock).
type Session struct {
	profileDir string
	mu         sync.Mutex
	fileLock   *flock.Flock
}

// NewSession creates a Session for profileDir.
func NewSession(profileDir string) *Session {
	return &Session{
		profileDir: profileDir,
		fileLock:   flock.New(filepath.Join(profileDir, ".lead-finder.lock")),
	}
}

// ProfileDir returns the browser user data directory.
func (s *Session) ProfileDir() string { return s.profileDir }

// TryAcquire takes the session without waiting. It returns ErrBusy when the
// session is held; otherwise the caller must invoke the returned release.
func (s *Session) TryAcquire() (func(), error) {
	if !s.mu.TryLock() {
		return nil, ErrBusy
	}
	if err := os.MkdirAll(s.profileDir, 0o755); err != nil {
		s.mu.Unlock()
		return nil, eris.Wrap(err, "mapsbrowser: create profile dir")
	}
	ok, err := s.fileLock.TryLock()
	if err != nil {
		s.mu.Unlock()
		return nil, eris.Wrap(err, "mapsbrowser: lock profile dir")
	}
	if !ok {
		s.mu.Unlock()
		return nil, ErrBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = s.fileLock.Unlock()
			s.mu.Unlock()
		})
	}, nil
}

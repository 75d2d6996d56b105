package scraper

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/go-rod/rod"
	"github.com/google/uuid"
)

const (
	sessionPrefix  = "session_"
	envCheckPrefix = "env_check_"
)

// LaunchFunc starts a browser bound to userDataDir.
// The returned close func must stop the browser process.
type LaunchFunc func(userDataDir string) (*rod.Browser, func() error, error)

// Session is a browser with its own user data directory.
// It lives for exactly one attempt.
type Session struct {
	Label   string
	Dir     string
	Browser *rod.Browser
	close   func() error
}

// SessionManager creates isolated sessions under a root directory and
// guarantees their removal
type SessionManager struct {
	root   string
	launch LaunchFunc
	logger *log.Logger
}

// NewSessionManager creates a SessionManager rooted at root
func NewSessionManager(root string, launch LaunchFunc, logger *log.Logger) *SessionManager {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &SessionManager{
		root:   root,
		launch: launch,
		logger: logger,
	}
}

// Root returns the directory holding session directories
func (m *SessionManager) Root() string {
	return m.root
}

// Use acquires a session, runs fn with it and releases it.
// The session directory is removed on every path, including a panic in fn,
// which is returned as an error.
func (m *SessionManager) Use(label string, fn func(*Session) error) (err error) {
	s, err := m.acquire(label)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in session %s: %v", filepath.Base(s.Dir), r)
		}
		m.release(s)
	}()

	return fn(s)
}

func (m *SessionManager) acquire(label string) (*Session, error) {
	dir := filepath.Join(m.root, sessionName(label, time.Now()))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	browser, closeFn, err := m.launch(dir)
	if err != nil {
		m.removeDir(dir)
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	return &Session{
		Label:   label,
		Dir:     dir,
		Browser: browser,
		close:   closeFn,
	}, nil
}

func (m *SessionManager) release(s *Session) {
	if s.close != nil {
		if err := s.close(); err != nil {
			m.logger.Printf("Warning: Failed to close browser for %s: %v\n", filepath.Base(s.Dir), err)
		}
	}
	m.removeDir(s.Dir)
}

func (m *SessionManager) removeDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Printf("Warning: Failed to remove session directory %s: %v\n", dir, err)
		return
	}
	m.logger.Printf("Cleaned up session directory: %s\n", dir)
}

// sessionName builds a unique directory name. An empty label marks the
// environment check session.
func sessionName(label string, now time.Time) string {
	suffix := fmt.Sprintf("%d_%s", now.UnixMilli(), uuid.NewString()[:8])
	if label == "" {
		return envCheckPrefix + suffix
	}
	return sessionPrefix + sanitizeLabel(label) + "_" + suffix
}

// sanitizeLabel keeps characters that are safe in a directory name
func sanitizeLabel(label string) string {
	var sb strings.Builder
	for _, r := range label {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) || r == '.' || r == '-' || r == '_' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// SweepSessions removes session directories older than olderThan left
// behind by an interrupted run. A missing root is not an error.
func SweepSessions(root string, olderThan time.Duration, logger *log.Logger) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read session root: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	cleaned := 0

	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !(strings.HasPrefix(name, sessionPrefix) || strings.HasPrefix(name, envCheckPrefix)) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, name)); err != nil {
			logger.Printf("Warning: Failed to remove stale session %s: %v\n", name, err)
			continue
		}
		cleaned++
	}

	if cleaned > 0 {
		logger.Printf("Removed %d stale session directories from %s\n", cleaned, root)
	}
	return cleaned, nil
}

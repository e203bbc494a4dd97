// Package session resolves the identifier that correlates every turn a user
// makes. The identifier is looked up once; when nothing is stored a fresh UUID
// is generated and written back so later runs reuse it.
package session

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const QueryParam = "session_id"

type Locator interface {
	Lookup() (string, bool)
	Store(id string) error
}

type Session struct {
	id      string
	created bool
}

func (s *Session) ID() string { return s.id }

// Created reports whether the identifier was generated during Resolve.
func (s *Session) Created() bool { return s.created }

func Resolve(loc Locator) (*Session, error) {
	if id, ok := loc.Lookup(); ok {
		return &Session{id: id}, nil
	}

	id := uuid.NewString()
	if err := loc.Store(id); err != nil {
		return nil, fmt.Errorf("storing session id: %w", err)
	}
	return &Session{id: id, created: true}, nil
}

// Fixed is a read-only identifier, e.g. from a command-line flag.
type Fixed string

func (f Fixed) Lookup() (string, bool) {
	id := strings.TrimSpace(string(f))
	return id, id != ""
}

func (f Fixed) Store(string) error { return nil }

// Query reads and writes the session_id parameter of a shareable link.
type Query struct {
	URL *url.URL
}

func (q *Query) Lookup() (string, bool) {
	if q.URL == nil {
		return "", false
	}
	id := q.URL.Query().Get(QueryParam)
	return id, id != ""
}

func (q *Query) Store(id string) error {
	if q.URL == nil {
		return nil
	}
	values := q.URL.Query()
	values.Set(QueryParam, id)
	q.URL.RawQuery = values.Encode()
	return nil
}

// File keeps the identifier in a small file so restarts reuse it.
type File struct {
	Path string
}

func (f *File) Lookup() (string, bool) {
	if f.Path == "" {
		return "", false
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", false
	}
	id := strings.TrimSpace(string(data))
	return id, id != ""
}

func (f *File) Store(id string) error {
	if f.Path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	if err := os.WriteFile(f.Path, []byte(id+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	return nil
}

// Chain returns the first identifier any member knows and stores new ones
// into every member.
type Chain []Locator

func (c Chain) Lookup() (string, bool) {
	for _, loc := range c {
		if id, ok := loc.Lookup(); ok {
			return id, true
		}
	}
	return "", false
}

func (c Chain) Store(id string) error {
	var errs []error
	for _, loc := range c {
		if err := loc.Store(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Package outcome keeps the durable record of every candidate classified
// not-live. The backing file is an append-only newline-delimited log read
// fully into memory at startup: the lines form the skip set, the final
// line is the resume cursor.
package outcome

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
)

type Store struct {
	mx     sync.Mutex
	f      *os.File
	path   string
	set    map[string]struct{}
	cursor string
}

// Open loads the log at path and opens it for appending. A missing file
// is not an error, the store starts empty.
func Open(path string) (*Store, error) {
	set := make(map[string]struct{})
	var cursor string

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// fresh start
	case err != nil:
		return nil, fmt.Errorf("reading not-live log %s: %w", path, err)
	default:
		sc := bufio.NewScanner(strings.NewReader(string(b)))
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			set[line] = struct{}{}
			cursor = line
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("scanning not-live log %s: %w", path, err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening not-live log %s: %w", path, err)
	}

	return &Store{
		f:      f,
		path:   path,
		set:    set,
		cursor: cursor,
	}, nil
}

// Contains reports whether the candidate was already classified not-live.
func (s *Store) Contains(candidate string) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	_, ok := s.set[candidate]
	return ok
}

// Cursor returns the last appended candidate, empty for a fresh store.
// Every candidate up to and including the cursor has a durably persisted
// classification.
func (s *Store) Cursor() string {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.cursor
}

func (s *Store) Len() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return len(s.set)
}

// RecordNotLive appends the candidate to the log. Safe for concurrent
// use, recording an already present candidate is a no-op.
func (s *Store) RecordNotLive(candidate string) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if _, ok := s.set[candidate]; ok {
		return nil
	}
	if _, err := s.f.WriteString(candidate + "\n"); err != nil {
		return fmt.Errorf("appending to not-live log %s: %w", s.path, err)
	}
	s.set[candidate] = struct{}{}
	s.cursor = candidate
	return nil
}

func (s *Store) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.f.Close()
}

// Package results keeps the set of all live discoveries across runs. The
// public representation is a sorted JSON array rewritten in full on every
// merge, plus an optional sqlite index for querying.
package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

type Store struct {
	mx   sync.Mutex
	path string
	set  map[string]struct{}
}

// Open loads the discovery record at path. A missing file is not an
// error, the store starts empty.
func Open(path string) (*Store, error) {
	set, err := load(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, set: set}, nil
}

func load(path string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return set, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading discovery record %s: %w", path, err)
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("decoding discovery record %s: %w", path, err)
	}
	for _, c := range list {
		set[c] = struct{}{}
	}
	return set, nil
}

// Contains reports whether the candidate is a known live discovery.
func (s *Store) Contains(candidate string) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	_, ok := s.set[candidate]
	return ok
}

func (s *Store) Len() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return len(s.set)
}

// All returns every discovery, sorted.
func (s *Store) All() []string {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.sortedLocked()
}

func (s *Store) sortedLocked() []string {
	out := make([]string, 0, len(s.set))
	for c := range s.set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// MergeAndPersist unions the new discoveries with everything persisted so
// far and rewrites the record in full. The write goes to a temporary file
// first and is renamed over the record, an interrupted write never leaves
// a torn file as the only copy. Merges are serialized, overlapping calls
// cannot drop entries from each other.
func (s *Store) MergeAndPersist(found ...string) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	// pick up whatever is on disk, the record may predate this process
	disk, err := load(s.path)
	if err != nil {
		return err
	}
	for c := range disk {
		s.set[c] = struct{}{}
	}
	for _, c := range found {
		s.set[c] = struct{}{}
	}

	b, err := json.MarshalIndent(s.sortedLocked(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding discovery record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp discovery record: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing temp discovery record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("closing temp discovery record: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replacing discovery record %s: %w", s.path, err)
	}
	return nil
}

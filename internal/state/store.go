// Package state persists the digest between runs.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jhchen-tw/inbox-digest/internal/digest"
)

// Store reads and writes the digest state file. Writes go to a sibling .tmp
// file first and are renamed into place, so a crash mid-write leaves the
// previous state intact.
type Store struct {
	path      string
	retention time.Duration
}

func NewStore(path string, retentionDays int) *Store {
	return &Store{
		path:      path,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}
}

// Load reads the state file. A missing file is a fresh start. A corrupt one
// is an error: overwriting it would forget every entry it remembered and
// re-summarize the whole window on the next run.
func (s *Store) Load() (*digest.State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return digest.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: read %s: %w", s.path, err)
	}

	st := digest.NewState()
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("state: parse %s: %w", s.path, err)
	}
	return st, nil
}

// Commit prunes entries that fell out of the retention window, stamps the
// run time, and atomically replaces the state file.
func (s *Store) Commit(st *digest.State, now time.Time) error {
	cutoff := now.Add(-s.retention)
	if n := st.Prune(cutoff); n > 0 {
		log.Printf("state: pruned %d entries older than %s", n, cutoff.Format("2006-01-02"))
	}
	st.LastRun = now

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("state: create state dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("state: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("state: replace %s: %w", s.path, err)
	}
	return nil
}

package digest

import (
	"fmt"
	"sort"
	"time"
)

// Status tracks an entry through the pipeline.
type Status string

const (
	StatusNew           Status = "NEW"
	StatusSummarized    Status = "SUMMARIZED"
	StatusFailedSummary Status = "FAILED_SUMMARY"
	StatusRendered      Status = "RENDERED"
)

// Entry is the canonical per-article record. It is created by the extractor,
// filled in by the summarizer and illustrator, and read by the renderer.
type Entry struct {
	Fingerprint     string    `json:"fingerprint"`
	Title           string    `json:"title"`
	TranslatedTitle string    `json:"translated_title,omitempty"`
	Summary         string    `json:"summary,omitempty"`
	SourceName      string    `json:"source_name,omitempty"`
	SourceDomain    string    `json:"source_domain,omitempty"`
	Category        string    `json:"category,omitempty"`
	PublishedAt     time.Time `json:"published_at"`
	ImageRef        string    `json:"image_ref,omitempty"`
	Status          Status    `json:"status"`

	// ExtractedText feeds the summarizer prompt and the fallback summary.
	// It is never persisted; committed entries re-render from the fields above.
	ExtractedText string `json:"-"`
}

// State is the digest state carried between runs: every fingerprint seen
// within the retention window, with enough metadata to re-render its entry.
type State struct {
	Version int       `json:"version"`
	LastRun time.Time `json:"last_run"`
	Entries []Entry   `json:"entries"`

	index map[string]bool
}

func NewState() *State {
	return &State{Version: 1}
}

func (s *State) ensureIndex() {
	if s.index != nil {
		return
	}
	s.index = make(map[string]bool, len(s.Entries))
	for _, e := range s.Entries {
		s.index[e.Fingerprint] = true
	}
}

// Has reports whether a fingerprint is already recorded.
func (s *State) Has(fingerprint string) bool {
	s.ensureIndex()
	return s.index[fingerprint]
}

// Append records an entry. A fingerprint appears at most once; appending a
// duplicate is an error so callers cannot silently corrupt the state.
func (s *State) Append(e Entry) error {
	if e.Fingerprint == "" {
		return fmt.Errorf("digest: entry %q has empty fingerprint", e.Title)
	}
	s.ensureIndex()
	if s.index[e.Fingerprint] {
		return fmt.Errorf("digest: fingerprint %s already recorded", e.Fingerprint)
	}
	s.Entries = append(s.Entries, e)
	s.index[e.Fingerprint] = true
	return nil
}

// FilterNew returns the entries whose fingerprints are not yet recorded,
// collapsing duplicates within the batch itself. Input order is preserved.
func (s *State) FilterNew(entries []Entry) []Entry {
	s.ensureIndex()
	seen := make(map[string]bool, len(entries))
	fresh := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if s.index[e.Fingerprint] || seen[e.Fingerprint] {
			continue
		}
		seen[e.Fingerprint] = true
		fresh = append(fresh, e)
	}
	return fresh
}

// Prune drops entries published before the cutoff and returns how many were
// removed. Relative order of the survivors is unchanged.
func (s *State) Prune(cutoff time.Time) int {
	kept := s.Entries[:0]
	for _, e := range s.Entries {
		if e.PublishedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, e)
	}
	dropped := len(s.Entries) - len(kept)
	s.Entries = kept
	s.index = nil
	return dropped
}

// Sorted returns the entries in rendering order: newest published_at first,
// ties broken by fingerprint so identical state always renders identically.
func (s *State) Sorted() []Entry {
	out := make([]Entry, len(s.Entries))
	copy(out, s.Entries)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	return out
}

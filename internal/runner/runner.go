package runner

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jhchen-tw/inbox-digest/internal/config"
	"github.com/jhchen-tw/inbox-digest/internal/digest"
	"github.com/jhchen-tw/inbox-digest/internal/extract"
	"github.com/jhchen-tw/inbox-digest/internal/fetcher"
	"github.com/jhchen-tw/inbox-digest/internal/illustrator"
	"github.com/jhchen-tw/inbox-digest/internal/render"
	"github.com/jhchen-tw/inbox-digest/internal/retry"
	"github.com/jhchen-tw/inbox-digest/internal/state"
	"github.com/jhchen-tw/inbox-digest/internal/summarizer"
)

// Runner orchestrates the fetch -> extract -> summarize -> render pipeline.
type Runner struct {
	label           string
	fetchWindowDays int
	concurrency     int
	summaryMaxChars int
	pagePath        string

	fetcher     fetcher.Fetcher
	extractor   *extract.Extractor
	summarizer  summarizer.Summarizer
	illustrator illustrator.Illustrator
	store       *state.Store
	renderer    *render.Renderer

	retryCfg retry.Config
	now      func() time.Time
}

func New(cfg *config.Config, f fetcher.Fetcher, ex *extract.Extractor, s summarizer.Summarizer, il illustrator.Illustrator, store *state.Store, renderer *render.Renderer) *Runner {
	return &Runner{
		label:           cfg.Label,
		fetchWindowDays: cfg.FetchWindowDays,
		concurrency:     cfg.Concurrency,
		summaryMaxChars: cfg.Summarizer.SummaryMaxChars,
		pagePath:        cfg.Output.PagePath,
		fetcher:         f,
		extractor:       ex,
		summarizer:      s,
		illustrator:     il,
		store:           store,
		renderer:        renderer,
		retryCfg:        retry.DefaultConfig(),
		now:             time.Now,
	}
}

// Run executes the full pipeline once. The page and the state file are only
// replaced at the end of a successful run; any earlier failure leaves both
// untouched.
func (r *Runner) Run(ctx context.Context) error {
	now := r.now()
	log.Printf("Starting digest run for label %q (window=%dd)", r.label, r.fetchWindowDays)

	// Step 1: Load persisted state
	st, err := r.store.Load()
	if err != nil {
		return fmt.Errorf("runner: load state failed: %w", err)
	}
	log.Printf("Loaded state with %d entries", len(st.Entries))

	// Step 2: Fetch messages
	since := now.Add(-time.Duration(r.fetchWindowDays) * 24 * time.Hour)
	log.Printf("Fetching messages since %s...", since.Format("2006-01-02 15:04"))
	var msgs []fetcher.RawMessage
	err = retry.WithBackoff(ctx, r.retryCfg, func(ctx context.Context) error {
		var ferr error
		msgs, ferr = r.fetcher.Fetch(ctx, r.label, since)
		return ferr
	})
	if err != nil {
		return fmt.Errorf("runner: fetch failed: %w", err)
	}
	log.Printf("Fetched %d messages", len(msgs))

	// Step 3: Extract entries
	var entries []digest.Entry
	for _, msg := range msgs {
		e, err := r.extractor.Extract(msg)
		if err != nil {
			log.Printf("Skipping message %s: %v", msg.ID, err)
			continue
		}
		entries = append(entries, e)
	}

	// Step 4: Drop entries already recorded in an earlier run
	entries = st.FilterNew(entries)
	log.Printf("%d new entries after dedup", len(entries))

	// Step 5: Summarize and illustrate the new entries
	if len(entries) > 0 {
		log.Printf("Summarizing %d entries...", len(entries))
		r.processEntries(ctx, entries)
	}

	// Step 6: Record the new entries. Entries that kept their original text
	// stay FAILED_SUMMARY so the page can mark them.
	for i := range entries {
		if entries[i].Status == digest.StatusSummarized {
			entries[i].Status = digest.StatusRendered
		}
		if err := st.Append(entries[i]); err != nil {
			return fmt.Errorf("runner: record entry: %w", err)
		}
	}

	// Step 7: Render the page from the full state
	page, err := r.renderer.Render(st)
	if err != nil {
		return fmt.Errorf("runner: render failed: %w", err)
	}

	// Step 8: Replace the page
	if err := writePage(r.pagePath, page); err != nil {
		return fmt.Errorf("runner: write page failed: %w", err)
	}
	log.Printf("Wrote digest page to %s", r.pagePath)

	// Step 9: Commit state
	if err := r.store.Commit(st, now); err != nil {
		return fmt.Errorf("runner: commit state failed: %w", err)
	}

	log.Printf("Run completed: %d new entries, %d total", len(entries), len(st.Entries))
	return nil
}

// processEntries summarizes and illustrates entries with a bounded worker
// pool. Workers write only to their own entry, so no locking is needed.
func (r *Runner) processEntries(ctx context.Context, entries []digest.Entry) {
	workers := r.concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(entries) {
		workers = len(entries)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				r.processEntry(ctx, &entries[i])
			}
		}()
	}
	for i := range entries {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func (r *Runner) processEntry(ctx context.Context, e *digest.Entry) {
	var res *summarizer.Result
	err := retry.WithBackoff(ctx, r.retryCfg, func(ctx context.Context) error {
		var serr error
		res, serr = r.summarizer.Summarize(ctx, e.Title, e.ExtractedText)
		return serr
	})
	if err != nil {
		log.Printf("WARNING: summarize %q failed, keeping original text: %v", e.Title, err)
		fb := summarizer.Fallback(e.Title, e.ExtractedText, r.summaryMaxChars)
		e.Summary = fb.Summary
		e.Status = digest.StatusFailedSummary
	} else {
		e.TranslatedTitle = res.Title
		e.Summary = res.Summary
		e.Status = digest.StatusSummarized
	}

	// Illustration is best effort and never retried; a failure only costs
	// the thumbnail.
	ref, err := r.illustrator.Illustrate(ctx, e)
	if err != nil {
		log.Printf("WARNING: illustrate %q failed: %v", e.Title, err)
		return
	}
	e.ImageRef = ref
}

// writePage replaces the page via tmp+rename so readers never observe a
// half-written file.
func writePage(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

package summarizer

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/jhchen-tw/inbox-digest/internal/config"
	"github.com/jhchen-tw/inbox-digest/internal/extract"
)

func TestNewSelectsSummarizerType(t *testing.T) {
	cfg := &config.Config{
		Summarizer: config.SummarizerConfig{
			Type:            "gemini",
			APIKey:          "test_api_key",
			Model:           "gemini-2.5-flash",
			TargetLanguage:  "Traditional Chinese (zh-TW)",
			SummaryMaxChars: 500,
			MaxTokens:       800,
		},
	}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create summarizer: %v", err)
	}
	if _, ok := s.(*GeminiSummarizer); !ok {
		t.Errorf("expected *GeminiSummarizer, got %T", s)
	}

	cfg.Summarizer.Type = "anthropic"
	cfg.Summarizer.Model = "claude-sonnet-4-20250514"
	s, err = New(cfg)
	if err != nil {
		t.Fatalf("Failed to create summarizer: %v", err)
	}
	if _, ok := s.(*AnthropicSummarizer); !ok {
		t.Errorf("expected *AnthropicSummarizer, got %T", s)
	}

	cfg.Summarizer.Type = "markov-chain"
	if _, err = New(cfg); !errors.Is(err, ErrUnsupportedSummarizerType) {
		t.Errorf("expected ErrUnsupportedSummarizerType, got %v", err)
	}
}

func TestParseResult(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		title   string
		summary string
	}{
		{
			name:    "plain json",
			body:    `{"title":"標題","summary":"摘要內容。"}`,
			title:   "標題",
			summary: "摘要內容。",
		},
		{
			name:    "fenced json",
			body:    "```json\n{\"title\":\"標題\",\"summary\":\"摘要內容。\"}\n```",
			title:   "標題",
			summary: "摘要內容。",
		},
		{
			name:    "json wrapped in prose",
			body:    "Here is the requested JSON:\n{\"title\":\"標題\",\"summary\":\"摘要內容。\"}\nLet me know if you need anything else.",
			title:   "標題",
			summary: "摘要內容。",
		},
	}

	for _, tt := range tests {
		r, err := parseResult(tt.body)
		if err != nil {
			t.Errorf("%s: parseResult failed: %v", tt.name, err)
			continue
		}
		if r.Title != tt.title || r.Summary != tt.summary {
			t.Errorf("%s: got (%q, %q), want (%q, %q)", tt.name, r.Title, r.Summary, tt.title, tt.summary)
		}
	}
}

func TestParseResultMalformed(t *testing.T) {
	_, err := parseResult("the model rambled and produced no json at all")
	if err == nil {
		t.Fatal("expected an error for a malformed response")
	}
	if !strings.Contains(err.Error(), "parse model JSON") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSanitize(t *testing.T) {
	r := &Result{
		Title:   "<b>Bold</b> Title\nwith a newline",
		Summary: "<p>The summary body.</p>",
	}
	if err := sanitize(r, 500); err != nil {
		t.Fatalf("sanitize failed: %v", err)
	}
	if r.Title != "Bold Title with a newline" {
		t.Errorf("unexpected title: %q", r.Title)
	}
	if r.Summary != "The summary body." {
		t.Errorf("unexpected summary: %q", r.Summary)
	}
}

func TestSanitizeRejectsEmptyFields(t *testing.T) {
	if err := sanitize(&Result{Title: "<br>", Summary: "fine"}, 500); err == nil {
		t.Error("expected an error for an empty title")
	}
	if err := sanitize(&Result{Title: "fine", Summary: "  "}, 500); err == nil {
		t.Error("expected an error for an empty summary")
	}
}

func TestSanitizeCapsSummaryLength(t *testing.T) {
	r := &Result{
		Title:   "T",
		Summary: strings.Repeat("字", 600),
	}
	if err := sanitize(r, 500); err != nil {
		t.Fatalf("sanitize failed: %v", err)
	}
	if n := utf8.RuneCountInString(r.Summary); n > 501 {
		t.Errorf("summary too long: %d runes", n)
	}
	if !strings.HasSuffix(r.Summary, extract.TruncationMarker) {
		t.Errorf("expected truncation marker, got %q", r.Summary[:20])
	}
}

func TestFallback(t *testing.T) {
	long := strings.Repeat("The original article text goes on. ", 30)
	r := Fallback("Original Title", long, 500)
	if r.Title != "Original Title" {
		t.Errorf("fallback must keep the original title, got %q", r.Title)
	}
	if n := utf8.RuneCountInString(r.Summary); n > 501 {
		t.Errorf("fallback summary too long: %d runes", n)
	}
	if !strings.HasSuffix(r.Summary, extract.TruncationMarker) {
		t.Errorf("expected truncation marker, got %q", r.Summary)
	}

	short := Fallback("Original Title", "Brief body.", 500)
	if short.Summary != "Brief body." {
		t.Errorf("short fallback must be unchanged, got %q", short.Summary)
	}
}

// Package summarizer turns extracted article text into a translated title
// and a condensed summary via a generative text API.
package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jhchen-tw/inbox-digest/internal/config"
	"github.com/jhchen-tw/inbox-digest/internal/extract"
)

// Result is the model output for one entry.
type Result struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Summarizer translates an article into the target language and condenses it
type Summarizer interface {
	Summarize(ctx context.Context, title, text string) (*Result, error)
}

// ErrUnsupportedSummarizerType is returned when an unsupported summarizer type is specified
var ErrUnsupportedSummarizerType = fmt.Errorf("unsupported summarizer type")

// New creates a new summarizer based on the configuration
func New(cfg *config.Config) (Summarizer, error) {
	switch cfg.Summarizer.Type {
	case "gemini":
		return NewGeminiSummarizer(
			cfg.Summarizer.APIKey,
			cfg.Summarizer.Model,
			cfg.Summarizer.TargetLanguage,
			cfg.Summarizer.SummaryMaxChars,
			cfg.Summarizer.MaxTokens,
		), nil
	case "anthropic":
		return NewAnthropicSummarizer(
			cfg.Summarizer.APIKey,
			cfg.Summarizer.Model,
			cfg.Summarizer.TargetLanguage,
			cfg.Summarizer.SummaryMaxChars,
			cfg.Summarizer.MaxTokens,
		), nil
	default:
		return nil, ErrUnsupportedSummarizerType
	}
}

// Fallback builds the degraded content used when every summarize attempt
// failed: the untranslated title and the head of the extracted text.
func Fallback(title, text string, maxChars int) *Result {
	return &Result{
		Title:   title,
		Summary: extract.Truncate(text, maxChars),
	}
}

func buildPrompt(targetLanguage, title, text string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are the editor of a personal news digest. Translate into %s and summarize the newsletter article below.\n\n", targetLanguage))
	sb.WriteString(fmt.Sprintf("Title: %s\n\n", title))
	sb.WriteString(fmt.Sprintf("Article:\n%s\n\n", text))
	sb.WriteString(fmt.Sprintf(`Respond in JSON with this exact structure:
{
  "title": "the title translated into %s",
  "summary": "a faithful summary in %s, three to five sentences, plain text"
}

Keep names of people, products and companies in their original form.
Respond ONLY with valid JSON, no markdown fences or additional text.`, targetLanguage, targetLanguage))

	return sb.String()
}

// parseResult decodes the model's JSON answer, tolerating markdown fences
// and surrounding prose.
func parseResult(body string) (*Result, error) {
	body = strings.TrimSpace(body)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)

	if i := strings.Index(body, "{"); i >= 0 {
		if j := strings.LastIndex(body, "}"); j > i {
			body = body[i : j+1]
		}
	}

	var r Result
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("summarizer: failed to parse model JSON: %w\nraw response: %s", err, body)
	}
	return &r, nil
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// sanitize enforces the output contract: no markup, a single-line non-empty
// title, and a summary within the configured length.
func sanitize(r *Result, maxChars int) error {
	r.Title = strings.Join(strings.Fields(tagPattern.ReplaceAllString(r.Title, "")), " ")
	r.Summary = strings.TrimSpace(tagPattern.ReplaceAllString(r.Summary, ""))
	if r.Title == "" || r.Summary == "" {
		return fmt.Errorf("summarizer: model returned an empty title or summary")
	}
	r.Summary = extract.Truncate(r.Summary, maxChars)
	return nil
}

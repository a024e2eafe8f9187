// Package extract turns raw mail messages into digest entries: it picks the
// best body, strips markup and boilerplate, and computes the dedup
// fingerprint.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"

	"github.com/jhchen-tw/inbox-digest/internal/digest"
	"github.com/jhchen-tw/inbox-digest/internal/fetcher"
)

// ErrSkip marks a message with no usable article content. The run continues
// without it.
var ErrSkip = errors.New("extract: no usable content")

// minHTMLYield is the minimum rune count an HTML body must produce before it
// is preferred over the plain-text alternative.
const minHTMLYield = 40

type Extractor struct {
	maxChars int
	loc      *time.Location
}

func NewExtractor(maxChars int, loc *time.Location) *Extractor {
	return &Extractor{maxChars: maxChars, loc: loc}
}

// Extract builds a NEW entry from one raw message. It returns ErrSkip when
// neither body yields any text.
func (e *Extractor) Extract(msg fetcher.RawMessage) (digest.Entry, error) {
	subject := collapseWhitespace(decodeHeader(msg.Subject))
	category, title := splitCategory(subject)
	if title == "" {
		title = "(untitled)"
	}

	sourceName, domain := parseSource(decodeHeader(msg.From))

	text := ""
	if msg.HTMLBody != "" {
		text = normalizeText(htmlToText(msg.HTMLBody))
	}
	if utf8.RuneCountInString(text) < minHTMLYield && msg.TextBody != "" {
		if plain := normalizeText(plainToText(msg.TextBody)); utf8.RuneCountInString(plain) > utf8.RuneCountInString(text) {
			text = plain
		}
	}
	if text == "" {
		return digest.Entry{}, fmt.Errorf("extract: message %s: %w", msg.ID, ErrSkip)
	}
	text = Truncate(text, e.maxChars)

	received := msg.Received
	if received.IsZero() {
		received = time.Now()
	}
	received = received.In(e.loc)

	return digest.Entry{
		Fingerprint:   Fingerprint(domain, normalizeSubject(subject), received),
		Title:         title,
		SourceName:    sourceName,
		SourceDomain:  domain,
		Category:      category,
		PublishedAt:   received,
		Status:        digest.StatusNew,
		ExtractedText: text,
	}, nil
}

// Fingerprint identifies one send of one newsletter: the same sender domain
// and subject on the same calendar day hash to the same value, so
// re-applying a label or overlapping fetch windows cannot duplicate an
// entry.
func Fingerprint(domain, subject string, day time.Time) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte("\n"))
	h.Write([]byte(subject))
	h.Write([]byte("\n"))
	h.Write([]byte(day.Format("2006-01-02")))
	return hex.EncodeToString(h.Sum(nil))
}

var wordDecoder = mime.WordDecoder{CharsetReader: charset.Reader}

// decodeHeader decodes RFC 2047 encoded words. Already-decoded headers pass
// through untouched.
func decodeHeader(s string) string {
	if !strings.Contains(s, "=?") {
		return s
	}
	if dec, err := wordDecoder.DecodeHeader(s); err == nil {
		return dec
	}
	return s
}

var wsRun = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(wsRun.ReplaceAllString(s, " "))
}

var categoryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\[([^\]]+)\]\s*`),
	regexp.MustCompile(`^【([^】]+)】\s*`),
}

// splitCategory peels a leading [Category] or 【Category】 tag off a subject
// line.
func splitCategory(subject string) (category, rest string) {
	for _, re := range categoryPatterns {
		if m := re.FindStringSubmatch(subject); m != nil {
			return strings.TrimSpace(m[1]), strings.TrimSpace(subject[len(m[0]):])
		}
	}
	return "", subject
}

var replyPrefix = regexp.MustCompile(`^(?i:(re|fwd?|fw)\s*:\s*)+`)

// normalizeSubject canonicalizes a subject for fingerprinting: reply and
// forward prefixes are stripped and the rest is lowercased.
func normalizeSubject(s string) string {
	s = replyPrefix.ReplaceAllString(s, "")
	return strings.ToLower(strings.TrimSpace(s))
}

// parseSource splits a From header into a display name and a normalized
// sender domain.
func parseSource(from string) (name, domain string) {
	email := from
	if addr, err := mail.ParseAddress(from); err == nil {
		name = addr.Name
		email = addr.Address
	} else {
		email = strings.Trim(strings.TrimSpace(from), "<>")
	}
	if i := strings.LastIndex(email, "@"); i >= 0 && i < len(email)-1 {
		domain = strings.TrimSuffix(strings.ToLower(email[i+1:]), ".")
	}
	if name == "" {
		if i := strings.Index(email, "@"); i > 0 {
			name = email[:i]
		}
	}
	return name, domain
}

var (
	spaceRun   = regexp.MustCompile("[ \t\r ]+")
	newlineRun = regexp.MustCompile(`\n{3,}`)
)

// normalizeText squeezes horizontal whitespace, trims every line, and
// collapses runs of blank lines to single paragraph breaks.
func normalizeText(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	s = strings.Join(lines, "\n")
	s = newlineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// plainToText drops quoted reply lines from a plain-text body.
func plainToText(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

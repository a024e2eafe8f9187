package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jhchen-tw/inbox-digest/internal/config"
)

// RawMessage is one fetched mail message with its MIME parts already
// decoded. Fetchers own transport and decoding so the rest of the pipeline
// never sees provider-specific types.
type RawMessage struct {
	ID       string // provider message id; not stable across label re-application
	From     string // From header, possibly RFC 2047 encoded
	Subject  string
	Received time.Time
	TextBody string
	HTMLBody string
}

// Fetcher returns the messages carrying a label that arrived after since.
// Implementations must be read-only against the mail account and must walk
// all result pages.
type Fetcher interface {
	Fetch(ctx context.Context, label string, since time.Time) ([]RawMessage, error)
}

// ErrAuth marks an invalid or expired credential. It is fatal for the run
// and never retried.
var ErrAuth = errors.New("fetcher: authentication failed")

// ErrUnsupportedFetcherType is returned when an unsupported fetcher type is specified
var ErrUnsupportedFetcherType = fmt.Errorf("unsupported fetcher type")

// New creates a new fetcher based on the configuration
func New(cfg *config.Config) (Fetcher, error) {
	switch cfg.Fetcher.Type {
	case "gmail":
		return NewGmailFetcher(
			cfg.Fetcher.Gmail.ClientID,
			cfg.Fetcher.Gmail.ClientSecret,
			cfg.Fetcher.Gmail.RefreshToken,
		), nil
	case "imap":
		return NewIMAPFetcher(
			cfg.Fetcher.IMAP.Addr,
			cfg.Fetcher.IMAP.Username,
			cfg.Fetcher.IMAP.Password,
		), nil
	default:
		return nil, ErrUnsupportedFetcherType
	}
}

// dateLayouts covers the Date header formats seen in the wild.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.RFC3339,
}

func parseDateHeader(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	// Register charset decoders (windows-1252, iso-8859-*, big5, etc.)
	_ "github.com/emersion/go-message/charset"
)

// IMAPFetcher reads messages from a plain IMAP account. The digest label is
// the mailbox (folder) name into which the account files its subscriptions.
type IMAPFetcher struct {
	addr     string
	username string
	password string
}

func NewIMAPFetcher(addr, username, password string) *IMAPFetcher {
	return &IMAPFetcher{
		addr:     addr,
		username: username,
		password: password,
	}
}

func (f *IMAPFetcher) Fetch(ctx context.Context, label string, since time.Time) ([]RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := imapclient.DialTLS(f.addr, nil)
	if err != nil {
		return nil, fmt.Errorf("imap: connect to %s failed: %w", f.addr, err)
	}
	defer c.Close()

	if err := c.Login(f.username, f.password).Wait(); err != nil {
		return nil, fmt.Errorf("imap: login as %s: %w: %v", f.username, ErrAuth, err)
	}

	if _, err := c.Select(label, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, fmt.Errorf("imap: select %s failed: %w", label, err)
	}

	// IMAP SINCE is day-granular; search from midnight and apply the exact
	// cutoff client-side below.
	searchDay := time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, since.Location())
	searchData, err := c.UIDSearch(&imap.SearchCriteria{Since: searchDay}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap: search %s failed: %w", label, err)
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	var uidSet imap.UIDSet
	uidSet.AddNum(uids...)

	// Peek keeps the fetch read-only (no \Seen flag changes).
	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := c.Fetch(uidSet, fetchOpts)

	var msgs []RawMessage
	for {
		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}

		var raw []byte
		var uid imap.UID
		for {
			item := msgData.Next()
			if item == nil {
				break
			}
			switch it := item.(type) {
			case imapclient.FetchItemDataUID:
				uid = it.UID
			case imapclient.FetchItemDataBodySection:
				if b, err := io.ReadAll(it.Literal); err == nil && len(b) > 0 {
					raw = b
				}
			}
		}
		if len(raw) == 0 {
			continue
		}

		msg, err := parseRawMessage(raw)
		if err != nil {
			log.Printf("imap: skipping unparseable message uid %d: %v", uid, err)
			continue
		}
		if msg.ID == "" {
			msg.ID = fmt.Sprintf("%s/%d", label, uid)
		}
		if !msg.Received.IsZero() && msg.Received.Before(since) {
			continue
		}
		msgs = append(msgs, msg)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("imap: fetch failed: %w", err)
	}

	return msgs, nil
}

// parseRawMessage parses one raw RFC 822 message. Header and body charset
// decoding is handled by go-message.
func parseRawMessage(raw []byte) (RawMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return RawMessage{}, fmt.Errorf("imap: parse message: %w", err)
	}

	var msg RawMessage
	if id, err := mr.Header.MessageID(); err == nil {
		msg.ID = id
	}
	if date, err := mr.Header.Date(); err == nil {
		msg.Received = date
	}
	if subject, err := mr.Header.Subject(); err == nil && subject != "" {
		msg.Subject = subject
	} else {
		msg.Subject = mr.Header.Get("Subject")
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		a := from[0]
		if a.Name != "" {
			msg.From = fmt.Sprintf("%s <%s>", a.Name, a.Address)
		} else {
			msg.From = a.Address
		}
	} else {
		msg.From = mr.Header.Get("From")
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := mime.ParseMediaType(h.Get("Content-Type"))
		b, err := io.ReadAll(p.Body)
		if err != nil {
			continue
		}
		switch ct {
		case "text/plain":
			if msg.TextBody == "" {
				msg.TextBody = string(b)
			}
		case "text/html":
			if msg.HTMLBody == "" {
				msg.HTMLBody = string(b)
			}
		}
	}

	return msg, nil
}

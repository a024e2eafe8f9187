package fetcher

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	gmailUser     = "me"
	gmailPageSize = 500
)

// GmailFetcher reads labeled messages through the Gmail REST API using a
// refresh-token credential. The access token is refreshed on demand by the
// oauth2 transport.
type GmailFetcher struct {
	clientID     string
	clientSecret string
	refreshToken string

	baseURL    string       // overrides the API endpoint in tests
	httpClient *http.Client // overrides the authenticated client in tests
}

func NewGmailFetcher(clientID, clientSecret, refreshToken string) *GmailFetcher {
	return &GmailFetcher{
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
	}
}

func (f *GmailFetcher) service(ctx context.Context) (*gmail.Service, error) {
	httpClient := f.httpClient
	if httpClient == nil {
		oc := &oauth2.Config{
			ClientID:     f.clientID,
			ClientSecret: f.clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmail.GmailReadonlyScope},
		}
		httpClient = oc.Client(ctx, &oauth2.Token{RefreshToken: f.refreshToken})
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if f.baseURL != "" {
		opts = append(opts, option.WithEndpoint(f.baseURL))
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to create service: %w", err)
	}
	return svc, nil
}

func (f *GmailFetcher) Fetch(ctx context.Context, label string, since time.Time) ([]RawMessage, error) {
	svc, err := f.service(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("label:%s after:%d", label, since.Unix())

	var ids []string
	pageToken := ""
	for {
		call := svc.Users.Messages.List(gmailUser).Q(query).MaxResults(gmailPageSize).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, classifyGmailError("list messages", err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	msgs := make([]RawMessage, 0, len(ids))
	for _, id := range ids {
		m, err := svc.Users.Messages.Get(gmailUser, id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, classifyGmailError(fmt.Sprintf("get message %s", id), err)
		}
		msgs = append(msgs, fromGmailMessage(m))
	}

	return msgs, nil
}

// classifyGmailError surfaces credential failures as ErrAuth and keeps HTTP
// status codes visible so the retry policy can tell 4xx from 5xx.
func classifyGmailError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden {
			return fmt.Errorf("gmail: %s: %w: %v", op, ErrAuth, err)
		}
		return fmt.Errorf("gmail: %s: unexpected status %d: %w", op, gerr.Code, err)
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("gmail: %s: %w: %v", op, ErrAuth, err)
	}
	return fmt.Errorf("gmail: %s: %w", op, err)
}

func fromGmailMessage(m *gmail.Message) RawMessage {
	msg := RawMessage{ID: m.Id}

	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			switch h.Name {
			case "Subject":
				msg.Subject = h.Value
			case "From":
				msg.From = h.Value
			case "Date":
				if msg.Received.IsZero() {
					if t, ok := parseDateHeader(h.Value); ok {
						msg.Received = t
					}
				}
			}
		}
		collectParts(m.Payload, &msg)
	}

	// InternalDate is the delivery time in epoch milliseconds and beats the
	// self-reported Date header when present.
	if m.InternalDate > 0 {
		msg.Received = time.UnixMilli(m.InternalDate)
	}

	return msg
}

// collectParts walks the MIME tree depth-first, keeping the first text/plain
// and first text/html leaf bodies.
func collectParts(part *gmail.MessagePart, msg *RawMessage) {
	if part == nil {
		return
	}
	if part.Body != nil && part.Body.Data != "" {
		switch part.MimeType {
		case "text/plain":
			if msg.TextBody == "" {
				msg.TextBody = decodeBody(part.Body.Data)
			}
		case "text/html":
			if msg.HTMLBody == "" {
				msg.HTMLBody = decodeBody(part.Body.Data)
			}
		}
	}
	for _, p := range part.Parts {
		collectParts(p, msg)
	}
}

// decodeBody decodes Gmail's base64url body data, tolerating both padded and
// unpadded forms.
func decodeBody(data string) string {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	return ""
}

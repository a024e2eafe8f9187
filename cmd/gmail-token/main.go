// Command gmail-token runs the one-time OAuth consent flow and prints the
// credentials the digest needs as environment variable lines.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
)

func main() {
	_ = godotenv.Load()

	credentials := flag.String("credentials", "", "path to a Google OAuth client_secret.json (defaults to GMAIL_CREDENTIALS_FILE, then client_secret.json)")
	clientID := flag.String("client-id", os.Getenv("GMAIL_CLIENT_ID"), "OAuth client id (defaults to GMAIL_CLIENT_ID)")
	clientSecret := flag.String("client-secret", os.Getenv("GMAIL_CLIENT_SECRET"), "OAuth client secret (defaults to GMAIL_CLIENT_SECRET)")
	flag.Parse()

	cfg, err := oauthConfig(*credentials, *clientID, *clientSecret)
	if err != nil {
		log.Fatalf("Failed to build OAuth config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	tok, err := getToken(ctx, cfg)
	if err != nil {
		log.Fatalf("Authorization failed: %v", err)
	}
	if tok.RefreshToken == "" {
		log.Fatal("Google returned no refresh token; revoke the app's access at https://myaccount.google.com/permissions and run again")
	}

	fmt.Println()
	fmt.Println("Add these to your .env file or CI secrets:")
	fmt.Println()
	fmt.Printf("GMAIL_CLIENT_ID=%s\n", cfg.ClientID)
	fmt.Printf("GMAIL_CLIENT_SECRET=%s\n", cfg.ClientSecret)
	fmt.Printf("GMAIL_REFRESH_TOKEN=%s\n", tok.RefreshToken)
}

// oauthConfig prefers a client_secret.json file when one is available and
// falls back to an explicit id/secret pair.
func oauthConfig(credsPath, clientID, clientSecret string) (*oauth2.Config, error) {
	if credsPath == "" {
		credsPath = os.Getenv("GMAIL_CREDENTIALS_FILE")
	}
	if credsPath == "" {
		credsPath = "client_secret.json"
	}
	if b, err := os.ReadFile(credsPath); err == nil {
		cfg, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", credsPath, err)
		}
		return cfg, nil
	}

	if clientID == "" || clientSecret == "" {
		return nil, errors.New("no client_secret.json found and no -client-id/-client-secret given")
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}, nil
}

// getToken runs a loopback HTTP server to capture the auth code. If the
// redirect never arrives it falls back to manual paste, which also covers
// running the flow from a headless machine.
func getToken(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	type result struct {
		code string
	}
	resCh := make(chan result, 1)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen on loopback: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	cfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d/", port)

	mux := http.NewServeMux()
	srv := &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "Missing 'code' parameter", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Authorization complete. You can close this window.")
		select {
		case resCh <- result{code: code}:
		default:
		}
		go func() { _ = srv.Shutdown(context.Background()) }()
	})
	go func() { _ = srv.Serve(ln) }()
	defer srv.Shutdown(context.Background())

	// ApprovalForce makes Google reissue the refresh token even when the
	// account already granted access once.
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintln(os.Stderr, "Open this URL in your browser to authorize read-only Gmail access:")
	fmt.Fprintln(os.Stderr, authURL)
	fmt.Fprintf(os.Stderr, "Waiting for the redirect on %s ...\n", cfg.RedirectURL)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resCh:
		return exchange(ctx, cfg, r.code)
	case <-time.After(120 * time.Second):
		fmt.Fprintln(os.Stderr, "Timeout waiting for the redirect; falling back to manual paste.")
	}

	fmt.Fprintln(os.Stderr, "Paste the auth code or the full redirect URL here, then press Enter.")
	fmt.Fprint(os.Stderr, "> ")

	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read auth code: %w", err)
		}
		return nil, errors.New("empty authorization code")
	}
	input := strings.TrimSpace(sc.Text())
	if input == "" {
		return nil, errors.New("empty authorization code")
	}

	code := input
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		u, err := url.Parse(input)
		if err != nil {
			return nil, fmt.Errorf("parse redirect URL: %w", err)
		}
		c := u.Query().Get("code")
		if c == "" {
			return nil, errors.New("no 'code' parameter found in pasted URL")
		}
		code = c
	}
	return exchange(ctx, cfg, code)
}

func exchange(ctx context.Context, cfg *oauth2.Config, code string) (*oauth2.Token, error) {
	tok, err := cfg.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	return tok, nil
}

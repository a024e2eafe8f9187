package config

import (
	"os"
	"strings"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "config_test_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(tmpfile.Name()) })

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	tmpfile.Close()
	return tmpfile.Name()
}

const minimalGmailConfig = `
label: Newsletters
fetcher:
  type: gmail
  gmail:
    client_id: id
    client_secret: secret
    refresh_token: token
summarizer:
  type: gemini
  api_key: test_api_key
`

func TestLoadConfig(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, minimalGmailConfig))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Label != "Newsletters" {
		t.Errorf("Expected label 'Newsletters', got '%s'", cfg.Label)
	}
	if cfg.Fetcher.Type != "gmail" {
		t.Errorf("Expected fetcher type 'gmail', got '%s'", cfg.Fetcher.Type)
	}
	if cfg.Summarizer.Type != "gemini" {
		t.Errorf("Expected summarizer type 'gemini', got '%s'", cfg.Summarizer.Type)
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, minimalGmailConfig))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Timezone != "Asia/Taipei" {
		t.Errorf("Expected default timezone 'Asia/Taipei', got '%s'", cfg.Timezone)
	}
	if cfg.Schedule != "0 8 * * *" {
		t.Errorf("Expected default schedule '0 8 * * *', got '%s'", cfg.Schedule)
	}
	if cfg.FetchWindowDays != 2 {
		t.Errorf("Expected default fetch_window_days 2, got %d", cfg.FetchWindowDays)
	}
	if cfg.RetentionDays != 14 {
		t.Errorf("Expected default retention_days 14, got %d", cfg.RetentionDays)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("Expected default concurrency 4, got %d", cfg.Concurrency)
	}
	if cfg.Extract.MaxChars != 12000 {
		t.Errorf("Expected default extract.max_chars 12000, got %d", cfg.Extract.MaxChars)
	}
	if cfg.Summarizer.Model != "gemini-2.5-flash" {
		t.Errorf("Expected default model 'gemini-2.5-flash', got '%s'", cfg.Summarizer.Model)
	}
	if cfg.Summarizer.TargetLanguage != "Traditional Chinese (zh-TW)" {
		t.Errorf("Expected default target language, got '%s'", cfg.Summarizer.TargetLanguage)
	}
	if cfg.Summarizer.SummaryMaxChars != 500 {
		t.Errorf("Expected default summary_max_chars 500, got %d", cfg.Summarizer.SummaryMaxChars)
	}
	if cfg.Summarizer.MaxTokens != 800 {
		t.Errorf("Expected default max_tokens 800, got %d", cfg.Summarizer.MaxTokens)
	}
	if cfg.Illustrator.Enabled {
		t.Error("Expected illustrator disabled by default")
	}
	if cfg.Illustrator.Model != "imagen-3.0-generate-002" {
		t.Errorf("Expected default illustrator model, got '%s'", cfg.Illustrator.Model)
	}
	if cfg.Illustrator.Size != "1024x1024" {
		t.Errorf("Expected default illustrator size '1024x1024', got '%s'", cfg.Illustrator.Size)
	}
	if cfg.Output.PagePath != "public/index.html" {
		t.Errorf("Expected default page path, got '%s'", cfg.Output.PagePath)
	}
	if cfg.Output.StatePath != "data/state.json" {
		t.Errorf("Expected default state path, got '%s'", cfg.Output.StatePath)
	}
	if cfg.Render.Title != "Inbox Digest" {
		t.Errorf("Expected default render title, got '%s'", cfg.Render.Title)
	}
}

func TestAnthropicModelDefault(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, `
fetcher:
  type: gmail
  gmail:
    client_id: id
    client_secret: secret
    refresh_token: token
summarizer:
  type: anthropic
  api_key: test_api_key
`))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Summarizer.Model != "claude-sonnet-4-20250514" {
		t.Errorf("Expected anthropic default model, got '%s'", cfg.Summarizer.Model)
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			name: "missing gmail credentials",
			config: `
fetcher:
  type: gmail
summarizer:
  api_key: key
`,
			wantErr: "fetcher.gmail.client_id is required",
		},
		{
			name: "missing imap addr",
			config: `
fetcher:
  type: imap
  imap:
    username: user
    password: pass
summarizer:
  api_key: key
`,
			wantErr: "fetcher.imap.addr is required",
		},
		{
			name: "unsupported fetcher type",
			config: `
fetcher:
  type: carrier-pigeon
summarizer:
  api_key: key
`,
			wantErr: "unsupported fetcher type",
		},
		{
			name: "unsupported summarizer type",
			config: `
fetcher:
  type: imap
  imap:
    addr: mail.example.org:993
    username: user
    password: pass
summarizer:
  type: markov-chain
  api_key: key
`,
			wantErr: "unsupported summarizer type",
		},
		{
			name: "missing summarizer api key",
			config: `
fetcher:
  type: imap
  imap:
    addr: mail.example.org:993
    username: user
    password: pass
`,
			wantErr: "summarizer.api_key is required",
		},
		{
			name: "illustrator enabled without api key",
			config: minimalGmailConfig + `
illustrator:
  enabled: true
`,
			wantErr: "illustrator.api_key is required",
		},
		{
			name: "invalid illustrator size",
			config: minimalGmailConfig + `
illustrator:
  enabled: true
  api_key: key
  size: huge
`,
			wantErr: "invalid illustrator.size",
		},
		{
			name:    "invalid timezone",
			config:  minimalGmailConfig + "\ntimezone: Mars/Olympus\n",
			wantErr: "invalid timezone",
		},
		{
			name:    "negative retention",
			config:  minimalGmailConfig + "\nretention_days: -3\n",
			wantErr: "retention_days must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tt.config))
			if err == nil {
				t.Fatalf("Expected validation error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestIMAPConfig(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, `
label: feeds
fetcher:
  type: imap
  imap:
    addr: mail.example.org:993
    username: digest@example.org
    password: hunter2
summarizer:
  api_key: key
`))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Fetcher.IMAP.Addr != "mail.example.org:993" {
		t.Errorf("Expected imap addr, got '%s'", cfg.Fetcher.IMAP.Addr)
	}
	if cfg.Fetcher.IMAP.Username != "digest@example.org" {
		t.Errorf("Expected imap username, got '%s'", cfg.Fetcher.IMAP.Username)
	}
}

func TestFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Expected error for non-existent file")
	}
	if !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("Expected 'failed to read' error, got: %v", err)
	}
}

func TestEnvVarExpansion(t *testing.T) {
	os.Setenv("TEST_VAR", "expanded_value")
	defer os.Unsetenv("TEST_VAR")

	input := "value: ${TEST_VAR}"
	expanded := expandEnvVars(input)
	expected := "value: expanded_value"

	if expanded != expected {
		t.Errorf("Expected '%s', got '%s'", expected, expanded)
	}
}

func TestEnvVarExpansionUnset(t *testing.T) {
	os.Unsetenv("UNSET_VAR_12345")

	input := "value: ${UNSET_VAR_12345}"
	expanded := expandEnvVars(input)

	if expanded != input {
		t.Errorf("Expected unset var to remain as-is, got '%s'", expanded)
	}
}

func TestEnvVarExpansionInCredentials(t *testing.T) {
	os.Setenv("TEST_GMAIL_SECRET", "s3cr3t")
	defer os.Unsetenv("TEST_GMAIL_SECRET")

	cfg, err := Load(writeTempConfig(t, `
fetcher:
  type: gmail
  gmail:
    client_id: id
    client_secret: ${TEST_GMAIL_SECRET}
    refresh_token: token
summarizer:
  api_key: key
`))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Fetcher.Gmail.ClientSecret != "s3cr3t" {
		t.Errorf("Expected expanded secret, got '%s'", cfg.Fetcher.Gmail.ClientSecret)
	}
}

func TestLocation(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, minimalGmailConfig))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location returned error: %v", err)
	}
	if loc.String() != "Asia/Taipei" {
		t.Errorf("Expected Asia/Taipei, got %s", loc)
	}
}

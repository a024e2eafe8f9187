package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Label           string `yaml:"label"`
	Timezone        string `yaml:"timezone"`
	FetchWindowDays int    `yaml:"fetch_window_days"`
	RetentionDays   int    `yaml:"retention_days"`
	Concurrency     int    `yaml:"concurrency"`
	Schedule        string `yaml:"schedule"`
	RunOnStart      bool   `yaml:"run_on_start"`

	Fetcher     FetcherConfig     `yaml:"fetcher"`
	Extract     ExtractConfig     `yaml:"extract"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Illustrator IllustratorConfig `yaml:"illustrator"`
	Output      OutputConfig      `yaml:"output"`
	Render      RenderConfig      `yaml:"render"`
}

type FetcherConfig struct {
	Type  string      `yaml:"type"`
	Gmail GmailConfig `yaml:"gmail"`
	IMAP  IMAPConfig  `yaml:"imap"`
}

type GmailConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
}

type IMAPConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type ExtractConfig struct {
	MaxChars int `yaml:"max_chars"`
}

type SummarizerConfig struct {
	Type            string `yaml:"type"`
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	TargetLanguage  string `yaml:"target_language"`
	SummaryMaxChars int    `yaml:"summary_max_chars"`
	MaxTokens       int    `yaml:"max_tokens"`
}

type IllustratorConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Size    string `yaml:"size"`
}

type OutputConfig struct {
	PagePath  string `yaml:"page_path"`
	AssetsDir string `yaml:"assets_dir"`
	StatePath string `yaml:"state_path"`
}

type RenderConfig struct {
	Title                 string `yaml:"title"`
	ThumbnailPlaceholders bool   `yaml:"thumbnail_placeholders"`
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

var sizeRegex = regexp.MustCompile(`^\d+x\d+$`)

func setDefaults(cfg *Config) {
	if cfg.Label == "" {
		cfg.Label = "RSS"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Asia/Taipei"
	}
	if cfg.FetchWindowDays == 0 {
		cfg.FetchWindowDays = 2
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 14
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 4
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 8 * * *"
	}
	if cfg.Fetcher.Type == "" {
		cfg.Fetcher.Type = "gmail"
	}
	if cfg.Extract.MaxChars == 0 {
		cfg.Extract.MaxChars = 12000
	}
	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "gemini"
	}
	if cfg.Summarizer.Model == "" {
		switch cfg.Summarizer.Type {
		case "anthropic":
			cfg.Summarizer.Model = "claude-sonnet-4-20250514"
		default:
			cfg.Summarizer.Model = "gemini-2.5-flash"
		}
	}
	if cfg.Summarizer.TargetLanguage == "" {
		cfg.Summarizer.TargetLanguage = "Traditional Chinese (zh-TW)"
	}
	if cfg.Summarizer.SummaryMaxChars == 0 {
		cfg.Summarizer.SummaryMaxChars = 500
	}
	if cfg.Summarizer.MaxTokens == 0 {
		cfg.Summarizer.MaxTokens = 800
	}
	if cfg.Illustrator.Model == "" {
		cfg.Illustrator.Model = "imagen-3.0-generate-002"
	}
	if cfg.Illustrator.Size == "" {
		cfg.Illustrator.Size = "1024x1024"
	}
	if cfg.Output.PagePath == "" {
		cfg.Output.PagePath = "public/index.html"
	}
	if cfg.Output.AssetsDir == "" {
		cfg.Output.AssetsDir = "public"
	}
	if cfg.Output.StatePath == "" {
		cfg.Output.StatePath = "data/state.json"
	}
	if cfg.Render.Title == "" {
		cfg.Render.Title = "Inbox Digest"
	}
}

func validate(cfg *Config) error {
	if cfg.Label == "" {
		return fmt.Errorf("config: label is required")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("config: invalid timezone %q: %w", cfg.Timezone, err)
	}
	if cfg.FetchWindowDays < 1 {
		return fmt.Errorf("config: fetch_window_days must be at least 1")
	}
	if cfg.RetentionDays < 1 {
		return fmt.Errorf("config: retention_days must be at least 1")
	}
	if cfg.Concurrency < 1 {
		return fmt.Errorf("config: concurrency must be at least 1")
	}
	switch cfg.Fetcher.Type {
	case "gmail":
		if cfg.Fetcher.Gmail.ClientID == "" {
			return fmt.Errorf("config: fetcher.gmail.client_id is required (set GMAIL_CLIENT_ID env var)")
		}
		if cfg.Fetcher.Gmail.ClientSecret == "" {
			return fmt.Errorf("config: fetcher.gmail.client_secret is required (set GMAIL_CLIENT_SECRET env var)")
		}
		if cfg.Fetcher.Gmail.RefreshToken == "" {
			return fmt.Errorf("config: fetcher.gmail.refresh_token is required (set GMAIL_REFRESH_TOKEN env var)")
		}
	case "imap":
		if cfg.Fetcher.IMAP.Addr == "" {
			return fmt.Errorf("config: fetcher.imap.addr is required for imap fetcher")
		}
		if cfg.Fetcher.IMAP.Username == "" {
			return fmt.Errorf("config: fetcher.imap.username is required (set IMAP_USERNAME env var)")
		}
		if cfg.Fetcher.IMAP.Password == "" {
			return fmt.Errorf("config: fetcher.imap.password is required (set IMAP_PASSWORD env var)")
		}
	default:
		return fmt.Errorf("config: unsupported fetcher type %q (supported: gmail, imap)", cfg.Fetcher.Type)
	}
	switch cfg.Summarizer.Type {
	case "gemini", "anthropic":
	default:
		return fmt.Errorf("config: unsupported summarizer type %q (supported: gemini, anthropic)", cfg.Summarizer.Type)
	}
	if cfg.Summarizer.APIKey == "" {
		return fmt.Errorf("config: summarizer.api_key is required (set GEMINI_API_KEY or ANTHROPIC_API_KEY env var)")
	}
	if cfg.Illustrator.Enabled {
		if cfg.Illustrator.APIKey == "" {
			return fmt.Errorf("config: illustrator.api_key is required when illustrator is enabled")
		}
		if !sizeRegex.MatchString(cfg.Illustrator.Size) {
			return fmt.Errorf("config: invalid illustrator.size %q (expected WIDTHxHEIGHT)", cfg.Illustrator.Size)
		}
	}
	return nil
}

// Load reads the config file, expands environment variables, applies defaults,
// and validates the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Location resolves the configured timezone. Load has already validated it.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

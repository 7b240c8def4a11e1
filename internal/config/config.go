package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources    Sources           `yaml:"sources"`
	Matcher    Matcher           `yaml:"matcher"`
	Enrichment Enrichment        `yaml:"enrichment"`
	Analysis   Analysis          `yaml:"analysis"`
	Jobs       Jobs              `yaml:"jobs"`
	Schedule   map[string]string `yaml:"schedule"`
	Output     Output            `yaml:"output"`
	Server     Server            `yaml:"server"`
	Logging    Logging           `yaml:"logging"`
}

type Sources struct {
	Registry   Registry   `yaml:"registry"`
	Judiciary  Judiciary  `yaml:"judiciary"`
	Finance    Finance    `yaml:"finance"`
	NewsRSS    NewsRSS    `yaml:"news_rss"`
	NewsSearch NewsSearch `yaml:"news_search"`
	YouTube    Social     `yaml:"youtube"`
	X          Social     `yaml:"x"`
	TikTok     Social     `yaml:"tiktok"`
	// Terms are tracked names/hashtags used by search and social sources
	// in addition to the presidential candidates already in the store.
	Terms     []string `yaml:"terms"`
	UserAgent string   `yaml:"user_agent"`
}

// Fetch holds the settings every source shares.
type Fetch struct {
	Enabled    bool          `yaml:"enabled"`
	Delay      time.Duration `yaml:"delay"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type Registry struct {
	Fetch    `yaml:",inline"`
	BaseURL  string `yaml:"base_url"`
	Process  string `yaml:"process"`
	PageSize int    `yaml:"page_size"`
	MaxPages int    `yaml:"max_pages"`
}

type Judiciary struct {
	Fetch        `yaml:",inline"`
	BaseURL      string `yaml:"base_url"`
	MaxPages     int    `yaml:"max_pages"`
	ReplaceFlags bool   `yaml:"replace_flags"`
}

type Finance struct {
	Fetch   `yaml:",inline"`
	BaseURL string `yaml:"base_url"`
	Process string `yaml:"process"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type NewsRSS struct {
	Fetch    `yaml:",inline"`
	Feeds    []Feed `yaml:"feeds"`
	MaxItems int    `yaml:"max_items"`
	DaysBack int    `yaml:"days_back"`
}

type NewsSearch struct {
	Fetch     `yaml:",inline"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Language  string `yaml:"language"`
	DaysBack  int    `yaml:"days_back"`
}

type Social struct {
	Fetch      `yaml:",inline"`
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	MaxResults int    `yaml:"max_results"`
	DaysBack   int    `yaml:"days_back"`
}

type Matcher struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type Enrichment struct {
	BatchSize    int           `yaml:"batch_size"`
	MaxItems     int           `yaml:"max_items"`
	MaxAttempts  int           `yaml:"max_attempts"`
	BatchDelay   time.Duration `yaml:"batch_delay"`
	MaxChars     int           `yaml:"max_chars"`
	StaleAfter   time.Duration `yaml:"stale_after"`
	ItemPriority int           `yaml:"item_priority"`
}

type Analysis struct {
	Provider        string `yaml:"provider"`
	Model           string `yaml:"model"`
	OllamaURL       string `yaml:"ollama_url"`
	OpenAIModel     string `yaml:"openai_model"`
	APIKeyEnv       string `yaml:"api_key_env"`
	AnthropicModel  string `yaml:"anthropic_model"`
	AnthropicKeyEnv string `yaml:"anthropic_key_env"`
	MaxTokens       int    `yaml:"max_tokens"`
}

type Jobs struct {
	StaleAfter time.Duration `yaml:"stale_after"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for electwatch.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "electwatch")
}

// DataDir returns the XDG data directory for electwatch.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "electwatch")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/electwatch/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'electwatch init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

func fetchDefaults(delay time.Duration) Fetch {
	return Fetch{Enabled: true, Delay: delay, Timeout: 30 * time.Second, MaxRetries: 3}
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			Registry: Registry{
				Fetch:    fetchDefaults(2 * time.Second),
				Process:  "EG2026",
				PageSize: 50,
				MaxPages: 200,
			},
			Judiciary: Judiciary{Fetch: fetchDefaults(5 * time.Second), MaxPages: 50},
			Finance:   Finance{Fetch: fetchDefaults(3 * time.Second), Process: "EG2026"},
			NewsRSS:   NewsRSS{Fetch: fetchDefaults(1 * time.Second), MaxItems: 30, DaysBack: 3},
			NewsSearch: NewsSearch{
				Fetch:     fetchDefaults(1 * time.Second),
				BaseURL:   "https://newsapi.org/v2/everything",
				APIKeyEnv: "NEWSAPI_KEY",
				Language:  "es",
				DaysBack:  3,
			},
			YouTube: Social{
				Fetch:      fetchDefaults(2 * time.Second),
				BaseURL:    "https://www.googleapis.com/youtube/v3",
				APIKeyEnv:  "YOUTUBE_API_KEY",
				MaxResults: 25,
				DaysBack:   7,
			},
			X: Social{
				Fetch:      fetchDefaults(15 * time.Second),
				BaseURL:    "https://api.twitter.com/2",
				APIKeyEnv:  "X_BEARER_TOKEN",
				MaxResults: 50,
				DaysBack:   7,
			},
			TikTok: Social{
				Fetch:      fetchDefaults(10 * time.Second),
				BaseURL:    "https://open.tiktokapis.com/v2",
				APIKeyEnv:  "TIKTOK_ACCESS_TOKEN",
				MaxResults: 50,
				DaysBack:   7,
			},
			UserAgent: "electwatch/1.0 (+candidate transparency monitor)",
		},
		Matcher: Matcher{CacheTTL: 5 * time.Minute},
		Enrichment: Enrichment{
			BatchSize:    10,
			MaxItems:     100,
			MaxAttempts:  3,
			BatchDelay:   2 * time.Second,
			MaxChars:     3000,
			StaleAfter:   30 * time.Minute,
			ItemPriority: 5,
		},
		Analysis: Analysis{
			Provider:        "ollama",
			Model:           "qwen2.5:7b",
			OllamaURL:       "http://localhost:11434",
			OpenAIModel:     "gpt-4o-mini",
			APIKeyEnv:       "OPENAI_API_KEY",
			AnthropicModel:  "claude-3-5-haiku-latest",
			AnthropicKeyEnv: "ANTHROPIC_API_KEY",
			MaxTokens:       800,
		},
		Jobs:    Jobs{StaleAfter: 2 * time.Hour},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

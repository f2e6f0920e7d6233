package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// Defaults point at the hosted services the app was built against.
const (
	DefaultIdentityURL = "https://identitytoolkit.googleapis.com/v1"
	DefaultDocstoreURL = "https://book-app-7def6-default-rtdb.firebaseio.com"
	DefaultBooksURL    = "https://www.googleapis.com/books/v1"
	DefaultQuotesURL   = "https://zenquotes.io/api"
	DefaultTriviaURL   = "https://opentdb.com"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port           string `yaml:"port"`
	LogLevel       string `yaml:"logLevel"`
	IdentityURL    string `yaml:"identityURL"`
	IdentityAPIKey string `yaml:"identityApiKey"`
	DocstoreURL    string `yaml:"docstoreURL"`
	BooksURL       string `yaml:"booksURL"`
	QuotesURL      string `yaml:"quotesURL"`
	TriviaURL      string `yaml:"triviaURL"`
	RedisAddr      string `yaml:"redisAddr"`
	RedisPassword  string `yaml:"redisPassword"`
	TriviaBatch    int    `yaml:"triviaBatchSize"`
	SessionTTL     string `yaml:"sessionTTL"`
	SearchQuiet    string `yaml:"searchQuietPeriod"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("MINDFUEL_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("MINDFUEL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MINDFUEL_IDENTITY_URL"); v != "" {
		cfg.IdentityURL = v
	}
	if v := os.Getenv("MINDFUEL_IDENTITY_API_KEY"); v != "" {
		cfg.IdentityAPIKey = v
	}
	if v := os.Getenv("MINDFUEL_DOCSTORE_URL"); v != "" {
		cfg.DocstoreURL = v
	}
	if v := os.Getenv("MINDFUEL_BOOKS_URL"); v != "" {
		cfg.BooksURL = v
	}
	if v := os.Getenv("MINDFUEL_QUOTES_URL"); v != "" {
		cfg.QuotesURL = v
	}
	if v := os.Getenv("MINDFUEL_TRIVIA_URL"); v != "" {
		cfg.TriviaURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("MINDFUEL_TRIVIA_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TriviaBatch = n
		}
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.IdentityURL == "" {
		cfg.IdentityURL = DefaultIdentityURL
	}
	if cfg.DocstoreURL == "" {
		cfg.DocstoreURL = DefaultDocstoreURL
	}
	if cfg.BooksURL == "" {
		cfg.BooksURL = DefaultBooksURL
	}
	if cfg.QuotesURL == "" {
		cfg.QuotesURL = DefaultQuotesURL
	}
	if cfg.TriviaURL == "" {
		cfg.TriviaURL = DefaultTriviaURL
	}
	if cfg.TriviaBatch == 0 {
		cfg.TriviaBatch = 5
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.IdentityAPIKey == "" {
		return errors.New("config: identityApiKey is required (set in config.yaml or MINDFUEL_IDENTITY_API_KEY)")
	}
	if cfg.TriviaBatch < 0 {
		return errors.New("config: triviaBatchSize must be >= 0")
	}
	return nil
}

// ParseSessionTTL parses the optional trivia session TTL string.
func ParseSessionTTL(value string) (time.Duration, error) {
	if value == "" {
		return 30 * time.Minute, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid sessionTTL duration: %w", err)
	}
	return dur, nil
}

// ParseSearchQuiet parses the optional search debounce quiet period.
func ParseSearchQuiet(value string) (time.Duration, error) {
	if value == "" {
		return 500 * time.Millisecond, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid searchQuietPeriod duration: %w", err)
	}
	return dur, nil
}

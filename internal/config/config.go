package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	ServerPort      string `yaml:"server_port"`
	CollectorPort   string `yaml:"collector_port"`
	StaticFilesPath string `yaml:"static_path"`
	Debug           bool   `yaml:"debug"`

	// ContentSource is an http(s) URL or a local path to the word CSV
	ContentSource string `yaml:"content_source"`

	// Groups maps opaque link codes to group names
	Groups map[string]string `yaml:"groups"`

	SessionSecret   string        `yaml:"session_secret"`
	SessionDuration time.Duration `yaml:"-"`
	RawSessionTTL   string        `yaml:"session_ttl"`
	SecureCookies   bool          `yaml:"secure_cookies"`

	Stages StageTimings `yaml:"stages"`

	API   APIConfig   `yaml:"api"`
	Redis RedisConfig `yaml:"redis"`

	DatabaseType string `yaml:"database_type"`
	DatabasePath string `yaml:"database_path"`
	DatabaseURL  string `yaml:"database_url"`

	Email EmailConfig `yaml:"email"`

	// AdminUser and AdminPasswordHash (bcrypt) guard the collector export endpoint
	AdminUser         string `yaml:"admin_user"`
	AdminPasswordHash string `yaml:"admin_password_hash"`

	TTSEndpoint string `yaml:"tts_endpoint"`
	TTSLanguage string `yaml:"tts_language"`
}

// StageTimings configures the per-item timers, in seconds
type StageTimings struct {
	ItemSeconds          int      `yaml:"item_seconds"`
	LearningUnlockAfter  int      `yaml:"learning_unlock_after"`
	LearningAudioOffsets []int    `yaml:"learning_audio_offsets"`
	RatingKeys           []string `yaml:"rating_keys"`
}

// APIConfig points the submission client at the response API
type APIConfig struct {
	BaseURL      string   `yaml:"base_url"`
	RawTimeout   string   `yaml:"timeout"`
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// RedisConfig enables the Redis session store when Addr is set
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EmailConfig configures consent receipts over SES
type EmailConfig struct {
	Region    string `yaml:"region"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

// DefaultGroups are the shipped link codes for the four experimental arms
var DefaultGroups = map[string]string{
	"k7q2": "keyword",
	"v3m8": "verbal",
	"c5x1": "combined",
	"n9d4": "control",
}

// Default returns a configuration that runs with no file present
func Default() *Config {
	return &Config{
		ServerPort:      "8080",
		CollectorPort:   "8081",
		StaticFilesPath: "./static",
		ContentSource:   "./static/words.csv",
		Groups:          copyGroups(DefaultGroups),
		SessionSecret:   "change-me",
		SessionDuration: 24 * time.Hour,
		Stages: StageTimings{
			ItemSeconds:          30,
			LearningUnlockAfter:  15,
			LearningAudioOffsets: []int{2, 7},
			RatingKeys:           []string{"familiarity", "cue_helpfulness"},
		},
		API: APIConfig{
			BaseURL:    "http://localhost:8081",
			RawTimeout: "10s",
		},
		DatabaseType: "sqlite",
		DatabasePath: "./responses.db",
		Email: EmailConfig{
			Region:   "us-east-1",
			FromName: "Vocabulary Study",
		},
		AdminUser:   "admin",
		TTSEndpoint: "https://translate.google.com/translate_tts",
		TTSLanguage: "en",
	}
}

// Load reads an optional YAML file over the defaults, then applies environment overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			// a file that lists groups replaces the shipped codes rather than extending them
			cfg.Groups = nil
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
			if len(cfg.Groups) == 0 {
				cfg.Groups = copyGroups(DefaultGroups)
			}
		case os.IsNotExist(err):
			// defaults and environment only
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.RawSessionTTL != "" {
		d, err := time.ParseDuration(cfg.RawSessionTTL)
		if err != nil {
			return nil, fmt.Errorf("invalid session_ttl %q: %w", cfg.RawSessionTTL, err)
		}
		cfg.SessionDuration = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ServerPort = getEnv("PORT", c.ServerPort)
	c.CollectorPort = getEnv("COLLECTOR_PORT", c.CollectorPort)
	c.StaticFilesPath = getEnv("STATIC_PATH", c.StaticFilesPath)
	c.ContentSource = getEnv("CONTENT_SOURCE", c.ContentSource)
	c.SessionSecret = getEnv("SESSION_SECRET", c.SessionSecret)
	c.RawSessionTTL = getEnv("SESSION_TTL", c.RawSessionTTL)
	c.API.BaseURL = getEnv("API_BASE_URL", c.API.BaseURL)
	c.API.ClientID = getEnv("API_CLIENT_ID", c.API.ClientID)
	c.API.ClientSecret = getEnv("API_CLIENT_SECRET", c.API.ClientSecret)
	c.API.TokenURL = getEnv("API_TOKEN_URL", c.API.TokenURL)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.DatabaseType = getEnv("DB_TYPE", c.DatabaseType)
	c.DatabasePath = getEnv("DB_PATH", c.DatabasePath)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.Email.Region = getEnv("AWS_REGION", c.Email.Region)
	c.Email.FromEmail = getEnv("SES_FROM_EMAIL", c.Email.FromEmail)
	c.AdminPasswordHash = getEnv("ADMIN_PASSWORD_HASH", c.AdminPasswordHash)
	c.Debug = getEnvBool("DEBUG", c.Debug)
	c.SecureCookies = getEnvBool("SECURE_COOKIES", c.SecureCookies)
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	if len(c.Groups) == 0 {
		return fmt.Errorf("config: at least one group code is required")
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("config: session_secret is required")
	}
	if c.SessionDuration <= 0 {
		return fmt.Errorf("config: session_ttl must be positive")
	}
	if c.Stages.ItemSeconds <= 0 {
		return fmt.Errorf("config: stages.item_seconds must be positive")
	}
	if c.Stages.LearningUnlockAfter < 0 || c.Stages.LearningUnlockAfter > c.Stages.ItemSeconds {
		return fmt.Errorf("config: stages.learning_unlock_after must be within the item timer")
	}
	return nil
}

// APITimeout returns the submission timeout, falling back to 10s
func (c *Config) APITimeout() time.Duration {
	return TTLDuration(c.API.RawTimeout, 10*time.Second)
}

// TTLDuration parses a duration string or returns the fallback if empty or invalid.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func copyGroups(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

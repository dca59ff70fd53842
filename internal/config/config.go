// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"` // non-streaming routes only
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
}

type AIConfig struct {
	OpenAIKey       string        `yaml:"openai_key"`
	BaseURL         string        `yaml:"base_url"`
	Mode            string        `yaml:"mode"`             // stream | poll
	Language        string        `yaml:"language"`         // instruction appended to every run
	ReplayInterval  time.Duration `yaml:"replay_interval"`  // pacing of synthetic word streams
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent provider calls
	MaxRetries      int           `yaml:"max_retries"`
	TokenModel      string        `yaml:"token_model"` // tokenizer used for usage metrics
	Poll            PollConfig    `yaml:"poll"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	TTL       time.Duration `yaml:"ttl"`
}

// AssistantConfig is one entry of the colleague directory.
type AssistantConfig struct {
	ColleagueID   string `yaml:"colleague_id"`
	AssistantID   string `yaml:"assistant_id"`
	DocumentSetID string `yaml:"document_set_id"`
	DisplayName   string `yaml:"display_name"`
}

type StorageConfig struct {
	PublicBaseURL string `yaml:"public_base_url"`
	Bucket        string `yaml:"bucket"`
}

type FunnelQuestionConfig struct {
	ID          string `yaml:"id"`
	Question    string `yaml:"question"`
	Placeholder string `yaml:"placeholder"`
}

type FunnelConfig struct {
	Enabled   bool                   `yaml:"enabled"`
	Questions []FunnelQuestionConfig `yaml:"questions"`
	TTL       time.Duration          `yaml:"ttl"`
}

type CacheConfig struct {
	// PartitionByAssistant scopes the question hash to the answering assistant/document set.
	PartitionByAssistant bool          `yaml:"partition_by_assistant"`
	HotTTL               time.Duration `yaml:"hot_ttl"`
	TextMining           bool          `yaml:"text_mining"`
}

type LimitsConfig struct {
	TurnsPerMinute int `yaml:"turns_per_minute"`
	Workers        int `yaml:"workers"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Log        LogConfig         `yaml:"log"`
	Database   DatabaseConfig    `yaml:"database"`
	Redis      RedisConfig       `yaml:"redis"`
	AI         AIConfig          `yaml:"ai"`
	Auth       AuthConfig        `yaml:"auth"`
	Assistants []AssistantConfig `yaml:"assistants"`
	Storage    StorageConfig     `yaml:"storage"`
	Funnel     FunnelConfig      `yaml:"funnel"`
	Cache      CacheConfig       `yaml:"cache"`
	Limits     LimitsConfig      `yaml:"limits"`
	Security   SecurityConfig    `yaml:"security"`
	Locale     string            `yaml:"locale"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 15 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL, time.Hour)

	if cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = "https://api.openai.com/v1/"
	}
	cfg.AI.Mode = strings.ToLower(strings.TrimSpace(cfg.AI.Mode))
	if cfg.AI.Mode == "" {
		cfg.AI.Mode = "stream"
	}
	if cfg.AI.Language == "" {
		cfg.AI.Language = "Antwoord altijd in het Nederlands, ongeacht de taal van de vraag."
	}
	if cfg.AI.ReplayInterval <= 0 {
		cfg.AI.ReplayInterval = 20 * time.Millisecond
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.MaxRetries < 0 {
		cfg.AI.MaxRetries = 0
	}
	if cfg.AI.TokenModel == "" {
		cfg.AI.TokenModel = "gpt-4o"
	}
	if cfg.AI.Poll.Interval <= 0 {
		cfg.AI.Poll.Interval = time.Second
	}
	if cfg.AI.Poll.MaxAttempts <= 0 {
		cfg.AI.Poll.MaxAttempts = 60
	}

	if cfg.Auth.TTL <= 0 {
		cfg.Auth.TTL = 7 * 24 * time.Hour
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "documents"
	}
	cfg.Funnel.TTL = normalizeTTL(cfg.Funnel.TTL, 24*time.Hour)
	cfg.Cache.HotTTL = normalizeTTL(cfg.Cache.HotTTL, time.Hour)
	if cfg.Limits.TurnsPerMinute <= 0 {
		cfg.Limits.TurnsPerMinute = 20
	}
	if cfg.Limits.Workers <= 0 {
		cfg.Limits.Workers = 4
	}
	if cfg.Locale == "" {
		cfg.Locale = "nl"
	}
}

func validate(cfg *Config) error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if cfg.AI.Mode != "stream" && cfg.AI.Mode != "poll" {
		return fmt.Errorf("ai.mode must be stream or poll, got %q", cfg.AI.Mode)
	}
	if len(cfg.Assistants) == 0 {
		return errors.New("at least one assistants entry is required")
	}
	seen := make(map[string]bool, len(cfg.Assistants))
	for i, a := range cfg.Assistants {
		id := strings.ToLower(strings.TrimSpace(a.ColleagueID))
		if id == "" {
			return fmt.Errorf("assistants[%d].colleague_id is required", i)
		}
		if seen[id] {
			return fmt.Errorf("assistants[%d]: duplicate colleague_id %q", i, id)
		}
		seen[id] = true
		if strings.TrimSpace(a.AssistantID) == "" {
			return fmt.Errorf("assistants[%d].assistant_id is required", i)
		}
		cfg.Assistants[i].ColleagueID = id
	}
	return nil
}

func normalizeTTL(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

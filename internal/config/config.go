package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Session   SessionConfig   `yaml:"session"`
	Approvals ApprovalsConfig `yaml:"approvals"`
	Forward   ForwardConfig   `yaml:"forward"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Redis     RedisConfig     `yaml:"redis"`
	Files     FilesConfig     `yaml:"files"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Env  string `yaml:"env"`
}

type SessionConfig struct {
	TTLMinutes           int `yaml:"ttl_minutes"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

type ApprovalsConfig struct {
	TTLMinutes           int `yaml:"ttl_minutes"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

type ForwardConfig struct {
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	DefaultBaseURL string            `yaml:"default_base_url"`
	BaseURLs       map[string]string `yaml:"base_urls"`
}

type RateLimitConfig struct {
	MaxCallsPerMinute int `yaml:"max_calls_per_minute"`
	BurstSize         int `yaml:"burst_size"`
}

type NotifierConfig struct {
	WebhookURLs []string `yaml:"webhook_urls"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	KeyPrefix string `yaml:"key_prefix"`
}

// FilesConfig points at the three JSON config files. Each is overridable by
// the environment variable the components historically consumed.
type FilesConfig struct {
	Enrollments string `yaml:"enrollments"`
	Credentials string `yaml:"credentials"`
	Policies    string `yaml:"policies"`
}

func (c SessionConfig) TTL() time.Duration { return time.Duration(c.TTLMinutes) * time.Minute }

func (c SessionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c ApprovalsConfig) TTL() time.Duration { return time.Duration(c.TTLMinutes) * time.Minute }

func (c ApprovalsConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c ForwardConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Default returns the built-in configuration used when no config file is
// provided. TTLs follow the 1h session / 1h approval / 30s forward defaults.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Port: 8080, Env: "dev"},
		Session:   SessionConfig{TTLMinutes: 60, SweepIntervalSeconds: 300},
		Approvals: ApprovalsConfig{TTLMinutes: 60, SweepIntervalSeconds: 30},
		Forward:   ForwardConfig{TimeoutSeconds: 30, DefaultBaseURL: "https://api.example.com"},
		RateLimit: RateLimitConfig{MaxCallsPerMinute: 60, BurstSize: 120},
		Redis:     RedisConfig{KeyPrefix: "gateway:creds:"},
		Files: FilesConfig{
			Enrollments: "config/enrollments.json",
			Credentials: "config/credentials.json",
			Policies:    "config/policies.json",
		},
	}
}

// Load reads a YAML config file and applies environment overrides on top.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ENROLLMENT_SECRETS_FILE"); v != "" {
		cfg.Files.Enrollments = v
	}
	if v := os.Getenv("CREDENTIALS_FILE"); v != "" {
		cfg.Files.Credentials = v
	}
	if v := os.Getenv("POLICY_CONFIG_FILE"); v != "" {
		cfg.Files.Policies = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
}

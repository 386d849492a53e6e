package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr           string            `yaml:"addr"`
	DBPath         string            `yaml:"db_path"`
	TrustedProxies []string          `yaml:"trusted_proxies"`
	Timezone       string            `yaml:"timezone"`
	SeedDir        string            `yaml:"seed_dir"`
	Feed           FeedConfig        `yaml:"feed"`
	Auth           AuthConfig        `yaml:"auth"`
	SMTP           SMTPConfig        `yaml:"smtp"`
	Metrics        MetricsConfig     `yaml:"metrics"`
	Log            LogConfig         `yaml:"log"`
	ChannelAliases map[string]string `yaml:"channel_aliases"`
}

type FeedConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	CachePath    string        `yaml:"cache_path"`
	RedisAddr    string        `yaml:"redis_addr"`
	RedisChannel string        `yaml:"redis_channel"`
}

type AuthConfig struct {
	SessionTTL     time.Duration `yaml:"session_ttl"`
	CookieSecure   bool          `yaml:"cookie_secure"`
	AutoVerify     bool          `yaml:"auto_verify"`
	PublicURL      string        `yaml:"public_url"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
	MinPasswordLen int           `yaml:"min_password_len"`
	AdminEmails    []string      `yaml:"admin_emails"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Enabled reports whether outgoing mail should go through SMTP.
func (s SMTPConfig) Enabled() bool { return s.Host != "" && s.From != "" }

type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ServiceName  string `yaml:"service_name"`
	OtlpEndpoint string `yaml:"otlp_endpoint"`
	OtlpInsecure bool   `yaml:"otlp_insecure"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Addr:           ":8080",
		DBPath:         "ovpfh.db",
		TrustedProxies: []string{"127.0.0.1", "::1"},
		Timezone:       "America/Sao_Paulo",
		Feed: FeedConfig{
			PollInterval: 30 * time.Second,
			RedisChannel: "ovpfh:matches",
		},
		Auth: AuthConfig{
			SessionTTL:     30 * 24 * time.Hour,
			CookieSecure:   true,
			TokenTTL:       48 * time.Hour,
			MinPasswordLen: 6,
			PublicURL:      "http://localhost:8080",
		},
		SMTP:    SMTPConfig{Port: "587"},
		Metrics: MetricsConfig{ServiceName: "ovpfh"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// CONFIG_FILE and finally environment overrides.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Addr = envOrDefault("ADDR", c.Addr)
	c.DBPath = envOrDefault("DB_PATH", c.DBPath)
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		c.TrustedProxies = splitList(v)
	}
	c.Timezone = envOrDefault("TIMEZONE", c.Timezone)
	c.SeedDir = envOrDefault("SEED_DIR", c.SeedDir)

	c.Feed.PollInterval = durationEnvOrDefault("POLL_INTERVAL", c.Feed.PollInterval)
	c.Feed.CachePath = envOrDefault("CACHE_PATH", c.Feed.CachePath)
	c.Feed.RedisAddr = envOrDefault("REDIS_ADDR", c.Feed.RedisAddr)
	c.Feed.RedisChannel = envOrDefault("REDIS_CHANNEL", c.Feed.RedisChannel)

	c.Auth.SessionTTL = durationEnvOrDefault("SESSION_TTL", c.Auth.SessionTTL)
	c.Auth.CookieSecure = boolEnvOrDefault("COOKIE_SECURE", c.Auth.CookieSecure)
	c.Auth.AutoVerify = boolEnvOrDefault("AUTO_VERIFY", c.Auth.AutoVerify)
	c.Auth.PublicURL = envOrDefault("PUBLIC_URL", c.Auth.PublicURL)
	c.Auth.TokenTTL = durationEnvOrDefault("TOKEN_TTL", c.Auth.TokenTTL)
	if v, err := strconv.Atoi(os.Getenv("MIN_PASSWORD_LEN")); err == nil && v > 0 {
		c.Auth.MinPasswordLen = v
	}
	if v := os.Getenv("ADMIN_EMAILS"); v != "" {
		c.Auth.AdminEmails = splitList(v)
	}

	c.SMTP.Host = envOrDefault("SMTP_HOST", c.SMTP.Host)
	c.SMTP.Port = envOrDefault("SMTP_PORT", c.SMTP.Port)
	c.SMTP.Username = envOrDefault("SMTP_USERNAME", c.SMTP.Username)
	c.SMTP.Password = envOrDefault("SMTP_PASSWORD", c.SMTP.Password)
	c.SMTP.From = envOrDefault("EMAIL_FROM", c.SMTP.From)

	c.Metrics.Enabled = boolEnvOrDefault("METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.OtlpEndpoint = envOrDefault("OTLP_ENDPOINT", c.Metrics.OtlpEndpoint)
	c.Metrics.OtlpInsecure = boolEnvOrDefault("OTLP_INSECURE", c.Metrics.OtlpInsecure)

	c.Log.Level = envOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOrDefault("LOG_FORMAT", c.Log.Format)
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if c.Feed.PollInterval <= 0 {
		return errors.New("feed.poll_interval must be positive")
	}
	if c.Auth.SessionTTL <= 0 {
		return errors.New("auth.session_ttl must be positive")
	}
	if c.Auth.MinPasswordLen <= 0 {
		return errors.New("auth.min_password_len must be positive")
	}
	return nil
}

// Location returns the calendar used for day boundaries. Validate guarantees it loads.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func durationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func boolEnvOrDefault(key string, defaultValue bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return defaultValue
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

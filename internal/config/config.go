package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Admin     AdminConfig     `yaml:"admin"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	Host         string        `yaml:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DatabaseConfig holds database configuration. URL wins over the discrete fields.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Migrate  bool   `yaml:"migrate"`
}

// StorageConfig holds the S3-compatible object store configuration
type StorageConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Region         string `yaml:"region"`
	Bucket         string `yaml:"bucket"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	ForcePathStyle bool   `yaml:"force_path_style"`
}

// AuthConfig holds the external auth provider configuration
type AuthConfig struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"service_key"`
	JWTSecret  string `yaml:"jwt_secret"`
}

// CORSConfig holds the CORS allow-list
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RateLimitConfig holds the request rate limit. RedisAddr switches to the shared limiter.
type RateLimitConfig struct {
	Window    time.Duration `yaml:"window"`
	Max       int           `yaml:"max"`
	RedisAddr string        `yaml:"redis_addr"`
}

// AdminConfig holds the administrator account ids
type AdminConfig struct {
	UserIDs []string `yaml:"user_ids"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file, then applies .env and environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	// godotenv never overrides variables that are already set
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing else is provided
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         4000,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{SSLMode: "disable", Migrate: true},
		Storage:  StorageConfig{Region: "auto", ForcePathStyle: true},
		CORS:     CORSConfig{AllowedOrigins: []string{"http://localhost:5173"}},
		RateLimit: RateLimitConfig{
			Window: 15 * time.Minute,
			Max:    100,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Host, "HOST")
	if err := setInt(&c.Server.Port, "PORT"); err != nil {
		return err
	}

	setString(&c.Database.URL, "DATABASE_URL")

	setString(&c.Storage.Endpoint, "R2_ENDPOINT")
	setString(&c.Storage.Region, "R2_REGION")
	setString(&c.Storage.Bucket, "R2_BUCKET")
	setString(&c.Storage.AccessKey, "R2_ACCESS_KEY")
	setString(&c.Storage.SecretKey, "R2_SECRET_KEY")

	setString(&c.Auth.URL, "SUPABASE_URL")
	setString(&c.Auth.ServiceKey, "SUPABASE_SERVICE_KEY")
	setString(&c.Auth.JWTSecret, "SUPABASE_JWT_SECRET")

	if v, ok := os.LookupEnv("CORS_ORIGIN"); ok && v != "" {
		c.CORS.AllowedOrigins = splitList(v)
	}
	if v, ok := os.LookupEnv("ADMIN_USER_IDS"); ok && v != "" {
		c.Admin.UserIDs = splitList(v)
	}

	if v, ok := os.LookupEnv("RATE_LIMIT_WINDOW"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_WINDOW: %w", err)
		}
		c.RateLimit.Window = d
	}
	if err := setInt(&c.RateLimit.Max, "RATE_LIMIT_MAX"); err != nil {
		return err
	}
	setString(&c.RateLimit.RedisAddr, "REDIS_ADDR")

	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	return nil
}

// Validate reports settings the server cannot start without
func (c *Config) Validate() error {
	var missing []string
	if c.Database.DSN() == "" {
		missing = append(missing, "database url")
	}
	if c.Storage.Bucket == "" {
		missing = append(missing, "storage bucket")
	}
	if c.Auth.JWTSecret == "" && c.Auth.URL == "" {
		missing = append(missing, "auth jwt secret or auth url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Host == "" {
		return ""
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// AdminSet is the parsed set of administrator account ids
type AdminSet map[string]struct{}

// AdminSet parses the configured administrator ids once
func (c *Config) AdminSet() AdminSet {
	set := make(AdminSet, len(c.Admin.UserIDs))
	for _, id := range c.Admin.UserIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

// Contains reports whether userID is an administrator
func (s AdminSet) Contains(userID string) bool {
	_, ok := s[userID]
	return ok
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Package config loads server settings from the environment (and an optional .env file).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds all server settings.
type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	HTTPAddr   string `mapstructure:"HTTP_ADDR"`
	HealthAddr string `mapstructure:"HEALTH_ADDR"`

	DatabaseDSN string `mapstructure:"DATABASE_DSN"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	AccessTTL time.Duration `mapstructure:"ACCESS_TTL"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	LoginWindow   time.Duration `mapstructure:"LOGIN_WINDOW"`
	LoginMaxFails int           `mapstructure:"LOGIN_MAX_FAILS"`
	LoginBlockFor time.Duration `mapstructure:"LOGIN_BLOCK_FOR"`

	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	UploadDir     string `mapstructure:"UPLOAD_DIR"`
	S3Endpoint    string `mapstructure:"S3_ENDPOINT"`
	S3Region      string `mapstructure:"S3_REGION"`
	S3Bucket      string `mapstructure:"S3_BUCKET"`
	S3AccessKey   string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey   string `mapstructure:"S3_SECRET_KEY"`
	S3UseSSL      bool   `mapstructure:"S3_USE_SSL"`
	S3PathStyle   bool   `mapstructure:"S3_PATH_STYLE"`

	MaxUploadBytes    int64  `mapstructure:"MAX_UPLOAD_BYTES"`
	AllowedExtensions string `mapstructure:"ALLOWED_EXTENSIONS"`

	CollabTTL    time.Duration `mapstructure:"COLLAB_TTL"`
	FrontendURL  string        `mapstructure:"FRONTEND_URL"`
	OrderPageMax int           `mapstructure:"ORDER_PAGE_MAX"`
}

var defaults = map[string]any{
	"APP_ENV":            "prod",
	"HTTP_ADDR":          ":8080",
	"HEALTH_ADDR":        ":8081",
	"ACCESS_TTL":         "15m",
	"REDIS_DB":           0,
	"LOGIN_WINDOW":       "15m",
	"LOGIN_MAX_FAILS":    5,
	"LOGIN_BLOCK_FOR":    "15m",
	"STORAGE_DRIVER":     StorageLocal,
	"UPLOAD_DIR":         "./uploads",
	"S3_REGION":          "us-east-1",
	"MAX_UPLOAD_BYTES":   100 << 20,
	"ALLOWED_EXTENSIONS": ".jpg,.jpeg,.png,.heic,.webp,.mp4,.mov,.avi,.mkv,.pdf,.doc,.docx,.txt",
	"COLLAB_TTL":         "24h",
	"FRONTEND_URL":       "http://localhost:5173",
	"ORDER_PAGE_MAX":     100,
}

var keys = []string{
	"DATABASE_DSN", "JWT_SECRET", "REDIS_ADDR", "REDIS_PASSWORD",
	"S3_ENDPOINT", "S3_BUCKET", "S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_USE_SSL", "S3_PATH_STYLE",
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Dev reports whether development logging and defaults apply.
func (c *Config) Dev() bool { return c.AppEnv == "dev" }

// Extensions returns the normalized upload allow-list (lower case, leading dot).
func (c *Config) Extensions() []string {
	var out []string
	for _, e := range strings.Split(c.AllowedExtensions, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var problems []error
	if c.DatabaseDSN == "" {
		problems = append(problems, errors.New("DATABASE_DSN is required"))
	}
	if c.JWTSecret == "" {
		problems = append(problems, errors.New("JWT_SECRET is required"))
	}
	if c.AccessTTL <= 0 || c.CollabTTL <= 0 {
		problems = append(problems, errors.New("ACCESS_TTL and COLLAB_TTL must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		problems = append(problems, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.OrderPageMax <= 0 {
		problems = append(problems, errors.New("ORDER_PAGE_MAX must be positive"))
	}
	if c.LoginMaxFails <= 0 || c.LoginWindow <= 0 || c.LoginBlockFor <= 0 {
		problems = append(problems, errors.New("LOGIN_* limits must be positive"))
	}
	switch c.StorageDriver {
	case StorageLocal:
		if c.UploadDir == "" {
			problems = append(problems, errors.New("UPLOAD_DIR is required for local storage"))
		}
	case StorageS3:
		if c.S3Endpoint == "" || c.S3Bucket == "" {
			problems = append(problems, errors.New("S3_ENDPOINT and S3_BUCKET are required for s3 storage"))
		}
	default:
		problems = append(problems, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}
	if len(c.Extensions()) == 0 {
		problems = append(problems, errors.New("ALLOWED_EXTENSIONS is empty"))
	}
	return errors.Join(problems...)
}

func mask(s string) string {
	if s == "" {
		return "(empty)"
	}
	return "********"
}

// String implements fmt.Stringer with secrets masked.
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  AppEnv: %s\n", c.AppEnv)
	fmt.Fprintf(&sb, "  HTTPAddr: %s\n", c.HTTPAddr)
	fmt.Fprintf(&sb, "  HealthAddr: %s\n", c.HealthAddr)
	fmt.Fprintf(&sb, "  DatabaseDSN: %s\n", mask(c.DatabaseDSN))
	fmt.Fprintf(&sb, "  JWTSecret: %s\n", mask(c.JWTSecret))
	fmt.Fprintf(&sb, "  AccessTTL: %s\n", c.AccessTTL)
	fmt.Fprintf(&sb, "  RedisAddr: %s\n", c.RedisAddr)
	fmt.Fprintf(&sb, "  RedisPassword: %s\n", mask(c.RedisPassword))
	fmt.Fprintf(&sb, "  StorageDriver: %s\n", c.StorageDriver)
	fmt.Fprintf(&sb, "  UploadDir: %s\n", c.UploadDir)
	fmt.Fprintf(&sb, "  S3Endpoint: %s\n", c.S3Endpoint)
	fmt.Fprintf(&sb, "  S3Bucket: %s\n", c.S3Bucket)
	fmt.Fprintf(&sb, "  S3AccessKey: %s\n", mask(c.S3AccessKey))
	fmt.Fprintf(&sb, "  S3SecretKey: %s\n", mask(c.S3SecretKey))
	fmt.Fprintf(&sb, "  MaxUploadBytes: %d\n", c.MaxUploadBytes)
	fmt.Fprintf(&sb, "  AllowedExtensions: %s\n", strings.Join(c.Extensions(), ","))
	fmt.Fprintf(&sb, "  CollabTTL: %s\n", c.CollabTTL)
	fmt.Fprintf(&sb, "  FrontendURL: %s\n", c.FrontendURL)
	return sb.String()
}

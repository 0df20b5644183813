// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ComfyConfig struct {
	ServerURL            string        `yaml:"server_url"` // host:port or http(s)://host:port
	Timeout              time.Duration `yaml:"timeout"`    // 0 = transport default
	WorkflowDir          string        `yaml:"workflow_dir"`
	DefaultWorkflow      string        `yaml:"default_workflow"`
	DefaultImageWorkflow string        `yaml:"default_image_workflow"`
	OutputDir            string        `yaml:"output_dir"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // prompt id retention
}

type StorageConfig struct {
	Driver     string        `yaml:"driver"` // s3 | local
	Region     string        `yaml:"region"`
	Bucket     string        `yaml:"bucket"`
	Endpoint   string        `yaml:"endpoint"` // optional, S3-compatible servers
	AccessKey  string        `yaml:"access_key"`
	SecretKey  string        `yaml:"secret_key"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
	LocalDir   string        `yaml:"local_dir"`
	PublicURL  string        `yaml:"public_url"` // local driver: URL prefix for served files
}

type AuthConfig struct {
	JWTSecret            string        `yaml:"jwt_secret"`
	AccessTTL            time.Duration `yaml:"access_ttl"`
	RefreshTTL           time.Duration `yaml:"refresh_ttl"`
	RequireForGeneration bool          `yaml:"require_for_generation"`
}

type RateLimitConfig struct {
	SubmitPerMinute int `yaml:"submit_per_minute"` // 0 disables
}

type JanitorConfig struct {
	Interval time.Duration `yaml:"interval"` // 0 disables
	MaxAge   time.Duration `yaml:"max_age"`
}

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Comfy     ComfyConfig     `yaml:"comfy"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Janitor   JanitorConfig   `yaml:"janitor"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies environment overrides for
// secrets and endpoints, fills defaults and validates required fields.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Comfy.ServerURL == "" {
		return nil, errors.New("comfy.server_url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Storage.Driver == "s3" && cfg.Storage.Bucket == "" {
		return nil, errors.New("storage.bucket is required for the s3 driver")
	}
	if cfg.Auth.JWTSecret == "" && !dev {
		return nil, errors.New("auth.jwt_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Comfy.ServerURL, "COMFYUI_SERVER_URL")
	set(&cfg.Comfy.OutputDir, "OUTPUT_IMAGE_PATH")
	set(&cfg.Comfy.DefaultWorkflow, "DEFAULT_WORKFLOW")
	set(&cfg.Comfy.DefaultImageWorkflow, "DEFAULT_IMAGE_WORKFLOW")
	set(&cfg.Database.URL, "DATABASE_URL")
	set(&cfg.Redis.URL, "REDIS_URL")
	set(&cfg.Storage.AccessKey, "AWS_ACCESS_KEY")
	set(&cfg.Storage.SecretKey, "AWS_SECRET_KEY")
	set(&cfg.Storage.Bucket, "BUCKET")
	set(&cfg.Auth.JWTSecret, "JWT_SECRET")
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8000
	}
	if cfg.HTTP.RequestTimeout < 0 {
		cfg.HTTP.RequestTimeout = 0
	}
	if cfg.HTTP.MaxUploadBytes <= 0 {
		cfg.HTTP.MaxUploadBytes = 20 << 20
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Comfy.WorkflowDir == "" {
		cfg.Comfy.WorkflowDir = "workflows"
	}
	if cfg.Comfy.DefaultWorkflow == "" {
		cfg.Comfy.DefaultWorkflow = "default"
	}
	if cfg.Comfy.DefaultImageWorkflow == "" {
		cfg.Comfy.DefaultImageWorkflow = "default_image"
	}
	if cfg.Comfy.OutputDir == "" {
		cfg.Comfy.OutputDir = "output"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL, 2*time.Hour)
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "s3"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "ap-northeast-2"
	}
	cfg.Storage.PresignTTL = normalizeTTL(cfg.Storage.PresignTTL, 10*time.Minute)
	if cfg.Storage.LocalDir == "" {
		cfg.Storage.LocalDir = "uploads"
	}
	cfg.Auth.AccessTTL = normalizeTTL(cfg.Auth.AccessTTL, 30*time.Minute)
	cfg.Auth.RefreshTTL = normalizeTTL(cfg.Auth.RefreshTTL, 24*time.Hour)
	if cfg.Janitor.MaxAge <= 0 {
		cfg.Janitor.MaxAge = 24 * time.Hour
	}
}

func normalizeTTL(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

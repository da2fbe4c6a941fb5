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

// ConfigPath is the default config file, overridable with CONFIG_PATH.
const ConfigPath = "config.yaml"

// BucketConfig names the object-store buckets.
type BucketConfig struct {
	Covers       string `yaml:"covers"`
	PDFs         string `yaml:"pdfs"`
	AuthorImages string `yaml:"authorImages"`
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                     string       `yaml:"port"`
	LogLevel                 string       `yaml:"logLevel"`
	DatabaseDriver           string       `yaml:"databaseDriver"`
	DatabaseURL              string       `yaml:"databaseURL"`
	DataDir                  string       `yaml:"dataDir"`
	IdentityURL              string       `yaml:"identityURL"`
	IdentityJWKSURL          string       `yaml:"identityJwksURL"`
	JWTIssuer                string       `yaml:"jwtIssuer"`
	JWTAudience              string       `yaml:"jwtAudience"`
	JWTLeeway                string       `yaml:"jwtLeeway"`
	AdminEmails              []string     `yaml:"adminEmails"`
	StorageDriver            string       `yaml:"storageDriver"`
	MinioEndpoint            string       `yaml:"minioEndpoint"`
	MinioAccessKey           string       `yaml:"minioAccessKey"`
	MinioSecretKey           string       `yaml:"minioSecretKey"`
	MinioUseSSL              bool         `yaml:"minioUseSSL"`
	PublicBaseURL            string       `yaml:"publicBaseURL"`
	LocalStorageDir          string       `yaml:"localStorageDir"`
	Buckets                  BucketConfig `yaml:"buckets"`
	MaxUploadBytes           int64        `yaml:"maxUploadBytes"`
	RedisAddr                string       `yaml:"redisAddr"`
	RedisPassword            string       `yaml:"redisPassword"`
	UploadRateLimitPerMinute int          `yaml:"uploadRateLimitPerMinute"`
	TrustedProxyCIDRs        []string     `yaml:"trustedProxyCidrs"`
	CORSOrigins              []string     `yaml:"corsOrigins"`
}

// Storage drivers.
const (
	StorageMinio = "minio"
	StorageLocal = "local"
)

const defaultMaxUploadBytes = 100 << 20

// Load reads config from path (defaults to CONFIG_PATH, then config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
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
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// JWTLeewayDuration parses JWTLeeway; an empty value means zero.
func (c FileConfig) JWTLeewayDuration() (time.Duration, error) {
	if strings.TrimSpace(c.JWTLeeway) == "" {
		return 0, nil
	}
	return time.ParseDuration(strings.TrimSpace(c.JWTLeeway))
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.DatabaseDriver = strings.TrimSpace(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("IDENTITY_URL"); v != "" {
		cfg.IdentityURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("IDENTITY_JWKS_URL"); v != "" {
		cfg.IdentityJWKSURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = strings.TrimSpace(v)
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWTAudience = strings.TrimSpace(v)
	}
	if v := os.Getenv("JWT_LEEWAY"); v != "" {
		cfg.JWTLeeway = strings.TrimSpace(v)
	}
	if v := os.Getenv("ADMIN_EMAILS"); v != "" {
		cfg.AdminEmails = splitCSV(v)
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.StorageDriver = strings.TrimSpace(v)
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("PUBLIC_BASE_URL"); v != "" {
		cfg.PublicBaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKSTORE_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("BOOKSTORE_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("BOOKSTORE_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitCSV(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = "postgres"
	}
	if cfg.StorageDriver == "" {
		cfg.StorageDriver = StorageMinio
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.IdentityJWKSURL == "" && cfg.IdentityURL != "" {
		cfg.IdentityJWKSURL = strings.TrimRight(cfg.IdentityURL, "/") + "/.well-known/jwks.json"
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	switch cfg.DatabaseDriver {
	case "postgres", "mysql":
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
		}
	case "sqlite":
	default:
		return fmt.Errorf("config: unsupported databaseDriver %q", cfg.DatabaseDriver)
	}
	if cfg.IdentityURL == "" {
		return errors.New("config: identityURL is required (set in config.yaml or IDENTITY_URL)")
	}
	if len(cfg.AdminEmails) == 0 {
		return errors.New("config: adminEmails must list at least one address (set in config.yaml or ADMIN_EMAILS)")
	}
	if _, err := cfg.JWTLeewayDuration(); err != nil {
		return fmt.Errorf("config: invalid jwtLeeway: %w", err)
	}
	switch cfg.StorageDriver {
	case StorageMinio:
		if cfg.MinioEndpoint == "" {
			return errors.New("config: minioEndpoint is required (set in config.yaml)")
		}
		if cfg.MinioAccessKey == "" {
			return errors.New("config: minioAccessKey is required (set in config.yaml)")
		}
		if cfg.MinioSecretKey == "" {
			return errors.New("config: minioSecretKey is required (set in config.yaml)")
		}
	case StorageLocal:
		if cfg.LocalStorageDir == "" {
			return errors.New("config: localStorageDir is required for the local storage driver")
		}
		if cfg.PublicBaseURL == "" {
			return errors.New("config: publicBaseURL is required for the local storage driver")
		}
	default:
		return fmt.Errorf("config: unsupported storageDriver %q", cfg.StorageDriver)
	}
	if cfg.UploadRateLimitPerMinute > 0 && cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required when uploadRateLimitPerMinute is set")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

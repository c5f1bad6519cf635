package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"

	StorageLocal = "local"
	StorageS3    = "s3"

	defaultDBPath     = "./filaprint.db"
	defaultPort       = "3000"
	defaultStorageDir = "./static"

	// Used only outside production when JWT_SECRET is unset.
	fallbackJWTSecret = "fallback_secret_change_me"
)

// Config holds application configuration sourced from the environment,
// an optional .env file and an optional config file.
type Config struct {
	Environment   string
	Port          string
	DBPath        string
	JWTSecret     string
	AdminUsername string
	AdminPassword string
	Storage       StorageConfig
}

// StorageConfig selects where uploaded model files live.
type StorageConfig struct {
	Backend string
	Dir     string
	S3      S3Config
}

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

// Load reads configuration. envFile is loaded best-effort and never overrides
// variables already present in the process environment. configFile is
// optional; when set it must exist.
func Load(envFile, configFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("PORT", defaultPort)
	v.SetDefault("DB_PATH", defaultDBPath)
	v.SetDefault("STORAGE_BACKEND", StorageLocal)
	v.SetDefault("STORAGE_DIR", defaultStorageDir)
	v.SetDefault("S3_REGION", "auto")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	cfg := Config{
		Environment:   strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV"))),
		Port:          strings.TrimSpace(v.GetString("PORT")),
		DBPath:        strings.TrimSpace(v.GetString("DB_PATH")),
		JWTSecret:     strings.TrimSpace(v.GetString("JWT_SECRET")),
		AdminUsername: strings.TrimSpace(v.GetString("ADMIN_USERNAME")),
		AdminPassword: v.GetString("ADMIN_PASSWORD"),
		Storage: StorageConfig{
			Backend: strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_BACKEND"))),
			Dir:     strings.TrimSpace(v.GetString("STORAGE_DIR")),
			S3: S3Config{
				Bucket:    strings.TrimSpace(v.GetString("S3_BUCKET")),
				Region:    strings.TrimSpace(v.GetString("S3_REGION")),
				Endpoint:  strings.TrimSpace(v.GetString("S3_ENDPOINT")),
				AccessKey: strings.TrimSpace(v.GetString("S3_ACCESS_KEY")),
				SecretKey: strings.TrimSpace(v.GetString("S3_SECRET_KEY")),
				Prefix:    strings.Trim(strings.TrimSpace(v.GetString("S3_PREFIX")), "/"),
			},
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = fallbackJWTSecret
	}

	return cfg, nil
}

func (c Config) validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("APP_ENV must be one of development, production, test (got %q)", c.Environment)
	}

	if c.IsProduction() && c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required in production")
	}

	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.Dir == "" {
			return errors.New("STORAGE_DIR is required for local storage")
		}
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			return errors.New("S3_BUCKET is required for s3 storage")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be local or s3 (got %q)", c.Storage.Backend)
	}

	return nil
}

// Warnings lists non-fatal configuration problems worth logging at startup.
func (c Config) Warnings() []string {
	var warnings []string
	if c.JWTSecret == fallbackJWTSecret {
		warnings = append(warnings, "JWT_SECRET is not set; using an insecure fallback")
	}
	if c.AdminUsername == "" || c.AdminPassword == "" {
		warnings = append(warnings, "ADMIN_USERNAME/ADMIN_PASSWORD not set; no admin user will be seeded")
	}
	return warnings
}

func (c Config) IsDev() bool {
	return c.Environment == EnvDevelopment
}

func (c Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefixVariable names the variable holding the prefix of every other
// adapter variable. It is read without a prefix.
const EnvPrefixVariable = "ADAPTER_ENV_PREFIX"

// Config holds all configuration for the adapter
type Config struct {
	Environment string `validate:"required"`
	EnvPrefix   string
	LogLevel    string `validate:"oneof=debug info warn warning error"`
	Server      ServerConfig
	Lambda      LambdaConfig
	Storage     StorageConfig
}

// ServerConfig holds settings of the standalone HTTP server
type ServerConfig struct {
	Host           string
	Port           string `validate:"required,numeric"`
	SocketPath     string
	Origin         string `validate:"omitempty,url"`
	XFFDepth       int    `validate:"min=1"`
	AddressHeader  string
	ProtocolHeader string
	HostHeader     string  `validate:"required"`
	BodySizeLimit  int64   `validate:"min=0"`
	AppPath        string  `validate:"required"`
	RateLimitRPS   float64 `validate:"min=0"`
	RateLimitBurst int     `validate:"min=0"`
}

// LambdaConfig holds settings of the Lambda handler. PrerenderedDir must
// match the prefix the manifest was built with.
type LambdaConfig struct {
	Stream         bool
	BuildDir       string `validate:"required"`
	PrerenderedDir string `validate:"required"`
	Manifest       string `validate:"required"`
}

// StorageConfig holds file storage configuration
type StorageConfig struct {
	Type      string `validate:"oneof=local s3 mock"` // "local", "s3" or "mock"
	LocalPath string
	S3Bucket  string `validate:"required_if=Type s3"`
	S3Region  string
}

// expectedVariables are the names allowed after the env prefix.
var expectedVariables = map[string]struct{}{
	"SOCKET_PATH":        {},
	"HOST":               {},
	"PORT":               {},
	"ORIGIN":             {},
	"XFF_DEPTH":          {},
	"ADDRESS_HEADER":     {},
	"PROTOCOL_HEADER":    {},
	"HOST_HEADER":        {},
	"BODY_SIZE_LIMIT":    {},
	"APP_PATH":           {},
	"ENVIRONMENT":        {},
	"LOG_LEVEL":          {},
	"RATE_LIMIT_RPS":     {},
	"RATE_LIMIT_BURST":   {},
	"STREAM":             {},
	"BUILD_DIR":          {},
	"PRERENDERED_DIR":    {},
	"MANIFEST":           {},
	"STORAGE_TYPE":       {},
	"STORAGE_LOCAL_PATH": {},
	"S3_BUCKET":          {},
	"S3_REGION":          {},
}

// Load loads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	prefix := os.Getenv(EnvPrefixVariable)
	if err := CheckEnvPrefix(prefix, os.Environ()); err != nil {
		return nil, err
	}

	return load(prefix)
}

func load(prefix string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	key := func(name string) string { return prefix + name }

	v.SetDefault(key("ENVIRONMENT"), "development")
	v.SetDefault(key("LOG_LEVEL"), "info")
	v.SetDefault(key("HOST"), "0.0.0.0")
	v.SetDefault(key("PORT"), "3000")
	v.SetDefault(key("XFF_DEPTH"), 1)
	v.SetDefault(key("HOST_HEADER"), "host")
	v.SetDefault(key("BODY_SIZE_LIMIT"), 524288)
	v.SetDefault(key("APP_PATH"), "_app")
	v.SetDefault(key("RATE_LIMIT_RPS"), 0)
	v.SetDefault(key("RATE_LIMIT_BURST"), 0)
	v.SetDefault(key("STREAM"), false)
	v.SetDefault(key("BUILD_DIR"), "build")
	v.SetDefault(key("PRERENDERED_DIR"), "prerendered")
	v.SetDefault(key("MANIFEST"), "build/manifest.json")
	v.SetDefault(key("STORAGE_TYPE"), "local")
	v.SetDefault(key("STORAGE_LOCAL_PATH"), "build")

	config := &Config{
		Environment: v.GetString(key("ENVIRONMENT")),
		EnvPrefix:   prefix,
		LogLevel:    strings.ToLower(v.GetString(key("LOG_LEVEL"))),
		Server: ServerConfig{
			Host:           v.GetString(key("HOST")),
			Port:           v.GetString(key("PORT")),
			SocketPath:     v.GetString(key("SOCKET_PATH")),
			Origin:         v.GetString(key("ORIGIN")),
			XFFDepth:       v.GetInt(key("XFF_DEPTH")),
			AddressHeader:  strings.ToLower(v.GetString(key("ADDRESS_HEADER"))),
			ProtocolHeader: strings.ToLower(v.GetString(key("PROTOCOL_HEADER"))),
			HostHeader:     strings.ToLower(v.GetString(key("HOST_HEADER"))),
			BodySizeLimit:  v.GetInt64(key("BODY_SIZE_LIMIT")),
			AppPath:        v.GetString(key("APP_PATH")),
			RateLimitRPS:   v.GetFloat64(key("RATE_LIMIT_RPS")),
			RateLimitBurst: v.GetInt(key("RATE_LIMIT_BURST")),
		},
		Lambda: LambdaConfig{
			Stream:         v.GetBool(key("STREAM")),
			BuildDir:       v.GetString(key("BUILD_DIR")),
			PrerenderedDir: v.GetString(key("PRERENDERED_DIR")),
			Manifest:       v.GetString(key("MANIFEST")),
		},
		Storage: StorageConfig{
			Type:      strings.ToLower(v.GetString(key("STORAGE_TYPE"))),
			LocalPath: v.GetString(key("STORAGE_LOCAL_PATH")),
			S3Bucket:  v.GetString(key("S3_BUCKET")),
			S3Region:  v.GetString(key("S3_REGION")),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the struct tags of the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// CheckEnvPrefix fails when a variable carries the prefix but is not one the
// adapter reads, which means the prefix collides with another application.
func CheckEnvPrefix(prefix string, environ []string) error {
	if prefix == "" {
		return nil
	}

	for _, entry := range environ {
		name, _, _ := strings.Cut(entry, "=")
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if _, ok := expectedVariables[strings.TrimPrefix(name, prefix)]; !ok {
			return fmt.Errorf("you should change the env prefix (%s) to avoid conflicts with existing environment variables: unexpectedly saw %s", prefix, name)
		}
	}

	return nil
}

// GetEnv gets an environment variable with a fallback value
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

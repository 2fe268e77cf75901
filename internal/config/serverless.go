package config

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// ServerlessConfig describes the Lambda environment the process runs in
type ServerlessConfig struct {
	IsLambda     bool
	FunctionName string
	Region       string
	Stage        string
	Runtime      string
}

// Global serverless configuration
var (
	serverlessConfig *ServerlessConfig
	serverlessOnce   sync.Once
)

// GetServerlessConfig returns the serverless configuration
func GetServerlessConfig() *ServerlessConfig {
	serverlessOnce.Do(func() {
		serverlessConfig = &ServerlessConfig{
			IsLambda:     isRunningInLambda(),
			FunctionName: os.Getenv("AWS_LAMBDA_FUNCTION_NAME"),
			Region:       os.Getenv("AWS_REGION"),
			Stage:        GetEnv("STAGE", "dev"),
			Runtime:      os.Getenv("AWS_EXECUTION_ENV"),
		}
	})
	return serverlessConfig
}

// isRunningInLambda detects if the application is running in AWS Lambda
func isRunningInLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// IsServerlessMode returns true if running in serverless mode
func IsServerlessMode() bool {
	return GetServerlessConfig().IsLambda
}

// GetDeploymentMode returns the current deployment mode
func GetDeploymentMode() string {
	if IsServerlessMode() {
		return "serverless"
	}
	return "server"
}

// AdaptConfigForServerless modifies configuration for Lambda: prerendered
// files are read from the deployment package next to the handler, and the
// bucket region defaults to the function's region.
func AdaptConfigForServerless(config *Config) *Config {
	if !IsServerlessMode() {
		return config
	}

	if config.Storage.Type == "s3" && config.Storage.S3Region == "" {
		config.Storage.S3Region = GetServerlessConfig().Region
	}

	if root := os.Getenv("LAMBDA_TASK_ROOT"); root != "" && config.Storage.Type == "local" && config.Storage.LocalPath == "build" {
		config.Storage.LocalPath = root
	}

	return config
}

// GetOptimizedConfig returns configuration optimized for the current deployment mode
func GetOptimizedConfig() (*Config, error) {
	config, err := Load()
	if err != nil {
		return nil, err
	}

	config = AdaptConfigForServerless(config)
	ConfigureLogging(config)

	return config, nil
}

// ConfigureLogging applies the log level, and JSON output inside Lambda so
// CloudWatch can index the fields.
func ConfigureLogging(config *Config) {
	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if IsServerlessMode() || config.Environment == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}

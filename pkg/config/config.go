// Package config loads service configuration from environment variables,
// with an optional YAML chain profile for the anchoring target.
package config

import "os"

// Config holds runtime configuration for the anchorite service and CLI.
type Config struct {
	LogLevel       string
	DatabasePath   string
	RedisAddr      string // empty disables the Redis leaf index
	S3Bucket       string // empty disables the S3 batch archive
	S3Region       string
	S3Endpoint     string
	ChainID        string
	ChainProfile   string // path to a YAML chain profile
	OTLPEndpoint   string // empty disables telemetry export
	ServiceName    string
	ServiceVersion string
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbPath := os.Getenv("ANCHORITE_DB")
	if dbPath == "" {
		dbPath = "anchorite.db"
	}

	chainID := os.Getenv("ANCHORITE_CHAIN_ID")
	if chainID == "" {
		chainID = "anchorite-local"
	}

	serviceName := os.Getenv("SERVICE_NAME")
	if serviceName == "" {
		serviceName = "anchorite"
	}

	return &Config{
		LogLevel:       logLevel,
		DatabasePath:   dbPath,
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		S3Bucket:       os.Getenv("ANCHORITE_S3_BUCKET"),
		S3Region:       os.Getenv("AWS_REGION"),
		S3Endpoint:     os.Getenv("ANCHORITE_S3_ENDPOINT"),
		ChainID:        chainID,
		ChainProfile:   os.Getenv("ANCHORITE_CHAIN_PROFILE"),
		OTLPEndpoint:   os.Getenv("OTLP_ENDPOINT"),
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
	}
}

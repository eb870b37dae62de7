package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/proofline-hq/proofline/pkg/logger"
)

// Config holds the configuration for the reconciliation service
type Config struct {
	RedisURL        string
	MySQLDSN        string
	APIPort         string
	MetricsPort     string
	SignatureSecret string
	IndexSecret     string

	WorkerConcurrency int
	MaxRetries        int
	JobTimeout        time.Duration

	SweepInterval  time.Duration
	SweepBatchSize int

	Chains         map[int]ChainConfig
	CircuitBreaker CircuitBreakerConfig
	LoggerConfig   LoggerConfig
}

// ChainConfig holds the configuration for one watched chain
type ChainConfig struct {
	ChainID      int
	Network      string
	RPCURL       string
	TokenAddress string
	PollInterval time.Duration
}

// CircuitBreakerConfig holds circuit breaker configuration for durable writes
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	redisURL, err := GetEnvRedisURL()
	if err != nil {
		return nil, err
	}

	mysqlDSN, err := GetEnvMySQLDSN()
	if err != nil {
		return nil, err
	}

	workerConcurrency, err := GetEnvWorkerConcurrency()
	if err != nil {
		return nil, err
	}

	maxRetries, err := GetEnvMaxRetries()
	if err != nil {
		return nil, err
	}

	jobTimeout, err := GetEnvJobTimeout()
	if err != nil {
		return nil, err
	}

	sweepInterval, err := GetEnvSweepInterval()
	if err != nil {
		return nil, err
	}

	sweepBatchSize, err := GetEnvSweepBatchSize()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	chainConfigs, err := GetEnvChainConfigs()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RedisURL:          redisURL,
		MySQLDSN:          mysqlDSN,
		APIPort:           GetEnvAPIPort(),
		MetricsPort:       GetEnvMetricsPort(),
		SignatureSecret:   GetEnvSignatureSecret(),
		IndexSecret:       GetEnvIndexSecret(),
		WorkerConcurrency: workerConcurrency,
		MaxRetries:        maxRetries,
		JobTimeout:        jobTimeout,
		SweepInterval:     sweepInterval,
		SweepBatchSize:    sweepBatchSize,
		Chains:            chainConfigs,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}

	// Validate required environment variables
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if len(cfg.SignatureSecret) < MinSecretLength {
		return fmt.Errorf("HMAC_SIGNATURE_SECRET must be at least %d characters", MinSecretLength)
	}
	if len(cfg.IndexSecret) < MinSecretLength {
		return fmt.Errorf("HMAC_INDEX_SECRET must be at least %d characters", MinSecretLength)
	}
	if len(cfg.Chains) == 0 {
		return fmt.Errorf("at least one chain configuration is required")
	}
	for chainID, chainConfig := range cfg.Chains {
		if chainConfig.RPCURL == "" {
			return fmt.Errorf("CHAIN_%d_RPC_URL is required", chainID)
		}
		if chainConfig.TokenAddress == "" {
			return fmt.Errorf("CHAIN_%d_TOKEN_ADDRESS is required", chainID)
		}
	}
	return nil
}

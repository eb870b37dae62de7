package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/proofline-hq/proofline/pkg/logger"
)

const (
	// MinSecretLength is the minimum accepted length for HMAC secrets
	MinSecretLength = 10

	// DefaultRedisURL is the default Redis connection URL
	DefaultRedisURL = "redis://localhost:6379/0"

	// DefaultAPIPort defines the default port for the order intake API
	DefaultAPIPort = "3000"

	// DefaultMetricsPort defines the default port for the health and metrics server
	DefaultMetricsPort = "8080"

	// DefaultWorkerConcurrency defines the default number of concurrent transfer workers
	DefaultWorkerConcurrency = 5

	// DefaultMaxRetries defines how many times a failed transfer job is retried
	// before it is parked for operator inspection
	DefaultMaxRetries = 3

	// DefaultJobTimeoutSeconds is the soft deadline of one transfer unit of work
	DefaultJobTimeoutSeconds = 30

	// DefaultSweepIntervalSeconds defines how often settled orders are flushed
	// to the durable store
	DefaultSweepIntervalSeconds = 15

	// DefaultSweepBatchSize is the maximum number of settled orders per sweep
	DefaultSweepBatchSize = 100

	// DefaultPollIntervalSeconds is the log polling cadence for HTTP RPC endpoints
	DefaultPollIntervalSeconds = 5

	// DefaultCircuitBreakerEnabled defines whether the durable-write circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker in minutes
	DefaultCircuitBreakerWindow = 5

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker in minutes
	DefaultCircuitBreakerReset = 15
)

// GetEnvRedisURL returns the Redis connection URL
func GetEnvRedisURL() (string, error) {
	raw := os.Getenv("REDIS_URL")
	if raw == "" {
		return DefaultRedisURL, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid REDIS_URL: %v", err)
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return "", fmt.Errorf("invalid REDIS_URL scheme: %s", u.Scheme)
	}
	return raw, nil
}

// GetEnvMySQLDSN returns the MySQL DSN for the durable order store
func GetEnvMySQLDSN() (string, error) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		return "", fmt.Errorf("MYSQL_DSN environment variable is required")
	}
	return dsn, nil
}

// GetEnvAPIPort returns the port for the order intake API
func GetEnvAPIPort() string {
	if port := os.Getenv("API_PORT"); port != "" {
		return port
	}
	return DefaultAPIPort
}

// GetEnvMetricsPort returns the port for the health and metrics server
func GetEnvMetricsPort() string {
	if port := os.Getenv("METRICS_PORT"); port != "" {
		return port
	}
	return DefaultMetricsPort
}

// GetEnvSignatureSecret returns the HMAC secret used to sign and verify orders
func GetEnvSignatureSecret() string {
	return os.Getenv("HMAC_SIGNATURE_SECRET")
}

// GetEnvIndexSecret returns the HMAC secret used to derive fast-store index keys
func GetEnvIndexSecret() string {
	return os.Getenv("HMAC_INDEX_SECRET")
}

// GetEnvWorkerConcurrency returns the number of concurrent transfer workers
func GetEnvWorkerConcurrency() (int, error) {
	return getEnvPositiveInt("WORKER_CONCURRENCY", DefaultWorkerConcurrency)
}

// GetEnvMaxRetries returns the retry budget for failed transfer jobs
func GetEnvMaxRetries() (int, error) {
	return getEnvPositiveInt("MAX_RETRIES", DefaultMaxRetries)
}

// GetEnvJobTimeout returns the soft deadline of one transfer unit of work
func GetEnvJobTimeout() (time.Duration, error) {
	seconds, err := getEnvPositiveInt("JOB_TIMEOUT_SECONDS", DefaultJobTimeoutSeconds)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}

// GetEnvSweepInterval returns the settlement sweeper cadence
func GetEnvSweepInterval() (time.Duration, error) {
	seconds, err := getEnvPositiveInt("SWEEP_INTERVAL_SECONDS", DefaultSweepIntervalSeconds)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}

// GetEnvSweepBatchSize returns the maximum number of settled orders per sweep
func GetEnvSweepBatchSize() (int, error) {
	return getEnvPositiveInt("SWEEP_BATCH_SIZE", DefaultSweepBatchSize)
}

// GetEnvCircuitBreakerEnabled returns whether the durable-write circuit breaker is enabled
func GetEnvCircuitBreakerEnabled() (bool, error) {
	raw := os.Getenv("CIRCUIT_BREAKER_ENABLED")
	if raw == "" {
		return DefaultCircuitBreakerEnabled, nil
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid CIRCUIT_BREAKER_ENABLED value: %s", raw)
	}
	return enabled, nil
}

// GetEnvCircuitBreakerThreshold returns the failure threshold of the circuit breaker
func GetEnvCircuitBreakerThreshold() (int, error) {
	return getEnvPositiveInt("CIRCUIT_BREAKER_THRESHOLD", DefaultCircuitBreakerThreshold)
}

// GetEnvCircuitBreakerWindow returns the failure window of the circuit breaker
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	minutes, err := getEnvPositiveInt("CIRCUIT_BREAKER_WINDOW_MINUTES", DefaultCircuitBreakerWindow)
	if err != nil {
		return 0, err
	}
	return time.Duration(minutes) * time.Minute, nil
}

// GetEnvCircuitBreakerReset returns the reset timeout of the circuit breaker
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	minutes, err := getEnvPositiveInt("CIRCUIT_BREAKER_RESET_MINUTES", DefaultCircuitBreakerReset)
	if err != nil {
		return 0, err
	}
	return time.Duration(minutes) * time.Minute, nil
}

// GetEnvLogLevel returns the configured log level
func GetEnvLogLevel() (logger.Level, error) {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "", "info":
		return logger.InfoLevel, nil
	case "debug":
		return logger.DebugLevel, nil
	case "notice":
		return logger.NoticeLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("invalid LOG_LEVEL value: %s", os.Getenv("LOG_LEVEL"))
	}
}

// GetEnvLogColoring returns whether log coloring is enabled
func GetEnvLogColoring() (bool, error) {
	raw := os.Getenv("LOG_COLORING")
	if raw == "" {
		return true, nil
	}
	coloring, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid LOG_COLORING value: %s", raw)
	}
	return coloring, nil
}

// GetEnvChainConfigs builds the watched chain set from CHAIN_IDS and the
// per-chain CHAIN_<id>_* variables
func GetEnvChainConfigs() (map[int]ChainConfig, error) {
	raw := os.Getenv("CHAIN_IDS")
	if raw == "" {
		return nil, fmt.Errorf("CHAIN_IDS environment variable is required")
	}

	configs := make(map[int]ChainConfig)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		chainID, err := strconv.Atoi(part)
		if err != nil || chainID <= 0 {
			return nil, fmt.Errorf("invalid chain ID in CHAIN_IDS: %s", part)
		}

		tokenAddress := os.Getenv(fmt.Sprintf("CHAIN_%d_TOKEN_ADDRESS", chainID))
		if tokenAddress != "" && !common.IsHexAddress(tokenAddress) {
			return nil, fmt.Errorf("invalid CHAIN_%d_TOKEN_ADDRESS: %s", chainID, tokenAddress)
		}

		pollSeconds, err := getEnvPositiveInt(
			fmt.Sprintf("CHAIN_%d_POLL_INTERVAL_SECONDS", chainID), DefaultPollIntervalSeconds)
		if err != nil {
			return nil, err
		}

		configs[chainID] = ChainConfig{
			ChainID:      chainID,
			Network:      os.Getenv(fmt.Sprintf("CHAIN_%d_NETWORK", chainID)),
			RPCURL:       os.Getenv(fmt.Sprintf("CHAIN_%d_RPC_URL", chainID)),
			TokenAddress: strings.ToLower(tokenAddress),
			PollInterval: time.Duration(pollSeconds) * time.Second,
		}
	}

	if len(configs) == 0 {
		return nil, fmt.Errorf("CHAIN_IDS contains no valid chain IDs")
	}
	return configs, nil
}

func getEnvPositiveInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid %s value: %s", key, raw)
	}
	return value, nil
}

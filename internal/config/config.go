// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Config collects every tunable the services read from the environment.
// Load once in main, pass down explicitly.
type Config struct {
	HTTPAddr string

	RedisURL  string
	AMQPURL   string
	DialerURL string

	AWSRegion    string
	AWSAccessKey string
	AWSSecretKey string
	S3Bucket     string
	S3Endpoint   string

	BatchSize            int
	SweepInterval        time.Duration
	StaleBatchTimeout    time.Duration
	DispatchedRowTimeout time.Duration
	PermitWaitTimeout    time.Duration
	RetryPollInterval    time.Duration
}

func Load() Config {
	return Config{
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		RedisURL:             os.Getenv("REDIS_URL"),
		AMQPURL:              os.Getenv("AMQP_URL"),
		DialerURL:            os.Getenv("DIALER_URL"),
		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKey:         os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretKey:         os.Getenv("AWS_SECRET_ACCESS_KEY"),
		S3Bucket:             os.Getenv("S3_BUCKET"),
		S3Endpoint:           os.Getenv("S3_ENDPOINT"),
		BatchSize:            getEnvInt("BATCH_SIZE", 10),
		SweepInterval:        getEnvSeconds("SWEEP_INTERVAL_SECONDS", 60),
		StaleBatchTimeout:    getEnvSeconds("STALE_BATCH_TIMEOUT_SECONDS", 300),
		DispatchedRowTimeout: getEnvSeconds("DISPATCHED_ROW_TIMEOUT_SECONDS", 300),
		PermitWaitTimeout:    getEnvSeconds("PERMIT_WAIT_TIMEOUT_SECONDS", 30),
		RetryPollInterval:    getEnvSeconds("RETRY_POLL_INTERVAL_SECONDS", 15),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}

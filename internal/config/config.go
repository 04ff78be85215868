package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kevin07696/newebpay-service/pkg/resilience"
)

// lockExpiryMargin is added to the service deadline when LOCK_EXPIRY is unset
const lockExpiryMargin = 30 * time.Second

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Gateway     GatewayConfig
	Credential  CredentialConfig
	Store       StoreConfig
	Lock        LockConfig
	Reconcile   ReconcileConfig
	RateLimit   RateLimitConfig
	Logger      LoggerConfig
}

// ServerConfig holds listener configuration
type ServerConfig struct {
	HTTPPort      int
	GRPCPort      int
	MetricsPort   int
	PublicBaseURL string // externally reachable base for NotifyURL and ReturnURL
}

// GatewayConfig holds NewebPay configuration
type GatewayConfig struct {
	Env         string // sandbox or production
	Client      string // direct or sdk
	Timeout     time.Duration
	AutoCapture bool
}

// CredentialConfig selects where the merchant credential comes from
type CredentialConfig struct {
	Source     string // env, file, aws, vault
	MerchantID string
	HashKey    string
	HashIV     string

	FilePath string

	AWSRegion   string
	AWSSecretID string
	AWSEndpoint string

	VaultAddr      string
	VaultToken     string
	VaultRoleID    string
	VaultSecretID  string
	VaultMountPath string
	VaultPath      string
}

// StoreConfig selects the order store
type StoreConfig struct {
	Driver      string // file or postgres
	FilePath    string
	DatabaseURL string
	MaxConns    int32
	MinConns    int32
}

// LockConfig selects the per-order lock implementation
type LockConfig struct {
	Driver    string // local or redis
	RedisAddr string
	Expiry    time.Duration // must outlive the service deadline, which bounds every locked gateway call
}

// ReconcileConfig controls the scheduled sweep
type ReconcileConfig struct {
	Schedule    string // cron spec with seconds; empty disables the sweep
	Concurrency int
	CronSecret  string // authenticates POST /cron/reconcile; empty disables the endpoint
}

// RateLimitConfig controls per-client request limiting
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	env := getEnv("ENVIRONMENT", "development")
	cfg := &Config{
		Environment: env,
		Server: ServerConfig{
			HTTPPort:      getEnvAsInt("HTTP_PORT", 3000),
			GRPCPort:      getEnvAsInt("GRPC_PORT", 50051),
			MetricsPort:   getEnvAsInt("METRICS_PORT", 9090),
			PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		},
		Gateway: GatewayConfig{
			Env:         getEnv("NEWEBPAY_ENV", "sandbox"),
			Client:      getEnv("NEWEBPAY_CLIENT", "direct"),
			Timeout:     getEnvAsDuration("NEWEBPAY_TIMEOUT", 30*time.Second),
			AutoCapture: getEnvAsBool("NEWEBPAY_AUTO_CAPTURE", false),
		},
		Credential: CredentialConfig{
			Source:         getEnv("CREDENTIAL_SOURCE", "env"),
			MerchantID:     getEnv("NEWEBPAY_MERCHANT_ID", ""),
			HashKey:        getEnv("NEWEBPAY_HASH_KEY", ""),
			HashIV:         getEnv("NEWEBPAY_HASH_IV", ""),
			FilePath:       getEnv("CREDENTIAL_FILE", "./secrets/newebpay.json"),
			AWSRegion:      getEnv("AWS_REGION", "ap-northeast-1"),
			AWSSecretID:    getEnv("AWS_SECRET_ID", ""),
			AWSEndpoint:    getEnv("AWS_ENDPOINT", ""),
			VaultAddr:      getEnv("VAULT_ADDR", ""),
			VaultToken:     getEnv("VAULT_TOKEN", ""),
			VaultRoleID:    getEnv("VAULT_ROLE_ID", ""),
			VaultSecretID:  getEnv("VAULT_SECRET_ID", ""),
			VaultMountPath: getEnv("VAULT_MOUNT_PATH", "secret"),
			VaultPath:      getEnv("VAULT_SECRET_PATH", "newebpay/merchant"),
		},
		Store: StoreConfig{
			Driver:      getEnv("ORDER_STORE", "file"),
			FilePath:    getEnv("ORDER_FILE_PATH", "./data/orders.json"),
			DatabaseURL: getEnv("DATABASE_URL", ""),
			MaxConns:    int32(getEnvAsInt("DB_MAX_CONNS", 10)),
			MinConns:    int32(getEnvAsInt("DB_MIN_CONNS", 2)),
		},
		Lock: LockConfig{
			Driver:    getEnv("LOCKER", "local"),
			RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
			Expiry:    getEnvAsDuration("LOCK_EXPIRY", 0),
		},
		Reconcile: ReconcileConfig{
			Schedule:    getEnv("RECONCILE_SCHEDULE", ""),
			Concurrency: getEnvAsInt("RECONCILE_CONCURRENCY", 4),
			CronSecret:  getEnv("CRON_SECRET", ""),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvAsFloat("RATE_LIMIT_RPS", 20),
			Burst: getEnvAsInt("RATE_LIMIT_BURST", 40),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: env != "production",
		},
	}
	if cfg.Lock.Expiry == 0 {
		cfg.Lock.Expiry = cfg.Timeouts().Service + lockExpiryMargin
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerations and the fields each selected backend requires
func (c *Config) Validate() error {
	if c.Gateway.Env != "sandbox" && c.Gateway.Env != "production" {
		return fmt.Errorf("NEWEBPAY_ENV must be sandbox or production, got %q", c.Gateway.Env)
	}
	if c.Gateway.Client != "direct" && c.Gateway.Client != "sdk" {
		return fmt.Errorf("NEWEBPAY_CLIENT must be direct or sdk, got %q", c.Gateway.Client)
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("NEWEBPAY_TIMEOUT must be positive")
	}

	switch c.Credential.Source {
	case "env":
		if c.Credential.MerchantID == "" || c.Credential.HashKey == "" || c.Credential.HashIV == "" {
			return fmt.Errorf("NEWEBPAY_MERCHANT_ID, NEWEBPAY_HASH_KEY and NEWEBPAY_HASH_IV are required")
		}
	case "file":
		if c.Credential.FilePath == "" {
			return fmt.Errorf("CREDENTIAL_FILE is required")
		}
	case "aws":
		if c.Credential.AWSSecretID == "" {
			return fmt.Errorf("AWS_SECRET_ID is required")
		}
	case "vault":
		if c.Credential.VaultAddr == "" {
			return fmt.Errorf("VAULT_ADDR is required")
		}
	default:
		return fmt.Errorf("CREDENTIAL_SOURCE must be env, file, aws or vault, got %q", c.Credential.Source)
	}

	switch c.Store.Driver {
	case "file":
		if c.Store.FilePath == "" {
			return fmt.Errorf("ORDER_FILE_PATH is required")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	default:
		return fmt.Errorf("ORDER_STORE must be file or postgres, got %q", c.Store.Driver)
	}

	switch c.Lock.Driver {
	case "local":
	case "redis":
		if c.Lock.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required")
		}
		// an expired lock lets a second replica refund the same order
		if service := c.Timeouts().Service; c.Lock.Expiry <= service {
			return fmt.Errorf("LOCK_EXPIRY (%s) must exceed the service deadline (%s) derived from NEWEBPAY_TIMEOUT",
				c.Lock.Expiry, service)
		}
	default:
		return fmt.Errorf("LOCKER must be local or redis, got %q", c.Lock.Driver)
	}

	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

// Timeouts derives the handler, service and gateway deadlines from NEWEBPAY_TIMEOUT
func (c *Config) Timeouts() *resilience.TimeoutConfig {
	return resilience.DefaultTimeoutConfig().WithGatewayCall(c.Gateway.Timeout)
}

// NotifyURL is the server-to-server webhook the gateway posts to
func (s ServerConfig) NotifyURL() string {
	return s.PublicBaseURL + "/api/payment/notify"
}

// ReturnURL is where the browser lands after checkout
func (s ServerConfig) ReturnURL() string {
	return s.PublicBaseURL + "/api/payment/return"
}

// ResultURL is the page the return handler redirects the browser to
func (s ServerConfig) ResultURL() string {
	return s.PublicBaseURL + "/payment/result"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("15s") or bare seconds ("15")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

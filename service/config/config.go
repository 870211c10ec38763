package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/daverbj/solana-llm-integration/service/solana"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Solana RPC configuration
	SolanaRPCURL  string
	SolanaRPCURLs []string // optional pool; one endpoint is picked per process

	// Retry configuration for balance reads
	RPCMaxAttempts int
	RPCRetryDelay  time.Duration
	RPCBackoff     string // "fixed" or "exponential"
	RPCBackoffMax  time.Duration

	// Airdrop configuration
	AirdropSettleDelay         time.Duration
	AirdropSettleMode          string // "fixed" or "poll"
	AirdropSettleTimeout       time.Duration
	AirdropSettlePollInterval  time.Duration
	AirdropConfirmTimeout      time.Duration
	AirdropConfirmPollInterval time.Duration
	AirdropMaxSOL              float64
	AirdropDefaultSOL          float64

	// Text-completion configuration
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	OpenAITimeout time.Duration

	// Optional integrations; empty disables them
	DatabaseURL    string
	NATSURL        string
	RedisURL       string
	IntentCacheTTL time.Duration

	// Temporal configuration; empty host disables durable airdrops
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
}

// Load reads configuration for the HTTP server from the environment (after an
// optional .env file) and validates all fields. Every problem is reported, not
// just the first.
func Load() (*Config, error) {
	return load(true)
}

// LoadWorker is like Load for the Temporal worker: the completion API key is not
// needed, but a Temporal host is.
func LoadWorker() (*Config, error) {
	cfg, err := load(false)
	if err != nil {
		return nil, err
	}
	if cfg.TemporalHost == "" {
		return nil, fmt.Errorf("configuration validation failed: [TEMPORAL_HOST is required]")
	}
	return cfg, nil
}

func load(requireCompletion bool) (*Config, error) {
	loadEnvFile()

	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info"))
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", cfg.LogLevel))
	}

	// Solana RPC configuration
	cfg.SolanaRPCURL = getEnvOrDefault("SOLANA_RPC_URL", "https://api.devnet.solana.com")
	cfg.SolanaRPCURLs = splitList(os.Getenv("SOLANA_RPC_URLS"))

	maxAttempts, err := parseInt("RPC_MAX_ATTEMPTS", solana.DefaultMaxAttempts)
	if err != nil {
		errs = append(errs, err)
	} else if maxAttempts < 1 {
		errs = append(errs, fmt.Errorf("RPC_MAX_ATTEMPTS must be at least 1, got %d", maxAttempts))
	} else {
		cfg.RPCMaxAttempts = maxAttempts
	}

	if cfg.RPCRetryDelay, err = parseDuration("RPC_RETRY_DELAY", "1s"); err != nil {
		errs = append(errs, err)
	}
	cfg.RPCBackoff = strings.ToLower(getEnvOrDefault("RPC_BACKOFF", "fixed"))
	if cfg.RPCBackoff != "fixed" && cfg.RPCBackoff != "exponential" {
		errs = append(errs, fmt.Errorf("RPC_BACKOFF must be fixed or exponential, got %q", cfg.RPCBackoff))
	}
	if cfg.RPCBackoffMax, err = parseDuration("RPC_BACKOFF_MAX", "10s"); err != nil {
		errs = append(errs, err)
	} else if cfg.RPCBackoff == "exponential" && cfg.RPCBackoffMax <= 0 {
		errs = append(errs, fmt.Errorf("RPC_BACKOFF_MAX must be positive with exponential backoff, got %s", cfg.RPCBackoffMax))
	}

	// Airdrop configuration
	if cfg.AirdropSettleDelay, err = parseDuration("AIRDROP_SETTLE_DELAY", "2s"); err != nil {
		errs = append(errs, err)
	}
	cfg.AirdropSettleMode = strings.ToLower(getEnvOrDefault("AIRDROP_SETTLE_MODE", string(solana.SettleFixed)))
	if cfg.AirdropSettleMode != string(solana.SettleFixed) && cfg.AirdropSettleMode != string(solana.SettlePoll) {
		errs = append(errs, fmt.Errorf("AIRDROP_SETTLE_MODE must be fixed or poll, got %q", cfg.AirdropSettleMode))
	}
	if cfg.AirdropSettleTimeout, err = parseDuration("AIRDROP_SETTLE_TIMEOUT", "20s"); err != nil {
		errs = append(errs, err)
	}
	if cfg.AirdropSettlePollInterval, err = parseDuration("AIRDROP_SETTLE_POLL_INTERVAL", "1s"); err != nil {
		errs = append(errs, err)
	} else if cfg.AirdropSettlePollInterval <= 0 {
		errs = append(errs, fmt.Errorf("AIRDROP_SETTLE_POLL_INTERVAL must be positive"))
	}
	if cfg.AirdropConfirmTimeout, err = parseDuration("AIRDROP_CONFIRM_TIMEOUT", "60s"); err != nil {
		errs = append(errs, err)
	}
	if cfg.AirdropConfirmPollInterval, err = parseDuration("AIRDROP_CONFIRM_POLL_INTERVAL", "500ms"); err != nil {
		errs = append(errs, err)
	} else if cfg.AirdropConfirmPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("AIRDROP_CONFIRM_POLL_INTERVAL must be positive"))
	}

	if cfg.AirdropMaxSOL, err = parseFloat("AIRDROP_MAX_SOL", 2); err != nil {
		errs = append(errs, err)
	} else if cfg.AirdropMaxSOL <= 0 {
		errs = append(errs, fmt.Errorf("AIRDROP_MAX_SOL must be positive"))
	}
	if cfg.AirdropDefaultSOL, err = parseFloat("AIRDROP_DEFAULT_SOL", 1); err != nil {
		errs = append(errs, err)
	} else if cfg.AirdropDefaultSOL <= 0 || (cfg.AirdropMaxSOL > 0 && cfg.AirdropDefaultSOL > cfg.AirdropMaxSOL) {
		errs = append(errs, fmt.Errorf("AIRDROP_DEFAULT_SOL (%v) must be positive and not exceed AIRDROP_MAX_SOL (%v)",
			cfg.AirdropDefaultSOL, cfg.AirdropMaxSOL))
	}

	// Text-completion configuration
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if requireCompletion && cfg.OpenAIAPIKey == "" {
		errs = append(errs, fmt.Errorf("OPENAI_API_KEY is required"))
	}
	cfg.OpenAIBaseURL = getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	cfg.OpenAIModel = getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini")
	if cfg.OpenAITimeout, err = parseDuration("OPENAI_TIMEOUT", "60s"); err != nil {
		errs = append(errs, err)
	}

	// Optional integrations
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.IntentCacheTTL, err = parseDuration("INTENT_CACHE_TTL", "10m"); err != nil {
		errs = append(errs, err)
	}

	// Temporal configuration
	cfg.TemporalHost = os.Getenv("TEMPORAL_HOST")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "solana-airdrops")

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Endpoints returns the RPC endpoint pool: SOLANA_RPC_URLS when set, else SOLANA_RPC_URL.
func (c *Config) Endpoints() []string {
	if len(c.SolanaRPCURLs) > 0 {
		return c.SolanaRPCURLs
	}
	return []string{c.SolanaRPCURL}
}

// Backoff returns the configured retry strategy for balance reads.
func (c *Config) Backoff() solana.Backoff {
	return solana.NewBackoff(c.RPCBackoff, c.RPCRetryDelay, c.RPCBackoffMax)
}

// Airdrop returns the airdrop sequence settings.
func (c *Config) Airdrop() solana.AirdropConfig {
	ac := solana.DefaultAirdropConfig()
	ac.SettleMode = solana.SettleMode(c.AirdropSettleMode)
	ac.SettleDelay = c.AirdropSettleDelay
	ac.SettleTimeout = c.AirdropSettleTimeout
	ac.SettlePollInterval = c.AirdropSettlePollInterval
	ac.ConfirmTimeout = c.AirdropConfirmTimeout
	ac.ConfirmPollInterval = c.AirdropConfirmPollInterval
	ac.MaxAmount = c.AirdropMaxSOL
	return ac
}

// loadEnvFile loads the first .env found in the working directory, its parent,
// or the module root. Existing environment variables are never overridden.
func loadEnvFile() {
	paths := []string{".env", filepath.Join("..", ".env")}
	if root := findModuleRoot(); root != "" {
		paths = append(paths, filepath.Join(root, ".env"))
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findModuleRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseFloat parses a float from an environment variable or uses a default.
func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}

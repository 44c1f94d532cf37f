package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"forex-agent/internal/backtest"
	"forex-agent/internal/calendar"
	"forex-agent/internal/logging"
	"forex-agent/internal/risk"
)

type Config struct {
	SystemConfig   SystemConfig    `json:"system"`
	LoggingConfig  logging.Config  `json:"logging"`
	MarketConfig   MarketConfig    `json:"market"`
	EventsConfig   calendar.Config `json:"events"`
	RiskConfig     risk.Config     `json:"risk"`
	BacktestConfig backtest.Config `json:"backtest"`
	DatabaseConfig DatabaseConfig  `json:"database"`
	RedisConfig    RedisConfig     `json:"redis"`
	VaultConfig    VaultConfig     `json:"vault"`
	ServerConfig   ServerConfig    `json:"server"`
	AuthConfig     AuthConfig      `json:"auth"`
}

// SystemConfig holds the live loop parameters.
type SystemConfig struct {
	Instrument      string  `json:"currency_pair"`
	Granularity     string  `json:"granularity"`
	TickInterval    int     `json:"tick_interval_seconds"`
	LookbackCandles int     `json:"lookback_candles"`
	InitialBalance  float64 `json:"initial_balance"`
	AuditFile       string  `json:"audit_file"`
	PositionsFile   string  `json:"positions_file"`
	MaxDataFailures int     `json:"max_data_failures"`
}

// MarketConfig selects the candle/spread provider.
type MarketConfig struct {
	Provider      string  `json:"provider"` // mock, oanda
	Environment   string  `json:"environment"`
	APIToken      string  `json:"api_token"`
	AccountID     string  `json:"account_id"`
	DefaultSpread float64 `json:"default_spread"`
}

// DatabaseConfig holds the candle archive connection.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds the calendar cache connection.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// VaultConfig locates the market API credentials in Vault.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
}

// ServerConfig holds the operations API settings.
type ServerConfig struct {
	Enabled         bool     `json:"enabled"`
	Port            int      `json:"port"`
	Host            string   `json:"host"`
	AllowedOrigins  []string `json:"allowed_origins"`
	ReadTimeout     int      `json:"read_timeout_seconds"`
	WriteTimeout    int      `json:"write_timeout_seconds"`
	ShutdownTimeout int      `json:"shutdown_timeout_seconds"`
}

// AuthConfig holds API token settings.
type AuthConfig struct {
	Enabled       bool          `json:"enabled"`
	JWTSecret     string        `json:"jwt_secret"`
	TokenDuration time.Duration `json:"token_duration"`
}

// Load reads config.json when present and applies environment overrides on
// top. Environment variables always take precedence.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = defaults()
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFile reads a specific config file plus environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg, err := loadFromFile(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		SystemConfig: SystemConfig{
			Instrument:      "EUR_USD",
			Granularity:     "M15",
			TickInterval:    900,
			LookbackCandles: 200,
			InitialBalance:  10000,
			AuditFile:       "logs/audit.ndjson",
			PositionsFile:   "logs/positions.json",
			MaxDataFailures: 3,
		},
		LoggingConfig: logging.Config{Level: "info", Output: "stdout"},
		MarketConfig: MarketConfig{
			Provider:      "mock",
			Environment:   "practice",
			DefaultSpread: 0.00015,
		},
		EventsConfig:   calendar.DefaultConfig(),
		RiskConfig:     risk.DefaultConfig(),
		BacktestConfig: backtest.DefaultConfig(),
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "forex",
			Database: "forex_agent",
			SSLMode:  "disable",
		},
		RedisConfig:    RedisConfig{Address: "localhost:6379"},
		VaultConfig: VaultConfig{
			Address:    "http://localhost:8200",
			MountPath:  "secret",
			SecretPath: "forex-agent/oanda",
		},
		ServerConfig: ServerConfig{
			Enabled:         true,
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  []string{"*"},
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		AuthConfig: AuthConfig{TokenDuration: 24 * time.Hour},
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.SystemConfig.Instrument = getEnvOrDefault("AGENT_INSTRUMENT", cfg.SystemConfig.Instrument)
	cfg.SystemConfig.Granularity = getEnvOrDefault("AGENT_GRANULARITY", cfg.SystemConfig.Granularity)
	cfg.SystemConfig.TickInterval = getEnvIntOrDefault("AGENT_TICK_INTERVAL", cfg.SystemConfig.TickInterval)
	cfg.SystemConfig.AuditFile = getEnvOrDefault("AGENT_AUDIT_FILE", cfg.SystemConfig.AuditFile)
	cfg.SystemConfig.InitialBalance = getEnvFloatOrDefault("AGENT_INITIAL_BALANCE", cfg.SystemConfig.InitialBalance)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.Console = getEnvOrDefault("LOG_CONSOLE", boolString(cfg.LoggingConfig.Console)) == "true"

	cfg.MarketConfig.Provider = getEnvOrDefault("MARKET_PROVIDER", cfg.MarketConfig.Provider)
	cfg.MarketConfig.Environment = getEnvOrDefault("OANDA_ENVIRONMENT", cfg.MarketConfig.Environment)
	cfg.MarketConfig.APIToken = getEnvOrDefault("OANDA_API_TOKEN", cfg.MarketConfig.APIToken)
	cfg.MarketConfig.AccountID = getEnvOrDefault("OANDA_ACCOUNT_ID", cfg.MarketConfig.AccountID)

	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DATABASE_ENABLED", boolString(cfg.DatabaseConfig.Enabled)) == "true"
	cfg.DatabaseConfig.Host = getEnvOrDefault("DATABASE_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DATABASE_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DATABASE_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DATABASE_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DATABASE_NAME", cfg.DatabaseConfig.Database)

	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolString(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", boolString(cfg.VaultConfig.Enabled)) == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)

	cfg.ServerConfig.Enabled = getEnvOrDefault("SERVER_ENABLED", boolString(cfg.ServerConfig.Enabled)) == "true"
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)

	cfg.AuthConfig.Enabled = getEnvOrDefault("AUTH_ENABLED", boolString(cfg.AuthConfig.Enabled)) == "true"
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.TokenDuration = getEnvDurationOrDefault("AUTH_TOKEN_DURATION", cfg.AuthConfig.TokenDuration)
}

// GenerateSampleConfig writes a starter config.json.
func GenerateSampleConfig(filename string) error {
	data, err := json.MarshalIndent(defaults(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

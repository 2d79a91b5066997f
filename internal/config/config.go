package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath    = "CONFIG_PATH"
	EnvDBConnection  = "DB_CONNECTION"
	EnvJWTSecret     = "JWT_SECRET"
	EnvJWTExpiry     = "JWT_EXPIRY"
	EnvVaultSecret   = "VAULT_SECRET"
	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRateLimit     = "RATE_LIMIT"
	EnvDebug         = "DEBUG"
)

// catalogKeyEnv maps provider identifiers to the env vars holding catalog fetch keys.
var catalogKeyEnv = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// ErrMissingVaultSecret indicates the server-side vault passphrase is not configured.
var ErrMissingVaultSecret = errors.New("missing vault secret (set `vault.secret` in config file or VAULT_SECRET)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// ServerConfig holds listener and logging settings.
type ServerConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`
}

// RateLimitConfig holds per-caller proxy throttling settings.
// Limit and ProviderLimits count calls per Window for one (user, provider, role).
type RateLimitConfig struct {
	Limit         int           `yaml:"limit"`
	Window        time.Duration `yaml:"window"`
	RedisEnabled  bool          `yaml:"redis-enabled"`
	RedisAddr     string        `yaml:"redis-addr"`
	RedisPassword string        `yaml:"redis-password"`
	RedisDB       int           `yaml:"redis-db"`
	RedisPrefix   string        `yaml:"redis-prefix"`

	ProviderLimits map[string]int `yaml:"provider-limits"` // Per-provider overrides of Limit.
}

// CatalogConfig holds model catalog refresh settings.
type CatalogConfig struct {
	RefreshInterval time.Duration     `yaml:"refresh-interval"`
	Keys            map[string]string `yaml:"keys"`
}

// fileConfig mirrors the YAML config file.
type fileConfig struct {
	Server      ServerConfig `yaml:",inline"`
	DatabaseDSN string       `yaml:"database-dsn"`
	Database    struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	JWT   JWTConfig `yaml:"jwt"`
	Vault struct {
		Secret string `yaml:"secret"`
	} `yaml:"vault"`
	RateLimit RateLimitConfig `yaml:"rate-limit"`
	Catalog   CatalogConfig   `yaml:"catalog"`
}

// readFileConfig parses the config file; a missing file yields an empty config.
func readFileConfig(configPath string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return cfg, fmt.Errorf("parse config file: %w", errUnmarshal)
	}
	return cfg, nil
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	result := JWTConfig{Expiry: defaultJWTExpiry}

	if cfg, errRead := readFileConfig(configPath); errRead == nil {
		result = cfg.JWT
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// LoadVaultSecret returns the passphrase used to encrypt stored provider keys.
func LoadVaultSecret(configPath string) (string, error) {
	if secret := os.Getenv(EnvVaultSecret); strings.TrimSpace(secret) != "" {
		return secret, nil
	}
	cfg, err := readFileConfig(configPath)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(cfg.Vault.Secret) == "" {
		return "", ErrMissingVaultSecret
	}
	return cfg.Vault.Secret, nil
}

// LoadServerConfig loads listener settings, falling back to defaultPort.
func LoadServerConfig(configPath string, defaultPort int) (ServerConfig, error) {
	cfg, err := readFileConfig(configPath)
	if err != nil {
		return ServerConfig{}, err
	}
	result := cfg.Server
	if result.Port <= 0 {
		result.Port = defaultPort
	}
	if raw := strings.TrimSpace(os.Getenv(EnvDebug)); raw != "" {
		if debug, errParse := strconv.ParseBool(raw); errParse == nil {
			result.Debug = debug
		}
	}
	return result, nil
}

// defaultRateLimitRedisPrefix namespaces limiter keys in Redis.
const defaultRateLimitRedisPrefix = "promptdock:rl"

// DefaultRateLimitWindow is the window length when none is configured.
const DefaultRateLimitWindow = time.Minute

// LoadRateLimitConfig loads proxy throttling settings.
func LoadRateLimitConfig(configPath string) (RateLimitConfig, error) {
	cfg, err := readFileConfig(configPath)
	if err != nil {
		return RateLimitConfig{}, err
	}
	result := cfg.RateLimit
	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		result.RedisAddr = addr
		result.RedisEnabled = true
	}
	if password := os.Getenv(EnvRedisPassword); password != "" {
		result.RedisPassword = password
	}
	if raw := strings.TrimSpace(os.Getenv(EnvRateLimit)); raw != "" {
		if limit, errParse := strconv.Atoi(raw); errParse == nil {
			result.Limit = limit
		}
	}
	result.RedisAddr = strings.TrimSpace(result.RedisAddr)
	result.RedisPrefix = strings.TrimSpace(result.RedisPrefix)
	if result.RedisPrefix == "" {
		result.RedisPrefix = defaultRateLimitRedisPrefix
	}
	if result.RedisDB < 0 {
		result.RedisDB = 0
	}
	if result.Limit < 0 {
		result.Limit = 0
	}
	if result.Window < time.Second {
		result.Window = DefaultRateLimitWindow
	}
	for provider, limit := range result.ProviderLimits {
		if limit < 0 {
			result.ProviderLimits[provider] = 0
		}
	}
	return result, nil
}

// DefaultCatalogRefreshInterval is how often provider model lists are refetched.
const DefaultCatalogRefreshInterval = 60 * time.Minute

// LoadCatalogConfig loads model catalog settings. Env keys override file keys.
func LoadCatalogConfig(configPath string) (CatalogConfig, error) {
	cfg, err := readFileConfig(configPath)
	if err != nil {
		return CatalogConfig{}, err
	}
	result := CatalogConfig{
		RefreshInterval: cfg.Catalog.RefreshInterval,
		Keys:            make(map[string]string),
	}
	for provider, key := range cfg.Catalog.Keys {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			result.Keys[strings.ToLower(strings.TrimSpace(provider))] = trimmed
		}
	}
	for provider, envName := range catalogKeyEnv {
		if key := strings.TrimSpace(os.Getenv(envName)); key != "" {
			result.Keys[provider] = key
		}
	}
	if result.RefreshInterval <= 0 {
		result.RefreshInterval = DefaultCatalogRefreshInterval
	}
	return result, nil
}

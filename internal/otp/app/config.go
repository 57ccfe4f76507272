package app

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aussiebroadwan/otpgate/internal/otp/service"
	"github.com/aussiebroadwan/otpgate/pkg/cryptox"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Store kinds accepted by OTP_STORE.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

type Config struct {
	Principal string // Who is being verified (default: demo-user)

	CodeLength     int           // Digits per code (default: 6)
	Expiry         time.Duration // Code lifetime (default: 60s)
	MaxAttempts    int           // Guesses per code (default: 3)
	BlockDuration  time.Duration // Lockout after the last failed guess (default: 120s)
	SaltBytes      int           // Salt length per code (default: 16, min: 8)
	HashAlgorithm  string        // sha256 or blake2b (default: sha256)
	ResendCooldown time.Duration // Minimum gap between sends (default: 0, disabled)

	StoreKind    string // memory, sqlite or redis (default: memory)
	DatabaseFile string // SQLite database file (default: ./otp.db)
	RedisURL     string // Redis connection URL (default: redis://localhost:6379/0)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: text)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	OutcomeRetention     time.Duration // How long outcome records are kept (default: 720h)

	LogOutput io.Writer // Log destination, not configurable from the environment (default: stderr)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("OTP_PRINCIPAL", "demo-user")
	v.SetDefault("OTP_LENGTH", service.DefaultCodeLength)
	v.SetDefault("OTP_EXPIRY_SECONDS", 60)
	v.SetDefault("MAX_ATTEMPTS", 3)
	v.SetDefault("BLOCK_DURATION_SECONDS", 120)
	v.SetDefault("OTP_SALT_BYTES", service.DefaultSaltSize)
	v.SetDefault("OTP_HASH_ALGORITHM", string(cryptox.AlgorithmSHA256))
	v.SetDefault("OTP_RESEND_COOLDOWN_SECONDS", 0)
	v.SetDefault("OTP_STORE", StoreMemory)
	v.SetDefault("OTP_DATABASE_FILE", "otp.db")
	v.SetDefault("OTP_REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("HOUSEKEEPING_INTERVAL", time.Hour)
	v.SetDefault("OUTCOME_RETENTION", 30*24*time.Hour)
}

// LoadConfig reads configuration from, in increasing precedence, defaults,
// an optional config file named by OTP_CONFIG_FILE or --config, environment
// variables, and command line flags.
func LoadConfig(args []string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	fs := pflag.NewFlagSet("otp", pflag.ContinueOnError)
	fs.String("user", "", "principal to verify (OTP_PRINCIPAL)")
	fs.String("store", "", "block store: memory, sqlite or redis (OTP_STORE)")
	fs.String("config", "", "optional config file (OTP_CONFIG_FILE)")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	for key, flag := range map[string]string{
		"OTP_PRINCIPAL":   "user",
		"OTP_STORE":       "store",
		"OTP_CONFIG_FILE": "config",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return Config{}, err
		}
	}

	if path := v.GetString("OTP_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: failed to read %s: %w", ErrInvalidConfig, path, err)
		}
	}

	cfg := Config{
		Principal:            strings.TrimSpace(v.GetString("OTP_PRINCIPAL")),
		CodeLength:           v.GetInt("OTP_LENGTH"),
		Expiry:               seconds(v, "OTP_EXPIRY_SECONDS"),
		MaxAttempts:          v.GetInt("MAX_ATTEMPTS"),
		BlockDuration:        seconds(v, "BLOCK_DURATION_SECONDS"),
		SaltBytes:            v.GetInt("OTP_SALT_BYTES"),
		HashAlgorithm:        v.GetString("OTP_HASH_ALGORITHM"),
		ResendCooldown:       seconds(v, "OTP_RESEND_COOLDOWN_SECONDS"),
		StoreKind:            strings.ToLower(v.GetString("OTP_STORE")),
		DatabaseFile:         v.GetString("OTP_DATABASE_FILE"),
		RedisURL:             v.GetString("OTP_REDIS_URL"),
		Env:                  v.GetString("ENV"),
		LogLevel:             v.GetString("LOG_LEVEL"),
		LogFormat:            v.GetString("LOG_FORMAT"),
		HousekeepingInterval: v.GetDuration("HOUSEKEEPING_INTERVAL"),
		OutcomeRetention:     v.GetDuration("OUTCOME_RETENTION"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func seconds(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt64(key)) * time.Second
}

// Validate checks every setting and reports the first problem found.
func (c Config) Validate() error {
	switch {
	case c.Principal == "":
		return fmt.Errorf("%w: principal must not be empty", ErrInvalidConfig)
	case c.CodeLength < 1:
		return fmt.Errorf("%w: OTP_LENGTH must be at least 1", ErrInvalidConfig)
	case c.SaltBytes < cryptox.SaltSize64:
		return fmt.Errorf("%w: OTP_SALT_BYTES must be at least %d", ErrInvalidConfig, cryptox.SaltSize64)
	}

	if _, err := cryptox.ParseAlgorithm(c.HashAlgorithm); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch c.StoreKind {
	case StoreMemory, StoreRedis:
	case StoreSQLite:
		if c.DatabaseFile == "" {
			return fmt.Errorf("%w: OTP_DATABASE_FILE is required for the sqlite store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.StoreKind)
	}

	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Policy returns the verification limits described by c.
func (c Config) Policy() service.Policy {
	return service.Policy{
		Expiry:         c.Expiry,
		MaxAttempts:    c.MaxAttempts,
		BlockFor:       c.BlockDuration,
		ResendCooldown: c.ResendCooldown,
	}
}

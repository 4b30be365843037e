package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // DISPLAY_TIMEZONE must resolve on hosts without a zone database

	"github.com/BurntSushi/toml"
	"github.com/vladimiradmaev/glucose-alerts/internal/logger"
)

type Config struct {
	TelegramToken   string
	AlertChatID     string
	DisplayTimezone string
	RulesFile       string
	DB              DBConfig
	Logger          LoggerConfig
	Dispatch        DispatchConfig
	Redis           RedisConfig
	Metrics         MetricsConfig
	Engine          EngineConfig
	Rules           RulesConfig

	// Warnings collects non-fatal problems such as unknown keys in the rules file
	Warnings []string
}

type DBConfig struct {
	Driver     string // postgres or sqlite
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SQLitePath string
}

type LoggerConfig struct {
	Level      logger.LogLevel
	OutputPath string
	Format     string
}

type DispatchConfig struct {
	Channel     string // telegram, nats or log
	NATSURL     string
	NATSSubject string
	Timeout     time.Duration
}

type RedisConfig struct {
	Host string
	Port string
}

// Enabled reports whether a Redis lock backend is configured
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

type MetricsConfig struct {
	PushgatewayURL string
}

type EngineConfig struct {
	ReadTimeout time.Duration
	// RetryFailedSends lets a rule fire again on the next tick when its previous dispatch failed
	RetryFailedSends bool
}

// Dispatch channels
const (
	ChannelTelegram = "telegram"
	ChannelNATS     = "nats"
	ChannelLog      = "log"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b, nil
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.LevelDebug
	case "info":
		return logger.LevelInfo
	case "warn", "warning":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}

// Load reads configuration from the environment and the optional rules file, then validates it
func Load() (*Config, error) {
	readTimeout, err := getEnvInt("READ_TIMEOUT_SECONDS", 10)
	if err != nil {
		return nil, err
	}
	dispatchTimeout, err := getEnvInt("DISPATCH_TIMEOUT_SECONDS", 10)
	if err != nil {
		return nil, err
	}
	retry, err := getEnvBool("RETRY_FAILED_SENDS", true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		TelegramToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		AlertChatID:     os.Getenv("ALERT_CHAT_ID"),
		DisplayTimezone: getEnvOrDefault("DISPLAY_TIMEZONE", "America/New_York"),
		RulesFile:       os.Getenv("RULES_FILE"),
		DB: DBConfig{
			Driver:     strings.ToLower(getEnvOrDefault("DB_DRIVER", DriverPostgres)),
			Host:       getEnvOrDefault("DB_HOST", "localhost"),
			Port:       getEnvOrDefault("DB_PORT", "5432"),
			User:       getEnvOrDefault("DB_USER", "postgres"),
			Password:   getEnvOrDefault("DB_PASSWORD", "postgres"),
			DBName:     getEnvOrDefault("DB_NAME", "glucose"),
			SQLitePath: getEnvOrDefault("SQLITE_PATH", "data/glucose.db"),
		},
		Logger: LoggerConfig{
			Level:      parseLogLevel(getEnvOrDefault("LOG_LEVEL", "info")),
			OutputPath: getEnvOrDefault("LOG_OUTPUT", "stdout"),
			Format:     getEnvOrDefault("LOG_FORMAT", "json"),
		},
		Dispatch: DispatchConfig{
			Channel:     strings.ToLower(getEnvOrDefault("DISPATCH_CHANNEL", ChannelTelegram)),
			NATSURL:     getEnvOrDefault("NATS_URL", "nats://localhost:4222"),
			NATSSubject: getEnvOrDefault("NATS_SUBJECT", "glucose.alerts"),
			Timeout:     time.Duration(dispatchTimeout) * time.Second,
		},
		Redis: RedisConfig{
			Host: os.Getenv("REDIS_HOST"),
			Port: getEnvOrDefault("REDIS_PORT", "6379"),
		},
		Metrics: MetricsConfig{
			PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),
		},
		Engine: EngineConfig{
			ReadTimeout:      time.Duration(readTimeout) * time.Second,
			RetryFailedSends: retry,
		},
		Rules: DefaultRules(),
	}

	if cfg.RulesFile != "" {
		warnings, err := LoadRulesFile(cfg.RulesFile, &cfg.Rules)
		if err != nil {
			return nil, err
		}
		cfg.Warnings = append(cfg.Warnings, warnings...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location resolves DisplayTimezone through the zone database
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid DISPLAY_TIMEZONE %q: %w", c.DisplayTimezone, err)
	}
	return loc, nil
}

// Validate rejects malformed configuration.
// Credentials of the dispatch channel are checked by ValidateDispatch, only on paths that send.
func (c *Config) Validate() error {
	var errs []error

	switch c.DB.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DB.Driver))
	}

	switch c.Dispatch.Channel {
	case ChannelTelegram, ChannelNATS, ChannelLog:
	default:
		errs = append(errs, fmt.Errorf("unknown DISPATCH_CHANNEL %q", c.Dispatch.Channel))
	}
	if c.AlertChatID != "" {
		if _, err := strconv.ParseInt(c.AlertChatID, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("ALERT_CHAT_ID must be a numeric chat id, got %q", c.AlertChatID))
		}
	}

	if c.Dispatch.Timeout <= 0 {
		errs = append(errs, errors.New("DISPATCH_TIMEOUT_SECONDS must be positive"))
	}
	if c.Engine.ReadTimeout <= 0 {
		errs = append(errs, errors.New("READ_TIMEOUT_SECONDS must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Rules.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ValidateDispatch checks that the configured channel has what it needs to send
func (c *Config) ValidateDispatch() error {
	var errs []error
	switch c.Dispatch.Channel {
	case ChannelTelegram:
		if c.TelegramToken == "" {
			errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required for the telegram channel"))
		}
		if c.AlertChatID == "" {
			errs = append(errs, errors.New("ALERT_CHAT_ID is required for the telegram channel"))
		}
	case ChannelNATS:
		if c.Dispatch.NATSSubject == "" {
			errs = append(errs, errors.New("NATS_SUBJECT is required for the nats channel"))
		}
	}
	return errors.Join(errs...)
}

// LoadRulesFile overlays the TOML file at path onto rules.
// Keys missing from the file keep their current values; unknown keys are returned as warnings.
func LoadRulesFile(path string, rules *RulesConfig) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	var file struct {
		Rules RulesConfig `toml:"rules"`
	}
	file.Rules = *rules
	md, err := toml.Decode(string(data), &file)
	if err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}
	*rules = file.Rules

	var warnings []string
	for _, key := range md.Undecoded() {
		warnings = append(warnings, fmt.Sprintf("unknown rules key: %q", key.String()))
	}
	return warnings, nil
}

package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the notification service.
type Config struct {
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	HTTPPort int `mapstructure:"HTTP_PORT"`
	GRPCPort int `mapstructure:"GRPC_PORT"`

	// Storage
	StoreDriver string `mapstructure:"STORE_DRIVER"` // memory, postgres or sqlite
	PostgresDSN string `mapstructure:"POSTGRES_DSN"`
	SQLitePath  string `mapstructure:"SQLITE_PATH"`

	NATSUrl string `mapstructure:"NATS_URL"` // empty disables NATS

	// Provider
	ProviderName      string        `mapstructure:"PROVIDER_NAME"` // mock or twilio
	TwilioAccountSID  string        `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string        `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioBaseURL     string        `mapstructure:"TWILIO_BASE_URL"`
	SMSSenderAddress  string        `mapstructure:"SMS_SENDER_ADDRESS"`
	StatusCallbackURL string        `mapstructure:"STATUS_CALLBACK_URL"`
	ProviderTimeout   time.Duration `mapstructure:"PROVIDER_TIMEOUT"`
	ProviderMaxRPS    float64       `mapstructure:"PROVIDER_MAX_RPS"` // 0 means unlimited

	BulkPacingInterval time.Duration `mapstructure:"BULK_PACING_INTERVAL"`

	// Throttle Guard
	ThrottleLimit         int           `mapstructure:"THROTTLE_LIMIT"`
	ThrottleWindow        time.Duration `mapstructure:"THROTTLE_WINDOW"`
	ThrottleSweepSchedule string        `mapstructure:"THROTTLE_SWEEP_SCHEDULE"`
	HealthProbeSchedule   string        `mapstructure:"HEALTH_PROBE_SCHEDULE"`

	// Inbound security
	WebhookSigningSecret string `mapstructure:"WEBHOOK_SIGNING_SECRET"`
	WebhookMaxBodyBytes  int64  `mapstructure:"WEBHOOK_MAX_BODY_BYTES"`
	JWTAccessSecret      string `mapstructure:"JWT_ACCESS_SECRET"`

	// Verification challenges
	ChallengeTTL         time.Duration `mapstructure:"CHALLENGE_TTL"`
	ChallengeCodeLength  int           `mapstructure:"CHALLENGE_CODE_LENGTH"`
	ChallengeMaxAttempts int           `mapstructure:"CHALLENGE_MAX_ATTEMPTS"`

	// NATS subjects
	AlertSubject       string `mapstructure:"ALERT_SUBJECT"`
	AlertResultSubject string `mapstructure:"ALERT_RESULT_SUBJECT"`
	AlertQueueGroup    string `mapstructure:"ALERT_QUEUE_GROUP"`
}

// Load reads config.defaults.yaml (if present) and APP_* environment variables.
func Load(serviceName string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config.defaults")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.SetEnvPrefix("APP") // APP_LOG_LEVEL, APP_STORE_DRIVER etc.

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Printf("%s: configuration file ('config.defaults.yaml') not found; using defaults and environment variables.", serviceName)
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("GRPC_PORT", 50060)

	v.SetDefault("STORE_DRIVER", "memory")
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("SQLITE_PATH", "notifications.db")
	v.SetDefault("NATS_URL", "")

	v.SetDefault("PROVIDER_NAME", "mock")
	v.SetDefault("TWILIO_ACCOUNT_SID", "")
	v.SetDefault("TWILIO_AUTH_TOKEN", "")
	v.SetDefault("TWILIO_BASE_URL", "https://api.twilio.com")
	v.SetDefault("SMS_SENDER_ADDRESS", "")
	v.SetDefault("STATUS_CALLBACK_URL", "")
	v.SetDefault("PROVIDER_TIMEOUT", 10*time.Second)
	v.SetDefault("PROVIDER_MAX_RPS", 0)

	v.SetDefault("BULK_PACING_INTERVAL", 100*time.Millisecond)

	v.SetDefault("THROTTLE_LIMIT", 6)
	v.SetDefault("THROTTLE_WINDOW", 60*time.Second)
	v.SetDefault("THROTTLE_SWEEP_SCHEDULE", "@every 1m")
	v.SetDefault("HEALTH_PROBE_SCHEDULE", "@every 30s")

	v.SetDefault("WEBHOOK_SIGNING_SECRET", "")
	v.SetDefault("WEBHOOK_MAX_BODY_BYTES", 64*1024)
	v.SetDefault("JWT_ACCESS_SECRET", "")

	v.SetDefault("CHALLENGE_TTL", 5*time.Minute)
	v.SetDefault("CHALLENGE_CODE_LENGTH", 6)
	v.SetDefault("CHALLENGE_MAX_ATTEMPTS", 5)

	v.SetDefault("ALERT_SUBJECT", "alerts.send")
	v.SetDefault("ALERT_RESULT_SUBJECT", "alerts.result")
	v.SetDefault("ALERT_QUEUE_GROUP", "notification_workers")
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "memory", "sqlite":
	case "postgres":
		if c.PostgresDSN == "" {
			return errors.New("config: POSTGRES_DSN is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.ProviderName {
	case "mock", "twilio":
	default:
		return fmt.Errorf("config: unknown PROVIDER_NAME %q", c.ProviderName)
	}
	if c.ThrottleLimit <= 0 {
		return errors.New("config: THROTTLE_LIMIT must be positive")
	}
	if c.ThrottleWindow <= 0 {
		return errors.New("config: THROTTLE_WINDOW must be positive")
	}
	if c.BulkPacingInterval < 0 {
		return errors.New("config: BULK_PACING_INTERVAL must not be negative")
	}
	if c.ChallengeCodeLength < 4 || c.ChallengeCodeLength > 10 {
		return errors.New("config: CHALLENGE_CODE_LENGTH must be between 4 and 10")
	}
	return nil
}

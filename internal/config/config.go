/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the booking-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                   string `mapstructure:"SERVER_PORT"`
	DatabaseURL                  string `mapstructure:"DATABASE_URL"`
	RedisURL                     string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix         string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                  string `mapstructure:"RABBITMQ_URL"`
	PaymentEventQueue            string `mapstructure:"PAYMENT_EVENT_QUEUE"`
	PaymentWebhookSecret         string `mapstructure:"PAYMENT_WEBHOOK_SECRET"`
	JWKSURL                      string `mapstructure:"JWKS_URL"`
	SyncChannelPrefix            string `mapstructure:"SYNC_CHANNEL_PREFIX"`
	SyncPollIntervalSeconds      int    `mapstructure:"SYNC_POLL_INTERVAL_SECONDS"`
	ResendAPIKey                 string `mapstructure:"RESEND_API_KEY"`
	EmailFrom                    string `mapstructure:"EMAIL_FROM"`
	TrainerActionRateLimitPerMin int    `mapstructure:"TRAINER_ACTION_RATE_LIMIT_PER_MINUTE"`
}

// PushEnabled reports whether the push transport can run. Push needs a Redis
// endpoint; without one the service falls back to interval polling.
func (c Config) PushEnabled() bool {
	return c.RedisURL != ""
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("PAYMENT_EVENT_QUEUE", "booking_service.payment_updates")
	viper.SetDefault("SYNC_CHANNEL_PREFIX", "littlesteps")
	viper.SetDefault("SYNC_POLL_INTERVAL_SECONDS", 30)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "littlesteps:rate_limit")
	viper.SetDefault("EMAIL_FROM", "Little Steps <bookings@littlesteps.example>")
	viper.SetDefault("TRAINER_ACTION_RATE_LIMIT_PER_MINUTE", 30)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "BOOKING_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PAYMENT_EVENT_QUEUE")
	_ = viper.BindEnv("PAYMENT_WEBHOOK_SECRET")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("SYNC_CHANNEL_PREFIX")
	_ = viper.BindEnv("SYNC_POLL_INTERVAL_SECONDS")
	_ = viper.BindEnv("RESEND_API_KEY")
	_ = viper.BindEnv("EMAIL_FROM")
	_ = viper.BindEnv("TRAINER_ACTION_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "littlesteps:rate_limit"
	}
	config.SyncChannelPrefix = strings.TrimSpace(config.SyncChannelPrefix)
	if config.SyncChannelPrefix == "" {
		config.SyncChannelPrefix = "littlesteps"
	}

	if config.SyncPollIntervalSeconds < 5 {
		log.Printf("level=warn component=config msg=\"poll interval too low; coercing to 5s\" seconds=%d", config.SyncPollIntervalSeconds)
		config.SyncPollIntervalSeconds = 5
	}
	if config.TrainerActionRateLimitPerMin < 0 {
		log.Printf("level=warn component=config msg=\"negative trainer rate limit; disabling\" limit=%d", config.TrainerActionRateLimitPerMin)
		config.TrainerActionRateLimitPerMin = 0
	}

	return
}

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

// Config holds all the configuration variables for the payment-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                string `mapstructure:"SERVER_PORT"`
	DatabaseURL               string `mapstructure:"DATABASE_URL"`
	RabbitMQURL               string `mapstructure:"RABBITMQ_URL"`
	RedisURL                  string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix      string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	WebhookRateLimitPerMinute int    `mapstructure:"WEBHOOK_RATE_LIMIT_PER_MINUTE"`
	MQTTBrokerURL             string `mapstructure:"MQTT_BROKER_URL"`
	MQTTClientID              string `mapstructure:"MQTT_CLIENT_ID"`
	MQTTReceiptTopicPrefix    string `mapstructure:"MQTT_RECEIPT_TOPIC_PREFIX"`
	TelegramBotToken          string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	PosterAPIBaseURL          string `mapstructure:"POSTER_API_BASE_URL"`
	AutomationWebhookURL      string `mapstructure:"AUTOMATION_WEBHOOK_URL"`
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
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "venuehub:rate_limit")
	viper.SetDefault("WEBHOOK_RATE_LIMIT_PER_MINUTE", 120)
	viper.SetDefault("MQTT_CLIENT_ID", "payment-service")
	viper.SetDefault("MQTT_RECEIPT_TOPIC_PREFIX", "venues")
	viper.SetDefault("POSTER_API_BASE_URL", "https://joinposter.com")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "PAYMENT_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("WEBHOOK_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("MQTT_BROKER_URL")
	_ = viper.BindEnv("MQTT_CLIENT_ID")
	_ = viper.BindEnv("MQTT_RECEIPT_TOPIC_PREFIX")
	_ = viper.BindEnv("TELEGRAM_BOT_TOKEN")
	_ = viper.BindEnv("POSTER_API_BASE_URL")
	_ = viper.BindEnv("AUTOMATION_WEBHOOK_URL")

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
		config.RedisRateLimitPrefix = "venuehub:rate_limit"
	}
	if config.WebhookRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative webhook rate limit configured; disabling\" limit=%d", config.WebhookRateLimitPerMinute)
		config.WebhookRateLimitPerMinute = 0
	}
	config.MQTTBrokerURL = strings.TrimSpace(config.MQTTBrokerURL)
	config.TelegramBotToken = strings.TrimSpace(config.TelegramBotToken)
	config.AutomationWebhookURL = strings.TrimSpace(config.AutomationWebhookURL)

	return
}

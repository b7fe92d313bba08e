package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App   AppConfig   `mapstructure:"app"`
	Redis RedisConfig `mapstructure:"redis"`
	Kafka KafkaConfig `mapstructure:"kafka"`
	Hub   HubConfig   `mapstructure:"hub"`

	Feeder FeederConfig `mapstructure:"feeder"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// HubConfig carries the round-dispatch engine settings.
type HubConfig struct {
	// SourceToken identifies the one principal allowed to submit rounds.
	SourceToken string `mapstructure:"source_token"`
	// AdminToken guards the subscriber/config admin surface.
	AdminToken string `mapstructure:"admin_token"`
	// PriceCeiling is the sanity ceiling, a decimal unsigned integer.
	PriceCeiling string `mapstructure:"price_ceiling"`
	// QuarantineThreshold is the consecutive-failure count that trips
	// quarantine.
	QuarantineThreshold int `mapstructure:"quarantine_threshold"`
	// QuarantineCooldown reinstates a non-forced quarantine after this
	// long. Zero disables automatic reinstatement.
	QuarantineCooldown time.Duration `mapstructure:"quarantine_cooldown"`
	// DeliveryTimeout bounds each outbound subscriber call.
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	// ReportHistory caps how many round reports are retained.
	ReportHistory int `mapstructure:"report_history"`
}

// FeederConfig drives the synthetic round publisher used for load and
// local development.
type FeederConfig struct {
	Keys     []string      `mapstructure:"keys"`
	Interval time.Duration `mapstructure:"interval"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Load .env into the process environment first (if it exists), so
	// variables like APP_PORT are available as real env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "price_rounds")
	v.SetDefault("kafka.group_id", "oracle-hub-group")

	v.SetDefault("hub.source_token", "")
	v.SetDefault("hub.admin_token", "")
	v.SetDefault("hub.price_ceiling", "1000000000000000000000000") // 1e24
	v.SetDefault("hub.quarantine_threshold", 3)
	v.SetDefault("hub.quarantine_cooldown", 10*time.Minute)
	v.SetDefault("hub.delivery_timeout", 3*time.Second)
	v.SetDefault("hub.report_history", 30)

	v.SetDefault("feeder.keys", []string{"BTC/USD", "ETH/USD", "ATOM/USD"})
	v.SetDefault("feeder.interval", 5*time.Second)

	// Map dot-notation keys to underscore env vars (e.g. "app.port" -> APP_PORT).
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit binds so flat env vars land in the nested structs.
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.enabled", "kafka.brokers", "kafka.topic", "kafka.group_id")
	bindEnv(v, "hub.source_token", "hub.admin_token", "hub.price_ceiling")
	bindEnv(v, "hub.quarantine_threshold", "hub.quarantine_cooldown")
	bindEnv(v, "hub.delivery_timeout", "hub.report_history")
	bindEnv(v, "feeder.keys", "feeder.interval")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %v", err)
	}

	if cfg.Hub.SourceToken == "" {
		return nil, fmt.Errorf("hub source token cannot be empty")
	}
	if cfg.Hub.QuarantineThreshold < 1 {
		return nil, fmt.Errorf("quarantine threshold must be at least 1")
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty")
	}

	return &cfg, nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}

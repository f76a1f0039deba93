package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"gt=0,lt=65536"`
	// MaxBodyBytes caps webhook request bodies.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" validate:"gt=0"`
}

type DBConfig struct {
	URL         string `mapstructure:"url" validate:"required"`
	ServiceKey  string `mapstructure:"service_key" validate:"required"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// DSN returns URL with the service credential set as the connection password.
func (c DBConfig) DSN() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	user := "postgres"
	if u.User != nil && u.User.Username() != "" {
		user = u.User.Username()
	}
	u.User = url.UserPassword(user, c.ServiceKey)
	return u.String(), nil
}

type RazorpayConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret" validate:"required"`
}

type AdminConfig struct {
	// JWTSecret signs service_role bearer tokens. Empty disables the admin API.
	JWTSecret string `mapstructure:"jwt_secret"`
}

type ExpiryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron" validate:"required_if=Enabled true"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic" validate:"required_with=Brokers"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel" validate:"required_with=Addr"`
}

type EventsConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
	Redis RedisConfig `mapstructure:"redis"`
}

type Env string

const (
	EnvDev  Env = "dev"
	EnvProd Env = "prod"
)

type Config struct {
	Env         Env            `mapstructure:"env" validate:"oneof=dev prod"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DBConfig       `mapstructure:"database"`
	Razorpay    RazorpayConfig `mapstructure:"razorpay"`
	Admin       AdminConfig    `mapstructure:"admin"`
	Expiry      ExpiryConfig   `mapstructure:"expiry"`
	Events      EventsConfig   `mapstructure:"events"`
	MetricsAddr string         `mapstructure:"metrics_addr"`
}

// fallbackEnv maps config keys to the unprefixed variable names the
// deployment platform injects.
var fallbackEnv = map[string]string{
	"database.url":            "DATABASE_URL",
	"database.service_key":    "SERVICE_ROLE_KEY",
	"razorpay.webhook_secret": "RAZORPAY_WEBHOOK_SECRET",
}

func New() (*Config, error) {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	// Allow overriding config file via env:
	// - APP_CONFIG_FILE: absolute or relative file path (e.g., /etc/app/prod.yaml)
	// - APP_CONFIG_NAME: config base name without extension (default: "config")
	if file := os.Getenv("APP_CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
	} else {
		cfgName := os.Getenv("APP_CONFIG_NAME")
		if cfgName == "" {
			cfgName = "config"
		}
		v.SetConfigName(cfgName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range fallbackEnv {
		if err := v.BindEnv(key, "APP_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	// Defaults
	v.SetDefault("env", "dev")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8888)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("admin.jwt_secret", "")
	v.SetDefault("expiry.enabled", true)
	v.SetDefault("expiry.cron", "@every 15m")
	v.SetDefault("events.kafka.brokers", []string{})
	v.SetDefault("events.kafka.topic", "entitlement.changed")
	v.SetDefault("events.redis.addr", "")
	v.SetDefault("events.redis.password", "")
	v.SetDefault("events.redis.db", 0)
	v.SetDefault("events.redis.channel", "entitlement.changed")
	v.SetDefault("metrics_addr", ":9090")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}

var Module = fx.Options(
	fx.Provide(New),
)

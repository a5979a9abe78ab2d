package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "SCRIMX"

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	AWS       AWSConfig
	DynamoDB  DynamoDBConfig
	NATS      NATSConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Reset     ResetConfig
	Service   ServiceConfig
}

type ServerConfig struct {
	GRPCPort    int    `validate:"required,min=1,max=65535"`
	MetricsPort int    `validate:"required,min=1,max=65535"`
	Environment string `validate:"oneof=development production test"`
	LogLevel    string `validate:"oneof=debug info warn error"`
	LogFormat   string `validate:"oneof=json console"`
}

type StorageConfig struct {
	Driver   string `validate:"oneof=dynamodb bolt"`
	BoltPath string `validate:"required_if=Driver bolt"`
}

type AWSConfig struct {
	Region   string
	Endpoint string
}

type DynamoDBConfig struct {
	TableName        string `validate:"required"`
	MaxRetries       int    `validate:"min=0"`
	UseLocalEndpoint bool
}

type NATSConfig struct {
	Enabled              bool
	URL                  string `validate:"required_if=Enabled true"`
	MaxReconnect         int
	ReconnectWaitSeconds int `validate:"min=0"`
	TimeoutSeconds       int `validate:"min=0"`
	GatewaySubject       string
}

type RedisConfig struct {
	Enabled  bool
	Address  string `validate:"required_if=Enabled true"`
	Password string
	DB       int `validate:"min=0"`
}

type SchedulerConfig struct {
	Timezone              string        `validate:"required"`
	ResetTime             string        `validate:"required"`
	DetailsLead           time.Duration `validate:"min=0"`
	ExpirySweepInterval   time.Duration `validate:"required"`
	ReminderSweepInterval time.Duration `validate:"required"`
}

// ResetConfig decides what the daily reset discards besides registrations.
type ResetConfig struct {
	ClearReservations  bool
	ClearCancellations bool
}

type ServiceConfig struct {
	MaxConflictRetries       int     `validate:"min=1"`
	ReminderDeliveriesPerSec float64 `validate:"gt=0"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
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

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("invalid scheduler.timezone: %w", err)
	}

	return nil
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpcPort", 50051)
	v.SetDefault("server.metricsPort", 9090)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.logLevel", "info")
	v.SetDefault("server.logFormat", "json")

	v.SetDefault("storage.driver", "bolt")
	v.SetDefault("storage.boltPath", "./scrims.db")

	v.SetDefault("aws.region", "eu-central-1")
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("dynamodb.tableName", "scrimx")
	v.SetDefault("dynamodb.maxRetries", 3)
	v.SetDefault("dynamodb.useLocalEndpoint", false)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.maxReconnect", -1)
	v.SetDefault("nats.reconnectWaitSeconds", 2)
	v.SetDefault("nats.timeoutSeconds", 5)
	v.SetDefault("nats.gatewaySubject", "platform.gateway")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.resetTime", "05:00")
	v.SetDefault("scheduler.detailsLead", 5*time.Minute)
	v.SetDefault("scheduler.expirySweepInterval", 5*time.Minute)
	v.SetDefault("scheduler.reminderSweepInterval", 5*time.Minute)

	v.SetDefault("reset.clearReservations", false)
	v.SetDefault("reset.clearCancellations", true)

	v.SetDefault("service.maxConflictRetries", 5)
	v.SetDefault("service.reminderDeliveriesPerSec", 5.0)
}

package natsjetstream

import (
	"time"

	"github.com/scrimx/scrims/common/config"
)

type Config struct {
	URL           string
	MaxReconnect  int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

func FromAppConfig(cfg config.NATSConfig) *Config {
	return &Config{
		URL:           cfg.URL,
		MaxReconnect:  cfg.MaxReconnect,
		ReconnectWait: time.Duration(cfg.ReconnectWaitSeconds) * time.Second,
		Timeout:       time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

type StreamConfig struct {
	Name     string
	Subjects []string
	MaxAge   time.Duration
}

type ConsumerConfig struct {
	StreamName    string
	ConsumerName  string
	Durable       string
	FilterSubject string
	AckPolicy     string
	AckWait       time.Duration
	MaxDeliver    int
	MaxAckPending int
}

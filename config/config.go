package config

import (
	"io"
	"time"

	"ptstream/codec"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

const (
	TransportTCP   = "tcp"
	TransportRedis = "redis"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	LogLevel  string              `mapstructure:"log_level"`
	LogFormat string              `mapstructure:"log_format"`
	Broker    BrokerConfig        `mapstructure:"broker"`
	RPC       RPCConfig           `mapstructure:"rpc"`
	Metrics   MetricsConfig       `mapstructure:"metrics"`
	Transport TransportConfig     `mapstructure:"transport"`
	Redis     RedisConfig         `mapstructure:"redis"`
	Publisher PublisherConfig     `mapstructure:"publisher"`
	Session   SessionConfig       `mapstructure:"session"`
	Handlers  []codec.HandlerPair `mapstructure:"handlers"`
}

type BrokerConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	MaxClients int    `mapstructure:"max_clients"`
}

type RPCConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

type TransportConfig struct {
	Kind          string `mapstructure:"kind"`
	BrokerAddr    string `mapstructure:"broker_addr"`
	DialTimeoutMS int    `mapstructure:"dial_timeout_ms"`
}

type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

type PublisherConfig struct {
	PeriodMS       int `mapstructure:"period_ms"`
	Budget         int `mapstructure:"budget"`
	PingIntervalMS int `mapstructure:"ping_interval_ms"`
}

type SessionConfig struct {
	ExpiryTimeoutMS int  `mapstructure:"expiry_timeout_ms"`
	Journal         bool `mapstructure:"journal"`
}

func ReadConfig(r io.Reader) (*Config, error) {
	decoder := toml.NewDecoder(r)
	decoder.SetTagName("mapstructure")
	config := &Config{}
	if err := decoder.Decode(config); err != nil {
		return nil, errors.Wrap(err, "error decoding config file")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the settings that would otherwise fail late, after
// services have started.
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportTCP, TransportRedis:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown transport kind %q", c.Transport.Kind)
	}
	if c.Publisher.PeriodMS <= 0 {
		return errors.Wrap(ErrInvalidConfig, "publisher.period_ms must be positive")
	}
	if c.Publisher.Budget <= 0 {
		return errors.Wrap(ErrInvalidConfig, "publisher.budget must be positive")
	}
	if len(c.Handlers) == 0 {
		return errors.Wrap(ErrInvalidConfig, "no handlers configured")
	}
	return nil
}

// Registry builds the handler registry described by the [[handlers]]
// tables, in file order.
func (c *Config) Registry() (*codec.Registry, error) {
	return codec.LoadRegistry(codec.DefaultCatalog(), c.Handlers)
}

func ConvertDuration(base int, unit time.Duration) time.Duration {
	return time.Duration(base) * unit
}

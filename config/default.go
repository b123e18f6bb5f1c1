package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"text/template"

	"ptstream/codec"
	"ptstream/log"

	"github.com/pkg/errors"
)

var DefaultConfig = Config{
	LogLevel:  log.LevelInfo.String(),
	LogFormat: "text",
	Broker: BrokerConfig{
		Enabled:    true,
		Host:       "127.0.0.1",
		Port:       9797,
		MaxClients: 256,
	},
	RPC: RPCConfig{
		Host: "127.0.0.1",
		Port: 9798,
	},
	Metrics: MetricsConfig{
		Enabled: true,
		Host:    "127.0.0.1",
		Port:    9799,
	},
	Transport: TransportConfig{
		Kind:          TransportTCP,
		BrokerAddr:    "127.0.0.1:9797",
		DialTimeoutMS: 5000,
	},
	Redis: RedisConfig{
		Addr:          "127.0.0.1:6379",
		Password:      "",
		DB:            0,
		ChannelPrefix: "ptstream:",
	},
	Publisher: PublisherConfig{
		PeriodMS:       100,
		Budget:         100,
		PingIntervalMS: 1000,
	},
	Session: SessionConfig{
		ExpiryTimeoutMS: 5000,
		Journal:         false,
	},
	Handlers: codec.DefaultPairs(),
}

const defaultConfigTemplateText = `# ptstream Config File

# Sets the log level. Can be one of the following values:
# - error
# - warn
# - info
# - debug
# - trace
log_level = "{{.LogLevel}}"

# Sets the log format. Can be "text" or "json".
log_format = "{{.LogFormat}}"

# Configures the embedded pub/sub broker.
[broker]
  # Starts the broker alongside the daemon.
  enabled = {{.Broker.Enabled}}
  # Sets the IP the broker listens on.
  host = "{{.Broker.Host}}"
  # Sets the port the broker listens on.
  port = {{.Broker.Port}}
  # Sets the maximum number of concurrently connected clients. Additional
  # connections are rejected once this number is reached.
  max_clients = {{.Broker.MaxClients}}

# Configures the control RPC server.
[rpc]
  # Sets the IP the daemon listens for RPC requests on. Exposing
  # the RPC port to the public internet is not safe.
  host = "{{.RPC.Host}}"
  # Sets the port the daemon listens for RPC requests on.
  port = {{.RPC.Port}}

# Configures the prometheus metrics endpoint.
[metrics]
  enabled = {{.Metrics.Enabled}}
  host = "{{.Metrics.Host}}"
  port = {{.Metrics.Port}}

# Configures how publishers and receivers reach the broker.
[transport]
  # Sets the transport. Can be "tcp" or "redis".
  kind = "{{.Transport.Kind}}"
  # Sets the broker address used by the tcp transport.
  broker_addr = "{{.Transport.BrokerAddr}}"
  # Sets how long to wait for the broker before giving up.
  dial_timeout_ms = {{.Transport.DialTimeoutMS}}

# Configures the redis transport.
[redis]
  addr = "{{.Redis.Addr}}"
  password = "{{.Redis.Password}}"
  db = {{.Redis.DB}}
  # Prepended to every topic to form the redis channel name.
  channel_prefix = "{{.Redis.ChannelPrefix}}"

# Configures token publishing.
[publisher]
  # Sets how long tokens are accumulated before a batch is sent.
  period_ms = {{.Publisher.PeriodMS}}
  # Sets how many tokens may be sent per period before producers
  # are throttled.
  budget = {{.Publisher.Budget}}
  # Sets how often ping tokens are sent to remote receivers.
  ping_interval_ms = {{.Publisher.PingIntervalMS}}

# Configures token receiving.
[session]
  # Sets how long a receiver waits for a ping before considering
  # the remote model gone.
  expiry_timeout_ms = {{.Session.ExpiryTimeoutMS}}
  # Records every received batch in the journal.
  journal = {{.Session.Journal}}

# Handler configuration. Each entry binds a token type to a handler, and
# the position of the entry is the tag on the wire. Publishers and
# receivers must use the same list in the same order.
{{range .Handlers}}
[[handlers]]
  type = "{{.TypeName}}"
  handler = "{{.HandlerName}}"
{{end}}`

var defaultConfigTemplate *template.Template

func GenerateDefaultConfigFile() []byte {
	buf := new(bytes.Buffer)
	if err := defaultConfigTemplate.Execute(buf, DefaultConfig); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func ReadConfigFile(homeDir string) (*Config, error) {
	f, err := os.OpenFile(filepath.Join(homeDir, ConfigFilename), os.O_RDONLY, 0755)
	if err != nil {
		return nil, errors.Wrap(err, "error opening config file for reading")
	}
	defer f.Close()
	cfg, err := ReadConfig(f)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}
	return cfg, nil
}

func WriteDefaultConfigFile(homeDir string) error {
	f, err := os.OpenFile(filepath.Join(homeDir, ConfigFilename), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return errors.Wrap(err, "error opening config file for writing")
	}
	defer f.Close()
	rd := bytes.NewReader(GenerateDefaultConfigFile())
	if _, err := io.Copy(f, rd); err != nil {
		return errors.Wrap(err, "error writing config file")
	}
	return nil
}

func init() {
	tmpl := template.New("defaultConfig")
	t, err := tmpl.Parse(defaultConfigTemplateText)
	if err != nil {
		panic(err)
	}
	defaultConfigTemplate = t
}
